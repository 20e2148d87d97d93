package httpjson

import (
    "context"
    "encoding/json"
    "io"
    "net/http"
    "strings"
    "testing"
    "time"
)

func TestServerRoutes(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    s := NewServer("127.0.0.1:0", nil)
    if err := s.Start(ctx, func() any { return map[string]string{"selected": "default"} }); err != nil {
        t.Fatalf("start: %v", err)
    }
    base := "http://" + s.Addr()
    hc := &http.Client{Timeout: 2 * time.Second}

    resp, err := hc.Get(base + "/dashboard")
    if err != nil { t.Fatalf("get dashboard: %v", err) }
    var got map[string]string
    if err := json.NewDecoder(resp.Body).Decode(&got); err != nil { t.Fatalf("decode: %v", err) }
    resp.Body.Close()
    if got["selected"] != "default" { t.Fatalf("unexpected snapshot %v", got) }

    resp, err = hc.Post(base+"/dashboard", "application/json", strings.NewReader("{}"))
    if err != nil { t.Fatalf("post: %v", err) }
    resp.Body.Close()
    if resp.StatusCode != http.StatusMethodNotAllowed { t.Fatalf("expected 405, got %d", resp.StatusCode) }

    resp, err = hc.Get(base + "/healthz")
    if err != nil { t.Fatalf("healthz: %v", err) }
    b, _ := io.ReadAll(resp.Body)
    resp.Body.Close()
    if string(b) != "ok" { t.Fatalf("unexpected healthz body %q", b) }

    resp, err = hc.Get(base + "/metrics")
    if err != nil { t.Fatalf("metrics: %v", err) }
    resp.Body.Close()
    if resp.StatusCode != http.StatusOK { t.Fatalf("metrics status %d", resp.StatusCode) }

    if err := s.Stop(context.Background()); err != nil { t.Fatalf("stop: %v", err) }
    if err := s.Stop(context.Background()); err != nil { t.Fatalf("second stop: %v", err) }
}
