package stomp

import (
    "context"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/gorilla/websocket"

    "github.com/amirimatin/go-console/pkg/transport"
)

// fakeBroker accepts one STOMP session, acknowledges CONNECT, pushes one
// MESSAGE per SUBSCRIBE and reports every frame it receives.
func fakeBroker(t *testing.T, refuse bool) (*httptest.Server, <-chan Frame) {
    t.Helper()
    got := make(chan Frame, 16)
    up := websocket.Upgrader{Subprotocols: []string{"v12.stomp"}}
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        conn, err := up.Upgrade(w, r, nil)
        if err != nil { t.Errorf("upgrade: %v", err); return }
        defer conn.Close()
        for {
            _, data, err := conn.ReadMessage()
            if err != nil { return }
            frames, err := Decode(data)
            if err != nil { t.Errorf("broker decode: %v", err); return }
            for _, f := range frames {
                got <- f
                var reply []byte
                switch f.Command {
                case cmdConnect:
                    if refuse {
                        reply = Encode(newFrame(cmdError, "message", "access denied"))
                    } else {
                        reply = Encode(newFrame(cmdConnected, "version", "1.2"))
                    }
                case cmdSubscribe:
                    // A message for an unknown subscription must be ignored.
                    _ = conn.WriteMessage(websocket.TextMessage, Encode(newFrame(cmdMessage, "subscription", "other", "destination", f.Header["destination"])))
                    m := newFrame(cmdMessage, "subscription", f.Header["id"], "destination", f.Header["destination"], "message-id", "1")
                    m.Body = []byte("changed")
                    reply = append([]byte("\n"), Encode(m)...)
                }
                if reply != nil {
                    if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil { return }
                }
            }
        }
    }))
    return srv, got
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") + "/websocket" }

func expectFrame(t *testing.T, ch <-chan Frame, cmd string) Frame {
    t.Helper()
    select {
    case f := <-ch:
        if f.Command != cmd { t.Fatalf("expected %s, got %s", cmd, f.Command) }
        return f
    case <-time.After(2 * time.Second):
        t.Fatalf("timed out waiting for %s", cmd)
    }
    return Frame{}
}

func TestSubscribeDeliversAndUnsubscribes(t *testing.T) {
    srv, frames := fakeBroker(t, false)
    defer srv.Close()

    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    c, err := Dial(ctx, Options{URL: wsURL(srv)})
    if err != nil { t.Fatalf("dial: %v", err) }
    defer c.Close()

    connect := expectFrame(t, frames, cmdConnect)
    if connect.Header["accept-version"] != "1.1,1.2" || connect.Header["host"] != "127.0.0.1" {
        t.Fatalf("unexpected CONNECT headers %v", connect.Header)
    }

    notes := make(chan transport.Notification, 4)
    sub, err := c.Subscribe(ctx, transport.TopicCluster, func(n transport.Notification) { notes <- n })
    if err != nil { t.Fatalf("subscribe: %v", err) }
    sf := expectFrame(t, frames, cmdSubscribe)
    if sf.Header["destination"] != transport.TopicCluster || !strings.HasPrefix(sf.Header["id"], "sub-") {
        t.Fatalf("unexpected SUBSCRIBE headers %v", sf.Header)
    }

    select {
    case n := <-notes:
        if n.Topic != transport.TopicCluster || string(n.Body) != "changed" {
            t.Fatalf("unexpected notification %+v", n)
        }
    case <-time.After(2 * time.Second):
        t.Fatalf("no notification delivered")
    }
    select {
    case n := <-notes:
        t.Fatalf("unexpected extra notification %+v", n)
    case <-time.After(50 * time.Millisecond):
    }

    if err := sub.Unsubscribe(); err != nil { t.Fatalf("unsubscribe: %v", err) }
    uf := expectFrame(t, frames, cmdUnsubscribe)
    if uf.Header["id"] != sf.Header["id"] { t.Fatalf("unsubscribe id mismatch: %v vs %v", uf.Header, sf.Header) }
    if err := sub.Unsubscribe(); err != nil { t.Fatalf("second unsubscribe: %v", err) }

    if err := c.Close(); err != nil && !websocket.IsCloseError(err) && !strings.Contains(err.Error(), "closed") {
        t.Logf("close: %v", err)
    }
    expectFrame(t, frames, cmdDisconnect)
    if _, err := c.Subscribe(ctx, transport.TopicCluster, nil); err != transport.ErrClosed {
        t.Fatalf("expected ErrClosed after Close, got %v", err)
    }
}

func TestDialRefused(t *testing.T) {
    srv, _ := fakeBroker(t, true)
    defer srv.Close()

    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    _, err := Dial(ctx, Options{URL: wsURL(srv)})
    if err == nil || !strings.Contains(err.Error(), "access denied") {
        t.Fatalf("expected refusal error, got %v", err)
    }
}
