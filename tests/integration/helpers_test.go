//go:build integration

package integration

import (
    "encoding/json"
    "net/http"
    "net/http/httptest"
    "strconv"
    "strings"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/gorilla/websocket"

    "github.com/amirimatin/go-console/pkg/transport"
    "github.com/amirimatin/go-console/pkg/transport/stomp"
)

const wsPath = "/axonserver-platform-websocket"

var errNotYet = &temporaryError{}

type temporaryError struct{}

func (e *temporaryError) Error() string { return "not yet" }

func waitUntil(t *testing.T, timeout time.Duration, fn func() error) {
    t.Helper()
    deadline := time.Now().Add(timeout)
    var last error
    for time.Now().Before(deadline) {
        if err := fn(); err == nil {
            return
        } else {
            last = err
        }
        time.Sleep(50 * time.Millisecond)
    }
    t.Fatalf("timeout waiting for condition: %v", last)
}

// fakeServer serves the admin REST API and a STOMP broker on one listener.
type fakeServer struct {
    srv *httptest.Server

    mu     sync.Mutex
    nodes  []transport.Node
    purges int
    joins  []transport.JoinRequest
    inits  []string

    statusCalls atomic.Int32
    broker      broker
}

// newFakeServer returns an unstarted server; call Start or StartTLS on f.srv.
func newFakeServer(t *testing.T) *fakeServer {
    t.Helper()
    f := &fakeServer{nodes: []transport.Node{{Name: "axon-1", Connected: true}}}
    mux := http.NewServeMux()
    mux.HandleFunc("/v1/public/license", func(w http.ResponseWriter, r *http.Request) {
        writeJSON(w, transport.License{Edition: "Enterprise", Features: []string{"clustering"}})
    })
    mux.HandleFunc("/v1/public/me", func(w http.ResponseWriter, r *http.Request) {
        writeJSON(w, transport.Node{Name: "axon-1", HostName: "axon-1", Initialized: true})
    })
    mux.HandleFunc("/v1/public", func(w http.ResponseWriter, r *http.Request) {
        f.mu.Lock()
        defer f.mu.Unlock()
        writeJSON(w, f.nodes)
    })
    mux.HandleFunc("/v1/public/visiblecontexts", func(w http.ResponseWriter, r *http.Request) {
        writeJSON(w, []string{"_admin", "default"})
    })
    mux.HandleFunc("/v1/public/status", func(w http.ResponseWriter, r *http.Request) {
        n := f.statusCalls.Add(1)
        writeJSON(w, map[string]any{"context": r.URL.Query().Get("context"), "polls": n})
    })
    mux.HandleFunc("/v1/devmode/purge-events", func(w http.ResponseWriter, r *http.Request) {
        f.mu.Lock()
        f.purges++
        f.mu.Unlock()
    })
    mux.HandleFunc("/v1/context/init", func(w http.ResponseWriter, r *http.Request) {
        f.mu.Lock()
        f.inits = append(f.inits, r.URL.Query().Get("context"))
        f.mu.Unlock()
    })
    mux.HandleFunc("/v1/cluster", func(w http.ResponseWriter, r *http.Request) {
        var req transport.JoinRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil { http.Error(w, err.Error(), 400); return }
        f.mu.Lock()
        f.joins = append(f.joins, req)
        f.mu.Unlock()
    })
    mux.HandleFunc(wsPath, f.broker.serve)
    f.srv = httptest.NewUnstartedServer(mux)
    t.Cleanup(func() { f.broker.closeAll(); f.srv.Close() })
    return f
}

func (f *fakeServer) addr() string { return f.srv.Listener.Addr().String() }

func (f *fakeServer) addNode(n transport.Node) {
    f.mu.Lock()
    f.nodes = append(f.nodes, n)
    f.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, v any) {
    w.Header().Set("Content-Type", "application/json")
    _ = json.NewEncoder(w).Encode(v)
}

// broker is a minimal STOMP broker: CONNECT, SUBSCRIBE, UNSUBSCRIBE and
// server-side MESSAGE fan-out.
type broker struct {
    mu           sync.Mutex
    conns        []*brokerConn
    unsubscribes int
    seq          int
}

type brokerConn struct {
    ws   *websocket.Conn
    wmu  sync.Mutex
    subs map[string]string // id -> destination
}

func (c *brokerConn) send(f stomp.Frame) {
    c.wmu.Lock()
    defer c.wmu.Unlock()
    _ = c.ws.WriteMessage(websocket.TextMessage, stomp.Encode(f))
}

func (b *broker) serve(w http.ResponseWriter, r *http.Request) {
    up := websocket.Upgrader{Subprotocols: []string{"v12.stomp"}}
    ws, err := up.Upgrade(w, r, nil)
    if err != nil { return }
    c := &brokerConn{ws: ws, subs: map[string]string{}}
    b.mu.Lock()
    b.conns = append(b.conns, c)
    b.mu.Unlock()
    for {
        _, data, err := ws.ReadMessage()
        if err != nil { return }
        frames, _ := stomp.Decode(data)
        for _, f := range frames {
            switch f.Command {
            case "CONNECT", "STOMP":
                c.send(stomp.Frame{Command: "CONNECTED", Header: map[string]string{"version": "1.2"}})
            case "SUBSCRIBE":
                b.mu.Lock()
                c.subs[f.Header["id"]] = f.Header["destination"]
                b.mu.Unlock()
            case "UNSUBSCRIBE":
                b.mu.Lock()
                delete(c.subs, f.Header["id"])
                b.unsubscribes++
                b.mu.Unlock()
            case "DISCONNECT":
                _ = ws.Close()
                return
            }
        }
    }
}

func (b *broker) subscribers(topic string) int {
    b.mu.Lock()
    defer b.mu.Unlock()
    n := 0
    for _, c := range b.conns {
        for _, d := range c.subs {
            if d == topic { n++ }
        }
    }
    return n
}

func (b *broker) unsubscribed() int {
    b.mu.Lock()
    defer b.mu.Unlock()
    return b.unsubscribes
}

func (b *broker) publish(topic, body string) {
    b.mu.Lock()
    type target struct {
        c  *brokerConn
        id string
    }
    var targets []target
    for _, c := range b.conns {
        for id, d := range c.subs {
            if d == topic { targets = append(targets, target{c, id}) }
        }
    }
    b.seq++
    msgID := "m-" + strconv.Itoa(b.seq)
    b.mu.Unlock()
    for _, tg := range targets {
        tg.c.send(stomp.Frame{Command: "MESSAGE", Header: map[string]string{
            "subscription": tg.id, "destination": topic, "message-id": msgID,
        }, Body: []byte(body)})
    }
}

func (b *broker) closeAll() {
    b.mu.Lock()
    defer b.mu.Unlock()
    for _, c := range b.conns { _ = c.ws.Close() }
}

func hostPort(s string) (string, int) {
    i := strings.LastIndex(s, ":")
    p, _ := strconv.Atoi(s[i+1:])
    return s[:i], p
}
