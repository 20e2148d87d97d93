package grpc

import (
    "context"
    "sync"
    "time"

    "google.golang.org/grpc"

    obsmetrics "github.com/amirimatin/go-console/pkg/observability/metrics"
)

// ConnManager caches gRPC client connections per address and evicts the ones
// nobody has used for ttl.
type ConnManager struct {
    mu      sync.Mutex
    conns   map[string]*managedConn
    ttl     time.Duration
    dialer  func(ctx context.Context, target string) (*grpc.ClientConn, error)
    closing chan struct{}
    closed  bool
}

type managedConn struct {
    cc       *grpc.ClientConn
    lastUsed time.Time
    ref      int
}

// NewConnManager creates a manager with the given idle TTL and dialer.
func NewConnManager(ttl time.Duration, dialer func(ctx context.Context, target string) (*grpc.ClientConn, error)) *ConnManager {
    if ttl <= 0 { ttl = 30 * time.Second }
    m := &ConnManager{ttl: ttl, dialer: dialer, conns: make(map[string]*managedConn), closing: make(chan struct{})}
    go m.janitor()
    return m
}

// Get returns a connection for target and a release func to be called when done.
func (m *ConnManager) Get(ctx context.Context, target string) (*grpc.ClientConn, func(), error) {
    m.mu.Lock()
    if mc, ok := m.conns[target]; ok {
        mc.ref++
        mc.lastUsed = time.Now()
        m.mu.Unlock()
        obsmetrics.GRPCConnReuse.Inc()
        return mc.cc, m.releaser(target), nil
    }
    m.mu.Unlock()

    cc, err := m.dialer(ctx, target)
    if err != nil { return nil, func(){}, err }

    m.mu.Lock()
    defer m.mu.Unlock()
    if existing, ok := m.conns[target]; ok {
        // lost the race to another dialer
        _ = cc.Close()
        existing.ref++
        existing.lastUsed = time.Now()
        obsmetrics.GRPCConnReuse.Inc()
        return existing.cc, m.releaser(target), nil
    }
    m.conns[target] = &managedConn{cc: cc, lastUsed: time.Now(), ref: 1}
    obsmetrics.GRPCConnDials.Inc()
    obsmetrics.GRPCConnActive.Inc()
    return cc, m.releaser(target), nil
}

func (m *ConnManager) releaser(target string) func() {
    var once sync.Once
    return func() { once.Do(func() { m.release(target) }) }
}

func (m *ConnManager) release(target string) {
    m.mu.Lock()
    if mc, ok := m.conns[target]; ok {
        if mc.ref > 0 { mc.ref-- }
        mc.lastUsed = time.Now()
    }
    m.mu.Unlock()
}

// Len reports the number of cached connections.
func (m *ConnManager) Len() int {
    m.mu.Lock()
    defer m.mu.Unlock()
    return len(m.conns)
}

// Close closes all cached connections and stops the janitor.
func (m *ConnManager) Close() {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.closed { return }
    m.closed = true
    close(m.closing)
    for k, mc := range m.conns {
        _ = mc.cc.Close()
        obsmetrics.GRPCConnActive.Dec()
        delete(m.conns, k)
    }
}

func (m *ConnManager) janitor() {
    ticker := time.NewTicker(m.ttl / 2)
    defer ticker.Stop()
    for {
        select {
        case <-m.closing:
            return
        case <-ticker.C:
            cutoff := time.Now().Add(-m.ttl)
            m.mu.Lock()
            for addr, mc := range m.conns {
                if mc.ref == 0 && mc.lastUsed.Before(cutoff) {
                    _ = mc.cc.Close()
                    obsmetrics.GRPCConnEvictions.Inc()
                    obsmetrics.GRPCConnActive.Dec()
                    delete(m.conns, addr)
                }
            }
            m.mu.Unlock()
        }
    }
}
