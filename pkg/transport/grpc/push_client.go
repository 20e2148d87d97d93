package grpc

import (
    "context"
    "crypto/tls"
    "errors"
    "fmt"
    "io"
    "log"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/codes"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    "google.golang.org/grpc/keepalive"
    "google.golang.org/grpc/status"

    "github.com/amirimatin/go-console/pkg/internal/logutil"
    "github.com/amirimatin/go-console/pkg/transport"
)

// PushClient receives topology notifications from a gRPC server stream. It
// implements transport.PushChannel.
type PushClient struct {
    addr    string
    timeout time.Duration
    tlsCfg  *tls.Config
    logger  *log.Logger

    mu     sync.Mutex
    cm     *ConnManager
    closed bool
}

// NewPushClient targets addr (host:port). timeout bounds stream setup.
func NewPushClient(addr string, timeout time.Duration) *PushClient {
    if timeout <= 0 { timeout = 3 * time.Second }
    return &PushClient{addr: addr, timeout: timeout}
}

// UseTLS sets TLS config for the client.
func (c *PushClient) UseTLS(cfg *tls.Config) *PushClient { c.tlsCfg = cfg; return c }

// WithLogger sets the logger used to report stream termination.
func (c *PushClient) WithLogger(l *log.Logger) *PushClient { c.logger = l; return c }

func (c *PushClient) dial(_ context.Context, target string) (*grpc.ClientConn, error) {
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
    }
    if c.tlsCfg != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    return grpc.NewClient(target, opts...)
}

func (c *PushClient) conns() (*ConnManager, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.closed { return nil, transport.ErrClosed }
    if c.cm == nil { c.cm = NewConnManager(30*time.Second, c.dial) }
    return c.cm, nil
}

// Subscribe opens a stream for topic and delivers every message to onMsg
// until Unsubscribe is called or the stream ends. The stream outlives ctx;
// ctx only bounds its establishment.
func (c *PushClient) Subscribe(ctx context.Context, topic string, onMsg func(transport.Notification)) (transport.Subscription, error) {
    cm, err := c.conns()
    if err != nil { return nil, err }
    setup, cancelSetup := context.WithTimeout(ctx, c.timeout)
    defer cancelSetup()
    cc, rel, err := cm.Get(setup, c.addr)
    if err != nil { return nil, err }

    sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
    // NewStream waits for a ready connection; setup bounds that wait.
    stop := context.AfterFunc(setup, cancel)
    cs, err := cc.NewStream(sctx, &grpc.StreamDesc{ServerStreams: true}, subscribeMethod, grpc.WaitForReady(true))
    if !stop() && err == nil { err = context.Cause(setup) }
    if err != nil {
        cancel()
        rel()
        if setup.Err() != nil { return nil, fmt.Errorf("grpc push: subscribe %s via %s: %w", topic, c.addr, setup.Err()) }
        return nil, err
    }
    if err := cs.SendMsg(&subscribeRequest{Topic: topic}); err != nil { cancel(); rel(); return nil, err }
    _ = cs.CloseSend()

    sub := &streamSub{topic: topic, cancel: cancel, done: make(chan struct{})}
    go func() {
        defer close(sub.done)
        defer rel()
        for {
            var m notification
            if err := cs.RecvMsg(&m); err != nil {
                if !errors.Is(err, io.EOF) && status.Code(err) != codes.Canceled {
                    logutil.Warnf(c.logger, "grpc push: stream %s ended: %v", topic, err)
                }
                return
            }
            if onMsg == nil { continue }
            t := m.Topic
            if t == "" { t = topic }
            onMsg(transport.Notification{Topic: t, Body: m.Data})
        }
    }()
    return sub, nil
}

// Close drops cached connections; live streams end with them.
func (c *PushClient) Close() error {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.closed { return nil }
    c.closed = true
    if c.cm != nil { c.cm.Close() }
    return nil
}

var _ transport.PushChannel = (*PushClient)(nil)

type streamSub struct {
    topic  string
    cancel context.CancelFunc
    done   chan struct{}
    once   sync.Once
}

func (s *streamSub) Topic() string { return s.topic }

// Unsubscribe cancels the stream and waits for the receive loop to exit.
func (s *streamSub) Unsubscribe() error {
    s.once.Do(func() {
        s.cancel()
        <-s.done
    })
    return nil
}
