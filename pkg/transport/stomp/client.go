package stomp

import (
    "context"
    "crypto/tls"
    "fmt"
    "log"
    "net/http"
    "net/url"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/gorilla/websocket"

    "github.com/amirimatin/go-console/pkg/internal/logutil"
    "github.com/amirimatin/go-console/pkg/transport"
)

const writeWait = 5 * time.Second

// Options configures a STOMP-over-WebSocket connection.
type Options struct {
    // URL is the ws:// or wss:// endpoint of the broker.
    URL string
    // Host is sent as the STOMP virtual host; defaults to the URL host.
    Host string
    // Header is added to the WebSocket handshake request.
    Header http.Header
    TLS    *tls.Config
    // HandshakeTimeout bounds both the WebSocket and the STOMP handshake.
    HandshakeTimeout time.Duration
    Logger           *log.Logger
}

// Client is a minimal STOMP client: it subscribes to topics and delivers
// MESSAGE frames. It implements transport.PushChannel.
type Client struct {
    conn   *websocket.Conn
    logger *log.Logger
    wmu    sync.Mutex

    mu     sync.Mutex
    subs   map[string]*subscription
    closed bool
    err    error
    done   chan struct{}
}

// Dial opens the WebSocket and completes the STOMP CONNECT handshake.
func Dial(ctx context.Context, opts Options) (*Client, error) {
    u, err := url.Parse(opts.URL)
    if err != nil { return nil, fmt.Errorf("stomp: bad url: %w", err) }
    if opts.HandshakeTimeout <= 0 { opts.HandshakeTimeout = 5 * time.Second }
    if opts.Host == "" { opts.Host = u.Hostname() }
    d := websocket.Dialer{
        Proxy:            http.ProxyFromEnvironment,
        HandshakeTimeout: opts.HandshakeTimeout,
        TLSClientConfig:  opts.TLS,
        Subprotocols:     []string{"v12.stomp", "v11.stomp"},
    }
    conn, _, err := d.DialContext(ctx, u.String(), opts.Header)
    if err != nil { return nil, fmt.Errorf("stomp: dial %s: %w", u.Redacted(), err) }
    c := &Client{conn: conn, logger: opts.Logger, subs: make(map[string]*subscription), done: make(chan struct{})}
    if err := c.handshake(ctx, opts); err != nil {
        _ = conn.Close()
        return nil, err
    }
    go c.readLoop()
    return c, nil
}

func (c *Client) handshake(ctx context.Context, opts Options) error {
    connect := newFrame(cmdConnect, "accept-version", "1.1,1.2", "host", opts.Host, "heart-beat", "0,0")
    if err := c.send(connect); err != nil { return fmt.Errorf("stomp: connect: %w", err) }
    deadline := time.Now().Add(opts.HandshakeTimeout)
    if d, ok := ctx.Deadline(); ok && d.Before(deadline) { deadline = d }
    _ = c.conn.SetReadDeadline(deadline)
    defer func() { _ = c.conn.SetReadDeadline(time.Time{}) }()
    for {
        _, data, err := c.conn.ReadMessage()
        if err != nil { return fmt.Errorf("stomp: awaiting CONNECTED: %w", err) }
        frames, err := Decode(data)
        if err != nil { return err }
        for _, f := range frames {
            switch f.Command {
            case cmdConnected:
                return nil
            case cmdError:
                return fmt.Errorf("stomp: broker refused connection: %s %s", f.Header["message"], string(f.Body))
            default:
                return fmt.Errorf("stomp: unexpected %s frame during handshake", f.Command)
            }
        }
    }
}

// Subscribe registers onMsg for MESSAGE frames on topic.
func (c *Client) Subscribe(ctx context.Context, topic string, onMsg func(transport.Notification)) (transport.Subscription, error) {
    if err := ctx.Err(); err != nil { return nil, err }
    s := &subscription{c: c, id: "sub-" + uuid.NewString(), topic: topic, onMsg: onMsg}
    c.mu.Lock()
    if c.closed {
        c.mu.Unlock()
        return nil, transport.ErrClosed
    }
    c.subs[s.id] = s
    c.mu.Unlock()
    if err := c.send(newFrame(cmdSubscribe, "id", s.id, "destination", topic, "ack", "auto")); err != nil {
        c.mu.Lock()
        delete(c.subs, s.id)
        c.mu.Unlock()
        return nil, fmt.Errorf("stomp: subscribe %s: %w", topic, err)
    }
    return s, nil
}

// Done is closed when the connection ends for any reason.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.err
}

// Close sends DISCONNECT and closes the socket. Safe to call repeatedly.
func (c *Client) Close() error {
    c.mu.Lock()
    if c.closed {
        c.mu.Unlock()
        return nil
    }
    c.closed = true
    c.subs = map[string]*subscription{}
    c.mu.Unlock()
    _ = c.send(newFrame(cmdDisconnect))
    c.wmu.Lock()
    _ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
    c.wmu.Unlock()
    err := c.conn.Close()
    <-c.done
    return err
}

var _ transport.PushChannel = (*Client)(nil)

func (c *Client) send(f Frame) error {
    c.wmu.Lock()
    defer c.wmu.Unlock()
    _ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
    return c.conn.WriteMessage(websocket.TextMessage, Encode(f))
}

func (c *Client) readLoop() {
    defer close(c.done)
    for {
        _, data, err := c.conn.ReadMessage()
        if err != nil {
            c.mu.Lock()
            intentional := c.closed
            c.closed = true
            c.subs = map[string]*subscription{}
            if !intentional { c.err = err }
            c.mu.Unlock()
            if !intentional { logutil.Warnf(c.logger, "stomp: connection lost: %v", err) }
            return
        }
        frames, err := Decode(data)
        if err != nil { logutil.Warnf(c.logger, "stomp: %v", err) }
        for _, f := range frames { c.dispatch(f) }
    }
}

func (c *Client) dispatch(f Frame) {
    switch f.Command {
    case cmdMessage:
        c.mu.Lock()
        s := c.subs[f.Header["subscription"]]
        c.mu.Unlock()
        if s == nil || s.onMsg == nil { return }
        topic := f.Header["destination"]
        if topic == "" { topic = s.topic }
        s.onMsg(transport.Notification{Topic: topic, Body: f.Body})
    case cmdError:
        logutil.Errorf(c.logger, "stomp: broker error: %s %s", f.Header["message"], string(f.Body))
    case cmdReceipt:
    default:
        logutil.Debugf(c.logger, "stomp: ignoring %s frame", f.Command)
    }
}

type subscription struct {
    c     *Client
    id    string
    topic string
    onMsg func(transport.Notification)
    once  sync.Once
}

func (s *subscription) Topic() string { return s.topic }

func (s *subscription) Unsubscribe() error {
    var err error
    s.once.Do(func() {
        s.c.mu.Lock()
        delete(s.c.subs, s.id)
        closed := s.c.closed
        s.c.mu.Unlock()
        if closed { return }
        err = s.c.send(newFrame(cmdUnsubscribe, "id", s.id))
    })
    return err
}
