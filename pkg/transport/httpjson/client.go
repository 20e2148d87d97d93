package httpjson

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "log"
    "net"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "sync"
    "time"

    "go.opentelemetry.io/otel/attribute"

    "github.com/amirimatin/go-console/pkg/discovery"
    "github.com/amirimatin/go-console/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-console/pkg/observability/metrics"
    "github.com/amirimatin/go-console/pkg/observability/tracing"
    "github.com/amirimatin/go-console/pkg/transport"
)

const (
    maxAttempts  = 3
    maxBodyBytes = 8 << 20
    maxErrBody   = 512
)

// Client is a thin HTTP client for the admin API. It fails over between the
// endpoints yielded by a discovery source and retries idempotent reads with
// backoff.
type Client struct {
    httpc     *http.Client
    transport *http.Transport
    isTLS     bool
    eps       discovery.Discovery
    logger    *log.Logger

    mu        sync.Mutex
    preferred string
}

// NewClient constructs a new Client with the given per-request timeout.
func NewClient(timeout time.Duration, eps discovery.Discovery) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    tr := &http.Transport{Proxy: http.ProxyFromEnvironment, MaxIdleConnsPerHost: 4}
    return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, transport: tr, eps: eps}
}

// UseTLS sets the TLS config for the underlying HTTP client and switches the
// request scheme to https.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
    if c.transport != nil { c.transport.TLSClientConfig = cfg }
    c.isTLS = cfg != nil
    return c
}

// WithLogger sets the logger used for failover warnings.
func (c *Client) WithLogger(l *log.Logger) *Client { c.logger = l; return c }

// Preferred returns the endpoint that answered last, if any.
func (c *Client) Preferred() string {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.preferred
}

func (c *Client) GetLicense(ctx context.Context) (transport.License, error) {
    var out transport.License
    err := c.getJSON(ctx, transport.PathLicense, nil, &out)
    return out, err
}

func (c *Client) GetSelf(ctx context.Context) (transport.Node, error) {
    var out transport.Node
    err := c.getJSON(ctx, transport.PathSelf, nil, &out)
    return out, err
}

func (c *Client) GetNodes(ctx context.Context) ([]transport.Node, error) {
    var out []transport.Node
    err := c.getJSON(ctx, transport.PathNodes, nil, &out)
    return out, err
}

func (c *Client) GetVisibleContexts(ctx context.Context, includeAdmin bool) ([]string, error) {
    var out []string
    q := url.Values{"includeAdmin": []string{strconv.FormatBool(includeAdmin)}}
    err := c.getJSON(ctx, transport.PathVisibleContexts, q, &out)
    return out, err
}

func (c *Client) GetStatus(ctx context.Context, contextName string) (transport.Status, error) {
    out := transport.Status{}
    q := url.Values{"context": []string{contextName}}
    err := c.getJSON(ctx, transport.PathStatus, q, &out)
    return out, err
}

func (c *Client) DownloadTemplate(ctx context.Context) ([]byte, error) {
    return c.do(ctx, http.MethodGet, transport.PathTemplate, nil, nil)
}

func (c *Client) PurgeEvents(ctx context.Context) error {
    _, err := c.do(ctx, http.MethodDelete, transport.PathPurgeEvents, nil, nil)
    return err
}

func (c *Client) InitCluster(ctx context.Context, contextName string) error {
    var q url.Values
    if contextName != "" { q = url.Values{"context": []string{contextName}} }
    _, err := c.do(ctx, http.MethodPost, transport.PathInitCluster, q, nil)
    return err
}

func (c *Client) JoinCluster(ctx context.Context, req transport.JoinRequest) error {
    body, err := json.Marshal(req)
    if err != nil { return err }
    _, err = c.do(ctx, http.MethodPost, transport.PathJoinCluster, nil, body)
    return err
}

var _ transport.AdminClient = (*Client)(nil)

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
    b, err := c.do(ctx, http.MethodGet, path, q, nil)
    if err != nil { return err }
    if len(bytes.TrimSpace(b)) == 0 { return nil }
    if err := json.Unmarshal(b, out); err != nil {
        return fmt.Errorf("decode %s: %w", path, err)
    }
    return nil
}

// do runs one logical request. Reads are retried; writes are only sent to a
// further endpoint when no endpoint has answered yet.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte) (out []byte, err error) {
    ctx, end := tracing.StartSpan(ctx, "http."+method+" "+path,
        attribute.String("http.method", method), attribute.String("http.route", path))
    start := time.Now()
    defer func() {
        end(err)
        obsmetrics.APIRequestSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())
        obsmetrics.APIRequests.WithLabelValues(path, obsmetrics.Result(err)).Inc()
    }()

    eps := c.ordered()
    if len(eps) == 0 { return nil, transport.ErrNoEndpoints }
    idempotent := method == http.MethodGet
    attempts := 1
    if idempotent { attempts = maxAttempts }

    var lastErr error
    for attempt := 0; attempt < attempts; attempt++ {
        for i, ep := range eps {
            b, answered, err := c.once(ctx, ep, method, path, q, body)
            if err == nil {
                c.prefer(ep)
                return b, nil
            }
            lastErr = err
            if answered {
                c.prefer(ep)
                if !idempotent || !retryable(err) { return nil, err }
                break
            }
            if ctx.Err() != nil { return nil, ctx.Err() }
            // a write may already have reached the server unless the dial failed
            if !idempotent && !dialFailed(err) { return nil, err }
            if i < len(eps)-1 {
                obsmetrics.EndpointFailovers.Inc()
                logutil.Warnf(c.logger, "httpjson: %s %s via %s failed: %v; trying %s", method, path, ep, err, eps[i+1])
            }
        }
        if attempt == attempts-1 { break }
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return nil, lastErr
}

// once performs a single HTTP exchange; answered reports whether the server
// produced a response at all.
func (c *Client) once(ctx context.Context, ep, method, path string, q url.Values, body []byte) ([]byte, bool, error) {
    scheme := "http"
    if c.isTLS { scheme = "https" }
    u := fmt.Sprintf("%s://%s/%s", scheme, ep, strings.TrimPrefix(path, "/"))
    if len(q) > 0 { u += "?" + q.Encode() }
    var rd io.Reader
    if body != nil { rd = bytes.NewReader(body) }
    req, err := http.NewRequestWithContext(ctx, method, u, rd)
    if err != nil { return nil, false, err }
    if body != nil { req.Header.Set("Content-Type", "application/json") }
    req.Header.Set("Accept", "application/json, text/plain, */*")
    resp, err := c.httpc.Do(req)
    if err != nil { return nil, false, err }
    defer resp.Body.Close()
    b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        msg := strings.TrimSpace(string(b))
        if len(msg) > maxErrBody { msg = msg[:maxErrBody] }
        return nil, true, &transport.StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: msg}
    }
    if err != nil { return nil, true, err }
    return b, true, nil
}

// ordered returns the discovered endpoints starting at the preferred one.
func (c *Client) ordered() []string {
    if c.eps == nil { return nil }
    eps := c.eps.Endpoints()
    pref := c.Preferred()
    for i, ep := range eps {
        if ep == pref && i > 0 {
            out := make([]string, 0, len(eps))
            out = append(out, eps[i:]...)
            return append(out, eps[:i]...)
        }
    }
    return eps
}

func (c *Client) prefer(ep string) {
    c.mu.Lock()
    c.preferred = ep
    c.mu.Unlock()
}

func dialFailed(err error) bool {
    var oe *net.OpError
    return errors.As(err, &oe) && oe.Op == "dial"
}

func retryable(err error) bool {
    var se *transport.StatusError
    if errors.As(err, &se) { return se.Code >= 500 }
    return true
}
