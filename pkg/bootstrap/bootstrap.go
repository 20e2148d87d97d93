package bootstrap

import (
    "context"
    "crypto/tls"
    "fmt"
    "log"
    "net/url"
    "strings"
    "sync"

    "github.com/amirimatin/go-console/pkg/config"
    "github.com/amirimatin/go-console/pkg/dashboard"
    "github.com/amirimatin/go-console/pkg/discovery"
    dDNS "github.com/amirimatin/go-console/pkg/discovery/dns"
    dFile "github.com/amirimatin/go-console/pkg/discovery/file"
    dStatic "github.com/amirimatin/go-console/pkg/discovery/static"
    "github.com/amirimatin/go-console/pkg/internal/logutil"
    tlsx "github.com/amirimatin/go-console/pkg/security/tlsconfig"
    "github.com/amirimatin/go-console/pkg/transport"
    pushgrpc "github.com/amirimatin/go-console/pkg/transport/grpc"
    httpjson "github.com/amirimatin/go-console/pkg/transport/httpjson"
    "github.com/amirimatin/go-console/pkg/transport/stomp"
)

// Console bundles the collaborators assembled from config.Config: endpoint
// discovery, the admin REST client, TLS material and the push channel.
type Console struct {
    Config    config.Config
    Discovery discovery.Discovery
    Client    *httpjson.Client
    Edition   dashboard.Edition
    // ServerTLS is set when TLS is enabled; used by the watch listener.
    ServerTLS *tls.Config

    logger *log.Logger
    cliTLS *tls.Config

    mu   sync.Mutex
    push transport.PushChannel
}

// Build assembles a Console from cfg without any network activity.
func Build(cfg config.Config, logger *log.Logger) (*Console, error) {
    if logger == nil { logger = log.Default() }
    if err := cfg.Validate(); err != nil { return nil, err }
    ed, err := dashboard.ParseEdition(cfg.Edition)
    if err != nil { return nil, err }

    var disc discovery.Discovery
    switch cfg.Discovery {
    case "dns":
        opts := dDNS.Options{Names: dStatic.Parse(cfg.DNSNames), Port: cfg.DNSPort, Logger: logger}
        if cfg.DiscRefresh > 0 { opts.Refresh = cfg.DiscRefresh }
        disc = dDNS.New(opts)
    case "file":
        opts := dFile.Options{Path: cfg.FilePath, Env: cfg.FileEnv}
        if cfg.DiscRefresh > 0 { opts.Refresh = cfg.DiscRefresh }
        disc = dFile.New(opts)
    default:
        disc = dStatic.New(dStatic.Parse(cfg.Servers)...)
    }

    c := &Console{Config: cfg, Discovery: disc, Edition: ed, logger: logger}
    if cfg.TLSEnable {
        topts := tlsx.Options{Enable: true, CAFile: cfg.TLSCA, CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey, InsecureSkipVerify: cfg.TLSSkipVerify, ServerName: cfg.TLSServerName}
        if c.cliTLS, err = topts.Client(); err != nil { return nil, fmt.Errorf("tls client config: %w", err) }
        if cfg.TLSCert != "" && cfg.TLSKey != "" {
            if c.ServerTLS, err = topts.Server(); err != nil { return nil, fmt.Errorf("tls server config: %w", err) }
        }
    }
    c.Client = httpjson.NewClient(cfg.Timeout, disc).WithLogger(logger)
    if c.cliTLS != nil { c.Client.UseTLS(c.cliTLS) }
    return c, nil
}

// Push returns the push channel for the clustered edition, dialing it on
// first use. It returns nil without error for the community edition or when
// push is disabled.
func (c *Console) Push(ctx context.Context) (transport.PushChannel, error) {
    if c.Edition != dashboard.EditionClustered || c.Config.PushProto == "none" { return nil, nil }
    c.mu.Lock()
    defer c.mu.Unlock()
    if sc, ok := c.push.(*stomp.Client); ok {
        select {
        case <-sc.Done():
            logutil.Warnf(c.logger, "stomp connection lost (%v), redialing", sc.Err())
            c.push = nil
        default:
        }
    }
    if c.push != nil { return c.push, nil }
    switch c.Config.PushProto {
    case "grpc":
        pc := pushgrpc.NewPushClient(c.Config.PushAddr, c.Config.Timeout).WithLogger(c.logger)
        if c.cliTLS != nil { pc.UseTLS(c.cliTLS) }
        c.push = pc
    default:
        u, err := c.WebSocketURL()
        if err != nil { return nil, err }
        sc, err := stomp.Dial(ctx, stomp.Options{URL: u, TLS: c.cliTLS, HandshakeTimeout: c.Config.Timeout, Logger: c.logger})
        if err != nil { return nil, err }
        c.push = sc
    }
    return c.push, nil
}

// WebSocketURL derives the STOMP endpoint from --push-addr, falling back to
// the first discovered admin endpoint.
func (c *Console) WebSocketURL() (string, error) {
    host := c.Config.PushAddr
    if host == "" {
        eps := c.Discovery.Endpoints()
        if len(eps) == 0 { return "", transport.ErrNoEndpoints }
        host = eps[0]
    }
    if strings.Contains(host, "://") {
        u, err := url.Parse(host)
        if err != nil { return "", fmt.Errorf("push-addr: %w", err) }
        return u.String(), nil
    }
    scheme := "ws"
    if c.cliTLS != nil { scheme = "wss" }
    path := c.Config.WSPath
    if path != "" && !strings.HasPrefix(path, "/") { path = "/" + path }
    return (&url.URL{Scheme: scheme, Host: dStatic.WithDefaultPort(host, discovery.DefaultPort), Path: path}).String(), nil
}

// DashboardOptions are the interactive collaborators a front end supplies.
type DashboardOptions struct {
    Prompter dashboard.Prompter
    Saver    dashboard.FileSaver
    Reload   func()
    // OneShot skips the push channel; the dashboard is never mounted.
    OneShot bool
}

// NewDashboard builds a dashboard over the console's client and push channel.
// A push dial failure is logged and the dashboard falls back to polling.
func (c *Console) NewDashboard(ctx context.Context, o DashboardOptions) (*dashboard.Dashboard, error) {
    var push transport.PushChannel
    if !o.OneShot {
        p, err := c.Push(ctx)
        if err != nil {
            logutil.Warnf(c.logger, "push channel unavailable, topology updates disabled: %v", err)
        } else {
            push = p
        }
    }
    return dashboard.New(dashboard.Options{
        Client:         c.Client,
        Push:           push,
        Edition:        c.Edition,
        Prompter:       o.Prompter,
        Saver:          o.Saver,
        Reload:         o.Reload,
        PollInterval:   c.Config.Interval,
        RequestTimeout: c.Config.Timeout,
        Logger:         c.logger,
    })
}

// Close releases the push channel, if one was opened.
func (c *Console) Close() error {
    c.mu.Lock()
    p := c.push
    c.push = nil
    c.mu.Unlock()
    if p == nil { return nil }
    return p.Close()
}
