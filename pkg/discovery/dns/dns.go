package dns

import (
    "context"
    "log"
    "net"
    "sort"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/go-console/pkg/discovery"
    "github.com/amirimatin/go-console/pkg/internal/logutil"
)

// Options configures DNS-based endpoint discovery.
type Options struct {
    // Names are SRV records or hostnames to resolve.
    // Examples: "_axon-http._tcp.example.com" (SRV) or "axon.example.com" (A/AAAA).
    Names []string

    // Port used for A/AAAA answers; defaults to discovery.DefaultPort.
    Port int

    // Refresh controls cache staleness; if zero, defaults to 5s.
    Refresh time.Duration

    // Resolver optionally overrides the DNS resolver used.
    Resolver *net.Resolver

    Logger *log.Logger
}

type impl struct {
    opts  Options
    mu    sync.Mutex
    last  time.Time
    cache []string
}

// New returns a DNS-backed discovery that resolves SRV and A/AAAA names
// and caches results for the Refresh duration. A failed refresh keeps the
// previous answer.
func New(opts Options) discovery.Discovery {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    if opts.Port == 0 { opts.Port = discovery.DefaultPort }
    return &impl{opts: opts}
}

func (d *impl) Endpoints() []string {
    d.mu.Lock()
    defer d.mu.Unlock()
    if time.Since(d.last) < d.opts.Refresh && len(d.cache) > 0 {
        return append([]string(nil), d.cache...)
    }
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if res := d.resolveAll(ctx); len(res) > 0 {
        d.cache = res
        d.last = time.Now()
    } else if len(d.cache) > 0 {
        logutil.Warnf(d.opts.Logger, "dns discovery: no answers for %v, keeping %d cached endpoints", d.opts.Names, len(d.cache))
    }
    return append([]string(nil), d.cache...)
}

func (d *impl) resolveAll(ctx context.Context) []string {
    seen := make(map[string]struct{})
    var out []string
    add := func(hp string) {
        if _, ok := seen[hp]; ok { return }
        seen[hp] = struct{}{}
        out = append(out, hp)
    }
    for _, name := range d.opts.Names {
        name = strings.TrimSpace(name)
        if name == "" { continue }
        if _, _, err := net.SplitHostPort(name); err == nil {
            add(name)
            continue
        }
        if strings.HasPrefix(name, "_") && strings.Contains(name, "._") {
            if recs := d.lookupSRV(ctx, name); len(recs) > 0 {
                for _, hp := range recs { add(hp) }
                continue
            }
        }
        for _, hp := range d.lookupHost(ctx, name, d.opts.Port) { add(hp) }
    }
    sort.Strings(out)
    return out
}

func (d *impl) resolver() *net.Resolver {
    if d.opts.Resolver != nil { return d.opts.Resolver }
    return net.DefaultResolver
}

func (d *impl) lookupSRV(ctx context.Context, fqdn string) []string {
    svc, proto, domain := parseSRVName(fqdn)
    if svc == "" || proto == "" || domain == "" { return nil }
    _, addrs, err := d.resolver().LookupSRV(ctx, svc, proto, domain)
    if err != nil { return nil }
    var out []string
    for _, a := range addrs {
        host := strings.TrimSuffix(a.Target, ".")
        out = append(out, net.JoinHostPort(host, strconv.Itoa(int(a.Port))))
    }
    return out
}

func (d *impl) lookupHost(ctx context.Context, host string, port int) []string {
    ips, err := d.resolver().LookupHost(ctx, host)
    if err != nil { return nil }
    out := make([]string, 0, len(ips))
    for _, ip := range ips {
        out = append(out, net.JoinHostPort(ip, strconv.Itoa(port)))
    }
    return out
}

// parseSRVName splits _service._proto.name.
func parseSRVName(fqdn string) (service, proto, name string) {
    parts := strings.SplitN(fqdn, ".", 3)
    if len(parts) < 3 { return "", "", "" }
    return strings.TrimPrefix(parts[0], "_"), strings.TrimPrefix(parts[1], "_"), parts[2]
}
