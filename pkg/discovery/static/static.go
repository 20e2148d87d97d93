package static

import (
    "net"
    "strconv"
    "strings"

    "github.com/amirimatin/go-console/pkg/discovery"
)

type staticEndpoints struct {
    eps []string
}

func (s *staticEndpoints) Endpoints() []string { return append([]string(nil), s.eps...) }

// New returns a Discovery that always returns the given endpoints. Entries
// without a port get discovery.DefaultPort; blanks and duplicates are dropped.
func New(endpoints ...string) discovery.Discovery {
    seen := make(map[string]struct{}, len(endpoints))
    cleaned := make([]string, 0, len(endpoints))
    for _, v := range endpoints {
        v = WithDefaultPort(strings.TrimSpace(v), discovery.DefaultPort)
        if v == "" { continue }
        if _, ok := seen[v]; ok { continue }
        seen[v] = struct{}{}
        cleaned = append(cleaned, v)
    }
    return &staticEndpoints{eps: cleaned}
}

// Parse converts a comma-separated list into endpoints, keeping order.
func Parse(csv string) []string {
    if csv == "" {
        return nil
    }
    parts := strings.Split(csv, ",")
    out := make([]string, 0, len(parts))
    for _, p := range parts {
        p = strings.TrimSpace(p)
        if p != "" {
            out = append(out, p)
        }
    }
    return out
}

// WithDefaultPort appends port to host when it carries none. URL schemes are
// stripped; the client picks http or https itself.
func WithDefaultPort(host string, port int) string {
    host = strings.TrimPrefix(strings.TrimPrefix(host, "http://"), "https://")
    host = strings.TrimSuffix(host, "/")
    if host == "" { return "" }
    if _, _, err := net.SplitHostPort(host); err == nil {
        return host
    }
    return net.JoinHostPort(strings.Trim(host, "[]"), strconv.Itoa(port))
}
