package file

import (
    "bufio"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/go-console/pkg/discovery"
    "github.com/amirimatin/go-console/pkg/discovery/static"
)

// Options configures file/ENV-based endpoint discovery.
type Options struct {
    // Path to a file (or glob) listing one endpoint per line or comma-separated.
    Path string
    // Env names a variable holding a CSV list; it wins over the file when set.
    Env string
    // Refresh controls cache staleness; if zero, defaults to 5s.
    Refresh time.Duration
}

type impl struct {
    opts  Options
    mu    sync.Mutex
    last  time.Time
    mtime time.Time
    cache []string
}

func New(opts Options) discovery.Discovery {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    return &impl{opts: opts}
}

func (i *impl) Endpoints() []string {
    i.mu.Lock(); defer i.mu.Unlock()
    if i.opts.Env != "" {
        if v := strings.TrimSpace(os.Getenv(i.opts.Env)); v != "" {
            return normalize(static.Parse(v))
        }
    }
    if i.opts.Path == "" {
        return nil
    }
    now := time.Now()
    if stat, err := os.Stat(i.opts.Path); err == nil {
        if stat.ModTime().After(i.mtime) || now.Sub(i.last) >= i.opts.Refresh {
            i.cache = loadFile(i.opts.Path)
            i.last = now
            i.mtime = stat.ModTime()
        }
        return append([]string(nil), i.cache...)
    }
    if now.Sub(i.last) < i.opts.Refresh && i.cache != nil {
        return append([]string(nil), i.cache...)
    }
    matches, _ := filepath.Glob(i.opts.Path)
    if len(matches) > 0 {
        var all []string
        for _, m := range matches { all = append(all, loadFile(m)...) }
        i.cache = normalize(all)
        i.last = now
    }
    return append([]string(nil), i.cache...)
}

func loadFile(path string) []string {
    f, err := os.Open(path)
    if err != nil { return nil }
    defer f.Close()
    var eps []string
    s := bufio.NewScanner(f)
    for s.Scan() {
        line := strings.TrimSpace(s.Text())
        if line == "" || strings.HasPrefix(line, "#") { continue }
        eps = append(eps, static.Parse(line)...)
    }
    if err := s.Err(); err != nil { return nil }
    return normalize(eps)
}

// normalize applies the default port, de-duplicates and sorts.
func normalize(in []string) []string {
    set := make(map[string]struct{}, len(in))
    for _, x := range in {
        if x = static.WithDefaultPort(x, discovery.DefaultPort); x != "" { set[x] = struct{}{} }
    }
    out := make([]string, 0, len(set))
    for x := range set { out = append(out, x) }
    sort.Strings(out)
    return out
}
