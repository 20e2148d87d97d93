package cli

import (
    "bufio"
    "fmt"
    "io"
    "strings"
    "sync"
)

// Prompter asks yes/no questions on a line-oriented terminal. Anything but
// y/yes declines; so does end of input.
type Prompter struct {
    AssumeYes bool

    out  io.Writer
    next func() (string, bool)
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
    sc := bufio.NewScanner(in)
    var mu sync.Mutex
    return &Prompter{out: out, next: func() (string, bool) {
        mu.Lock()
        defer mu.Unlock()
        if !sc.Scan() { return "", false }
        return sc.Text(), true
    }}
}

// linePrompter answers from a channel of input lines shared with the watch
// command loop.
func linePrompter(lines <-chan string, out io.Writer) *Prompter {
    return &Prompter{out: out, next: func() (string, bool) {
        l, ok := <-lines
        return l, ok
    }}
}

func (p *Prompter) Confirm(msg string) bool {
    if p.AssumeYes { return true }
    fmt.Fprintf(p.out, "%s [y/N]: ", msg)
    line, ok := p.next()
    if !ok { fmt.Fprintln(p.out); return false }
    switch strings.ToLower(strings.TrimSpace(line)) {
    case "y", "yes":
        return true
    }
    return false
}

func (p *Prompter) Alert(msg string) {
    fmt.Fprintf(p.out, "!! %s\n", msg)
}
