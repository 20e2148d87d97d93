package dashboard

import (
    "context"
    "errors"
    "io"
    "log"
    "sync"
    "time"

    "github.com/amirimatin/go-console/pkg/transport"
)

var errBoom = errors.New("boom")

type call struct {
    Method string
    Arg    any
}

// fakeClient records every admin call and answers from its fields.
type fakeClient struct {
    mu    sync.Mutex
    calls []call

    license  transport.License
    self     transport.Node
    nodes    []transport.Node
    contexts []string
    status   map[string]transport.Status
    template []byte
    fail     map[string]error
    // gate, when set for a method, blocks the call until closed.
    gate map[string]chan struct{}
}

func newFakeClient() *fakeClient {
    return &fakeClient{
        license:  transport.License{Edition: "Enterprise", Features: []string{"clustering"}},
        self:     transport.Node{Name: "axon-1", HostName: "axon-1", Initialized: true},
        nodes:    []transport.Node{{Name: "axon-1", Connected: true}},
        contexts: []string{"_admin", "default", "orders"},
        status:   map[string]transport.Status{"default": {"nrOfEvents": 12}, "orders": {"nrOfEvents": 3}},
        template: []byte("axoniq:\n  axonserver:\n"),
        fail:     map[string]error{},
        gate:     map[string]chan struct{}{},
    }
}

func (f *fakeClient) record(ctx context.Context, method string, arg any) error {
    f.mu.Lock()
    f.calls = append(f.calls, call{Method: method, Arg: arg})
    g := f.gate[method]
    err := f.fail[method]
    f.mu.Unlock()
    if g != nil {
        select {
        case <-g:
        case <-ctx.Done():
            return ctx.Err()
        }
    }
    return err
}

func (f *fakeClient) set(fn func(*fakeClient)) {
    f.mu.Lock()
    fn(f)
    f.mu.Unlock()
}

func (f *fakeClient) count(method string) int {
    f.mu.Lock()
    defer f.mu.Unlock()
    n := 0
    for _, c := range f.calls {
        if c.Method == method { n++ }
    }
    return n
}

func (f *fakeClient) args(method string) []any {
    f.mu.Lock()
    defer f.mu.Unlock()
    var out []any
    for _, c := range f.calls {
        if c.Method == method { out = append(out, c.Arg) }
    }
    return out
}

func (f *fakeClient) total() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return len(f.calls)
}

func (f *fakeClient) GetLicense(ctx context.Context) (transport.License, error) {
    if err := f.record(ctx, "license", nil); err != nil { return transport.License{}, err }
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.license, nil
}

func (f *fakeClient) GetSelf(ctx context.Context) (transport.Node, error) {
    if err := f.record(ctx, "self", nil); err != nil { return transport.Node{}, err }
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.self, nil
}

func (f *fakeClient) GetNodes(ctx context.Context) ([]transport.Node, error) {
    if err := f.record(ctx, "nodes", nil); err != nil { return nil, err }
    f.mu.Lock()
    defer f.mu.Unlock()
    return append([]transport.Node(nil), f.nodes...), nil
}

func (f *fakeClient) GetVisibleContexts(ctx context.Context, includeAdmin bool) ([]string, error) {
    if err := f.record(ctx, "contexts", includeAdmin); err != nil { return nil, err }
    f.mu.Lock()
    defer f.mu.Unlock()
    return append([]string(nil), f.contexts...), nil
}

func (f *fakeClient) GetStatus(ctx context.Context, contextName string) (transport.Status, error) {
    if err := f.record(ctx, "status", contextName); err != nil { return nil, err }
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.status[contextName], nil
}

func (f *fakeClient) DownloadTemplate(ctx context.Context) ([]byte, error) {
    if err := f.record(ctx, "template", nil); err != nil { return nil, err }
    return f.template, nil
}

func (f *fakeClient) PurgeEvents(ctx context.Context) error { return f.record(ctx, "purge", nil) }

func (f *fakeClient) InitCluster(ctx context.Context, contextName string) error {
    return f.record(ctx, "init", contextName)
}

func (f *fakeClient) JoinCluster(ctx context.Context, req transport.JoinRequest) error {
    return f.record(ctx, "join", req)
}

// fakePush hands out subscriptions whose callbacks the test fires.
type fakePush struct {
    mu       sync.Mutex
    subs     []*fakeSub
    err      error
    gate     chan struct{}
    attempts int
}

type fakeSub struct {
    topic        string
    onMsg        func(transport.Notification)
    mu           sync.Mutex
    unsubscribes int
}

func (s *fakeSub) Topic() string { return s.topic }

func (s *fakeSub) Unsubscribe() error {
    s.mu.Lock()
    s.unsubscribes++
    s.mu.Unlock()
    return nil
}

func (s *fakeSub) released() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.unsubscribes
}

func (p *fakePush) Subscribe(ctx context.Context, topic string, onMsg func(transport.Notification)) (transport.Subscription, error) {
    p.mu.Lock()
    p.attempts++
    g, err := p.gate, p.err
    p.mu.Unlock()
    if g != nil { <-g }
    if err != nil { return nil, err }
    s := &fakeSub{topic: topic, onMsg: onMsg}
    p.mu.Lock()
    p.subs = append(p.subs, s)
    p.mu.Unlock()
    return s, nil
}

func (p *fakePush) Close() error { return nil }

func (p *fakePush) sub(i int) *fakeSub {
    p.mu.Lock()
    defer p.mu.Unlock()
    if i >= len(p.subs) { return nil }
    return p.subs[i]
}

func (p *fakePush) tries() int {
    p.mu.Lock()
    defer p.mu.Unlock()
    return p.attempts
}

// fakeTicker fires only when the test says so.
type fakeTicker struct {
    ch      chan time.Time
    mu      sync.Mutex
    stopped int
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
    t.mu.Lock()
    t.stopped++
    t.mu.Unlock()
}

func (t *fakeTicker) stops() int {
    t.mu.Lock()
    defer t.mu.Unlock()
    return t.stopped
}

type fakePrompter struct {
    mu      sync.Mutex
    answer  bool
    asked   []string
    alerted []string
}

func (p *fakePrompter) Confirm(msg string) bool {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.asked = append(p.asked, msg)
    return p.answer
}

func (p *fakePrompter) Alert(msg string) {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.alerted = append(p.alerted, msg)
}

type savedFile struct {
    name, contentType string
    data              []byte
}

type fakeSaver struct {
    mu    sync.Mutex
    files []savedFile
    err   error
}

func (s *fakeSaver) Save(name, contentType string, data []byte) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.err != nil { return s.err }
    s.files = append(s.files, savedFile{name: name, contentType: contentType, data: data})
    return nil
}

type harness struct {
    client   *fakeClient
    push     *fakePush
    ticker   *fakeTicker
    prompter *fakePrompter
    saver    *fakeSaver
    reloads  *counter
    interval time.Duration
}

type counter struct {
    mu sync.Mutex
    n  int
}

func (c *counter) inc() { c.mu.Lock(); c.n++; c.mu.Unlock() }

func (c *counter) get() int {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.n
}

func newHarness() *harness {
    return &harness{
        client:   newFakeClient(),
        push:     &fakePush{},
        ticker:   &fakeTicker{ch: make(chan time.Time)},
        prompter: &fakePrompter{},
        saver:    &fakeSaver{},
        reloads:  &counter{},
    }
}

func (h *harness) options(ed Edition) Options {
    return Options{
        Client:   h.client,
        Push:     h.push,
        Edition:  ed,
        Prompter: h.prompter,
        Saver:    h.saver,
        Reload:   h.reloads.inc,
        NewTicker: func(d time.Duration) Ticker {
            h.interval = d
            return h.ticker
        },
        Logger: log.New(io.Discard, "", 0),
    }
}
