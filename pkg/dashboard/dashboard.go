package dashboard

import (
    "context"
    "fmt"
    "log"
    "strings"
    "sync"

    "github.com/amirimatin/go-console/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-console/pkg/observability/metrics"
    "github.com/amirimatin/go-console/pkg/transport"
)

// Dashboard is the view-model of the cluster admin console. It owns the
// license, node, context and status snapshots of one server, keeps them fresh
// while mounted and forwards administrative actions. All methods are safe for
// concurrent use.
type Dashboard struct {
    opts Options
    log  *log.Logger

    mu  sync.Mutex
    st  State
    run struct {
        mounted bool
        torn    bool
    }
    nodes struct {
        busy    bool
        pending bool
    }
    done   chan struct{}
    cancel context.CancelFunc
    ticker Ticker
    sub    transport.Subscription

    eb eventBus
}

// New constructs a Dashboard from validated options. It performs no network
// activity; call Mount to start polling.
func New(opts Options) (*Dashboard, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    opts.defaults()
    obsmetrics.Register()
    d := &Dashboard{opts: opts, log: opts.Logger, done: make(chan struct{})}
    d.st = State{
        Edition:  opts.Edition,
        Contexts: []string{},
        Init:     InitForm{Context: DefaultInitContext, Mode: DefaultInitMode},
        Join:     JoinForm{Port: transport.DefaultInternalGrpcPort},
    }
    return d, nil
}

// Mount starts the dashboard: the license, self and node-list fetches, the
// poll timer, the push subscription (clustered edition only) and the context
// load run concurrently and independently. Mount does not wait for them.
// When ctx is done the dashboard tears itself down.
func (d *Dashboard) Mount(ctx context.Context) error {
    d.mu.Lock()
    if d.run.torn { d.mu.Unlock(); return ErrTornDown }
    if d.run.mounted { d.mu.Unlock(); return ErrAlreadyMounted }
    d.run.mounted = true
    lctx, cancel := context.WithCancel(ctx)
    d.cancel = cancel
    t := d.opts.NewTicker(d.opts.PollInterval)
    d.ticker = t
    d.mu.Unlock()

    go func() {
        select {
        case <-lctx.Done():
            d.Teardown()
        case <-d.done:
        }
    }()
    go d.pollLoop(lctx, t)
    go func() { _ = d.FetchLicense(lctx) }()
    go func() { _ = d.FetchSelf(lctx) }()
    go func() { _ = d.RefreshNodeList(lctx) }()
    go func() { _ = d.LoadContexts(lctx) }()
    if d.opts.Edition == EditionClustered {
        go d.subscribe(lctx)
    }
    logutil.Infof(d.log, "dashboard mounted (edition=%s poll=%s)", d.opts.Edition, d.opts.PollInterval)
    return nil
}

// Teardown stops the poll timer and releases the push subscription. It is
// idempotent and may be called before Mount, which then fails.
func (d *Dashboard) Teardown() {
    d.mu.Lock()
    if d.run.torn { d.mu.Unlock(); return }
    d.run.torn = true
    close(d.done)
    t, sub, cancel := d.ticker, d.sub, d.cancel
    d.ticker, d.sub = nil, nil
    d.mu.Unlock()

    if t != nil { t.Stop() }
    if sub != nil { d.release(sub) }
    if cancel != nil { cancel() }
    d.eb.publish(Event{Type: EventTornDown})
}

// Done is closed once the dashboard has been torn down.
func (d *Dashboard) Done() <-chan struct{} { return d.done }

// Snapshot returns a deep copy of the current state.
func (d *Dashboard) Snapshot() State {
    d.mu.Lock()
    defer d.mu.Unlock()
    return d.st.clone()
}

func (d *Dashboard) pollLoop(ctx context.Context, t Ticker) {
    for {
        select {
        case <-d.done:
            return
        case <-t.C():
            if d.tornDown() { return }
            obsmetrics.PollTicks.Inc()
            _ = d.RefreshStatus(ctx)
        }
    }
}

func (d *Dashboard) subscribe(ctx context.Context) {
    if d.opts.Push == nil {
        logutil.Warnf(d.log, "dashboard: clustered edition without push channel; topology updates rely on manual refresh")
        return
    }
    sub, err := d.opts.Push.Subscribe(ctx, transport.TopicCluster, func(n transport.Notification) {
        obsmetrics.PushNotifications.WithLabelValues(n.Topic).Inc()
        if d.tornDown() { return }
        d.refreshNodesOnPush(ctx)
    })
    if err != nil {
        _ = d.failed("subscribe", err)
        return
    }
    obsmetrics.PushSubscriptions.Inc()
    d.mu.Lock()
    if d.run.torn {
        d.mu.Unlock()
        d.release(sub)
        return
    }
    d.sub = sub
    d.mu.Unlock()
    logutil.Debugf(d.log, "dashboard: subscribed to %s", sub.Topic())
}

// refreshNodesOnPush runs RefreshNodeList off the push reader. Notifications
// arriving while a refresh is in flight collapse into one follow-up refresh.
func (d *Dashboard) refreshNodesOnPush(ctx context.Context) {
    d.mu.Lock()
    if d.nodes.busy {
        d.nodes.pending = true
        d.mu.Unlock()
        return
    }
    d.nodes.busy = true
    d.mu.Unlock()
    go func() {
        for {
            _ = d.RefreshNodeList(ctx)
            d.mu.Lock()
            if !d.nodes.pending || d.run.torn {
                d.nodes.busy, d.nodes.pending = false, false
                d.mu.Unlock()
                return
            }
            d.nodes.pending = false
            d.mu.Unlock()
        }
    }()
}

func (d *Dashboard) release(sub transport.Subscription) {
    if err := sub.Unsubscribe(); err != nil {
        logutil.Warnf(d.log, "dashboard: unsubscribe %s: %v", sub.Topic(), err)
    }
    obsmetrics.PushSubscriptions.Dec()
}

func (d *Dashboard) tornDown() bool {
    d.mu.Lock()
    defer d.mu.Unlock()
    return d.run.torn
}

// apply mutates state unless the dashboard was torn down, then notifies
// observers.
func (d *Dashboard) apply(ev EventType, op string, fn func(*State)) bool {
    d.mu.Lock()
    if d.run.torn {
        d.mu.Unlock()
        obsmetrics.DroppedUpdates.Inc()
        return false
    }
    fn(&d.st)
    d.mu.Unlock()
    d.eb.publish(Event{Type: ev, Op: op})
    return true
}

// failed reports a read failure. State stays unchanged.
func (d *Dashboard) failed(op string, err error) error {
    if d.tornDown() {
        obsmetrics.DroppedUpdates.Inc()
        return err
    }
    logutil.Warnf(d.log, "dashboard: %s failed: %v", op, err)
    d.eb.publish(Event{Type: EventFetchFailed, Op: op, Err: err})
    return err
}

func (d *Dashboard) reqCtx(ctx context.Context) (context.Context, context.CancelFunc) {
    if d.opts.RequestTimeout > 0 { return context.WithTimeout(ctx, d.opts.RequestTimeout) }
    return context.WithCancel(ctx)
}

// FetchLicense replaces the license snapshot.
func (d *Dashboard) FetchLicense(ctx context.Context) error {
    rctx, cancel := d.reqCtx(ctx)
    defer cancel()
    lic, err := d.opts.Client.GetLicense(rctx)
    if err != nil { return d.failed("license", err) }
    d.apply(EventLicenseUpdated, "license", func(s *State) { s.License = lic })
    return nil
}

// FetchSelf replaces the descriptor of the node serving the API.
func (d *Dashboard) FetchSelf(ctx context.Context) error {
    rctx, cancel := d.reqCtx(ctx)
    defer cancel()
    me, err := d.opts.Client.GetSelf(rctx)
    if err != nil { return d.failed("self", err) }
    d.apply(EventSelfUpdated, "self", func(s *State) { s.Self = me })
    return nil
}

// RefreshNodeList replaces the node list. On failure the previous list is
// kept.
func (d *Dashboard) RefreshNodeList(ctx context.Context) error {
    rctx, cancel := d.reqCtx(ctx)
    defer cancel()
    nodes, err := d.opts.Client.GetNodes(rctx)
    if err != nil { return d.failed("nodes", err) }
    if d.apply(EventNodesUpdated, "nodes", func(s *State) { s.Nodes = nodes }) {
        obsmetrics.Nodes.Set(float64(len(nodes)))
    }
    return nil
}

// LoadContexts appends the visible non-admin contexts, selects the first one
// not starting with "_" when nothing is selected yet, then refreshes the
// status once regardless of the outcome.
func (d *Dashboard) LoadContexts(ctx context.Context) error {
    rctx, cancel := d.reqCtx(ctx)
    names, err := d.opts.Client.GetVisibleContexts(rctx, false)
    cancel()
    if err != nil { return d.failed("contexts", err) }
    d.apply(EventContextsUpdated, "contexts", func(s *State) {
        seen := make(map[string]bool, len(s.Contexts))
        for _, c := range s.Contexts { seen[c] = true }
        for _, n := range names {
            if seen[n] { continue }
            seen[n] = true
            s.Contexts = append(s.Contexts, n)
        }
        if s.Selected != "" { return }
        for _, n := range names {
            if !strings.HasPrefix(n, "_") { s.Selected = n; break }
        }
    })
    return d.RefreshStatus(ctx)
}

// SelectContext changes the context whose status is polled. An empty name
// clears the selection.
func (d *Dashboard) SelectContext(name string) {
    d.apply(EventContextsUpdated, "select", func(s *State) { s.Selected = name })
}

// RefreshStatus fetches the status of the selected context. Without a
// selection it issues no request.
func (d *Dashboard) RefreshStatus(ctx context.Context) error {
    d.mu.Lock()
    sel := d.st.Selected
    d.mu.Unlock()
    if sel == "" { return nil }
    rctx, cancel := d.reqCtx(ctx)
    defer cancel()
    st, err := d.opts.Client.GetStatus(rctx, sel)
    if err != nil { return d.failed("status", err) }
    d.apply(EventStatusUpdated, "status", func(s *State) { s.Status = st })
    return nil
}

// DownloadClusterTemplate fetches the cluster template and hands it to the
// FileSaver as cluster-template.yml.
func (d *Dashboard) DownloadClusterTemplate(ctx context.Context) (err error) {
    defer func() { obsmetrics.Actions.WithLabelValues("template", obsmetrics.Result(err)).Inc() }()
    if d.opts.Saver == nil { return ErrNoSaver }
    rctx, cancel := d.reqCtx(ctx)
    defer cancel()
    data, err := d.opts.Client.DownloadTemplate(rctx)
    if err != nil { return d.failed("template", err) }
    if err := d.opts.Saver.Save(TemplateFileName, TemplateContentType, data); err != nil {
        return fmt.Errorf("dashboard: save %s: %w", TemplateFileName, err)
    }
    d.eb.publish(Event{Type: EventActionDone, Op: "template"})
    return nil
}

// PurgeEventData deletes all event and snapshot data after the operator
// confirms, then refreshes the status once.
func (d *Dashboard) PurgeEventData(ctx context.Context) (err error) {
    if !d.confirm(PurgeConfirmMessage) {
        obsmetrics.Actions.WithLabelValues("purge", "declined").Inc()
        return ErrDeclined
    }
    rctx, cancel := d.reqCtx(ctx)
    err = d.opts.Client.PurgeEvents(rctx)
    cancel()
    obsmetrics.Actions.WithLabelValues("purge", obsmetrics.Result(err)).Inc()
    if err != nil {
        logutil.Errorf(d.log, "dashboard: purge failed: %v", err)
        return fmt.Errorf("dashboard: purge: %w", err)
    }
    logutil.Infof(d.log, "dashboard: event data purged")
    d.eb.publish(Event{Type: EventActionDone, Op: "purge"})
    return d.RefreshStatus(ctx)
}

// InitializeCluster initializes the cluster with the init form's context and
// reloads on success.
func (d *Dashboard) InitializeCluster(ctx context.Context) error {
    d.mu.Lock()
    form := d.st.Init
    d.mu.Unlock()
    rctx, cancel := d.reqCtx(ctx)
    err := d.opts.Client.InitCluster(rctx, form.Context)
    cancel()
    obsmetrics.Actions.WithLabelValues("init", obsmetrics.Result(err)).Inc()
    if err != nil {
        logutil.Errorf(d.log, "dashboard: init cluster (context=%q) failed: %v", form.Context, err)
        return fmt.Errorf("dashboard: init cluster: %w", err)
    }
    logutil.Infof(d.log, "dashboard: cluster initialized (context=%q mode=%s)", form.Context, form.Mode)
    d.eb.publish(Event{Type: EventActionDone, Op: "init"})
    d.reload()
    return nil
}

// JoinCluster asks the server to join the cluster of the host in the join
// form and reloads on success. An empty host is rejected with an alert and
// no request.
func (d *Dashboard) JoinCluster(ctx context.Context) error {
    d.mu.Lock()
    form := d.st.Join
    d.mu.Unlock()
    if form.Host == "" {
        d.alert(JoinHostRequiredMessage)
        obsmetrics.Actions.WithLabelValues("join", "rejected").Inc()
        return ErrJoinHostRequired
    }
    if form.Port == 0 { form.Port = transport.DefaultInternalGrpcPort }
    rctx, cancel := d.reqCtx(ctx)
    err := d.opts.Client.JoinCluster(rctx, transport.JoinRequest{InternalHostName: form.Host, InternalGrpcPort: form.Port})
    cancel()
    obsmetrics.Actions.WithLabelValues("join", obsmetrics.Result(err)).Inc()
    if err != nil {
        logutil.Errorf(d.log, "dashboard: join %s:%d failed: %v", form.Host, form.Port, err)
        return fmt.Errorf("dashboard: join cluster: %w", err)
    }
    logutil.Infof(d.log, "dashboard: joined cluster via %s:%d", form.Host, form.Port)
    d.eb.publish(Event{Type: EventActionDone, Op: "join"})
    d.reload()
    return nil
}

// SetInitContext sets the context qualifier of the init action. Empty sends
// an unqualified request.
func (d *Dashboard) SetInitContext(name string) { d.form(func(s *State) { s.Init.Context = name }) }

func (d *Dashboard) SetInitMode(mode string) { d.form(func(s *State) { s.Init.Mode = mode }) }

func (d *Dashboard) SetJoinHost(host string) { d.form(func(s *State) { s.Join.Host = host }) }

// SetJoinPort sets the internal gRPC port of the join target; zero means 8224.
func (d *Dashboard) SetJoinPort(port int) { d.form(func(s *State) { s.Join.Port = port }) }

func (d *Dashboard) form(fn func(*State)) {
    d.mu.Lock()
    fn(&d.st)
    d.mu.Unlock()
}

func (d *Dashboard) confirm(msg string) bool {
    if d.opts.Prompter == nil { return false }
    return d.opts.Prompter.Confirm(msg)
}

func (d *Dashboard) alert(msg string) {
    if d.opts.Prompter == nil {
        logutil.Warnf(d.log, "dashboard: %s", msg)
        return
    }
    d.opts.Prompter.Alert(msg)
}

func (d *Dashboard) reload() {
    d.eb.publish(Event{Type: EventReloading})
    if d.opts.Reload != nil { d.opts.Reload() }
}
