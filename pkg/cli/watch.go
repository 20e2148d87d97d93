package cli

import (
    "bufio"
    "context"
    "errors"
    "fmt"
    "io"
    "strconv"
    "strings"
    "sync/atomic"
    "time"

    "github.com/spf13/cobra"

    "github.com/amirimatin/go-console/pkg/bootstrap"
    "github.com/amirimatin/go-console/pkg/dashboard"
    "github.com/amirimatin/go-console/pkg/internal/logutil"
    "github.com/amirimatin/go-console/pkg/render"
    httpjson "github.com/amirimatin/go-console/pkg/transport/httpjson"
)

const redrawDelay = 150 * time.Millisecond

const watchHelp = `commands:
  refresh            re-fetch nodes and status
  select <context>   show the status of another context
  purge              delete all event and snapshot data
  init [context|-]   initialize a cluster ("-" lets the server pick the context)
  join <host> [port] join the cluster of host (port defaults to 8224)
  template           download cluster-template.yml into the current directory
  quit               leave
`

func newWatchCmd(a *app) *cobra.Command {
    var interactive bool
    cmd := &cobra.Command{
        Use:   "watch",
        Short: "Keep a live dashboard on screen",
        RunE: func(cmd *cobra.Command, args []string) error {
            return a.watch(cmd.Context(), interactive)
        },
    }
    cmd.Flags().Duration("interval", 5*time.Second, "status poll interval")
    cmd.Flags().String("listen", "", "serve /dashboard, /healthz and /metrics on this address (e.g., :9095)")
    cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read commands from stdin (type help for a list)")
    return cmd
}

func (a *app) watch(ctx context.Context, interactive bool) error {
    var current atomic.Pointer[dashboard.Dashboard]
    if a.cfg.Listen != "" {
        srv := httpjson.NewServer(a.cfg.Listen, a.logger)
        if a.console.ServerTLS != nil { srv.UseTLS(a.console.ServerTLS) }
        err := srv.Start(ctx, func() any {
            if d := current.Load(); d != nil { return d.Snapshot() }
            return struct{}{}
        })
        if err != nil { return err }
        defer srv.Stop(context.Background())
        logutil.Infof(a.logger, "serving dashboard on %s", srv.Addr())
    }

    var (
        lines    chan string
        prompter dashboard.Prompter
    )
    if interactive {
        lines = make(chan string)
        go scanLines(a.in, lines)
        prompter = linePrompter(lines, a.errOut)
        fmt.Fprint(a.errOut, watchHelp)
    }
    saver := &DirSaver{Dir: ".", Out: a.errOut, Logger: a.logger}

    for {
        reload := make(chan struct{}, 1)
        d, err := a.console.NewDashboard(ctx, bootstrap.DashboardOptions{
            Prompter: prompter,
            Saver:    saver,
            Reload: func() {
                select {
                case reload <- struct{}{}:
                default:
                }
            },
        })
        if err != nil { return err }
        dctx, cancel := context.WithCancel(ctx)
        events := d.Subscribe(dctx)
        if err := d.Mount(dctx); err != nil { cancel(); return err }
        current.Store(d)

        again, err := a.watchLoop(dctx, d, events, reload, lines)
        d.Teardown()
        cancel()
        if err != nil || !again { return err }
        logutil.Infof(a.logger, "reloading dashboard")
    }
}

// watchLoop redraws on dashboard events and runs interactive commands. It
// reports whether the dashboard must be rebuilt.
func (a *app) watchLoop(ctx context.Context, d *dashboard.Dashboard, events <-chan dashboard.Event, reload <-chan struct{}, lines <-chan string) (bool, error) {
    var redraw <-chan time.Time
    for {
        select {
        case <-ctx.Done():
            return false, nil
        case <-reload:
            return true, nil
        case ev, ok := <-events:
            if !ok { return false, nil }
            switch ev.Type {
            case dashboard.EventFetchFailed, dashboard.EventReloading:
                continue
            case dashboard.EventTornDown:
                return false, nil
            }
            if redraw == nil { redraw = time.After(redrawDelay) }
        case <-redraw:
            redraw = nil
            if err := a.draw(d.Snapshot()); err != nil { return false, err }
        case line, ok := <-lines:
            if !ok {
                lines = nil
                continue
            }
            if a.dispatch(ctx, d, line) { return false, nil }
        }
    }
}

func (a *app) draw(st dashboard.State) error {
    if a.format == render.FormatText {
        fmt.Fprintf(a.out, "\n=== %s ===\n", time.Now().Format(time.TimeOnly))
    }
    return render.Write(a.out, st, a.format)
}

// dispatch runs one interactive command and reports whether to quit.
func (a *app) dispatch(ctx context.Context, d *dashboard.Dashboard, line string) bool {
    f := strings.Fields(line)
    if len(f) == 0 { return false }
    var err error
    switch f[0] {
    case "quit", "exit", "q":
        return true
    case "help", "?":
        fmt.Fprint(a.errOut, watchHelp)
    case "refresh":
        if err = d.RefreshNodeList(ctx); err == nil { err = d.RefreshStatus(ctx) }
    case "select":
        if len(f) < 2 { err = errors.New("usage: select <context>"); break }
        d.SelectContext(f[1])
        err = d.RefreshStatus(ctx)
    case "purge":
        err = d.PurgeEventData(ctx)
    case "init":
        if len(f) > 1 {
            name := f[1]
            if name == "-" { name = "" }
            d.SetInitContext(name)
        }
        err = d.InitializeCluster(ctx)
    case "join":
        host := ""
        if len(f) > 1 { host = f[1] }
        d.SetJoinHost(host)
        if len(f) > 2 {
            port, perr := strconv.Atoi(f[2])
            if perr != nil { err = fmt.Errorf("bad port %q", f[2]); break }
            d.SetJoinPort(port)
        }
        err = d.JoinCluster(ctx)
    case "template":
        err = d.DownloadClusterTemplate(ctx)
    default:
        err = fmt.Errorf("unknown command %q (type help)", f[0])
    }
    switch {
    case err == nil:
    case errors.Is(err, dashboard.ErrDeclined):
        fmt.Fprintln(a.errOut, "cancelled")
    case errors.Is(err, dashboard.ErrJoinHostRequired):
    default:
        fmt.Fprintln(a.errOut, "error:", err)
    }
    return false
}

func scanLines(in io.Reader, out chan<- string) {
    defer close(out)
    sc := bufio.NewScanner(in)
    for sc.Scan() { out <- sc.Text() }
}
