package cli

import (
    "context"
    "errors"
    "fmt"
    "io"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/spf13/cobra"
    "github.com/spf13/viper"

    "github.com/amirimatin/go-console/pkg/bootstrap"
    "github.com/amirimatin/go-console/pkg/config"
    "github.com/amirimatin/go-console/pkg/dashboard"
    "github.com/amirimatin/go-console/pkg/internal/logutil"
    tracing "github.com/amirimatin/go-console/pkg/observability/tracing"
    "github.com/amirimatin/go-console/pkg/render"
)

// app carries what PersistentPreRunE resolved for the running command.
type app struct {
    v       *viper.Viper
    cfgFile string
    envFile string

    in     io.Reader
    out    io.Writer
    errOut io.Writer
    logger *log.Logger

    cfg      config.Config
    console  *bootstrap.Console
    format   render.Format
    shutdown func(context.Context) error
}

// NewRootCmd returns the consolectl root command with every subcommand
// attached. in/out/errOut default to the process streams when nil.
func NewRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
    if in == nil { in = os.Stdin }
    if out == nil { out = os.Stdout }
    if errOut == nil { errOut = os.Stderr }
    a := &app{v: config.New(), in: in, out: out, errOut: errOut}

    root := &cobra.Command{
        Use:           "consolectl",
        Short:         "Admin console for a clustered event store",
        SilenceUsage:  true,
        SilenceErrors: true,
        PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
            return a.setup(cmd)
        },
        PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
            return a.teardown()
        },
    }
    root.SetIn(in)
    root.SetOut(out)
    root.SetErr(errOut)

    pf := root.PersistentFlags()
    pf.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
    pf.StringVar(&a.envFile, "env-file", "", "dotenv file loaded before reading CONSOLE_* variables (default .env)")
    pf.String("server", "127.0.0.1:8024", "comma-separated admin API endpoints (host:port), used by discovery=static")
    pf.String("discovery", "static", "endpoint discovery backend: static|dns|file")
    pf.String("dns-names", "", "comma-separated DNS names or SRV records (e.g., _axon-http._tcp.example.com)")
    pf.Int("dns-port", 8024, "port used for A/AAAA lookups")
    pf.String("file-path", "", "path or glob to a file listing endpoints (one per line or CSV)")
    pf.String("file-env", "", "ENV var name containing CSV endpoints; overrides file when set")
    pf.Duration("disc-refresh", 5*time.Second, "discovery refresh/cache duration")
    pf.Duration("timeout", 3*time.Second, "request timeout")
    pf.String("edition", "community", "server edition: community|clustered (clustered enables push updates)")
    pf.String("push-proto", "stomp", "push channel protocol: stomp|grpc|none")
    pf.String("push-addr", "", "push endpoint (host:port or ws:// URL); defaults to the first admin endpoint")
    pf.String("ws-path", "/axonserver-platform-websocket", "WebSocket path of the STOMP endpoint")
    pf.Bool("tls-enable", false, "use TLS for REST, WebSocket and gRPC")
    pf.String("tls-ca", "", "path to CA cert (PEM)")
    pf.String("tls-cert", "", "path to client certificate (PEM)")
    pf.String("tls-key", "", "path to client private key (PEM)")
    pf.Bool("tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    pf.String("tls-server-name", "", "expected server name (for TLS validation)")
    pf.Bool("log-json", false, "emit logs as JSON lines")
    pf.Bool("trace", false, "enable OpenTelemetry stdout tracing (dev)")
    pf.StringP("output", "o", "text", "output format: text|json|yaml")

    root.AddCommand(
        newWatchCmd(a),
        newStatusCmd(a),
        newNodesCmd(a),
        newLicenseCmd(a),
        newMeCmd(a),
        newTemplateCmd(a),
        newPurgeCmd(a),
        newInitCmd(a),
        newJoinCmd(a),
    )
    return root
}

// Execute runs the root command against the process streams and exits
// non-zero on error.
func Execute() {
    root := NewRootCmd(nil, nil, nil)
    ctx, cancel := signalContext()
    defer cancel()
    if err := root.ExecuteContext(ctx); err != nil {
        fmt.Fprintln(os.Stderr, "error:", err)
        os.Exit(1)
    }
}

func (a *app) setup(cmd *cobra.Command) error {
    if err := config.LoadDotEnv(envFiles(a.envFile)...); err != nil { return err }
    cfg, err := config.Load(a.v, cmd.Flags(), a.cfgFile)
    if err != nil { return err }
    a.cfg = cfg
    if cfg.LogJSON { logutil.SetJSON(true) }
    a.logger = log.New(a.errOut, "", log.LstdFlags)
    if a.format, err = render.ParseFormat(cfg.Output); err != nil { return err }

    a.shutdown = func(context.Context) error { return nil }
    if cfg.Trace {
        shutdown, err := tracing.Setup(true)
        if err != nil {
            logutil.Warnf(a.logger, "tracing setup error: %v", err)
        } else {
            a.shutdown = shutdown
        }
    }
    a.console, err = bootstrap.Build(cfg, a.logger)
    return err
}

func (a *app) teardown() error {
    if a.console != nil { _ = a.console.Close() }
    if a.shutdown != nil { return a.shutdown(context.Background()) }
    return nil
}

func envFiles(f string) []string {
    if f == "" { return nil }
    return []string{f}
}

// oneShot builds an unmounted dashboard for a single command.
func (a *app) oneShot(cmd *cobra.Command, p dashboard.Prompter, s dashboard.FileSaver) (*dashboard.Dashboard, error) {
    return a.console.NewDashboard(cmd.Context(), bootstrap.DashboardOptions{
        Prompter: p,
        Saver:    s,
        OneShot:  true,
        Reload: func() {
            fmt.Fprintln(a.out, "topology changed; reload the dashboard to see the new cluster")
        },
    })
}

func newStatusCmd(a *app) *cobra.Command {
    var contextName string
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Show the status of a context (first public context by default)",
        RunE: func(cmd *cobra.Command, args []string) error {
            d, err := a.oneShot(cmd, nil, nil)
            if err != nil { return err }
            ctx := cmd.Context()
            if contextName != "" {
                d.SelectContext(contextName)
                if err := d.RefreshStatus(ctx); err != nil { return err }
            } else if err := d.LoadContexts(ctx); err != nil {
                return err
            }
            st := d.Snapshot()
            if st.Selected == "" { return errors.New("no public context visible") }
            return render.WriteStatus(a.out, st.Selected, st.Status, a.format)
        },
    }
    cmd.Flags().StringVar(&contextName, "context", "", "context to query")
    return cmd
}

func newNodesCmd(a *app) *cobra.Command {
    return &cobra.Command{
        Use:   "nodes",
        Short: "List cluster nodes",
        RunE: func(cmd *cobra.Command, args []string) error {
            d, err := a.oneShot(cmd, nil, nil)
            if err != nil { return err }
            if err := d.RefreshNodeList(cmd.Context()); err != nil { return err }
            return render.WriteNodes(a.out, d.Snapshot().Nodes, a.format)
        },
    }
}

func newLicenseCmd(a *app) *cobra.Command {
    return &cobra.Command{
        Use:   "license",
        Short: "Show license and enabled features",
        RunE: func(cmd *cobra.Command, args []string) error {
            d, err := a.oneShot(cmd, nil, nil)
            if err != nil { return err }
            if err := d.FetchLicense(cmd.Context()); err != nil { return err }
            return render.WriteLicense(a.out, d.Snapshot().License, a.format)
        },
    }
}

func newMeCmd(a *app) *cobra.Command {
    return &cobra.Command{
        Use:   "me",
        Short: "Describe the node serving the admin API",
        RunE: func(cmd *cobra.Command, args []string) error {
            d, err := a.oneShot(cmd, nil, nil)
            if err != nil { return err }
            if err := d.FetchSelf(cmd.Context()); err != nil { return err }
            return render.WriteNode(a.out, d.Snapshot().Self, a.format)
        },
    }
}

func newTemplateCmd(a *app) *cobra.Command {
    var dir string
    cmd := &cobra.Command{
        Use:   "template",
        Short: "Download " + dashboard.TemplateFileName,
        RunE: func(cmd *cobra.Command, args []string) error {
            d, err := a.oneShot(cmd, nil, &DirSaver{Dir: dir, Out: a.out, Logger: a.logger})
            if err != nil { return err }
            return d.DownloadClusterTemplate(cmd.Context())
        },
    }
    cmd.Flags().StringVar(&dir, "dir", ".", "directory to save the template into")
    return cmd
}

func newPurgeCmd(a *app) *cobra.Command {
    var (
        yes         bool
        contextName string
    )
    cmd := &cobra.Command{
        Use:   "purge",
        Short: "Delete all event and snapshot data (development mode only)",
        RunE: func(cmd *cobra.Command, args []string) error {
            p := NewPrompter(a.in, a.errOut)
            p.AssumeYes = yes
            d, err := a.oneShot(cmd, p, nil)
            if err != nil { return err }
            if contextName != "" { d.SelectContext(contextName) }
            err = d.PurgeEventData(cmd.Context())
            if errors.Is(err, dashboard.ErrDeclined) {
                fmt.Fprintln(a.out, "purge cancelled")
                return nil
            }
            if err != nil { return err }
            fmt.Fprintln(a.out, "event data purged")
            if st := d.Snapshot(); st.Selected != "" {
                return render.WriteStatus(a.out, st.Selected, st.Status, a.format)
            }
            return nil
        },
    }
    cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
    cmd.Flags().StringVar(&contextName, "context", "", "context whose status is shown after the purge")
    return cmd
}

func newInitCmd(a *app) *cobra.Command {
    var contextName string
    cmd := &cobra.Command{
        Use:   "init",
        Short: "Initialize a new cluster on the target node",
        RunE: func(cmd *cobra.Command, args []string) error {
            d, err := a.oneShot(cmd, nil, nil)
            if err != nil { return err }
            d.SetInitContext(contextName)
            if err := d.InitializeCluster(cmd.Context()); err != nil { return err }
            fmt.Fprintf(a.out, "cluster initialized (context=%q)\n", contextName)
            return nil
        },
    }
    cmd.Flags().StringVar(&contextName, "context", dashboard.DefaultInitContext, "initial context; empty lets the server decide")
    return cmd
}

func newJoinCmd(a *app) *cobra.Command {
    var (
        host string
        port int
    )
    cmd := &cobra.Command{
        Use:   "join",
        Short: "Join the target node to an existing cluster",
        RunE: func(cmd *cobra.Command, args []string) error {
            d, err := a.oneShot(cmd, NewPrompter(a.in, a.errOut), nil)
            if err != nil { return err }
            d.SetJoinHost(host)
            d.SetJoinPort(port)
            if err := d.JoinCluster(cmd.Context()); err != nil { return err }
            fmt.Fprintf(a.out, "join requested via %s:%d\n", host, port)
            return nil
        },
    }
    cmd.Flags().StringVar(&host, "host", "", "internal hostname of a member of the existing cluster (required)")
    cmd.Flags().IntVar(&port, "port", 8224, "internal gRPC port of that member")
    return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
    ctx, cancel := context.WithCancel(context.Background())
    go func() {
        ch := make(chan os.Signal, 1)
        signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
        <-ch
        cancel()
    }()
    return ctx, cancel
}
