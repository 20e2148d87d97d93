package dashboard

import (
    "fmt"
    "log"
    "time"

    "github.com/amirimatin/go-console/pkg/transport"
)

// Edition is the server capability flag that decides whether topology push
// updates are available.
type Edition string

const (
    EditionCommunity Edition = "community"
    EditionClustered Edition = "clustered"
)

// ParseEdition maps a flag value to an Edition. Empty means community.
func ParseEdition(s string) (Edition, error) {
    switch Edition(s) {
    case "", EditionCommunity:
        return EditionCommunity, nil
    case EditionClustered:
        return EditionClustered, nil
    }
    return "", fmt.Errorf("dashboard: unknown edition %q", s)
}

const (
    DefaultPollInterval = 5000 * time.Millisecond
    DefaultInitContext  = "default"
    DefaultInitMode     = "init"

    TemplateFileName    = "cluster-template.yml"
    TemplateContentType = "application/text"

    PurgeConfirmMessage     = "Are you sure you want to delete all event and snapshot data?"
    JoinHostRequiredMessage = "Enter the internal hostname of a member of the existing cluster"
)

// Prompter asks the operator to confirm destructive actions and shows alerts.
type Prompter interface {
    Confirm(msg string) bool
    Alert(msg string)
}

// FileSaver hands downloaded content to the user under a file name.
type FileSaver interface {
    Save(name, contentType string, data []byte) error
}

// Ticker is the recurring poll trigger. time.Ticker satisfies it through
// NewTimeTicker.
type Ticker interface {
    C() <-chan time.Time
    Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }

// Options carries the collaborators of a Dashboard. Instances are typically
// produced by bootstrap from config.Config.
type Options struct {
    // Client issues admin API calls (required).
    Client transport.AdminClient
    // Push delivers topology notifications; only used by the clustered edition.
    Push    transport.PushChannel
    Edition Edition

    // Prompter confirms purges and shows alerts. Nil declines every
    // confirmation.
    Prompter Prompter
    Saver    FileSaver
    // Reload is invoked after a successful init or join.
    Reload func()

    PollInterval time.Duration
    // RequestTimeout bounds every admin API call; zero leaves it to ctx.
    RequestTimeout time.Duration
    NewTicker      func(time.Duration) Ticker
    Logger         *log.Logger
}

// Validate performs a minimal validation of Options. It does not start any
// network activity.
func (o Options) Validate() error {
    if o.Client == nil { return ErrNoClient }
    if _, err := ParseEdition(string(o.Edition)); err != nil { return err }
    if o.PollInterval < 0 { return fmt.Errorf("dashboard: negative poll interval %s", o.PollInterval) }
    return nil
}

func (o *Options) defaults() {
    if o.Edition == "" { o.Edition = EditionCommunity }
    if o.PollInterval == 0 { o.PollInterval = DefaultPollInterval }
    if o.NewTicker == nil { o.NewTicker = NewTimeTicker }
    if o.Logger == nil { o.Logger = log.Default() }
}
