package dashboard

import (
    "context"
    "sync"
    "time"
)

type EventType string

const (
    EventLicenseUpdated  EventType = "license_updated"
    EventSelfUpdated     EventType = "self_updated"
    EventNodesUpdated    EventType = "nodes_updated"
    EventContextsUpdated EventType = "contexts_updated"
    EventStatusUpdated   EventType = "status_updated"
    EventFetchFailed     EventType = "fetch_failed"
    EventActionDone      EventType = "action_done"
    EventReloading       EventType = "reloading"
    EventTornDown        EventType = "torn_down"
)

// Event tells observers that part of the dashboard changed. Only the fields
// relevant for the event type are populated; read the data itself through
// Snapshot.
type Event struct {
    Type EventType
    At   time.Time
    // Op names the fetch or action the event is about.
    Op  string
    Err error
}

// Subscribe returns a channel of events. The returned channel is buffered and
// closed automatically when ctx is done. Events may be dropped if the consumer
// is too slow.
func (d *Dashboard) Subscribe(ctx context.Context) <-chan Event {
    ch := make(chan Event, 64)
    d.eb.add(ch)
    go func() {
        <-ctx.Done()
        d.eb.remove(ch)
        close(ch)
    }()
    return ch
}

type eventBus struct {
    mu   sync.Mutex
    subs map[chan Event]struct{}
}

func (e *eventBus) add(ch chan Event) {
    e.mu.Lock()
    if e.subs == nil { e.subs = make(map[chan Event]struct{}) }
    e.subs[ch] = struct{}{}
    e.mu.Unlock()
}

func (e *eventBus) remove(ch chan Event) {
    e.mu.Lock()
    if e.subs != nil { delete(e.subs, ch) }
    e.mu.Unlock()
}

func (e *eventBus) publish(ev Event) {
    if ev.At.IsZero() { ev.At = time.Now() }
    e.mu.Lock()
    for ch := range e.subs {
        select {
        case ch <- ev:
        default:
        }
    }
    e.mu.Unlock()
}
