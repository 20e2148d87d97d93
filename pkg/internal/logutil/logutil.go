package logutil

import (
    "encoding/json"
    "fmt"
    "log"
    "os"
    "sync/atomic"
    "time"
)

var jsonMode atomic.Bool

func init() {
    if os.Getenv("CONSOLE_LOG_JSON") == "1" || os.Getenv("CONSOLE_LOG_FORMAT") == "json" {
        jsonMode.Store(true)
    }
}

// SetJSON switches every logger routed through this package to one JSON
// object per line.
func SetJSON(enabled bool) { jsonMode.Store(enabled) }

// JSON reports whether JSON line mode is active.
func JSON() bool { return jsonMode.Load() }

func Debugf(l *log.Logger, f string, args ...any) {
    if os.Getenv("CONSOLE_DEBUG") == "" { return }
    logf(l, "debug", f, args...)
}
func Infof(l *log.Logger, f string, args ...any)  { logf(l, "info", f, args...) }
func Warnf(l *log.Logger, f string, args ...any)  { logf(l, "warn", f, args...) }
func Errorf(l *log.Logger, f string, args ...any) { logf(l, "error", f, args...) }

func logf(l *log.Logger, level, f string, args ...any) {
    if l == nil { l = log.Default() }
    msg := fmt.Sprintf(f, args...)
    if jsonMode.Load() {
        evt := map[string]any{
            "ts":    time.Now().UTC().Format(time.RFC3339Nano),
            "level": level,
            "msg":   msg,
        }
        b, _ := json.Marshal(evt)
        l.Println(string(b))
        return
    }
    var p string
    switch level {
    case "debug":
        p = "DEBUG "
    case "info":
        p = "INFO "
    case "warn":
        p = "WARN "
    default:
        p = "ERROR "
    }
    _ = l.Output(3, p+msg)
}
