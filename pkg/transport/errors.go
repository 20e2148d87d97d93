package transport

import (
    "errors"
    "fmt"
)

// ErrNoEndpoints is returned when discovery yields no server to talk to.
var ErrNoEndpoints = errors.New("transport: no server endpoints")

// ErrClosed is returned by push channels used after Close.
var ErrClosed = errors.New("transport: channel closed")

// StatusError reports a non-2xx answer from the admin API.
type StatusError struct {
    Method string
    Path   string
    Code   int
    Body   string
}

func (e *StatusError) Error() string {
    if e.Body == "" {
        return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
    }
    return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
    var se *StatusError
    return errors.As(err, &se) && se.Code == code
}
