package stomp

import (
    "bytes"
    "errors"
    "fmt"
    "sort"
    "strconv"
    "strings"
)

// STOMP commands used by the console.
const (
    cmdConnect     = "CONNECT"
    cmdConnected   = "CONNECTED"
    cmdSubscribe   = "SUBSCRIBE"
    cmdUnsubscribe = "UNSUBSCRIBE"
    cmdDisconnect  = "DISCONNECT"
    cmdMessage     = "MESSAGE"
    cmdError       = "ERROR"
    cmdReceipt     = "RECEIPT"
)

var errTruncated = errors.New("stomp: truncated frame")

// Frame is a single STOMP frame. Repeated headers keep their first value.
type Frame struct {
    Command string
    Header  map[string]string
    Body    []byte
}

func newFrame(cmd string, kv ...string) Frame {
    f := Frame{Command: cmd, Header: make(map[string]string, len(kv)/2)}
    for i := 0; i+1 < len(kv); i += 2 { f.Header[kv[i]] = kv[i+1] }
    return f
}

// escaped reports whether header escaping applies to cmd (STOMP 1.2 exempts
// CONNECT and CONNECTED).
func escaped(cmd string) bool { return cmd != cmdConnect && cmd != cmdConnected }

// Encode renders f in wire form, terminated by NUL. Headers are written in
// sorted order.
func Encode(f Frame) []byte {
    var b bytes.Buffer
    b.WriteString(f.Command)
    b.WriteByte('\n')
    keys := make([]string, 0, len(f.Header))
    for k := range f.Header { keys = append(keys, k) }
    sort.Strings(keys)
    esc := escaped(f.Command)
    for _, k := range keys {
        v := f.Header[k]
        if esc { k, v = escape(k), escape(v) }
        b.WriteString(k)
        b.WriteByte(':')
        b.WriteString(v)
        b.WriteByte('\n')
    }
    if _, ok := f.Header["content-length"]; !ok && len(f.Body) > 0 {
        b.WriteString("content-length:" + strconv.Itoa(len(f.Body)) + "\n")
    }
    b.WriteByte('\n')
    b.Write(f.Body)
    b.WriteByte(0)
    return b.Bytes()
}

// Decode parses every frame in data. Bare EOLs between frames are
// heart-beats and are skipped.
func Decode(data []byte) ([]Frame, error) {
    var out []Frame
    for {
        data = bytes.TrimLeft(data, "\r\n")
        if len(data) == 0 { return out, nil }
        f, rest, err := decodeOne(data)
        if err != nil { return out, err }
        out = append(out, f)
        data = rest
    }
}

func decodeOne(data []byte) (Frame, []byte, error) {
    line, data, ok := cutLine(data)
    if !ok { return Frame{}, nil, errTruncated }
    f := Frame{Command: line, Header: map[string]string{}}
    esc := escaped(f.Command)
    for {
        line, data, ok = cutLine(data)
        if !ok { return Frame{}, nil, errTruncated }
        if line == "" { break }
        k, v, found := strings.Cut(line, ":")
        if !found { return Frame{}, nil, fmt.Errorf("stomp: malformed header %q", line) }
        if esc {
            var err error
            if k, err = unescape(k); err != nil { return Frame{}, nil, err }
            if v, err = unescape(v); err != nil { return Frame{}, nil, err }
        }
        if _, dup := f.Header[k]; !dup { f.Header[k] = v }
    }
    if cl, ok := f.Header["content-length"]; ok {
        n, err := strconv.Atoi(cl)
        if err != nil || n < 0 { return Frame{}, nil, fmt.Errorf("stomp: bad content-length %q", cl) }
        if len(data) < n+1 || data[n] != 0 { return Frame{}, nil, errTruncated }
        f.Body = append([]byte(nil), data[:n]...)
        return f, data[n+1:], nil
    }
    i := bytes.IndexByte(data, 0)
    if i < 0 { return Frame{}, nil, errTruncated }
    f.Body = append([]byte(nil), data[:i]...)
    return f, data[i+1:], nil
}

func cutLine(data []byte) (string, []byte, bool) {
    i := bytes.IndexByte(data, '\n')
    if i < 0 { return "", nil, false }
    return strings.TrimSuffix(string(data[:i]), "\r"), data[i+1:], true
}

var escaper = strings.NewReplacer("\\", "\\\\", "\r", "\\r", "\n", "\\n", ":", "\\c")

func escape(s string) string { return escaper.Replace(s) }

func unescape(s string) (string, error) {
    if !strings.Contains(s, "\\") { return s, nil }
    var b strings.Builder
    for i := 0; i < len(s); i++ {
        if s[i] != '\\' { b.WriteByte(s[i]); continue }
        if i+1 >= len(s) { return "", fmt.Errorf("stomp: dangling escape in %q", s) }
        i++
        switch s[i] {
        case '\\':
            b.WriteByte('\\')
        case 'n':
            b.WriteByte('\n')
        case 'r':
            b.WriteByte('\r')
        case 'c':
            b.WriteByte(':')
        default:
            return "", fmt.Errorf("stomp: undefined escape \\%c", s[i])
        }
    }
    return b.String(), nil
}
