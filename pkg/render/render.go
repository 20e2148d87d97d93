// Package render turns a dashboard snapshot into terminal output.
package render

import (
    "encoding/json"
    "fmt"
    "io"
    "strings"
    "text/tabwriter"

    "sigs.k8s.io/yaml"

    "github.com/amirimatin/go-console/pkg/dashboard"
    "github.com/amirimatin/go-console/pkg/transport"
)

type Format string

const (
    FormatText Format = "text"
    FormatJSON Format = "json"
    FormatYAML Format = "yaml"
)

// ParseFormat maps an --output value to a Format. Empty means text.
func ParseFormat(s string) (Format, error) {
    switch Format(strings.ToLower(s)) {
    case "", FormatText:
        return FormatText, nil
    case FormatJSON:
        return FormatJSON, nil
    case FormatYAML, "yml":
        return FormatYAML, nil
    }
    return "", fmt.Errorf("render: unknown output format %q", s)
}

// Write renders st to w in the given format.
func Write(w io.Writer, st dashboard.State, f Format) error {
    switch f {
    case FormatJSON, FormatYAML:
        return Value(w, st, f)
    case FormatText, "":
        return text(w, st)
    }
    return fmt.Errorf("render: unknown output format %q", f)
}

// Value renders an arbitrary value as JSON or YAML. Text falls back to JSON.
func Value(w io.Writer, v any, f Format) error {
    if f == FormatYAML {
        b, err := yaml.Marshal(v)
        if err != nil { return err }
        _, err = w.Write(b)
        return err
    }
    enc := json.NewEncoder(w)
    enc.SetIndent("", "  ")
    return enc.Encode(v)
}

func text(w io.Writer, st dashboard.State) error {
    tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
    license(tw, st.License)
    if st.Self.Name != "" { node(tw, st.Self) }
    fmt.Fprintf(tw, "Edition:\t%s\n", st.Edition)
    fmt.Fprintln(tw)
    nodes(tw, st.Nodes)
    fmt.Fprintln(tw)

    fmt.Fprint(tw, "Contexts:\t")
    if len(st.Contexts) == 0 { fmt.Fprint(tw, "-") }
    for i, c := range st.Contexts {
        if i > 0 { fmt.Fprint(tw, " ") }
        if c == st.Selected { c = "*" + c }
        fmt.Fprint(tw, c)
    }
    fmt.Fprintln(tw)
    if st.Selected != "" { status(tw, st.Selected, st.Status) }
    return tw.Flush()
}

// WriteLicense renders a license snapshot.
func WriteLicense(w io.Writer, lic transport.License, f Format) error {
    if f == FormatJSON || f == FormatYAML { return Value(w, lic, f) }
    tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
    license(tw, lic)
    return tw.Flush()
}

// WriteNode renders a single node descriptor.
func WriteNode(w io.Writer, n transport.Node, f Format) error {
    if f == FormatJSON || f == FormatYAML { return Value(w, n, f) }
    tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
    node(tw, n)
    if len(n.ContextNames) > 0 { fmt.Fprintf(tw, "Contexts:\t%s\n", strings.Join(n.ContextNames, ", ")) }
    return tw.Flush()
}

// WriteNodes renders the node table.
func WriteNodes(w io.Writer, ns []transport.Node, f Format) error {
    if f == FormatJSON || f == FormatYAML { return Value(w, ns, f) }
    tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
    nodes(tw, ns)
    return tw.Flush()
}

// WriteStatus renders the status of one context with keys sorted.
func WriteStatus(w io.Writer, contextName string, st transport.Status, f Format) error {
    if f == FormatJSON || f == FormatYAML { return Value(w, map[string]any{"context": contextName, "status": st}, f) }
    tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
    status(tw, contextName, st)
    return tw.Flush()
}

func license(w io.Writer, lic transport.License) {
    fmt.Fprintf(w, "License:\t%s", orDash(lic.Edition))
    if lic.Licensee != "" { fmt.Fprintf(w, " (%s)", lic.Licensee) }
    if lic.ExpiryDate != "" { fmt.Fprintf(w, " expires %s", lic.ExpiryDate) }
    fmt.Fprintln(w)
    if len(lic.Features) > 0 { fmt.Fprintf(w, "Features:\t%s\n", strings.Join(lic.Features, ", ")) }
}

func node(w io.Writer, n transport.Node) {
    fmt.Fprintf(w, "Node:\t%s host=%s initialized=%t", n.Name, orDash(n.HostName), n.Initialized)
    if n.DevelopmentMode { fmt.Fprint(w, " devmode") }
    fmt.Fprintln(w)
}

func nodes(w io.Writer, ns []transport.Node) {
    fmt.Fprintln(w, "NAME\tHOST\tHTTP\tGRPC\tINTERNAL\tCONNECTED")
    for _, n := range ns {
        internal := orDash(n.InternalHostName)
        if n.GrpcInternalPort > 0 { internal = fmt.Sprintf("%s:%d", internal, n.GrpcInternalPort) }
        fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\n", n.Name, orDash(n.HostName), port(n.HTTPPort), port(n.GrpcPort), internal, n.Connected)
    }
}

func status(w io.Writer, contextName string, st transport.Status) {
    fmt.Fprintf(w, "Status (%s):\n", contextName)
    for _, k := range st.Keys() {
        fmt.Fprintf(w, "  %s\t%v\n", k, st[k])
    }
}

func orDash(s string) string {
    if s == "" { return "-" }
    return s
}

func port(p int) string {
    if p <= 0 { return "-" }
    return fmt.Sprint(p)
}

// ValidateTemplate reports whether a downloaded cluster template parses as
// YAML.
func ValidateTemplate(data []byte) error {
    var v any
    if err := yaml.Unmarshal(data, &v); err != nil { return fmt.Errorf("render: template is not valid YAML: %w", err) }
    if v == nil { return fmt.Errorf("render: template is empty") }
    return nil
}
