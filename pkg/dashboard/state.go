package dashboard

import "github.com/amirimatin/go-console/pkg/transport"

// InitForm holds the inputs of the initialize-cluster action. Mode is carried
// for display and never validated.
type InitForm struct {
    Context string `json:"context"`
    Mode    string `json:"mode"`
}

// JoinForm holds the inputs of the join-cluster action.
type JoinForm struct {
    Host string `json:"host"`
    Port int    `json:"port"`
}

// State is a JSON-serializable snapshot of everything the dashboard shows.
type State struct {
    Edition  Edition           `json:"edition"`
    License  transport.License `json:"license"`
    Self     transport.Node    `json:"self"`
    Nodes    []transport.Node  `json:"nodes"`
    Contexts []string          `json:"contexts"`
    // Selected is the context whose status is shown; empty means none.
    Selected string           `json:"selected,omitempty"`
    Status   transport.Status `json:"status,omitempty"`
    Init     InitForm         `json:"initForm"`
    Join     JoinForm         `json:"joinForm"`
}

func (s State) clone() State {
    out := s
    out.License.Features = append([]string(nil), s.License.Features...)
    out.Self.ContextNames = append([]string(nil), s.Self.ContextNames...)
    out.Contexts = append([]string(nil), s.Contexts...)
    if s.Nodes != nil {
        out.Nodes = make([]transport.Node, len(s.Nodes))
        for i, n := range s.Nodes {
            n.ContextNames = append([]string(nil), n.ContextNames...)
            out.Nodes[i] = n
        }
    }
    if s.Status != nil {
        out.Status = transport.Status(copyValue(map[string]any(s.Status)).(map[string]any))
    }
    return out
}

// copyValue copies the maps and slices produced by JSON decoding.
func copyValue(v any) any {
    switch t := v.(type) {
    case map[string]any:
        m := make(map[string]any, len(t))
        for k, e := range t { m[k] = copyValue(e) }
        return m
    case []any:
        l := make([]any, len(t))
        for i, e := range t { l[i] = copyValue(e) }
        return l
    default:
        return v
    }
}
