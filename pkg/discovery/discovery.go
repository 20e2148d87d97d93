package discovery

// DefaultPort is the HTTP port of the admin API when a source yields bare
// host names.
const DefaultPort = 8024

// Discovery yields the admin API endpoints (host:port) the console may talk
// to, in preference order. Clients fail over along this list.
type Discovery interface {
    Endpoints() []string
}
