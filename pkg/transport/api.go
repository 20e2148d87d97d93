package transport

import (
    "context"
    "sort"
)

// Admin API paths, relative to the server base URL.
const (
    PathLicense         = "v1/public/license"
    PathSelf            = "v1/public/me"
    PathNodes           = "v1/public"
    PathVisibleContexts = "v1/public/visiblecontexts"
    PathStatus          = "v1/public/status"
    PathTemplate        = "v1/cluster/download-template"
    PathPurgeEvents     = "v1/devmode/purge-events"
    PathInitCluster     = "v1/context/init"
    PathJoinCluster     = "v1/cluster"
)

// TopicCluster fires whenever cluster topology changes. Its payload carries
// no contract beyond "something changed".
const TopicCluster = "/topic/cluster"

// DefaultInternalGrpcPort is the internal gRPC port assumed when a join
// request does not name one.
const DefaultInternalGrpcPort = 8224

// License is the license/entitlement snapshot of the server.
type License struct {
    Edition    string   `json:"edition,omitempty"`
    Licensee   string   `json:"licensee,omitempty"`
    ExpiryDate string   `json:"expiryDate,omitempty"`
    Features   []string `json:"featureList"`
}

// Node describes one cluster member. The same shape is returned for the node
// serving the API (v1/public/me) and for node-list entries.
type Node struct {
    Name             string   `json:"name"`
    HostName         string   `json:"hostName,omitempty"`
    InternalHostName string   `json:"internalHostName,omitempty"`
    GrpcPort         int      `json:"grpcPort,omitempty"`
    GrpcInternalPort int      `json:"grpcInternalPort,omitempty"`
    HTTPPort         int      `json:"httpPort,omitempty"`
    Connected        bool     `json:"connected"`
    Authentication   bool     `json:"authentication,omitempty"`
    Clustered        bool     `json:"clustered,omitempty"`
    SSL              bool     `json:"ssl,omitempty"`
    AdminNode        bool     `json:"adminNode,omitempty"`
    DevelopmentMode  bool     `json:"developmentMode,omitempty"`
    Initialized      bool     `json:"initialized,omitempty"`
    ContextNames     []string `json:"contextNames,omitempty"`
}

// Status holds the arbitrary status fields reported for one context.
type Status map[string]any

// Keys returns the status field names in sorted order.
func (s Status) Keys() []string {
    keys := make([]string, 0, len(s))
    for k := range s { keys = append(keys, k) }
    sort.Strings(keys)
    return keys
}

// JoinRequest asks the receiving node to join the cluster of which
// InternalHostName:InternalGrpcPort is a member.
type JoinRequest struct {
    InternalHostName string `json:"internalHostName"`
    InternalGrpcPort int    `json:"internalGrpcPort"`
}

// AdminClient issues admin API calls against a server.
type AdminClient interface {
    GetLicense(ctx context.Context) (License, error)
    GetSelf(ctx context.Context) (Node, error)
    GetNodes(ctx context.Context) ([]Node, error)
    GetVisibleContexts(ctx context.Context, includeAdmin bool) ([]string, error)
    GetStatus(ctx context.Context, contextName string) (Status, error)
    DownloadTemplate(ctx context.Context) ([]byte, error)
    PurgeEvents(ctx context.Context) error
    // InitCluster initializes the cluster; an empty context leaves the
    // choice to the server.
    InitCluster(ctx context.Context, contextName string) error
    JoinCluster(ctx context.Context, req JoinRequest) error
}
