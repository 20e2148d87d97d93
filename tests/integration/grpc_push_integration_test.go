//go:build integration

package integration

import (
    "context"
    "io"
    "log"
    "testing"
    "time"

    "github.com/amirimatin/go-console/pkg/bootstrap"
    "github.com/amirimatin/go-console/pkg/transport"
    pushgrpc "github.com/amirimatin/go-console/pkg/transport/grpc"
)

func TestClusteredDashboardOverGRPCPush(t *testing.T) {
    srv := newFakeServer(t)
    srv.srv.Start()

    ps := pushgrpc.NewPushServer("127.0.0.1:0")
    if err := ps.Start(context.Background()); err != nil { t.Fatalf("push server: %v", err) }
    defer ps.Stop(context.Background())

    cfg := testConfig(srv.addr())
    cfg.PushProto = "grpc"
    cfg.PushAddr = ps.Addr()
    c, err := bootstrap.Build(cfg, log.New(io.Discard, "", 0))
    if err != nil { t.Fatalf("build: %v", err) }
    defer c.Close()

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    d, err := c.NewDashboard(ctx, bootstrap.DashboardOptions{})
    if err != nil { t.Fatalf("dashboard: %v", err) }
    if err := d.Mount(ctx); err != nil { t.Fatalf("mount: %v", err) }

    waitUntil(t, 5*time.Second, func() error {
        if ps.Subscribers(transport.TopicCluster) != 1 || len(d.Snapshot().Nodes) != 1 { return errNotYet }
        return nil
    })
    srv.addNode(transport.Node{Name: "axon-3"})
    ps.Publish(transport.TopicCluster, []byte("changed"))
    waitUntil(t, 5*time.Second, func() error {
        if len(d.Snapshot().Nodes) != 2 { return errNotYet }
        return nil
    })

    d.Teardown()
    waitUntil(t, 5*time.Second, func() error {
        if ps.Subscribers(transport.TopicCluster) != 0 { return errNotYet }
        return nil
    })
}
