package grpc

import (
    "context"
    "crypto/tls"
    "net"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/keepalive"
)

// PushServer fans topology notifications out to subscribed PushClients.
type PushServer struct {
    bind   string
    tlsCfg *tls.Config

    mu   sync.Mutex
    lis  net.Listener
    srv  *grpc.Server
    subs map[*pushSub]struct{}
}

type pushSub struct {
    topic string
    ch    chan notification
}

// NewPushServer binds to the given TCP address (e.g., ":8225").
func NewPushServer(bind string) *PushServer {
    return &PushServer{bind: bind, subs: make(map[*pushSub]struct{})}
}

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *PushServer) UseTLS(cfg *tls.Config) *PushServer { s.tlsCfg = cfg; return s }

// Start listens and serves until ctx is canceled.
func (s *PushServer) Start(ctx context.Context) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return err }
    opts := []grpc.ServerOption{
        grpc.ForceServerCodec(jsonCodec{}),
        grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}),
        grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}),
    }
    if s.tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg))) }
    srv := grpc.NewServer(opts...)
    srv.RegisterService(&topologyServiceDesc, s)
    s.mu.Lock()
    s.lis, s.srv = lis, srv
    s.mu.Unlock()

    go func() {
        <-ctx.Done()
        _ = s.Stop(context.Background())
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *PushServer) Addr() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

// Subscribers reports how many streams listen on topic.
func (s *PushServer) Subscribers(topic string) int {
    s.mu.Lock()
    defer s.mu.Unlock()
    n := 0
    for sub := range s.subs {
        if sub.topic == topic { n++ }
    }
    return n
}

// Publish queues data for every subscriber of topic and returns how many
// accepted it. Slow subscribers miss the message.
func (s *PushServer) Publish(topic string, data []byte) int {
    s.mu.Lock()
    defer s.mu.Unlock()
    n := 0
    for sub := range s.subs {
        if sub.topic != topic { continue }
        select {
        case sub.ch <- notification{Topic: topic, Data: data}:
            n++
        default:
        }
    }
    return n
}

// Stop stops the server, waiting briefly for streams to drain.
func (s *PushServer) Stop(ctx context.Context) error {
    s.mu.Lock()
    srv := s.srv
    s.srv = nil
    s.mu.Unlock()
    if srv == nil { return nil }
    ch := make(chan struct{})
    go func() { srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        srv.Stop()
    case <-time.After(2 * time.Second):
        srv.Stop()
    }
    return nil
}

func (s *PushServer) serveSubscribe(req *subscribeRequest, stream grpc.ServerStream) error {
    sub := &pushSub{topic: req.Topic, ch: make(chan notification, 16)}
    s.mu.Lock()
    s.subs[sub] = struct{}{}
    s.mu.Unlock()
    defer func() {
        s.mu.Lock()
        delete(s.subs, sub)
        s.mu.Unlock()
    }()
    for {
        select {
        case <-stream.Context().Done():
            return nil
        case m := <-sub.ch:
            if err := stream.SendMsg(&m); err != nil { return err }
        }
    }
}

type topologyServer interface {
    serveSubscribe(*subscribeRequest, grpc.ServerStream) error
}

var topologyServiceDesc = grpc.ServiceDesc{
    ServiceName: serviceName,
    HandlerType: (*topologyServer)(nil),
    Streams: []grpc.StreamDesc{{
        StreamName:    "Subscribe",
        ServerStreams: true,
        Handler:       topologySubscribeHandler,
    }},
}

func topologySubscribeHandler(srv interface{}, stream grpc.ServerStream) error {
    req := new(subscribeRequest)
    if err := stream.RecvMsg(req); err != nil { return err }
    return srv.(topologyServer).serveSubscribe(req, stream)
}
