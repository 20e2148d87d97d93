package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "console",
        Subsystem: "api",
        Name:      "requests_total",
        Help:      "Admin API requests by endpoint and result",
    }, []string{"endpoint", "result"})

    APIRequestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: "console",
        Subsystem: "api",
        Name:      "request_seconds",
        Help:      "Admin API request latency by endpoint",
        Buckets:   prometheus.DefBuckets,
    }, []string{"endpoint"})

    EndpointFailovers = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "console",
        Subsystem: "api",
        Name:      "failovers_total",
        Help:      "Times the client moved to another server endpoint",
    })

    Actions = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "console",
        Name:      "actions_total",
        Help:      "Administrative actions dispatched by the dashboard",
    }, []string{"action", "result"})

    Nodes = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "console",
        Name:      "nodes",
        Help:      "Nodes in the last fetched node list",
    })

    PollTicks = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "console",
        Name:      "poll_ticks_total",
        Help:      "Status poll timer ticks",
    })

    DroppedUpdates = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "console",
        Name:      "dropped_updates_total",
        Help:      "Fetch completions ignored because the dashboard was torn down",
    })

    PushNotifications = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "console",
        Subsystem: "push",
        Name:      "notifications_total",
        Help:      "Push notifications received by topic",
    }, []string{"topic"})

    PushSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "console",
        Subsystem: "push",
        Name:      "subscriptions",
        Help:      "Live push subscriptions held by dashboards",
    })

    GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "console",
        Subsystem: "grpc_conn",
        Name:      "dials_total",
        Help:      "Total number of new gRPC connections dialed",
    })
    GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "console",
        Subsystem: "grpc_conn",
        Name:      "reuse_total",
        Help:      "Total number of gRPC connection reuses from cache",
    })
    GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "console",
        Subsystem: "grpc_conn",
        Name:      "evictions_total",
        Help:      "Total number of cached gRPC connections evicted",
    })
    GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "console",
        Subsystem: "grpc_conn",
        Name:      "active",
        Help:      "Number of active cached gRPC connections",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(APIRequests)
        prometheus.MustRegister(APIRequestSeconds)
        prometheus.MustRegister(EndpointFailovers)
        prometheus.MustRegister(Actions)
        prometheus.MustRegister(Nodes)
        prometheus.MustRegister(PollTicks)
        prometheus.MustRegister(DroppedUpdates)
        prometheus.MustRegister(PushNotifications)
        prometheus.MustRegister(PushSubscriptions)
        prometheus.MustRegister(GRPCConnDials)
        prometheus.MustRegister(GRPCConnReuse)
        prometheus.MustRegister(GRPCConnEvictions)
        prometheus.MustRegister(GRPCConnActive)
    })
}

// Result maps an error to the "result" label value.
func Result(err error) string {
    if err != nil { return "error" }
    return "ok"
}
