package metrics

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Upstream connection metrics
	UpstreamConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "upstream_connected",
		Help: "Whether the shared upstream realtime connection is live (1) or not (0).",
	})
	UpstreamConnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upstream_connects_total",
		Help: "The total number of successful upstream connections, including reconnects.",
	})
	UpstreamDisconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upstream_disconnects_total",
		Help: "The total number of upstream disconnections.",
	})
	UpstreamConnectErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upstream_connect_errors_total",
		Help: "The total number of failed upstream connection attempts.",
	})

	// Subscription metrics
	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_subscriptions_active",
		Help: "The current number of logical event subscriptions.",
	})
	SubscriptionReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_subscription_replays_total",
		Help: "The total number of subscription replays after reconnects.",
	})
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_received_total",
		Help: "The total number of realtime events dispatched to handlers.",
	}, []string{"event"})
	MergesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_merges_applied_total",
		Help: "The total number of partial updates merged into aggregate state.",
	}, []string{"channel"})

	// Viewer (downstream) metrics
	ViewerConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viewer_connections_active",
		Help: "The current number of connected dashboard viewers.",
	})
	ViewerConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viewer_connections_total",
		Help: "The total number of dashboard viewer connections accepted.",
	})
	ViewerMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viewer_messages_sent_total",
		Help: "The total number of messages pushed to dashboard viewers.",
	})

	// Broker metrics
	BrokerMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_messages_published_total",
		Help: "The total number of messages published to the message broker.",
	}, []string{"broker_type"})
	BrokerPublishRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "broker_publish_retries_total",
		Help: "The total number of retries when publishing to the message broker.",
	}, []string{"broker_type"})

	// Auth metrics
	AuthSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_success_total",
		Help: "The total number of successful viewer authentications.",
	})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "The total number of failed viewer authentications.",
	}, []string{"reason"})
)

// StartServer starts the HTTP server for Prometheus metrics.
func StartServer(port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting metrics server on %s%s", addr, path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("Failed to start metrics server: %v", err)
		}
	}()
}
