// Package metrics exposes Prometheus instrumentation for a peer network node.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Eviction reasons.
const (
	ReasonStale      = "stale"
	ReasonSendFailed = "send_failed"
	ReasonDisconnect = "disconnect"
	ReasonReadError  = "read_error"
	ReasonProtocol   = "protocol"
	ReasonLocal      = "local"
)

// Handshake directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Metrics holds all Prometheus metrics for a node.
type Metrics struct {
	// Peer table
	ConnectedPeers  prometheus.Gauge
	DiscoveredPeers prometheus.Gauge
	Evictions       *prometheus.CounterVec
	Handshakes      *prometheus.CounterVec

	// Messaging
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	SendFailures     prometheus.Counter
	MessagesDropped  prometheus.Counter
	BroadcastLatency prometheus.Histogram

	// Discovery
	Datagrams          *prometheus.CounterVec
	MalformedDatagrams prometheus.Counter
}

// NewMetrics registers every metric on reg under namespace. Passing
// prometheus.NewRegistry() keeps tests and multiple nodes in one process apart.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_peers",
			Help:      "Number of peers with an established connection",
		}),
		DiscoveredPeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovered_peers",
			Help:      "Number of peers learned through discovery",
		}),
		Evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_evictions_total",
			Help:      "Connections removed from the peer table by reason",
		}, []string{"reason"}),
		Handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Handshakes by direction and result",
		}, []string{"direction", "result"}),

		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Peer messages written by kind",
		}, []string{"kind"}),
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Peer messages read by kind",
		}, []string{"kind"}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Frames that could not be written to a peer",
		}),
		MessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound data messages dropped because the inbox was full",
		}),
		BroadcastLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_latency_seconds",
			Help:      "Time spent writing one broadcast to every peer",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		}),

		Datagrams: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_datagrams_total",
			Help:      "Discovery datagrams received by kind",
		}, []string{"kind"}),
		MalformedDatagrams: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_malformed_total",
			Help:      "Discovery datagrams that failed to decode",
		}),
	}
}

// RecordHandshake records the outcome of one handshake.
func (m *Metrics) RecordHandshake(direction string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Handshakes.WithLabelValues(direction, result).Inc()
}

// RecordEviction records a connection leaving the peer table.
func (m *Metrics) RecordEviction(reason string) {
	m.Evictions.WithLabelValues(reason).Inc()
}

// RecordBroadcast records a broadcast's duration and its failed sends.
func (m *Metrics) RecordBroadcast(failed int, duration time.Duration) {
	m.BroadcastLatency.Observe(duration.Seconds())
	m.SendFailures.Add(float64(failed))
}

// UpdatePeers updates both peer table gauges.
func (m *Metrics) UpdatePeers(connected, discovered int) {
	m.ConnectedPeers.Set(float64(connected))
	m.DiscoveredPeers.Set(float64(discovered))
}

// Server runs an HTTP server exposing /metrics and /health.
type Server struct {
	server *http.Server
}

// NewServer creates a metrics server on addr serving the metrics of g.
func NewServer(addr string, g prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// StartAsync starts the metrics server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		_ = s.server.ListenAndServe()
	}()
}

// Stop stops the metrics server.
func (s *Server) Stop() error {
	return s.server.Close()
}
