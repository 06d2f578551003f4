package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "strangerchat"

// Metrics holds the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	roomsCreated     prometheus.Counter
	roomsMatched     prometheus.Counter
	claimConflicts   prometheus.Counter
	staleRooms       prometheus.Counter
	roomsReaped      prometheus.Counter
	messagesStored   prometheus.Counter
	deliveryFailures prometheus.Counter
	adminActions     *prometheus.CounterVec
	connections      *prometheus.GaugeVec
}

// New registers the service metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		roomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Waiting rooms created by the matchmaker.",
		}),
		roomsMatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_matched_total",
			Help:      "Waiting rooms claimed by a second participant.",
		}),
		claimConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_conflicts_total",
			Help:      "Claims lost to a concurrent claimant.",
		}),
		staleRooms: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_rooms_total",
			Help:      "Claimed rooms dropped because the waiting participant was gone.",
		}),
		roomsReaped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_reaped_total",
			Help:      "Abandoned waiting rooms closed by the reaper.",
		}),
		messagesStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Chat messages persisted.",
		}),
		deliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Group members evicted after a failed send.",
		}),
		adminActions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_actions_total",
			Help:      "Admin commands handled, by action.",
		}, []string{"action"}),
		connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections, by endpoint.",
		}, []string{"endpoint"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) RoomCreated() {
	if m != nil {
		m.roomsCreated.Inc()
	}
}

func (m *Metrics) RoomMatched() {
	if m != nil {
		m.roomsMatched.Inc()
	}
}

func (m *Metrics) ClaimConflict() {
	if m != nil {
		m.claimConflicts.Inc()
	}
}

func (m *Metrics) StaleRoom() {
	if m != nil {
		m.staleRooms.Inc()
	}
}

func (m *Metrics) RoomsReaped(n int) {
	if m != nil {
		m.roomsReaped.Add(float64(n))
	}
}

func (m *Metrics) MessageStored() {
	if m != nil {
		m.messagesStored.Inc()
	}
}

func (m *Metrics) DeliveryFailure() {
	if m != nil {
		m.deliveryFailures.Inc()
	}
}

func (m *Metrics) AdminAction(action string) {
	if m != nil {
		m.adminActions.WithLabelValues(action).Inc()
	}
}

// ConnectionOpened and ConnectionClosed track live sockets per endpoint ("chat" or "admin").
func (m *Metrics) ConnectionOpened(endpoint string) {
	if m != nil {
		m.connections.WithLabelValues(endpoint).Inc()
	}
}

func (m *Metrics) ConnectionClosed(endpoint string) {
	if m != nil {
		m.connections.WithLabelValues(endpoint).Dec()
	}
}
