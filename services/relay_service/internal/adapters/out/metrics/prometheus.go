package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/event"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

// RelayMetrics 会话数与事件处理结果
type RelayMetrics struct {
	activeSessions prometheus.Gauge
	sessionsTotal  prometheus.Counter
	eventsTotal    *prometheus.CounterVec
	known          map[string]struct{}
}

func NewRelayMetrics(reg prometheus.Registerer) out.Metrics {
	m := &RelayMetrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_sessions",
			Help: "Number of active websocket sessions.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_total",
			Help: "Number of sessions activated since start.",
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Inbound events by name and result.",
		}, []string{"event", "result"}),
		known: make(map[string]struct{}, len(event.Inbound)),
	}
	for _, name := range event.Inbound {
		m.known[name] = struct{}{}
	}
	reg.MustRegister(m.activeSessions, m.sessionsTotal, m.eventsTotal)
	return m
}

func (m *RelayMetrics) SessionOpened() {
	m.activeSessions.Inc()
	m.sessionsTotal.Inc()
}

func (m *RelayMetrics) SessionClosed() {
	m.activeSessions.Dec()
}

func (m *RelayMetrics) EventHandled(name string, err error) {
	// 客户端可以发任意事件名，未知的统一归为一个标签
	if _, ok := m.known[name]; !ok {
		name = "unknown"
	}
	m.eventsTotal.WithLabelValues(name, result(err)).Inc()
}

func result(err error) string {
	var (
		protoErr *relayerrors.ProtocolError
		storeErr *relayerrors.StoreError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &protoErr):
		return "protocol_error"
	case errors.Is(err, relayerrors.ErrUnknownEvent):
		return "unknown_event"
	case errors.As(err, &storeErr):
		return "store_error"
	default:
		return "error"
	}
}
