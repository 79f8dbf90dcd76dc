package plugins

import (
	"github.com/mkpazon/TmiK/pkg/sdk"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	directionIn  = "incoming"
	directionOut = "outgoing"
)

// Metrics counts what the plugin chain lets through. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	messages *prometheus.CounterVec
	states   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tmik_container_messages_total",
				Help: "Messages seen by the plugin container, by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		states: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tmik_container_state_changes_total",
				Help: "Connection state updates relayed to plugins",
			},
			[]string{"state"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.states)
	}
	return m
}

func (m *Metrics) accepted(direction string) {
	if m != nil {
		m.messages.WithLabelValues(direction, "accepted").Inc()
	}
}

func (m *Metrics) dropped(direction string) {
	if m != nil {
		m.messages.WithLabelValues(direction, "dropped").Inc()
	}
}

func (m *Metrics) state(s sdk.ConnectionState) {
	if m != nil {
		m.states.WithLabelValues(s.String()).Inc()
	}
}
