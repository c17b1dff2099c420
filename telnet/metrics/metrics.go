// Package metrics provides a Prometheus instrumentation adapter for the
// telnet package's protocol FSM and stream adapter.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds every metric the telnet package can increment. It is
// safe to share across many Streams: registration happens once, at
// construction.
type Collector struct {
	Negotiations           *prometheus.CounterVec
	ProtocolErrors         *prometheus.CounterVec
	SubnegotiationOverflow prometheus.Counter
	UrgentEvents           *prometheus.CounterVec
	OptionsEnabled         *prometheus.GaugeVec
}

// NewCollector builds a Collector and registers its metrics with reg. Pass
// prometheus.NewRegistry() for an isolated registry, or nil to use the
// default global one.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		Negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telnet",
			Name:      "negotiations_total",
			Help:      "Telnet option negotiation outcomes by option, direction, and result.",
		}, []string{"option", "direction", "result"}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telnet",
			Name:      "protocol_errors_total",
			Help:      "Protocol errors observed by the FSM, by error code.",
		}, []string{"code"}),
		SubnegotiationOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "telnet",
			Name:      "subnegotiation_overflow_total",
			Help:      "Subnegotiation payloads rejected for exceeding an option's max size.",
		}),
		UrgentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telnet",
			Name:      "urgent_events_total",
			Help:      "Urgent-data tracker transitions, by transition name.",
		}, []string{"transition"}),
		OptionsEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "telnet",
			Name:      "options_enabled",
			Help:      "1 if an option is currently enabled in a direction, else 0.",
		}, []string{"option", "direction"}),
	}

	reg.MustRegister(
		c.Negotiations,
		c.ProtocolErrors,
		c.SubnegotiationOverflow,
		c.UrgentEvents,
		c.OptionsEnabled,
	)
	return c
}

// NegotiationResult labels a completed negotiation outcome.
type NegotiationResult string

const (
	ResultEnabled  NegotiationResult = "enabled"
	ResultDisabled NegotiationResult = "disabled"
	ResultRefused  NegotiationResult = "refused"
)

// ObserveNegotiation records a negotiation outcome. option and direction
// are stringified by the caller (typically telnet.OptionID.String() /
// telnet.Direction.String()) to keep this package free of a telnet import.
func (c *Collector) ObserveNegotiation(option, direction string, result NegotiationResult) {
	if c == nil {
		return
	}
	c.Negotiations.WithLabelValues(option, direction, string(result)).Inc()
	var v float64
	if result == ResultEnabled {
		v = 1
	}
	c.OptionsEnabled.WithLabelValues(option, direction).Set(v)
}

// ObserveProtocolError increments the protocol-error counter for code.
func (c *Collector) ObserveProtocolError(code string) {
	if c == nil {
		return
	}
	c.ProtocolErrors.WithLabelValues(code).Inc()
}

// ObserveSubnegotiationOverflow increments the overflow counter.
func (c *Collector) ObserveSubnegotiationOverflow() {
	if c == nil {
		return
	}
	c.SubnegotiationOverflow.Inc()
}

// ObserveUrgentTransition increments the urgent-tracker counter for a named
// transition (the telnet package reports "saw_urgent" and "saw_data_mark").
func (c *Collector) ObserveUrgentTransition(transition string) {
	if c == nil {
		return
	}
	c.UrgentEvents.WithLabelValues(transition).Inc()
}
