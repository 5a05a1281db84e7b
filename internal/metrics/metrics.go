package metrics

// Prometheus collectors for request/reply exchanges and fragmented transfers.

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tturner/eipcore/internal/errors"
)

// Exchange kinds.
const (
	KindUnconnected = "unconnected"
	KindConnected   = "connected"
)

// Exchange outcomes, one per error class plus success.
const (
	OutcomeSuccess    = "success"
	OutcomeStatus     = "status"
	OutcomeProtocol   = "protocol"
	OutcomeDataFormat = "data_format"
	OutcomeTransport  = "transport"
)

// OutcomeOf classifies err into an outcome label.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.IsDataFormat(err):
		return OutcomeDataFormat
	case errors.IsProtocol(err):
		return OutcomeProtocol
	}
	if _, ok := errors.AsStatus(err); ok {
		return OutcomeStatus
	}
	return OutcomeTransport
}

// Fragment operations.
const (
	OpRead  = "read"
	OpWrite = "write"
)

// Collector holds the module's collectors. A nil *Collector records nothing.
type Collector struct {
	registry  *prometheus.Registry
	exchanges *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	rounds    *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry.
func New() *Collector {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers the collectors with registry.
func NewWithRegistry(registry *prometheus.Registry) *Collector {
	c := &Collector{
		registry: registry,
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eipcore",
				Name:      "exchanges_total",
				Help:      "Request/reply exchanges by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "eipcore",
				Name:      "exchange_seconds",
				Help:      "Request/reply round-trip time in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"kind"},
		),
		rounds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "eipcore",
				Name:      "fragment_rounds_total",
				Help:      "Rounds issued by fragmented reads and writes",
			},
			[]string{"op"},
		),
	}
	registry.MustRegister(c.exchanges, c.latency, c.rounds)
	return c
}

// Registry returns the registry the collectors live in.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveExchange records one exchange.
func (c *Collector) ObserveExchange(kind, outcome string, rtt time.Duration) {
	if c == nil {
		return
	}
	c.exchanges.WithLabelValues(kind, outcome).Inc()
	c.latency.WithLabelValues(kind).Observe(rtt.Seconds())
}

// ObserveRound records one fragment round.
func (c *Collector) ObserveRound(op string) {
	if c == nil {
		return
	}
	c.rounds.WithLabelValues(op).Inc()
}

// WriteFile dumps every collector in text exposition format.
func (c *Collector) WriteFile(path string) error {
	if c == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
