// Package client sends CIP requests over a Driver's Service, either
// unconnected (Client) or over an established connection (Connection).
package client

import (
	"fmt"
	"time"

	"github.com/tturner/eipcore/internal/cip/protocol"
	"github.com/tturner/eipcore/internal/logging"
	"github.com/tturner/eipcore/internal/metrics"
)

// Option configures a Client or Connection.
type Option func(*options)

type options struct {
	log     *logging.Logger
	metrics *metrics.Collector
}

// WithLogger logs one line per exchange.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records exchanges in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// observe logs and records one finished exchange.
func (o options) observe(kind string, target any, service protocol.ServiceCode, start time.Time, reply protocol.MessageReply[[]byte], err error) {
	rtt := time.Since(start)
	outcome := metrics.OutcomeOf(err)
	if err == nil && reply.Status.IsError() {
		outcome = metrics.OutcomeStatus
	}
	o.metrics.ObserveExchange(kind, outcome, rtt)
	o.log.LogOperation(service.String(), fmt.Sprint(target), fmt.Sprintf("0x%02X", uint8(service)),
		outcome == metrics.OutcomeSuccess, float64(rtt.Microseconds())/1000, reply.Status.General, err)
}
