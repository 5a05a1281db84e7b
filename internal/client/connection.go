package client

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tturner/eipcore/internal/cip/codec"
	"github.com/tturner/eipcore/internal/cip/protocol"
	"github.com/tturner/eipcore/internal/cpf"
	"github.com/tturner/eipcore/internal/driver"
	"github.com/tturner/eipcore/internal/errors"
	"github.com/tturner/eipcore/internal/metrics"
)

// ConnParams identifies a connection established by a Forward_Open.
type ConnParams struct {
	// OriginatorID is the O->T connection id the transport sends with
	// every request.
	OriginatorID uint32
	// TargetID is the T->O connection id the target sends with every
	// reply. Zero accepts any id.
	TargetID uint32
	// Sequence is the initial sequence count. The first request carries
	// Sequence+1.
	Sequence uint16
}

// Connection sends connected requests. Each request carries the next
// sequence count and the reply must echo it; any mismatch, abandoned
// exchange or transport failure desynchronizes the Connection for good.
type Connection[E any] struct {
	driver   driver.Driver[E]
	endpoint E
	params   ConnParams
	opts     options

	gate   *semaphore.Weighted
	svc    driver.Service // guarded by gate
	seq    uint16         // guarded by gate; last value sent
	desync atomic.Bool
	closed atomic.Bool
}

// NewConnection returns a Connection over the endpoint's Service. The
// Service is built on first use.
func NewConnection[E any](d driver.Driver[E], endpoint E, params ConnParams, opts ...Option) *Connection[E] {
	return &Connection[E]{
		driver:   d,
		endpoint: endpoint,
		params:   params,
		seq:      params.Sequence,
		opts:     buildOptions(opts),
		gate:     semaphore.NewWeighted(1),
	}
}

// Params returns the connection identity.
func (c *Connection[E]) Params() ConnParams {
	return c.params
}

// Desynchronized reports whether the Connection must be replaced.
func (c *Connection[E]) Desynchronized() bool {
	return c.desync.Load()
}

// Send issues one connected request and returns the decoded reply. A device
// error status is carried in the reply, not returned as an error.
func (c *Connection[E]) Send(ctx context.Context, service protocol.ServiceCode, path, payload []byte) (protocol.MessageReply[[]byte], error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return protocol.MessageReply[[]byte]{}, err
	}
	defer c.gate.Release(1)

	start := time.Now()
	reply, err := c.send(ctx, service, path, payload)
	c.opts.observe(metrics.KindConnected, c.endpoint, service, start, reply, err)
	return reply, err
}

func (c *Connection[E]) send(ctx context.Context, service protocol.ServiceCode, path, payload []byte) (protocol.MessageReply[[]byte], error) {
	var zero protocol.MessageReply[[]byte]
	if c.closed.Load() {
		return zero, errors.ErrClosed
	}
	if c.desync.Load() {
		return zero, errors.Desync("connection 0x%08X is desynchronized", c.params.OriginatorID)
	}

	if c.svc == nil {
		svc, err := c.driver.BuildService(ctx, c.endpoint)
		if err != nil {
			return zero, err
		}
		c.svc = svc
	}

	c.seq++
	seq := c.seq
	data := codec.AppendUint16(make([]byte, 0, 3+len(path)+len(payload)), seq)
	data = protocol.AppendRequest(data, service, path, payload)
	request, err := cpf.New(cpf.ConnectedData(data)).Encode()
	if err != nil {
		return zero, err
	}

	raw, err := c.svc.SendUnitData(ctx, c.ids(), request)
	if err != nil {
		// Whether the target saw the request is unknown, and a reply for
		// another connection id means the stream is out of step.
		c.desync.Store(true)
		return zero, err
	}
	return c.decode(service, seq, raw)
}

func (c *Connection[E]) ids() driver.ConnIDs {
	return driver.ConnIDs{Originator: c.params.OriginatorID, Target: c.params.TargetID}
}

// decode checks the single connected data item and the echoed sequence,
// then parses the reply body.
func (c *Connection[E]) decode(service protocol.ServiceCode, seq uint16, raw []byte) (protocol.MessageReply[[]byte], error) {
	var zero protocol.MessageReply[[]byte]
	packet, err := cpf.Decode(raw)
	if err != nil {
		return zero, err
	}
	if packet.Len() != 1 {
		return zero, errors.DataFormat("connected reply: %d items, want 1", packet.Len())
	}

	item := packet.Item(0)
	if err := item.EnsureTypeCode(cpf.TypeConnectedData); err != nil {
		return zero, err
	}
	r := codec.NewReader(item.Data)
	echoed, err := r.Uint16("sequence count")
	if err != nil {
		return zero, err
	}
	if echoed != seq {
		c.desync.Store(true)
		return zero, errors.Desync("reply sequence %d, sent %d", echoed, seq)
	}
	return protocol.DecodeReplyFor(service, r.Rest())
}

// Sequence returns the last sequence count sent.
func (c *Connection[E]) Sequence() uint16 {
	if err := c.gate.Acquire(context.Background(), 1); err != nil {
		return 0
	}
	defer c.gate.Release(1)
	return c.seq
}

// Close releases the Service. It does not send a Forward_Close.
func (c *Connection[E]) Close() error {
	if err := c.gate.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer c.gate.Release(1)
	c.closed.Store(true)
	if c.svc == nil {
		return nil
	}
	err := c.svc.Close()
	c.svc = nil
	return err
}
