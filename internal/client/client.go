package client

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tturner/eipcore/internal/cip/epath"
	"github.com/tturner/eipcore/internal/cip/protocol"
	"github.com/tturner/eipcore/internal/cpf"
	"github.com/tturner/eipcore/internal/driver"
	"github.com/tturner/eipcore/internal/errors"
	"github.com/tturner/eipcore/internal/metrics"
)

// Client sends unconnected requests. The Service is built on first use and
// rebuilt after a transport failure. One exchange is in flight at a time.
type Client[E any] struct {
	driver   driver.Driver[E]
	endpoint E
	opts     options

	gate *semaphore.Weighted
	svc  driver.Service // guarded by gate
}

// New returns a Client for endpoint. No I/O happens until the first request.
func New[E any](d driver.Driver[E], endpoint E, opts ...Option) *Client[E] {
	return &Client[E]{
		driver:   d,
		endpoint: endpoint,
		opts:     buildOptions(opts),
		gate:     semaphore.NewWeighted(1),
	}
}

// Send issues one unconnected request and returns the decoded reply. A
// device error status is carried in the reply, not returned as an error.
func (c *Client[E]) Send(ctx context.Context, service protocol.ServiceCode, path, payload []byte) (protocol.MessageReply[[]byte], error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return protocol.MessageReply[[]byte]{}, err
	}
	defer c.gate.Release(1)

	start := time.Now()
	reply, err := c.send(ctx, service, path, payload)
	c.opts.observe(metrics.KindUnconnected, c.endpoint, service, start, reply, err)
	return reply, err
}

func (c *Client[E]) send(ctx context.Context, service protocol.ServiceCode, path, payload []byte) (protocol.MessageReply[[]byte], error) {
	var zero protocol.MessageReply[[]byte]

	svc, err := c.service(ctx)
	if err != nil {
		return zero, err
	}

	request, err := cpf.New(
		cpf.NullAddress(),
		cpf.UnconnectedData(protocol.EncodeRequest(service, path, payload)),
	).Encode()
	if err != nil {
		return zero, err
	}

	raw, err := svc.SendRRData(ctx, request)
	if err != nil {
		// The stream may hold half a frame; start over with a new Service.
		c.reset()
		return zero, err
	}
	return decodeUnconnected(service, raw)
}

// decodeUnconnected checks the [null address, unconnected data] envelope and
// parses the reply body.
func decodeUnconnected(service protocol.ServiceCode, raw []byte) (protocol.MessageReply[[]byte], error) {
	var zero protocol.MessageReply[[]byte]
	packet, err := cpf.Decode(raw)
	if err != nil {
		return zero, err
	}
	if packet.Len() != 2 {
		return zero, errors.DataFormat("unconnected reply: %d items, want 2", packet.Len())
	}
	if err := packet.Item(0).EnsureTypeCode(cpf.TypeNullAddress); err != nil {
		return zero, err
	}
	data := packet.Item(1)
	if err := data.EnsureTypeCode(cpf.TypeUnconnectedData); err != nil {
		return zero, err
	}
	return protocol.DecodeReplyFor(service, data.Data)
}

func (c *Client[E]) service(ctx context.Context) (driver.Service, error) {
	if c.svc != nil {
		return c.svc, nil
	}
	svc, err := c.driver.BuildService(ctx, c.endpoint)
	if err != nil {
		return nil, err
	}
	c.svc = svc
	return svc, nil
}

func (c *Client[E]) reset() {
	if c.svc == nil {
		return
	}
	if err := c.svc.Close(); err != nil {
		c.opts.log.Debug("close service: %v", err)
	}
	c.svc = nil
}

// Close releases the Service. A later request builds a new one.
func (c *Client[E]) Close() error {
	if err := c.gate.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer c.gate.Release(1)
	if c.svc == nil {
		return nil
	}
	err := c.svc.Close()
	c.svc = nil
	return err
}

// ReadTag reads elementCount elements of the tag at path and returns the
// leading data type and the value bytes.
func (c *Client[E]) ReadTag(ctx context.Context, path []byte, elementCount uint16) (protocol.DataType, []byte, error) {
	reply, err := c.Send(ctx, protocol.ServiceReadTag, path, protocol.ReadTagPayload(elementCount))
	if err != nil {
		return 0, nil, err
	}
	if err := reply.Err(); err != nil {
		return 0, nil, err
	}
	return protocol.SplitTypedData(reply.Data)
}

// WriteTag writes data to the tag at path in one request.
func (c *Client[E]) WriteTag(ctx context.Context, path []byte, dataType protocol.DataType, elementCount uint16, data []byte) error {
	reply, err := c.Send(ctx, protocol.ServiceWriteTag, path, protocol.WriteTagPayload(dataType, elementCount, data))
	if err != nil {
		return err
	}
	return reply.Err()
}

// ReadModifyWrite sets the bits in orMask and clears the bits missing from
// andMask, atomically on the device.
func (c *Client[E]) ReadModifyWrite(ctx context.Context, path, orMask, andMask []byte) error {
	payload, err := protocol.ReadModifyWritePayload(orMask, andMask)
	if err != nil {
		return err
	}
	reply, err := c.Send(ctx, protocol.ServiceReadModifyWrite, path, payload)
	if err != nil {
		return err
	}
	return reply.Err()
}

// GetAttributeSingle reads one attribute of an object instance.
func (c *Client[E]) GetAttributeSingle(ctx context.Context, class uint16, instance uint32, attribute uint16) ([]byte, error) {
	reply, err := c.Send(ctx, protocol.ServiceGetAttributeSingle, epath.Logical(class, instance, attribute), nil)
	if err != nil {
		return nil, err
	}
	if err := reply.Err(); err != nil {
		return nil, err
	}
	return reply.Data, nil
}
