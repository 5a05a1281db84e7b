// Package fragment drives Read_Tag_Fragmented and Write_Tag_Fragmented
// transfers over a Client or Connection, one round at a time.
package fragment

import (
	"context"
	"fmt"

	"github.com/tturner/eipcore/internal/cip/protocol"
	"github.com/tturner/eipcore/internal/errors"
	"github.com/tturner/eipcore/internal/logging"
	"github.com/tturner/eipcore/internal/metrics"
)

// DefaultMaxChunk is the write chunk size used when none is configured. It
// fits an unconnected message to a Logix controller.
const DefaultMaxChunk = 480

// MaxChunk is the largest chunk that still fits one frame with the longest
// path over a connection: 6 bytes of command data, 14 of items, 2 of
// sequence, 512 of service and path, 8 of fragment header.
const MaxChunk = 0xFFFF - 542

// Sender issues one request and returns its decoded reply. Both
// client.Client and client.Connection implement it.
type Sender interface {
	Send(ctx context.Context, service protocol.ServiceCode, path, payload []byte) (protocol.MessageReply[[]byte], error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxChunk sets the largest value slice sent per write round.
func WithMaxChunk(n int) Option {
	return func(c *Coordinator) { c.maxChunk = n }
}

// WithLogger logs state transitions at debug.
func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithMetrics counts rounds.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithTransitionHook calls fn on every state change.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(c *Coordinator) { c.hook = fn }
}

// WithProgress calls fn after every acknowledged round with the number of
// value bytes transferred so far.
func WithProgress(fn func(transferred uint32)) Option {
	return func(c *Coordinator) { c.progress = fn }
}

// Coordinator runs fragmented operations. A Coordinator holds no
// per-operation state and may be reused; operations on the same Sender are
// serialized by the Sender.
type Coordinator struct {
	sender   Sender
	maxChunk int
	log      *logging.Logger
	metrics  *metrics.Collector
	hook     func(from, to State)
	progress func(transferred uint32)
}

// New returns a Coordinator sending through s.
func New(s Sender, opts ...Option) *Coordinator {
	c := &Coordinator{sender: s, maxChunk: DefaultMaxChunk}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Value is the result of a fragmented read.
type Value struct {
	// Type is the data type reported by the first round.
	Type protocol.DataType
	// Data is the value bytes in offset order.
	Data []byte
	// Rounds is the number of request/reply exchanges used.
	Rounds int
}

// operation tracks the state of one transfer.
type operation struct {
	c      *Coordinator
	op     string
	state  State
	offset uint32
	rounds int
}

func (c *Coordinator) begin(op string) *operation {
	return &operation{c: c, op: op, state: StateIdle}
}

func (o *operation) to(next State) {
	if !canTransition(o.state, next) {
		panic(fmt.Sprintf("fragment: illegal transition %s -> %s", o.state, next))
	}
	prev := o.state
	o.state = next
	o.c.log.Debug("fragmented %s: %s -> %s (offset %d)", o.op, prev, next, o.offset)
	if o.c.hook != nil {
		o.c.hook(prev, next)
	}
}

func (o *operation) advance(n int) {
	o.offset += uint32(n)
	if o.c.progress != nil {
		o.c.progress(o.offset)
	}
}

func (o *operation) fail(err error) error {
	o.to(StateFailed)
	return err
}

// round sends one request and checks the reply status. A device error
// aborts the operation.
func (o *operation) round(ctx context.Context, service protocol.ServiceCode, path, payload []byte) (protocol.MessageReply[[]byte], error) {
	o.to(StateSending)
	o.rounds++
	o.c.metrics.ObserveRound(o.op)
	o.to(StateAwaitingReply)
	reply, err := o.c.sender.Send(ctx, service, path, payload)
	if err != nil {
		return reply, o.fail(err)
	}
	if err := reply.Err(); err != nil {
		return reply, o.fail(err)
	}
	return reply, nil
}

// Read fetches a value with Read_Tag_Fragmented. Each round asks for the
// bytes at the current offset; the offset advances by the bytes the device
// returned until it stops signalling a partial transfer.
func (c *Coordinator) Read(ctx context.Context, path []byte, elementCount uint16) (Value, error) {
	o := c.begin(metrics.OpRead)
	var value Value
	for {
		reply, err := o.round(ctx, protocol.ServiceReadTagFragmented, path,
			protocol.ReadTagFragmentedPayload(elementCount, o.offset))
		if err != nil {
			return Value{Rounds: o.rounds}, err
		}
		if o.rounds == 1 && len(reply.Data) == 0 && !reply.HasMore() {
			// Nothing to return, not even a type.
			o.to(StateCompleted)
			return Value{Rounds: o.rounds}, nil
		}
		dataType, data, err := protocol.SplitTypedData(reply.Data)
		if err != nil {
			return Value{Rounds: o.rounds}, o.fail(err)
		}
		if o.rounds == 1 {
			value.Type = dataType
		} else if dataType != value.Type {
			return Value{Rounds: o.rounds}, o.fail(errors.Protocol("fragmented read: type 0x%04X at offset %d, first round was 0x%04X", uint16(dataType), o.offset, uint16(value.Type)))
		}
		value.Data = append(value.Data, data...)

		if !reply.HasMore() {
			o.advance(len(data))
			o.to(StateCompleted)
			value.Rounds = o.rounds
			return value, nil
		}
		if len(data) == 0 {
			return Value{Rounds: o.rounds}, o.fail(errors.Protocol("fragmented read: partial transfer at offset %d carried no data", o.offset))
		}
		o.advance(len(data))
		o.to(StateContinuing)
	}
}

// Write stores data with Write_Tag_Fragmented, one chunk of at most the
// configured size per round, in offset order. Rounds already acknowledged
// are not rolled back when a later round fails. Empty data is sent as a
// single empty round.
func (c *Coordinator) Write(ctx context.Context, path []byte, dataType protocol.DataType, elementCount uint16, data []byte) (int, error) {
	if c.maxChunk <= 0 || c.maxChunk > MaxChunk {
		return 0, errors.DataFormat("fragmented write: chunk size %d", c.maxChunk)
	}
	o := c.begin(metrics.OpWrite)
	remaining := data
	for {
		n := min(len(remaining), c.maxChunk)
		chunk := remaining[:n]
		_, err := o.round(ctx, protocol.ServiceWriteTagFragmented, path,
			protocol.WriteTagFragmentedPayload(dataType, elementCount, o.offset, chunk))
		if err != nil {
			return o.rounds, err
		}
		remaining = remaining[n:]
		o.advance(n)
		if len(remaining) == 0 {
			o.to(StateCompleted)
			return o.rounds, nil
		}
		o.to(StateContinuing)
	}
}
