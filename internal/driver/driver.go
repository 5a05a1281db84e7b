// Package driver defines the seam between the messaging core and the
// transport that carries encoded Common Packets.
package driver

import "context"

// Service exchanges one framed Common Packet at a time. Implementations do
// not interleave exchanges; callers serialize access.
type Service interface {
	// SendRRData carries an unconnected request and returns the reply packet.
	SendRRData(ctx context.Context, cpf []byte) ([]byte, error)
	// SendUnitData carries a connected request and returns the reply packet.
	// Both packets hold only the connected data item; the transport frames
	// the connection ids.
	SendUnitData(ctx context.Context, ids ConnIDs, cpf []byte) ([]byte, error)
	// Close releases the underlying session.
	Close() error
}

// ConnIDs is the connection id pair assigned by a Forward_Open.
type ConnIDs struct {
	// Originator is the O->T id, sent with every request.
	Originator uint32
	// Target is the T->O id the target sends with every reply. Zero
	// accepts any id.
	Target uint32
}

// Driver produces a ready Service for an endpoint. Any handshake the
// transport needs is complete when BuildService returns.
type Driver[E any] interface {
	BuildService(ctx context.Context, endpoint E) (Service, error)
}

// Func adapts a function to the Driver interface.
type Func[E any] func(ctx context.Context, endpoint E) (Service, error)

// BuildService calls f.
func (f Func[E]) BuildService(ctx context.Context, endpoint E) (Service, error) {
	return f(ctx, endpoint)
}
