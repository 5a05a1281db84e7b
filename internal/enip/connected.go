package enip

import (
	"github.com/tturner/eipcore/internal/cip/codec"
	"github.com/tturner/eipcore/internal/cpf"
	"github.com/tturner/eipcore/internal/errors"
)

// AddressConnected puts a connected address item carrying connID in front
// of the items in packet, giving the wire form of a SendUnitData packet.
func AddressConnected(connID uint32, packet []byte) ([]byte, error) {
	inner, err := cpf.Decode(packet)
	if err != nil {
		return nil, err
	}
	p := cpf.New(cpf.ConnectedAddress(connID))
	for _, item := range inner.Items() {
		p.Push(item)
	}
	return p.Encode()
}

// StripConnected removes the leading connected address item from a
// SendUnitData reply. A nonzero connID must match the id the target sent.
func StripConnected(connID uint32, packet []byte) ([]byte, error) {
	p, err := cpf.Decode(packet)
	if err != nil {
		return nil, err
	}
	if p.Len() == 0 {
		return nil, errors.DataFormat("connected reply: no address item")
	}
	addr := p.Remove(0)
	if err := addr.EnsureTypeCode(cpf.TypeConnectedAddress); err != nil {
		return nil, err
	}
	got, err := codec.NewReader(addr.Data).Uint32("connection id")
	if err != nil || len(addr.Data) != 4 {
		return nil, errors.DataFormat("connected address item: %d bytes, want 4", len(addr.Data))
	}
	if connID != 0 && got != connID {
		return nil, errors.Desync("reply for connection 0x%08X, want 0x%08X", got, connID)
	}
	return p.Encode()
}
