package cpf

import (
	"io"

	"github.com/tturner/eipcore/internal/cip/codec"
	"github.com/tturner/eipcore/internal/errors"
)

// inlineItems covers the address/data pair plus the occasional sockaddr items.
const inlineItems = 4

// itemHeaderSize is the type code and length preceding each item's data.
const itemHeaderSize = 4

// Packet is an ordered collection of items. It owns its items; decoded items
// alias the buffer they were decoded from.
type Packet struct {
	items []Item
}

// New builds a packet holding items in order.
func New(items ...Item) *Packet {
	p := &Packet{items: make([]Item, 0, max(inlineItems, len(items)))}
	p.items = append(p.items, items...)
	return p
}

// Push appends an item.
func (p *Packet) Push(item Item) {
	p.items = append(p.items, item)
}

// Remove deletes and returns the item at idx. It panics if idx is out of
// range; callers only remove items they have already seen.
func (p *Packet) Remove(idx int) Item {
	if idx < 0 || idx >= len(p.items) {
		panic("cpf: Remove index out of range")
	}
	item := p.items[idx]
	p.items = append(p.items[:idx], p.items[idx+1:]...)
	return item
}

// Len returns the number of items.
func (p *Packet) Len() int {
	return len(p.items)
}

// Item returns the item at idx.
func (p *Packet) Item(idx int) Item {
	return p.items[idx]
}

// Items returns the items in wire order. The slice must not be modified.
func (p *Packet) Items() []Item {
	return p.items
}

// EncodedLen returns the number of bytes Encode produces.
func (p *Packet) EncodedLen() int {
	n := 2
	for _, item := range p.items {
		n += 4 + len(item.Data)
	}
	return n
}

// Encode serializes the packet.
func (p *Packet) Encode() ([]byte, error) {
	return p.AppendTo(make([]byte, 0, p.EncodedLen()))
}

// AppendTo appends the encoded packet to dst.
func (p *Packet) AppendTo(dst []byte) ([]byte, error) {
	if len(p.items) > 0xFFFF {
		return dst, errors.DataFormat("common packet: %d items exceed the item count field", len(p.items))
	}
	dst = codec.AppendUint16(dst, uint16(len(p.items)))
	for i, item := range p.items {
		if len(item.Data) > MaxItemData {
			return dst, errors.DataFormat("common packet item %d: %d bytes exceed the length field", i, len(item.Data))
		}
		dst = codec.AppendUint16(dst, item.TypeCode)
		dst = codec.AppendUint16(dst, uint16(len(item.Data)))
		dst = append(dst, item.Data...)
	}
	return dst, nil
}

// Decode parses buf as a complete packet. Exactly the declared number of
// items must be present and nothing may follow the last one.
func Decode(buf []byte) (*Packet, error) {
	s, err := NewStream(buf)
	if err != nil {
		return nil, err
	}
	// The count is untrusted; size by what the buffer could hold.
	p := &Packet{items: make([]Item, 0, max(inlineItems, min(s.Len(), s.r.Len()/itemHeaderSize)))}
	for {
		item, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		p.items = append(p.items, item)
	}
	if n := s.r.Len(); n != 0 {
		return nil, errors.DataFormat("common packet: %d trailing bytes after %d items", n, s.Len())
	}
	return p, nil
}
