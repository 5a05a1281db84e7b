package cpf

// Common Packet Format items per ODVA EtherNet/IP, vol. 2, section 2-6.

import (
	"github.com/tturner/eipcore/internal/errors"
)

// Item type codes. Only the null address and the two data items are
// interpreted by the messaging layer; the rest are carried opaquely.
const (
	TypeNullAddress          uint16 = 0x0000
	TypeListIdentityResponse uint16 = 0x000C
	TypeConnectedAddress     uint16 = 0x00A1
	TypeConnectedData        uint16 = 0x00B1
	TypeUnconnectedData      uint16 = 0x00B2
	TypeListServicesResponse uint16 = 0x0100
	TypeSockAddrInfoOtoT     uint16 = 0x8000
	TypeSockAddrInfoTtoO     uint16 = 0x8001
	TypeSequencedAddress     uint16 = 0x8002
)

// MaxItemData is the largest payload an item length field can describe.
const MaxItemData = 0xFFFF

// Item is a single typed, length-delimited blob.
type Item struct {
	TypeCode uint16
	Data     []byte
}

// NewItem builds an item with an arbitrary type code.
func NewItem(typeCode uint16, data []byte) Item {
	return Item{TypeCode: typeCode, Data: data}
}

// NullAddress is the address item used for unconnected messages.
func NullAddress() Item {
	return Item{TypeCode: TypeNullAddress}
}

// UnconnectedData wraps an explicit message request or reply body.
func UnconnectedData(data []byte) Item {
	return Item{TypeCode: TypeUnconnectedData, Data: data}
}

// ConnectedData wraps a sequenced connected message.
func ConnectedData(data []byte) Item {
	return Item{TypeCode: TypeConnectedData, Data: data}
}

// ConnectedAddress carries the connection id of a connected message.
func ConnectedAddress(connID uint32) Item {
	data := []byte{byte(connID), byte(connID >> 8), byte(connID >> 16), byte(connID >> 24)}
	return Item{TypeCode: TypeConnectedAddress, Data: data}
}

// IsNullAddr reports whether the item is exactly {type 0, no data}.
func (i Item) IsNullAddr() bool {
	return i.TypeCode == TypeNullAddress && len(i.Data) == 0
}

// EnsureTypeCode fails with a data-format error unless the item has the
// expected type code.
func (i Item) EnsureTypeCode(expected uint16) error {
	if i.TypeCode != expected {
		return errors.DataFormat("common packet item: type code 0x%04X, want 0x%04X", i.TypeCode, expected)
	}
	return nil
}
