// Package enip carries Common Packets over EtherNet/IP encapsulation on TCP.
package enip

import (
	"fmt"

	"github.com/tturner/eipcore/internal/cip/codec"
	"github.com/tturner/eipcore/internal/errors"
)

// Encapsulation commands.
const (
	CommandNOP               uint16 = 0x0000
	CommandListServices      uint16 = 0x0004
	CommandListIdentity      uint16 = 0x0063
	CommandRegisterSession   uint16 = 0x0065
	CommandUnregisterSession uint16 = 0x0066
	CommandSendRRData        uint16 = 0x006F
	CommandSendUnitData      uint16 = 0x0070
)

const (
	// HeaderSize is the fixed encapsulation header length.
	HeaderSize = 24
	// MaxPayload is the largest data field a reply may declare.
	MaxPayload = 65511
	// DefaultPort is the registered EtherNet/IP explicit messaging port.
	DefaultPort = 44818
	// ProtocolVersion is sent in RegisterSession.
	ProtocolVersion uint16 = 1
)

// StatusSuccess is the only encapsulation status a valid reply carries.
const StatusSuccess uint32 = 0x00000000

// Encapsulation is one encapsulation frame.
type Encapsulation struct {
	Command       uint16
	SessionID     uint32
	Status        uint32
	SenderContext [8]byte
	Options       uint32
	Data          []byte
}

// Encode serializes the frame.
func (e Encapsulation) Encode() ([]byte, error) {
	if len(e.Data) > 0xFFFF {
		return nil, errors.DataFormat("encapsulation: %d data bytes exceed the length field", len(e.Data))
	}
	out := make([]byte, 0, HeaderSize+len(e.Data))
	out = codec.AppendUint16(out, e.Command)
	out = codec.AppendUint16(out, uint16(len(e.Data)))
	out = codec.AppendUint32(out, e.SessionID)
	out = codec.AppendUint32(out, e.Status)
	out = append(out, e.SenderContext[:]...)
	out = codec.AppendUint32(out, e.Options)
	return append(out, e.Data...), nil
}

// DecodeHeader parses the fixed header and returns the declared data length.
func DecodeHeader(header []byte) (Encapsulation, int, error) {
	r := codec.NewReader(header)
	if r.Len() < HeaderSize {
		return Encapsulation{}, 0, errors.DataFormat("encapsulation header: %d bytes, need %d", len(header), HeaderSize)
	}
	var e Encapsulation
	e.Command, _ = r.Uint16("command")
	length, _ := r.Uint16("length")
	e.SessionID, _ = r.Uint32("session handle")
	e.Status, _ = r.Uint32("status")
	senderContext, _ := r.Bytes("sender context", 8)
	copy(e.SenderContext[:], senderContext)
	e.Options, _ = r.Uint32("options")
	return e, int(length), nil
}

// Decode parses a complete frame. The data field must match the declared
// length exactly.
func Decode(frame []byte) (Encapsulation, error) {
	e, length, err := DecodeHeader(frame)
	if err != nil {
		return Encapsulation{}, err
	}
	if len(frame)-HeaderSize != length {
		return Encapsulation{}, errors.DataFormat("encapsulation: declared %d data bytes, have %d", length, len(frame)-HeaderSize)
	}
	e.Data = frame[HeaderSize:]
	return e, nil
}

// commandData wraps a Common Packet for SendRRData/SendUnitData: interface
// handle 0 (CIP) and timeout 0.
func commandData(cpf []byte) []byte {
	out := make([]byte, 6, 6+len(cpf))
	return append(out, cpf...)
}

// Frame encodes a SendRRData or SendUnitData frame carrying cpf.
func Frame(command uint16, sessionID uint32, cpf []byte) ([]byte, error) {
	return Encapsulation{Command: command, SessionID: sessionID, Data: commandData(cpf)}.Encode()
}

// parseCommandData strips the interface handle and timeout from a reply.
func parseCommandData(data []byte) ([]byte, error) {
	r := codec.NewReader(data)
	if _, err := r.Uint32("interface handle"); err != nil {
		return nil, err
	}
	if _, err := r.Uint16("timeout"); err != nil {
		return nil, err
	}
	return r.Rest(), nil
}

// StatusError reports a nonzero encapsulation status.
type StatusError struct {
	Command uint16
	Status  uint32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("encapsulation command 0x%04X returned status 0x%08X (%s)", e.Command, e.Status, statusText(e.Status))
}

func statusText(status uint32) string {
	switch status {
	case 0x0001:
		return "invalid or unsupported command"
	case 0x0002:
		return "insufficient memory"
	case 0x0003:
		return "incorrect data"
	case 0x0064:
		return "invalid session handle"
	case 0x0065:
		return "invalid length"
	case 0x0069:
		return "unsupported protocol version"
	default:
		return "unknown"
	}
}
