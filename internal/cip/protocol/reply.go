package protocol

import (
	"github.com/tturner/eipcore/internal/cip/codec"
	"github.com/tturner/eipcore/internal/errors"
)

// MessageReply is a decoded reply whose payload type is chosen by the caller.
type MessageReply[T any] struct {
	Service ServiceCode
	Status  Status
	Data    T
}

// HasMore delegates to the status.
func (r MessageReply[T]) HasMore() bool {
	return r.Status.HasMore()
}

// Err returns the device error carried by the reply, if any.
func (r MessageReply[T]) Err() error {
	return r.Status.Err(r.Service)
}

// MapReply converts the payload of r, keeping service and status.
func MapReply[T, U any](r MessageReply[T], fn func(T) (U, error)) (MessageReply[U], error) {
	data, err := fn(r.Data)
	if err != nil {
		return MessageReply[U]{Service: r.Service, Status: r.Status}, err
	}
	return MessageReply[U]{Service: r.Service, Status: r.Status, Data: data}, nil
}

// DecodeReply parses a reply body:
//
//	reply_service u8, reserved u8, general u8, ext_count u8, ext u16*count, payload
//
// The payload aliases body.
func DecodeReply(body []byte) (MessageReply[[]byte], error) {
	r := codec.NewReader(body)
	if r.Len() < 4 {
		return MessageReply[[]byte]{}, errors.Protocol("reply body: %d bytes, need at least 4", len(body))
	}
	service, _ := r.Uint8("reply service")
	_, _ = r.Uint8("reserved")
	general, _ := r.Uint8("general status")
	extCount, _ := r.Uint8("extended status size")

	reply := MessageReply[[]byte]{
		Service: ServiceCode(service),
		Status:  Status{General: general},
	}
	if extCount > 0 {
		if r.Len() < int(extCount)*2 {
			return MessageReply[[]byte]{}, errors.Protocol("reply body: %d extended status words, have %d bytes", extCount, r.Len())
		}
		reply.Status.Extended = make([]uint16, extCount)
		for i := range reply.Status.Extended {
			reply.Status.Extended[i], _ = r.Uint16("extended status")
		}
	}
	reply.Data = r.Rest()
	return reply, nil
}

// DecodeReplyFor parses body and checks it answers service.
func DecodeReplyFor(service ServiceCode, body []byte) (MessageReply[[]byte], error) {
	reply, err := DecodeReply(body)
	if err != nil {
		return reply, err
	}
	if reply.Service != service.Reply() {
		return reply, errors.Protocol("reply service 0x%02X does not match request 0x%02X", uint8(reply.Service), uint8(service))
	}
	return reply, nil
}

// EncodeReply builds a reply body. It is the device side of DecodeReply.
func EncodeReply(service ServiceCode, status Status, payload []byte) []byte {
	out := make([]byte, 0, 4+2*len(status.Extended)+len(payload))
	out = append(out, byte(service.Reply()), 0x00, status.General, byte(len(status.Extended)))
	for _, word := range status.Extended {
		out = codec.AppendUint16(out, word)
	}
	return append(out, payload...)
}
