package protocol

import (
	"github.com/tturner/eipcore/internal/cip/codec"
	"github.com/tturner/eipcore/internal/errors"
)

// ReadTagPayload encodes a Read_Tag request payload.
func ReadTagPayload(elementCount uint16) []byte {
	if elementCount == 0 {
		elementCount = 1
	}
	return codec.AppendUint16(make([]byte, 0, 2), elementCount)
}

// ReadTagFragmentedPayload encodes a Read_Tag_Fragmented request payload.
func ReadTagFragmentedPayload(elementCount uint16, byteOffset uint32) []byte {
	if elementCount == 0 {
		elementCount = 1
	}
	payload := make([]byte, 6)
	codec.PutUint16(payload[0:2], elementCount)
	codec.PutUint32(payload[2:6], byteOffset)
	return payload
}

// WriteTagPayload encodes a Write_Tag request payload.
func WriteTagPayload(dataType DataType, elementCount uint16, data []byte) []byte {
	if elementCount == 0 {
		elementCount = 1
	}
	payload := make([]byte, 4+len(data))
	codec.PutUint16(payload[0:2], uint16(dataType))
	codec.PutUint16(payload[2:4], elementCount)
	copy(payload[4:], data)
	return payload
}

// WriteTagFragmentedPayload encodes a Write_Tag_Fragmented request payload.
func WriteTagFragmentedPayload(dataType DataType, elementCount uint16, byteOffset uint32, data []byte) []byte {
	if elementCount == 0 {
		elementCount = 1
	}
	payload := make([]byte, 8+len(data))
	codec.PutUint16(payload[0:2], uint16(dataType))
	codec.PutUint16(payload[2:4], elementCount)
	codec.PutUint32(payload[4:8], byteOffset)
	copy(payload[8:], data)
	return payload
}

// ReadModifyWritePayload encodes a Read_Modify_Write_Tag request payload.
// Bits set in orMask are turned on, bits cleared in andMask are turned off.
func ReadModifyWritePayload(orMask, andMask []byte) ([]byte, error) {
	if len(orMask) != len(andMask) {
		return nil, errors.DataFormat("read-modify-write: OR mask is %d bytes, AND mask is %d", len(orMask), len(andMask))
	}
	switch len(orMask) {
	case 1, 2, 4, 8, 12:
	default:
		return nil, errors.DataFormat("read-modify-write: unsupported mask size %d", len(orMask))
	}
	payload := codec.AppendUint16(make([]byte, 0, 2+2*len(orMask)), uint16(len(orMask)))
	payload = append(payload, orMask...)
	return append(payload, andMask...), nil
}

// SplitTypedData splits a Read_Tag style reply payload into its leading
// data type and the value bytes.
func SplitTypedData(payload []byte) (DataType, []byte, error) {
	r := codec.NewReader(payload)
	typ, err := r.Uint16("tag data type")
	if err != nil {
		return 0, nil, err
	}
	dataType := DataType(typ)
	if dataType == TypeStructHandle {
		if _, err := r.Uint16("structure handle"); err != nil {
			return 0, nil, err
		}
	}
	return dataType, r.Rest(), nil
}
