package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinels matched with errors.Is against the concrete error types below.
var (
	ErrDataFormat     = stderrors.New("data format error")
	ErrProtocol       = stderrors.New("protocol error")
	ErrServiceStatus  = stderrors.New("service status error")
	ErrDesynchronized = stderrors.New("connection desynchronized")
	ErrClosed         = stderrors.New("connection closed")
)

// FormatError reports a malformed envelope or frame.
type FormatError struct {
	Msg string
}

// DataFormat builds a FormatError.
func DataFormat(format string, args ...any) error {
	return &FormatError{Msg: fmt.Sprintf(format, args...)}
}

func (e *FormatError) Error() string {
	return "data format: " + e.Msg
}

func (e *FormatError) Is(target error) bool {
	return target == ErrDataFormat
}

// ProtocolError reports a reply that is well formed but does not belong to
// the request that was sent.
type ProtocolError struct {
	Msg    string
	Desync bool
}

// Protocol builds a ProtocolError.
func Protocol(format string, args ...any) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// Desync builds a ProtocolError that also matches ErrDesynchronized.
func Desync(format string, args ...any) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...), Desync: true}
}

func (e *ProtocolError) Error() string {
	return "protocol: " + e.Msg
}

func (e *ProtocolError) Is(target error) bool {
	if target == ErrProtocol {
		return true
	}
	return e.Desync && target == ErrDesynchronized
}

// StatusError carries a nonzero general status returned by the device.
// Vendor-specific codes are not mapped to messages.
type StatusError struct {
	Service  uint8
	General  uint8
	Extended []uint16
}

func (e *StatusError) Error() string {
	if len(e.Extended) == 0 {
		return fmt.Sprintf("service 0x%02X failed: status 0x%02X", e.Service, e.General)
	}
	return fmt.Sprintf("service 0x%02X failed: status 0x%02X, extended %04X", e.Service, e.General, e.Extended)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrServiceStatus
}

// IsDataFormat reports whether err is, or wraps, a data-format error.
func IsDataFormat(err error) bool {
	return stderrors.Is(err, ErrDataFormat)
}

// IsProtocol reports whether err is, or wraps, a protocol error.
func IsProtocol(err error) bool {
	return stderrors.Is(err, ErrProtocol)
}

// AsStatus extracts the device status carried by err, if any.
func AsStatus(err error) (*StatusError, bool) {
	var st *StatusError
	if stderrors.As(err, &st) {
		return st, true
	}
	return nil, false
}
