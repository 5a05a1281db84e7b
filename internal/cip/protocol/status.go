package protocol

import (
	"fmt"

	"github.com/tturner/eipcore/internal/errors"
)

// General status codes with meaning to the messaging core.
const (
	StatusSuccess            uint8 = 0x00
	StatusConnectionFailure  uint8 = 0x01
	StatusPathSegmentError   uint8 = 0x04
	StatusPathUnknown        uint8 = 0x05
	StatusPartialTransfer    uint8 = 0x06
	StatusServiceUnsupported uint8 = 0x08
	StatusNotEnoughData      uint8 = 0x13
	StatusTooMuchData        uint8 = 0x15
	StatusGeneralError       uint8 = 0x1E
	StatusExtended           uint8 = 0xFF
)

// Status is the two-part reply status.
type Status struct {
	General  uint8
	Extended []uint16
}

// HasMore reports a partial transfer: more data is available.
func (s Status) HasMore() bool {
	return s.General == StatusPartialTransfer
}

// IsSuccess reports general status 0.
func (s Status) IsSuccess() bool {
	return s.General == StatusSuccess
}

// IsError reports a device/service error: anything other than success or
// a partial transfer.
func (s Status) IsError() bool {
	return !s.IsSuccess() && !s.HasMore()
}

// Err returns a StatusError for service when the status is a device error.
func (s Status) Err(service ServiceCode) error {
	if !s.IsError() {
		return nil
	}
	return &errors.StatusError{
		Service:  uint8(service &^ ReplyMask),
		General:  s.General,
		Extended: s.Extended,
	}
}

func (s Status) String() string {
	if len(s.Extended) == 0 {
		return fmt.Sprintf("0x%02X", s.General)
	}
	return fmt.Sprintf("0x%02X %04X", s.General, s.Extended)
}
