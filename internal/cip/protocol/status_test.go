package protocol

import (
	"testing"

	"github.com/tturner/eipcore/internal/errors"
)

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  Status
		hasMore bool
		isError bool
	}{
		{"success", Status{General: 0x00}, false, false},
		{"partial transfer", Status{General: 0x06}, true, false},
		{"path segment error", Status{General: 0x04}, false, true},
		{"extended", Status{General: 0xFF, Extended: []uint16{0x2105}}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.HasMore(); got != tt.hasMore {
				t.Errorf("HasMore() = %v, want %v", got, tt.hasMore)
			}
			if got := tt.status.IsError(); got != tt.isError {
				t.Errorf("IsError() = %v, want %v", got, tt.isError)
			}
			reply := MessageReply[[]byte]{Service: ServiceReadTag.Reply(), Status: tt.status}
			if reply.HasMore() != tt.hasMore {
				t.Errorf("MessageReply.HasMore() = %v, want %v", reply.HasMore(), tt.hasMore)
			}
			err := reply.Err()
			if (err != nil) != tt.isError {
				t.Fatalf("Err() = %v, want error %v", err, tt.isError)
			}
			if err == nil {
				return
			}
			st, ok := errors.AsStatus(err)
			if !ok {
				t.Fatalf("Err() = %T, want *StatusError", err)
			}
			if st.General != tt.status.General || st.Service != 0x4C {
				t.Errorf("StatusError = %+v", st)
			}
		})
	}
}

func TestStatusString(t *testing.T) {
	if got := (Status{General: 0x06}).String(); got != "0x06" {
		t.Errorf("String() = %q", got)
	}
	if got := (Status{General: 0xFF, Extended: []uint16{0x2105}}).String(); got != "0xFF [2105]" {
		t.Errorf("String() = %q", got)
	}
}
