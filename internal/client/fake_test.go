package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tturner/eipcore/internal/cip/protocol"
	"github.com/tturner/eipcore/internal/cpf"
	"github.com/tturner/eipcore/internal/driver"
)

// fakeService plays a device behind a Service.
type fakeService struct {
	mu       sync.Mutex
	rr       func(req []byte) ([]byte, error)
	unit     func(req []byte) ([]byte, error)
	requests [][]byte
	ids      []driver.ConnIDs
	closed   int
	delay    time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (f *fakeService) exchange(ctx context.Context, handler func([]byte) ([]byte, error), req []byte) ([]byte, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		cur := f.maxInflight.Load()
		if n <= cur || f.maxInflight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.requests = append(f.requests, append([]byte(nil), req...))
	f.mu.Unlock()
	return handler(req)
}

func (f *fakeService) SendRRData(ctx context.Context, req []byte) ([]byte, error) {
	return f.exchange(ctx, f.rr, req)
}

func (f *fakeService) SendUnitData(ctx context.Context, ids driver.ConnIDs, req []byte) ([]byte, error) {
	f.mu.Lock()
	f.ids = append(f.ids, ids)
	f.mu.Unlock()
	return f.exchange(ctx, f.unit, req)
}

func (f *fakeService) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeService) lastRequest() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

// fakeDriver hands out svc and counts builds.
func fakeDriver(svc *fakeService, builds *atomic.Int32) driver.Driver[string] {
	return driver.Func[string](func(ctx context.Context, endpoint string) (driver.Service, error) {
		builds.Add(1)
		return svc, nil
	})
}

// unconnectedDevice answers every request with status and payload.
func unconnectedDevice(status protocol.Status, payload []byte) func([]byte) ([]byte, error) {
	return func(req []byte) ([]byte, error) {
		packet, err := cpf.Decode(req)
		if err != nil {
			return nil, err
		}
		service := protocol.ServiceCode(packet.Item(1).Data[0])
		return cpf.New(cpf.NullAddress(), cpf.UnconnectedData(protocol.EncodeReply(service, status, payload))).Encode()
	}
}

func mustEncode(p *cpf.Packet) []byte {
	out, err := p.Encode()
	if err != nil {
		panic(err)
	}
	return out
}
