package client

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tturner/eipcore/internal/cip/epath"
	"github.com/tturner/eipcore/internal/cip/protocol"
	"github.com/tturner/eipcore/internal/cpf"
	"github.com/tturner/eipcore/internal/driver"
	"github.com/tturner/eipcore/internal/errors"
	"github.com/tturner/eipcore/internal/metrics"
)

var tagPath = []byte{0x03, 0x91, 0x03, 'T', 'a', 'g', 0x00}

func TestClientSendEnvelope(t *testing.T) {
	svc := &fakeService{rr: unconnectedDevice(protocol.Status{}, []byte{0xC4, 0x00, 0x2A, 0x00, 0x00, 0x00})}
	var builds atomic.Int32
	c := New(fakeDriver(svc, &builds), "plc")

	reply, err := c.Send(context.Background(), protocol.ServiceReadTag, tagPath, []byte{0x01, 0x00})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.Service != 0xCC || reply.Status.General != 0 || reply.HasMore() {
		t.Fatalf("reply = %+v", reply)
	}
	if !bytes.Equal(reply.Data, []byte{0xC4, 0x00, 0x2A, 0x00, 0x00, 0x00}) {
		t.Fatalf("Data = % X", reply.Data)
	}

	req, err := cpf.Decode(svc.lastRequest())
	if err != nil {
		t.Fatalf("request is not a common packet: %v", err)
	}
	if req.Len() != 2 || !req.Item(0).IsNullAddr() || req.Item(1).TypeCode != cpf.TypeUnconnectedData {
		t.Fatalf("request items = %+v", req.Items())
	}
	want := append(append([]byte{0x4C}, tagPath...), 0x01, 0x00)
	if !bytes.Equal(req.Item(1).Data, want) {
		t.Fatalf("request body = % X, want % X", req.Item(1).Data, want)
	}
}

func TestClientCarriesDeviceStatus(t *testing.T) {
	svc := &fakeService{rr: unconnectedDevice(protocol.Status{General: 0x04, Extended: []uint16{0x0000}}, nil)}
	var builds atomic.Int32
	c := New(fakeDriver(svc, &builds), "plc")

	reply, err := c.Send(context.Background(), protocol.ServiceReadTag, tagPath, nil)
	if err != nil {
		t.Fatalf("Send should not fail on a device status: %v", err)
	}
	if reply.HasMore() || reply.Status.General != 0x04 || len(reply.Status.Extended) != 1 {
		t.Fatalf("reply = %+v", reply)
	}

	_, _, err = c.ReadTag(context.Background(), tagPath, 1)
	st, ok := errors.AsStatus(err)
	if !ok || st.General != 0x04 || st.Service != 0x4C {
		t.Fatalf("ReadTag err = %v, want status 0x04", err)
	}
}

func TestClientRejectsMalformedReplies(t *testing.T) {
	good := protocol.EncodeReply(protocol.ServiceReadTag, protocol.Status{}, nil)
	tests := []struct {
		name  string
		reply []byte
		check func(error) bool
	}{
		{"not a packet", []byte{0x02}, errors.IsDataFormat},
		{"trailing byte", append(mustEncode(cpf.New(cpf.NullAddress(), cpf.UnconnectedData(good))), 0x00), errors.IsDataFormat},
		{"one item", mustEncode(cpf.New(cpf.UnconnectedData(good))), errors.IsDataFormat},
		{"three items", mustEncode(cpf.New(cpf.NullAddress(), cpf.UnconnectedData(good), cpf.NullAddress())), errors.IsDataFormat},
		{"address not null", mustEncode(cpf.New(cpf.ConnectedAddress(1), cpf.UnconnectedData(good))), errors.IsDataFormat},
		{"data item type", mustEncode(cpf.New(cpf.NullAddress(), cpf.ConnectedData(good))), errors.IsDataFormat},
		{"service mismatch", mustEncode(cpf.New(cpf.NullAddress(), cpf.UnconnectedData(
			protocol.EncodeReply(protocol.ServiceWriteTag, protocol.Status{}, nil)))), errors.IsProtocol},
		{"short body", mustEncode(cpf.New(cpf.NullAddress(), cpf.UnconnectedData([]byte{0xCC, 0x00}))), errors.IsProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{rr: func([]byte) ([]byte, error) { return tt.reply, nil }}
			var builds atomic.Int32
			c := New(fakeDriver(svc, &builds), "plc")
			if _, err := c.Send(context.Background(), protocol.ServiceReadTag, tagPath, nil); !tt.check(err) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestClientBuildsServiceLazilyAndResets(t *testing.T) {
	failNext := true
	svc := &fakeService{}
	ok := unconnectedDevice(protocol.Status{}, nil)
	svc.rr = func(req []byte) ([]byte, error) {
		if failNext {
			failNext = false
			return nil, stderrors.New("connection reset by peer")
		}
		return ok(req)
	}
	var builds atomic.Int32
	c := New(fakeDriver(svc, &builds), "plc")
	if builds.Load() != 0 {
		t.Fatal("New should not build a service")
	}

	if _, err := c.Send(context.Background(), protocol.ServiceWriteTag, tagPath, nil); err == nil {
		t.Fatal("transport error should surface")
	}
	if svc.closed != 1 {
		t.Fatalf("service closed %d times after transport error, want 1", svc.closed)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.Send(context.Background(), protocol.ServiceWriteTag, tagPath, nil); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	if builds.Load() != 2 {
		t.Fatalf("builds = %d, want 2", builds.Load())
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if svc.closed != 2 {
		t.Fatalf("closed = %d, want 2", svc.closed)
	}
}

func TestClientBuildError(t *testing.T) {
	refused := stderrors.New("connection refused")
	d := driver.Func[string](func(ctx context.Context, endpoint string) (driver.Service, error) {
		return nil, refused
	})
	c := New[string](d, "plc")
	if _, err := c.Send(context.Background(), protocol.ServiceReadTag, tagPath, nil); !stderrors.Is(err, refused) {
		t.Fatalf("err = %v, want %v", err, refused)
	}
}

func TestClientOneExchangeInFlight(t *testing.T) {
	svc := &fakeService{rr: unconnectedDevice(protocol.Status{}, nil), delay: 5 * time.Millisecond}
	var builds atomic.Int32
	c := New(fakeDriver(svc, &builds), "plc")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Send(context.Background(), protocol.ServiceReadTag, tagPath, nil); err != nil {
				t.Errorf("Send: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := svc.maxInflight.Load(); got != 1 {
		t.Fatalf("max in flight = %d, want 1", got)
	}
	if builds.Load() != 1 {
		t.Fatalf("builds = %d, want 1", builds.Load())
	}
}

func TestClientCancelledWhileWaiting(t *testing.T) {
	svc := &fakeService{rr: unconnectedDevice(protocol.Status{}, nil), delay: 200 * time.Millisecond}
	var builds atomic.Int32
	c := New(fakeDriver(svc, &builds), "plc")

	go c.Send(context.Background(), protocol.ServiceReadTag, tagPath, nil)
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Send(ctx, protocol.ServiceReadTag, tagPath, nil); !stderrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestClientConvenienceRequests(t *testing.T) {
	svc := &fakeService{rr: unconnectedDevice(protocol.Status{}, []byte{0x01, 0x00})}
	var builds atomic.Int32
	c := New(fakeDriver(svc, &builds), "plc")
	ctx := context.Background()

	if err := c.ReadModifyWrite(ctx, tagPath, []byte{0x01, 0x00}, []byte{0xFF, 0xFF}); err != nil {
		t.Fatalf("ReadModifyWrite: %v", err)
	}
	body := cpfBody(t, svc.lastRequest())
	want := append(append([]byte{0x4E}, tagPath...), 0x02, 0x00, 0x01, 0x00, 0xFF, 0xFF)
	if !bytes.Equal(body, want) {
		t.Fatalf("RMW body = % X, want % X", body, want)
	}

	if err := c.WriteTag(ctx, tagPath, protocol.TypeINT, 1, []byte{0x05, 0x00}); err != nil {
		t.Fatalf("WriteTag: %v", err)
	}
	body = cpfBody(t, svc.lastRequest())
	want = append(append([]byte{0x4D}, tagPath...), 0xC3, 0x00, 0x01, 0x00, 0x05, 0x00)
	if !bytes.Equal(body, want) {
		t.Fatalf("WriteTag body = % X, want % X", body, want)
	}

	data, err := c.GetAttributeSingle(ctx, 0x01, 0x01, 0x07)
	if err != nil {
		t.Fatalf("GetAttributeSingle: %v", err)
	}
	if !bytes.Equal(data, []byte{0x01, 0x00}) {
		t.Fatalf("attribute data = % X", data)
	}
	body = cpfBody(t, svc.lastRequest())
	want = append([]byte{0x0E}, epath.Logical(1, 1, 7)...)
	if !bytes.Equal(body, want) {
		t.Fatalf("GetAttributeSingle body = % X, want % X", body, want)
	}
}

func TestClientRecordsMetrics(t *testing.T) {
	svc := &fakeService{rr: unconnectedDevice(protocol.Status{General: 0x05}, nil)}
	var builds atomic.Int32
	m := metrics.New()
	c := New(fakeDriver(svc, &builds), "plc", WithMetrics(m))
	c.Send(context.Background(), protocol.ServiceReadTag, tagPath, nil)

	count, err := testutil.GatherAndCount(m.Registry(), "eipcore_exchanges_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("exchange series = %d, want 1", count)
	}
}

func cpfBody(t *testing.T, raw []byte) []byte {
	t.Helper()
	p, err := cpf.Decode(raw)
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	return p.Item(p.Len() - 1).Data
}
