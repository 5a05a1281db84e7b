package capture

import (
	"bytes"
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/tturner/eipcore/internal/driver"
	"github.com/tturner/eipcore/internal/enip"
)

type echoService struct {
	handle uint32
	fail   error
	closed bool
}

func (e *echoService) SendRRData(_ context.Context, cpf []byte) ([]byte, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	return append([]byte{0xEE}, cpf...), nil
}

// SendUnitData echoes the connected packet unchanged.
func (e *echoService) SendUnitData(_ context.Context, _ driver.ConnIDs, cpf []byte) ([]byte, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	return cpf, nil
}

func (e *echoService) Close() error {
	e.closed = true
	return nil
}

func (e *echoService) Handle() uint32 { return e.handle }

func echoDriver(svc *echoService) driver.Driver[string] {
	return driver.Func[string](func(context.Context, string) (driver.Service, error) {
		return svc, nil
	})
}

type segment struct {
	srcPort, dstPort uint16
	seq              uint32
	frame            enip.Encapsulation
}

func readSegments(t *testing.T, data []byte) []segment {
	t.Helper()
	r, err := pcapgo.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("pcap reader: %v", err)
	}
	if r.LinkType() != layers.LinkTypeEthernet {
		t.Fatalf("link type = %v", r.LinkType())
	}
	var out []segment
	for {
		raw, _, err := r.ReadPacketData()
		if err != nil {
			break
		}
		packet := gopacket.NewPacket(raw, layers.LayerTypeEthernet, gopacket.Default)
		tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP)
		if !ok {
			t.Fatalf("packet without TCP layer: %v", packet)
		}
		frame, err := enip.Decode(tcp.Payload)
		if err != nil {
			t.Fatalf("decode encapsulation: %v", err)
		}
		out = append(out, segment{uint16(tcp.SrcPort), uint16(tcp.DstPort), tcp.Seq, frame})
	}
	return out
}

func TestWrapRecordsExchanges(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.now = func() time.Time { return time.Unix(1700000000, 0) }

	inner := &echoService{handle: 0x0badf00d}
	svc, err := Wrap(echoDriver(inner), rec).BuildService(context.Background(), "plc")
	if err != nil {
		t.Fatalf("BuildService: %v", err)
	}
	if _, err := svc.SendRRData(context.Background(), []byte{1, 2}); err != nil {
		t.Fatalf("SendRRData: %v", err)
	}
	connected := []byte{0x01, 0x00, 0xB1, 0x00, 0x01, 0x00, 0x07}
	ids := driver.ConnIDs{Originator: 0x01020304, Target: 0x0A0B0C0D}
	if _, err := svc.SendUnitData(context.Background(), ids, connected); err != nil {
		t.Fatalf("SendUnitData: %v", err)
	}
	if err := svc.Close(); err != nil || !inner.closed {
		t.Fatalf("Close: %v (closed %v)", err, inner.closed)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Recorder.Close: %v", err)
	}

	segs := readSegments(t, buf.Bytes())
	if len(segs) != 4 {
		t.Fatalf("segments = %d, want 4", len(segs))
	}
	want := []struct {
		command uint16
		toPLC   bool
		cpf     []byte
	}{
		{enip.CommandSendRRData, true, []byte{1, 2}},
		{enip.CommandSendRRData, false, []byte{0xEE, 1, 2}},
		{enip.CommandSendUnitData, true, []byte{
			0x02, 0x00, 0xA1, 0x00, 0x04, 0x00, 0x04, 0x03, 0x02, 0x01, 0xB1, 0x00, 0x01, 0x00, 0x07,
		}},
		{enip.CommandSendUnitData, false, []byte{
			0x02, 0x00, 0xA1, 0x00, 0x04, 0x00, 0x0D, 0x0C, 0x0B, 0x0A, 0xB1, 0x00, 0x01, 0x00, 0x07,
		}},
	}
	for i, w := range want {
		s := segs[i]
		if s.frame.Command != w.command || s.frame.SessionID != 0x0badf00d {
			t.Errorf("segment %d frame = %+v", i, s.frame)
		}
		if !bytes.Equal(s.frame.Data[6:], w.cpf) {
			t.Errorf("segment %d cpf = % X, want % X", i, s.frame.Data[6:], w.cpf)
		}
		port := s.srcPort
		if w.toPLC {
			port = s.dstPort
		}
		if port != enip.DefaultPort {
			t.Errorf("segment %d ports %d -> %d", i, s.srcPort, s.dstPort)
		}
	}
	// Sequence numbers advance by the bytes each side sent.
	if segs[2].seq != segs[0].seq+uint32(enip.HeaderSize+6+2) {
		t.Errorf("client seq %d then %d", segs[0].seq, segs[2].seq)
	}
}

func TestWrapSkipsFailedReplies(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	boom := stderrors.New("reset by peer")
	svc, _ := Wrap(echoDriver(&echoService{fail: boom}), rec).BuildService(context.Background(), "plc")
	if _, err := svc.SendRRData(context.Background(), []byte{1}); !stderrors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if segs := readSegments(t, buf.Bytes()); len(segs) != 1 {
		t.Fatalf("segments = %d, want only the request", len(segs))
	}
}

func TestWrapRecordsUnaddressablePacket(t *testing.T) {
	var buf bytes.Buffer
	rec, _ := NewRecorder(&buf)
	svc, _ := Wrap(echoDriver(&echoService{}), rec).BuildService(context.Background(), "plc")
	if _, err := svc.SendUnitData(context.Background(), driver.ConnIDs{Originator: 1}, []byte{0x05}); err != nil {
		t.Fatalf("SendUnitData: %v", err)
	}
	if rec.Err() == nil {
		t.Fatal("malformed connected packet should leave a recorder error")
	}
}

func TestWrapSeparatesFlows(t *testing.T) {
	var buf bytes.Buffer
	rec, _ := NewRecorder(&buf)
	d := Wrap(echoDriver(&echoService{}), rec)
	for range 2 {
		svc, err := d.BuildService(context.Background(), "plc")
		if err != nil {
			t.Fatalf("BuildService: %v", err)
		}
		if _, err := svc.SendRRData(context.Background(), nil); err != nil {
			t.Fatalf("SendRRData: %v", err)
		}
	}
	segs := readSegments(t, buf.Bytes())
	if segs[0].srcPort == segs[2].srcPort {
		t.Fatalf("both services used client port %d", segs[0].srcPort)
	}
}

func TestWrapBuildError(t *testing.T) {
	var buf bytes.Buffer
	rec, _ := NewRecorder(&buf)
	boom := stderrors.New("no route")
	d := Wrap(driver.Func[string](func(context.Context, string) (driver.Service, error) { return nil, boom }), rec)
	if _, err := d.BuildService(context.Background(), "plc"); !stderrors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.pcap")
	rec, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := Create(filepath.Join(t.TempDir(), "missing", "run.pcap")); err == nil {
		t.Fatal("Create in a missing directory should fail")
	}
}
