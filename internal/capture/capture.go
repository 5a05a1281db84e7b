// Package capture mirrors the frames a Service exchanges into a pcap file
// as synthetic Ethernet/IPv4/TCP traffic on port 44818, so a run can be
// inspected in Wireshark.
package capture

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/tturner/eipcore/internal/driver"
	"github.com/tturner/eipcore/internal/enip"
)

var (
	clientIP  = []byte{192, 168, 100, 10}
	targetIP  = []byte{192, 168, 100, 20}
	clientMAC = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	targetMAC = []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x02}
)

const firstClientPort = 50000

// Recorder writes packets to one pcap stream. It is safe for concurrent
// use by several Services; each Service gets its own TCP flow.
type Recorder struct {
	mu       sync.Mutex
	w        *pcapgo.Writer
	closer   io.Closer
	nextPort uint16
	err      error
	now      func() time.Time
}

// NewRecorder writes the pcap file header to w.
func NewRecorder(w io.Writer) (*Recorder, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Recorder{w: pw, nextPort: firstClientPort, now: time.Now}, nil
}

// Create opens path for writing and returns a Recorder over it.
func Create(path string) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap: %w", err)
	}
	r, err := NewRecorder(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file
	return r, nil
}

// Close closes the underlying file, if the Recorder opened one, and
// reports the first write error.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.err
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
		r.closer = nil
	}
	return err
}

// Err returns the first write error. Recording failures never fail an
// exchange.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// fail keeps the first recording error.
func (r *Recorder) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

type flow struct {
	port      uint16
	clientSeq uint32
	targetSeq uint32
}

func (r *Recorder) newFlow() *flow {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := &flow{port: r.nextPort, clientSeq: 1, targetSeq: 1}
	r.nextPort++
	return f
}

// record writes payload as one TCP segment of f. fromTarget selects the
// direction.
func (r *Recorder) record(f *flow, fromTarget bool, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}

	srcIP, dstIP := clientIP, targetIP
	srcMAC, dstMAC := clientMAC, targetMAC
	srcPort, dstPort := f.port, uint16(enip.DefaultPort)
	seq, ack := f.clientSeq, f.targetSeq
	if fromTarget {
		srcIP, dstIP = dstIP, srcIP
		srcMAC, dstMAC = dstMAC, srcMAC
		srcPort, dstPort = dstPort, srcPort
		seq, ack = f.targetSeq, f.clientSeq
		f.targetSeq += uint32(len(payload))
	} else {
		f.clientSeq += uint32(len(payload))
	}

	ethernet := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		ACK:     true,
		PSH:     true,
		Seq:     seq,
		Ack:     ack,
		Window:  65535,
	}
	_ = tcp.SetNetworkLayerForChecksum(ip)

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buffer, opts, ethernet, ip, tcp, gopacket.Payload(payload)); err != nil {
		r.err = fmt.Errorf("serialize packet: %w", err)
		return
	}
	data := buffer.Bytes()
	if err := r.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     r.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}, data); err != nil {
		r.err = fmt.Errorf("write packet: %w", err)
	}
}

// Wrap returns a Driver whose Services record every request and reply
// into r before handing them on.
func Wrap[E any](d driver.Driver[E], r *Recorder) driver.Driver[E] {
	return driver.Func[E](func(ctx context.Context, endpoint E) (driver.Service, error) {
		svc, err := d.BuildService(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		return &service{inner: svc, rec: r, flow: r.newFlow()}, nil
	})
}

type service struct {
	inner driver.Service
	rec   *Recorder
	flow  *flow
}

func (s *service) SendRRData(ctx context.Context, cpf []byte) ([]byte, error) {
	return s.exchange(ctx, enip.CommandSendRRData, cpf, s.inner.SendRRData)
}

// SendUnitData records the packets with the connected address item the
// session adds on the wire. Replies are recorded under ids.Target.
func (s *service) SendUnitData(ctx context.Context, ids driver.ConnIDs, cpf []byte) ([]byte, error) {
	s.connected(false, ids.Originator, cpf)
	reply, err := s.inner.SendUnitData(ctx, ids, cpf)
	if err == nil {
		s.connected(true, ids.Target, reply)
	}
	return reply, err
}

func (s *service) Close() error {
	return s.inner.Close()
}

// handle returns the inner session handle when the Service exposes one.
func (s *service) handle() uint32 {
	if h, ok := s.inner.(interface{ Handle() uint32 }); ok {
		return h.Handle()
	}
	return 0
}

func (s *service) exchange(ctx context.Context, command uint16, cpf []byte, send func(context.Context, []byte) ([]byte, error)) ([]byte, error) {
	s.frame(command, false, cpf)
	reply, err := send(ctx, cpf)
	if err == nil {
		s.frame(command, true, reply)
	}
	return reply, err
}

func (s *service) connected(fromTarget bool, connID uint32, cpf []byte) {
	wire, err := enip.AddressConnected(connID, cpf)
	if err != nil {
		s.rec.fail(err)
		return
	}
	s.frame(enip.CommandSendUnitData, fromTarget, wire)
}

func (s *service) frame(command uint16, fromTarget bool, cpf []byte) {
	frame, err := enip.Frame(command, s.handle(), cpf)
	if err != nil {
		s.rec.fail(err)
		return
	}
	s.rec.record(s.flow, fromTarget, frame)
}
