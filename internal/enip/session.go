package enip

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tturner/eipcore/internal/cip/codec"
	"github.com/tturner/eipcore/internal/driver"
	"github.com/tturner/eipcore/internal/errors"
	"github.com/tturner/eipcore/internal/logging"
)

// ErrSessionClosed is returned by a Session after Close or after an I/O
// failure left the stream in an unknown state.
var ErrSessionClosed = stderrors.New("enip: session closed")

// DefaultTimeout bounds dial and each exchange when the context has no
// deadline.
const DefaultTimeout = 5 * time.Second

// Driver builds Sessions over TCP. Endpoints are "host" or "host:port".
type Driver struct {
	// Timeout bounds each exchange. Zero means DefaultTimeout.
	Timeout time.Duration
	// DialTimeout bounds dialing. Zero means Timeout.
	DialTimeout time.Duration
	// Logger receives connect events and frame dumps. Nil is silent.
	Logger *logging.Logger
	// Dial overrides the TCP dialer.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

var _ driver.Driver[string] = (*Driver)(nil)

// BuildService dials the endpoint and registers a session.
func (d *Driver) BuildService(ctx context.Context, endpoint string) (driver.Service, error) {
	addr, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	timeout := d.timeout()
	log := d.Logger.With("enip")

	dial := d.Dial
	if dial == nil {
		dialTimeout := d.DialTimeout
		if dialTimeout <= 0 {
			dialTimeout = timeout
		}
		dialer := net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
		dial = dialer.DialContext
	}
	log.Verbose("connecting to %s", addr)
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		log.Error("connect %s: %v", addr, err)
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	s, err := Open(ctx, conn, timeout, log)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("register session with %s: %w", addr, err)
	}
	log.Info("session 0x%08X registered with %s", s.Handle(), addr)
	return s, nil
}

func (d *Driver) timeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Timeout
}

// ParseEndpoint normalizes "host" or "host:port" to a dialable address,
// filling in DefaultPort.
func ParseEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("empty endpoint")
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		host = strings.TrimSuffix(strings.TrimPrefix(endpoint, "["), "]")
		port = strconv.Itoa(DefaultPort)
	}
	if host == "" {
		return "", fmt.Errorf("endpoint %q: missing host", endpoint)
	}
	if n, err := strconv.ParseUint(port, 10, 16); err != nil || n == 0 {
		return "", fmt.Errorf("endpoint %q: invalid port %q", endpoint, port)
	}
	return net.JoinHostPort(host, port), nil
}

// Session is a registered encapsulation session. Exchanges are serialized.
type Session struct {
	mu      sync.Mutex
	conn    net.Conn
	handle  uint32
	timeout time.Duration
	log     *logging.Logger
	nextCtx uint64
	closed  bool
}

var _ driver.Service = (*Session)(nil)

// Open registers a session on an established connection.
func Open(ctx context.Context, conn net.Conn, timeout time.Duration, log *logging.Logger) (*Session, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &Session{conn: conn, timeout: timeout, log: log}

	data := codec.AppendUint16(nil, ProtocolVersion)
	data = codec.AppendUint16(data, 0)

	s.mu.Lock()
	defer s.mu.Unlock()
	reply, err := s.transact(ctx, CommandRegisterSession, data)
	if err != nil {
		return nil, err
	}
	if reply.SessionID == 0 {
		return nil, errors.Protocol("RegisterSession returned session handle 0")
	}
	s.handle = reply.SessionID
	return s, nil
}

// Handle returns the session handle assigned by the target.
func (s *Session) Handle() uint32 {
	return s.handle
}

// SendRRData carries an unconnected Common Packet.
func (s *Session) SendRRData(ctx context.Context, cpf []byte) ([]byte, error) {
	return s.send(ctx, CommandSendRRData, cpf)
}

// SendUnitData carries a connected Common Packet. The connected address
// item is added to the request and checked and removed on the reply.
func (s *Session) SendUnitData(ctx context.Context, ids driver.ConnIDs, cpf []byte) ([]byte, error) {
	request, err := AddressConnected(ids.Originator, cpf)
	if err != nil {
		return nil, err
	}
	reply, err := s.send(ctx, CommandSendUnitData, request)
	if err != nil {
		return nil, err
	}
	return StripConnected(ids.Target, reply)
}

func (s *Session) send(ctx context.Context, command uint16, cpf []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply, err := s.transact(ctx, command, commandData(cpf))
	if err != nil {
		return nil, err
	}
	return parseCommandData(reply.Data)
}

// NOP sends a NOP frame. Targets do not reply to it.
func (s *Session) NOP(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	stop := s.arm(ctx)
	defer stop()
	_, err := s.write(Encapsulation{Command: CommandNOP, SessionID: s.handle})
	return s.fail(ctx, err)
}

// Close unregisters the session and closes the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.handle != 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
		if _, err := s.write(Encapsulation{Command: CommandUnregisterSession, SessionID: s.handle}); err != nil {
			s.log.Debug("UnregisterSession: %v", err)
		}
	}
	return s.conn.Close()
}

// transact writes one request and reads its reply. Caller holds mu.
func (s *Session) transact(ctx context.Context, command uint16, data []byte) (Encapsulation, error) {
	if s.closed {
		return Encapsulation{}, ErrSessionClosed
	}
	stop := s.arm(ctx)
	defer stop()

	sent, err := s.write(Encapsulation{Command: command, SessionID: s.handle, Data: data})
	if err != nil {
		return Encapsulation{}, s.fail(ctx, err)
	}
	reply, err := s.read()
	if err != nil {
		return Encapsulation{}, s.fail(ctx, err)
	}

	if reply.Command != command {
		s.closed = true
		return Encapsulation{}, errors.Protocol("encapsulation reply command 0x%04X, sent 0x%04X", reply.Command, command)
	}
	if reply.SenderContext != sent.SenderContext {
		s.closed = true
		return Encapsulation{}, errors.Protocol("encapsulation reply sender context % X, sent % X", reply.SenderContext, sent.SenderContext)
	}
	if s.handle != 0 && reply.SessionID != s.handle {
		s.closed = true
		return Encapsulation{}, errors.Protocol("encapsulation reply session 0x%08X, want 0x%08X", reply.SessionID, s.handle)
	}
	if reply.Status != StatusSuccess {
		return Encapsulation{}, &StatusError{Command: command, Status: reply.Status}
	}
	return reply, nil
}

// arm applies the exchange deadline and aborts blocked I/O when ctx ends.
func (s *Session) arm(ctx context.Context) func() {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stop()
		_ = s.conn.SetDeadline(time.Time{})
	}
}

// fail poisons the session after an I/O error; a half-sent or half-read
// frame cannot be recovered.
func (s *Session) fail(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	s.closed = true
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("enip exchange aborted: %w (%v)", ctxErr, err)
	}
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return fmt.Errorf("enip exchange aborted: %w (%v)", context.DeadlineExceeded, err)
	}
	return err
}

func (s *Session) write(e Encapsulation) (Encapsulation, error) {
	s.nextCtx++
	codec.PutUint64(e.SenderContext[:], s.nextCtx)
	frame, err := e.Encode()
	if err != nil {
		return e, err
	}
	s.log.LogHex(fmt.Sprintf("TX 0x%04X", e.Command), frame)
	if _, err := s.conn.Write(frame); err != nil {
		return e, fmt.Errorf("write encapsulation: %w", err)
	}
	return e, nil
}

func (s *Session) read() (Encapsulation, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		return Encapsulation{}, fmt.Errorf("read encapsulation header: %w", err)
	}
	e, length, err := DecodeHeader(header)
	if err != nil {
		return Encapsulation{}, err
	}
	if length > MaxPayload {
		return Encapsulation{}, errors.DataFormat("encapsulation: excessive payload length %d", length)
	}
	e.Data = make([]byte, length)
	if _, err := io.ReadFull(s.conn, e.Data); err != nil {
		return Encapsulation{}, fmt.Errorf("read encapsulation data: %w", err)
	}
	if s.log.Enabled(logging.LogLevelDebug) {
		s.log.LogHex(fmt.Sprintf("RX 0x%04X", e.Command), append(header, e.Data...))
	}
	return e, nil
}
