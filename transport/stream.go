package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jfortiz/radiuscore/rdict"
	"github.com/jfortiz/radiuscore/rerrors"
	"github.com/jfortiz/radiuscore/rlog"
	"github.com/jfortiz/radiuscore/rmetrics"
	"github.com/jfortiz/radiuscore/rpacket"
)

// dialFunc abstracts the difference between a plain TCP dial and a TLS
// dial, so Stream and SecureStream share one connection-lifecycle
// implementation, the way the teacher's diampeer.go drives both sides
// of a connection through one eventLoop regardless of who dialed.
type dialFunc func(ctx context.Context, addr string) (net.Conn, error)

// Stream is a persistent TCP transport, generalized from the
// connection-lifecycle shape of the teacher's diampeer/diampeer.go:
// Connecting/Connected/Closing/Closed states, a dedicated eventLoop
// goroutine owning the pending-request table, and a readLoop goroutine
// parsing frames off the wire.
type Stream struct {
	cfg  Config
	dial dialFunc

	mu           sync.RWMutex
	state        State
	conn         net.Conn
	generation   int
	lastActivity time.Time
	lastFatalErr error

	eventLoopCh chan interface{}
	stopCh      chan struct{}
	stopOnce    sync.Once

	pending map[byte]pendingRequest

	reconnectAttempts int
}

// NewStream builds a Stream transport that dials a plain TCP
// connection. Connect must be called before Send.
func NewStream(cfg Config) *Stream {
	cfg.applyDefaults()
	return &Stream{
		cfg:         cfg,
		dial:        tcpDial,
		eventLoopCh: make(chan interface{}, eventLoopCapacity),
		stopCh:      make(chan struct{}),
		pending:     make(map[byte]pendingRequest),
	}
}

// NewSecureStream builds a Stream transport that wraps the TCP
// connection in TLS before use (RadSec, RFC 6614 §2). tlsConfig should
// at minimum set ServerName or InsecureSkipVerify per the caller's
// trust model; this package applies no defaults to it.
func NewSecureStream(cfg Config, tlsConfig *tls.Config) *Stream {
	cfg.applyDefaults()
	return &Stream{
		cfg:         cfg,
		dial:        tlsDial(tlsConfig),
		eventLoopCh: make(chan interface{}, eventLoopCapacity),
		stopCh:      make(chan struct{}),
		pending:     make(map[byte]pendingRequest),
	}
}

func tcpDial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func tlsDial(tlsConfig *tls.Config) dialFunc {
	return func(ctx context.Context, addr string) (net.Conn, error) {
		d := tls.Dialer{Config: tlsConfig}
		return d.DialContext(ctx, "tcp", addr)
	}
}

func (s *Stream) Endpoint() string { return s.cfg.Endpoint }

func (s *Stream) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Stream) setState(v State) {
	s.mu.Lock()
	s.state = v
	s.mu.Unlock()
}

func (s *Stream) Connect(ctx context.Context) error {
	s.setState(Connecting)

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, err := s.dial(dialCtx, s.cfg.Endpoint)
	if err != nil {
		s.setState(Disconnected)
		return fmt.Errorf("%w: %s", rerrors.ErrConnectTimeout, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.reconnectAttempts = 0
	s.lastActivity = time.Now()
	s.generation++
	gen := s.generation
	s.mu.Unlock()
	s.setState(Connected)

	go s.eventLoop()
	go s.readLoop(conn, gen)
	go s.keepAliveLoop()

	return nil
}

func (s *Stream) fatalErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFatalErr
}

func (s *Stream) setFatalErr(err error) {
	s.mu.Lock()
	s.lastFatalErr = err
	s.mu.Unlock()
}

func (s *Stream) touchActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// currentGeneration reports whether gen still names the live
// connection, so a signal from a readLoop Reconnect already tore down
// is ignored instead of being applied to its replacement.
func (s *Stream) currentGeneration(gen int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return gen == s.generation
}

func (s *Stream) currentGen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Stream) Send(ctx context.Context, identifier byte, req *rpacket.Packet, dict rdict.Dictionary) (*rpacket.Packet, error) {
	if err := s.fatalErr(); err != nil {
		return nil, err
	}
	if s.State() != Connected {
		return nil, rerrors.ErrTransportClosed
	}

	wire, err := rpacket.EncodeRequest(req, identifier, s.cfg.Secret, dict)
	if err != nil {
		return nil, err
	}

	resultCh := make(chan sendResult, 1)
	msg := sendMsg{
		req: pendingRequest{
			identifier:    identifier,
			authenticator: req.Authenticator,
			dict:          dict,
			resultCh:      resultCh,
		},
		wire: wire,
	}

	select {
	case s.eventLoopCh <- msg:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-resultCh:
		return res.packet, res.err
	case <-ctx.Done():
		s.eventLoopCh <- cancelMsg{identifier: identifier}
		return nil, ctx.Err()
	}
}

func (s *Stream) Close() error {
	s.setState(Closing)
	s.stopOnce.Do(func() { close(s.stopCh) })
	select {
	case s.eventLoopCh <- closeMsg{}:
	default:
	}
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn != nil {
		_ = conn.Close()
	}
	s.setState(Closed)
	return nil
}

type connLostMsg struct {
	err error
	gen int
}

type reconnectMsg struct {
	resultCh chan error
}

// streamResponseMsg carries the generation of the connection a frame
// was read from, so a frame or error from a conn that Reconnect has
// already torn down doesn't get applied against its replacement.
type streamResponseMsg struct {
	wire []byte
	gen  int
}

// Reconnect forces the connection to be torn down and re-dialed,
// regardless of AutoReconnectEnabled, for callers that need explicit
// lifecycle control. In-flight requests fail with
// rerrors.ErrConnectionLost.
func (s *Stream) Reconnect(ctx context.Context) error {
	if state := s.State(); state == Closing || state == Closed {
		return rerrors.ErrTransportClosed
	}

	resultCh := make(chan error, 1)
	select {
	case s.eventLoopCh <- reconnectMsg{resultCh: resultCh}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) eventLoop() {
	for in := range s.eventLoopCh {
		switch v := in.(type) {
		case closeMsg:
			s.failAllPending(rerrors.ErrTransportClosed)
			return

		case connLostMsg:
			if !s.currentGeneration(v.gen) {
				continue
			}
			s.failAllPending(v.err)
			if s.State() == Closing || s.State() == Closed {
				return
			}
			if !s.cfg.AutoReconnectEnabled {
				s.setFatalErr(v.err)
				s.setState(Disconnected)
				return
			}
			if !s.reconnect() {
				s.setState(Disconnected)
				return
			}

		case reconnectMsg:
			s.failAllPending(rerrors.ErrConnectionLost)
			s.mu.Lock()
			conn := s.conn
			s.conn = nil
			s.generation++
			s.mu.Unlock()
			if conn != nil {
				_ = conn.Close()
			}
			if s.reconnect() {
				s.setFatalErr(nil)
				v.resultCh <- nil
			} else {
				v.resultCh <- s.fatalErr()
			}

		case sendMsg:
			if _, busy := s.pending[v.req.identifier]; busy {
				v.req.resultCh <- sendResult{err: rerrors.ErrDuplicateIdentifier}
				continue
			}
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				v.req.resultCh <- sendResult{err: rerrors.ErrTransportClosed}
				continue
			}
			framed := make([]byte, 4+len(v.wire))
			binary.BigEndian.PutUint32(framed, uint32(len(v.wire)))
			copy(framed[4:], v.wire)
			if _, err := conn.Write(framed); err != nil {
				v.req.resultCh <- sendResult{err: fmt.Errorf("%w: %s", rerrors.ErrConnectionLost, err)}
				continue
			}
			s.touchActivity()
			rmetrics.RecordRequest(s.cfg.Endpoint, fmt.Sprint(v.wire[0]))
			s.pending[v.req.identifier] = v.req

		case cancelMsg:
			delete(s.pending, v.identifier)

		case streamResponseMsg:
			if !s.currentGeneration(v.gen) {
				continue
			}
			s.touchActivity()
			if len(v.wire) < 2 {
				continue
			}
			identifier := v.wire[1]
			preq, found := s.pending[identifier]
			if !found {
				rlog.L().Debugw("unsolicited response", "endpoint", s.cfg.Endpoint, "identifier", identifier)
				rmetrics.RecordDropped(s.cfg.Endpoint)
				continue
			}
			resp, err := rpacket.DecodeResponse(v.wire, identifier, preq.authenticator, s.cfg.Secret, preq.dict)
			delete(s.pending, identifier)
			if err != nil {
				rmetrics.RecordDecodeError(s.cfg.Endpoint)
				preq.resultCh <- sendResult{err: err}
				continue
			}
			rmetrics.RecordResponse(s.cfg.Endpoint, resp.Code.String())
			preq.resultCh <- sendResult{packet: resp}
		}
	}
}

func (s *Stream) failAllPending(err error) {
	for id, p := range s.pending {
		p.resultCh <- sendResult{err: err}
		delete(s.pending, id)
	}
}

// reconnect retries the dial up to MaxReconnectAttempts times with
// ReconnectDelay between attempts. Returns false when the attempt
// budget is exhausted, having first recorded rerrors.ErrReconnectExceeded
// so subsequent Send calls report it instead of the generic
// ErrTransportClosed.
func (s *Stream) reconnect() bool {
	for {
		s.mu.Lock()
		s.reconnectAttempts++
		attempt := s.reconnectAttempts
		s.mu.Unlock()

		if s.cfg.MaxReconnectAttempts > 0 && attempt > s.cfg.MaxReconnectAttempts {
			s.setFatalErr(fmt.Errorf("%w: after %d attempts", rerrors.ErrReconnectExceeded, attempt-1))
			return false
		}

		rmetrics.RecordReconnect(s.cfg.Endpoint)
		time.Sleep(s.cfg.ReconnectDelay)

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
		conn, err := s.dial(ctx, s.cfg.Endpoint)
		cancel()
		if err != nil {
			rlog.L().Warnw("reconnect failed", "endpoint", s.cfg.Endpoint, "attempt", attempt, "error", err)
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.reconnectAttempts = 0
		s.lastActivity = time.Now()
		s.generation++
		gen := s.generation
		s.mu.Unlock()
		s.setState(Connected)
		go s.readLoop(conn, gen)
		return true
	}
}

// keepAliveLoop sends a Status-Server probe (RFC 5997) whenever
// KeepAliveInterval elapses with no other traffic on the connection,
// and routes a failed probe through the same connLostMsg path a
// read/write error takes. Runs until Close stops it via stopCh or until
// a probe fails; after a failed probe it returns and is not restarted
// when the connection is re-established.
func (s *Stream) keepAliveLoop() {
	if s.cfg.KeepAliveInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	var probeID byte
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.State() != Connected {
				continue
			}
			s.mu.RLock()
			idle := time.Since(s.lastActivity) >= s.cfg.KeepAliveInterval
			s.mu.RUnlock()
			if !idle {
				continue
			}

			probeID++
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
			_, err := s.Send(ctx, probeID, rpacket.New(rpacket.StatusServer), rdict.Default)
			cancel()
			if err != nil && !errors.Is(err, rerrors.ErrDuplicateIdentifier) {
				select {
				case s.eventLoopCh <- connLostMsg{err: fmt.Errorf("%w: keep-alive probe: %s", rerrors.ErrConnectionLost, err), gen: s.currentGen()}:
				default:
				}
				return
			}
		}
	}
}

// readLoop parses consecutive frames off conn: a 4-byte big-endian
// length prefix followed by exactly that many bytes of RADIUS PDU,
// per spec's stream framing. A zero or oversize prefix is a fatal
// session error.
func (s *Stream) readLoop(conn net.Conn, gen int) {
	r := bufio.NewReader(conn)
	prefix := make([]byte, 4)

	for {
		if _, err := io.ReadFull(r, prefix); err != nil {
			s.eventLoopCh <- connLostMsg{err: fmt.Errorf("%w: %s", rerrors.ErrConnectionLost, err), gen: gen}
			return
		}

		length := int(binary.BigEndian.Uint32(prefix))
		if length <= 0 || length > 4096 {
			s.eventLoopCh <- connLostMsg{err: fmt.Errorf("%w: bad frame length %d", rerrors.ErrConnectionLost, length), gen: gen}
			return
		}

		wire := make([]byte, length)
		if _, err := io.ReadFull(r, wire); err != nil {
			s.eventLoopCh <- connLostMsg{err: fmt.Errorf("%w: %s", rerrors.ErrConnectionLost, err), gen: gen}
			return
		}

		s.eventLoopCh <- streamResponseMsg{wire: wire, gen: gen}
	}
}
