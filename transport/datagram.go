package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jfortiz/radiuscore/rdict"
	"github.com/jfortiz/radiuscore/rerrors"
	"github.com/jfortiz/radiuscore/rlog"
	"github.com/jfortiz/radiuscore/rmetrics"
	"github.com/jfortiz/radiuscore/rpacket"
)

// sendMsg, cancelMsg, closeMsg, and responseMsg are the eventLoop's
// message types, the same shape as the teacher's RadiusRequestMsg,
// CancelRequestMsg, CloseCommandMsg, and RadiusResponseMsg.
type sendMsg struct {
	req  pendingRequest
	wire []byte
}

type cancelMsg struct {
	identifier byte
}

type closeMsg struct{}

type responseMsg struct {
	wire []byte
}

// Datagram is a connectionless UDP transport, generalized from the
// teacher's radiusclient/radiusClientSocket.go: one goroutine owns the
// pending-request map and is fed exclusively through eventLoopCh, a
// second goroutine only reads from the socket and forwards frames in.
type Datagram struct {
	cfg  Config
	conn net.PacketConn
	addr net.Addr

	eventLoopCh chan interface{}
	readDoneCh  chan struct{}

	mu    sync.RWMutex
	state State

	pending map[byte]pendingRequest
}

// NewDatagram builds a Datagram transport. Connect binds it to an
// ephemeral local port and must be called before Send.
func NewDatagram(cfg Config) *Datagram {
	cfg.applyDefaults()
	return &Datagram{
		cfg:         cfg,
		eventLoopCh: make(chan interface{}, eventLoopCapacity),
		readDoneCh:  make(chan struct{}),
		pending:     make(map[byte]pendingRequest),
	}
}

func (d *Datagram) Endpoint() string { return d.cfg.Endpoint }

func (d *Datagram) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Datagram) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Datagram) Connect(ctx context.Context) error {
	d.setState(Connecting)

	addr, err := net.ResolveUDPAddr("udp", d.cfg.Endpoint)
	if err != nil {
		d.setState(Disconnected)
		return fmt.Errorf("%w: %s", rerrors.ErrConnectTimeout, err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		d.setState(Disconnected)
		return fmt.Errorf("%w: %s", rerrors.ErrConnectTimeout, err)
	}

	d.conn = conn
	d.addr = addr
	d.setState(Connected)

	go d.eventLoop()
	go d.readLoop()

	return nil
}

func (d *Datagram) Send(ctx context.Context, identifier byte, req *rpacket.Packet, dict rdict.Dictionary) (*rpacket.Packet, error) {
	if d.State() != Connected {
		return nil, rerrors.ErrTransportClosed
	}

	wire, err := rpacket.EncodeRequest(req, identifier, d.cfg.Secret, dict)
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
	case d.eventLoopCh <- msg:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-resultCh:
		return res.packet, res.err
	case <-ctx.Done():
		d.eventLoopCh <- cancelMsg{identifier: identifier}
		return nil, ctx.Err()
	}
}

// Reconnect is a no-op for a datagram transport: UDP has no connection
// to re-dial.
func (d *Datagram) Reconnect(ctx context.Context) error { return nil }

func (d *Datagram) Close() error {
	d.setState(Closing)
	select {
	case d.eventLoopCh <- closeMsg{}:
	default:
	}
	if d.conn != nil {
		_ = d.conn.Close()
	}
	d.setState(Closed)
	return nil
}

func (d *Datagram) eventLoop() {
	for in := range d.eventLoopCh {
		switch v := in.(type) {
		case closeMsg:
			for id, p := range d.pending {
				p.resultCh <- sendResult{err: rerrors.ErrTransportClosed}
				delete(d.pending, id)
			}
			return

		case sendMsg:
			if _, busy := d.pending[v.req.identifier]; busy {
				v.req.resultCh <- sendResult{err: rerrors.ErrDuplicateIdentifier}
				continue
			}
			if _, err := d.conn.WriteTo(v.wire, d.addr); err != nil {
				v.req.resultCh <- sendResult{err: fmt.Errorf("%w: %s", rerrors.ErrConnectionLost, err)}
				continue
			}
			rmetrics.RecordRequest(d.cfg.Endpoint, fmt.Sprint(v.wire[0]))
			d.pending[v.req.identifier] = v.req

		case cancelMsg:
			delete(d.pending, v.identifier)

		case responseMsg:
			if len(v.wire) < 2 {
				continue
			}
			identifier := v.wire[1]
			preq, found := d.pending[identifier]
			if !found {
				rlog.L().Debugw("unsolicited response", "endpoint", d.cfg.Endpoint, "identifier", identifier)
				rmetrics.RecordDropped(d.cfg.Endpoint)
				continue
			}
			resp, err := rpacket.DecodeResponse(v.wire, identifier, preq.authenticator, d.cfg.Secret, preq.dict)
			delete(d.pending, identifier)
			if err != nil {
				rmetrics.RecordDecodeError(d.cfg.Endpoint)
				preq.resultCh <- sendResult{err: err}
				continue
			}
			rmetrics.RecordResponse(d.cfg.Endpoint, resp.Code.String())
			preq.resultCh <- sendResult{packet: resp}
		}
	}
}

// readLoop only forwards datagrams whose source address matches the
// configured peer, per spec's "datagrams from other sources are
// dropped" contract; a connected UDP socket would enforce this for us,
// but this package binds unconnected so it can rebind on Connect.
func (d *Datagram) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, raddr, err := d.conn.ReadFrom(buf)
		if err != nil {
			close(d.readDoneCh)
			return
		}
		if raddr.String() != d.addr.String() {
			rlog.L().Debugw("datagram from unexpected source", "endpoint", d.cfg.Endpoint, "source", raddr.String())
			rmetrics.RecordDropped(d.cfg.Endpoint)
			continue
		}
		wire := make([]byte, n)
		copy(wire, buf[:n])

		select {
		case d.eventLoopCh <- responseMsg{wire: wire}:
		case <-time.After(time.Second):
		}
	}
}
