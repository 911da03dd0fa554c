// Package transport implements the three wire variants a client core can
// speak: connectionless datagram (UDP), persistent stream (TCP), and
// TLS-wrapped secure stream (RadSec, RFC 6614). All three share the
// actor-model shape of the teacher's radiusclient/radiusClientSocket.go
// and diampeer/diampeer.go: a single goroutine owns all mutable state
// and is driven exclusively through an internal event channel, so the
// exported methods never touch the pending-request map or write to the
// socket directly.
package transport

import (
	"context"
	"time"

	"github.com/jfortiz/radiuscore/rdict"
	"github.com/jfortiz/radiuscore/rpacket"
)

// State is a transport's connection lifecycle state, the same five
// states the teacher's PeerSocket cycles through.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the capability the retransmission controller and client
// façade send requests through. Datagram and Stream (plain TCP from
// NewStream, TLS-wrapped from NewSecureStream) implement it; callers that need the redesign flagged in spec.md §9
// (picking the transport kind without a type switch) should depend only
// on this interface.
type Transport interface {
	// Send transmits req with the given identifier and blocks for a
	// matching response until ctx is done. A datagram transport sends
	// once per call; a stream transport multiplexes concurrent Send
	// calls over one connection.
	Send(ctx context.Context, identifier byte, req *rpacket.Packet, dict rdict.Dictionary) (*rpacket.Packet, error)

	// Connect establishes the underlying connection. A datagram
	// transport resolves the peer address and binds its local socket
	// (UDP has no handshake); stream transports dial and, for
	// SecureStream, complete the TLS handshake. Send fails until
	// Connect has succeeded.
	Connect(ctx context.Context) error

	// Close tears the transport down, waking any pending Send calls
	// with rerrors.ErrTransportClosed.
	Close() error

	// Reconnect forces the connection to be torn down and re-dialed,
	// regardless of AutoReconnectEnabled, for callers that need
	// explicit lifecycle control. A no-op on a datagram transport,
	// since UDP has no connection to re-dial.
	Reconnect(ctx context.Context) error

	// State reports the current connection lifecycle state.
	State() State

	// Endpoint returns the remote address this transport was built
	// for, for logging and metrics labels.
	Endpoint() string
}

// Config is the shared dial/reconnect configuration for all three
// transport kinds, generalizing the constants scattered across the
// teacher's PeerSocket and RadiusClientSocket constructors into one
// struct.
type Config struct {
	// Endpoint is "host:port" for the remote RADIUS server.
	Endpoint string

	// Secret is the shared secret used for authenticator computation
	// and attribute obfuscation on this endpoint.
	Secret []byte

	// ConnectTimeout bounds dial (and, for SecureStream, TLS
	// handshake) time. Zero means 5 seconds.
	ConnectTimeout time.Duration

	// ReconnectDelay is the pause between reconnect attempts on a
	// stream transport after the connection is lost. Zero means 1
	// second.
	ReconnectDelay time.Duration

	// AutoReconnectEnabled governs whether a stream transport
	// re-establishes the connection after it is lost. False (the zero
	// value) means a lost connection fails all pending and future Send
	// calls with rerrors.ErrConnectionLost instead of redialing.
	AutoReconnectEnabled bool

	// MaxReconnectAttempts bounds consecutive reconnect attempts
	// before the transport gives up and reports
	// rerrors.ErrReconnectExceeded from later Send calls (requests
	// pending when the connection was lost fail with
	// rerrors.ErrConnectionLost). Zero means unlimited. Consulted on
	// every redial: after a lost connection when AutoReconnectEnabled,
	// and on an explicit Reconnect.
	MaxReconnectAttempts int

	// KeepAliveInterval, when non-zero, makes a stream transport send a
	// Status-Server request after this long without any traffic on an
	// otherwise idle connection. A probe that times out is treated as
	// rerrors.ErrConnectionLost. Zero disables the keep-alive task.
	KeepAliveInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 1 * time.Second
	}
}

const eventLoopCapacity = 100

// pendingRequest is the context kept for one in-flight Send call,
// mirroring the teacher's RequestContext.
type pendingRequest struct {
	identifier    byte
	authenticator [16]byte
	dict          rdict.Dictionary
	resultCh      chan sendResult
}

type sendResult struct {
	packet *rpacket.Packet
	err    error
}
