// Package rclient assembles the dictionary, transport, and
// retransmission controller into the single façade an application
// embeds, generalizing the teacher's pattern of a config-driven
// constructor plus a small set of blocking request methods (seen
// across RadiusClientSocket, PeerSocket, and the router's
// RouteRadiusRequest) into one object scoped to a single upstream
// RADIUS server.
package rclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/jfortiz/radiuscore/rdict"
	"github.com/jfortiz/radiuscore/retransmit"
	"github.com/jfortiz/radiuscore/rpacket"
	"github.com/jfortiz/radiuscore/transport"
)

// Kind selects which of the three wire variants a Client speaks.
type Kind int

const (
	KindDatagram Kind = iota
	KindStream
	KindSecureStream
)

// Config is the builder struct a caller populates before calling
// Build, the same shape as the teacher's configuration structs: every
// field has a documented default applied once, at Build(), rather than
// scattered through the request path.
type Config struct {
	// Endpoint is "host:port" for the upstream RADIUS server.
	Endpoint string

	// Secret is the shared secret configured on that server.
	Secret string

	// Kind selects Datagram, Stream, or SecureStream transport.
	Kind Kind

	// TLSConfig is required when Kind is KindSecureStream, ignored
	// otherwise.
	TLSConfig *tls.Config

	// Dictionary resolves attribute names and types. Defaults to
	// rdict.Default.
	Dictionary rdict.Dictionary

	// Strategy governs attempt count and per-attempt timeout.
	// Defaults to retransmit.DefaultStrategy.
	Strategy retransmit.Strategy

	// ConnectTimeout, ReconnectDelay, AutoReconnectEnabled,
	// MaxReconnectAttempts, and KeepAliveInterval are forwarded to the
	// underlying transport.Config.
	ConnectTimeout       time.Duration
	ReconnectDelay       time.Duration
	AutoReconnectEnabled bool
	MaxReconnectAttempts int
	KeepAliveInterval    time.Duration
}

func (c *Config) applyDefaults() {
	if c.Dictionary == nil {
		c.Dictionary = rdict.Default
	}
	if c.Strategy == nil {
		c.Strategy = retransmit.DefaultStrategy
	}
}

// Client is a bound connection to one RADIUS server, ready to send
// requests through its retransmission controller.
type Client struct {
	cfg        Config
	transport  transport.Transport
	controller *retransmit.Controller
}

// Build validates cfg, constructs the selected transport, and wraps it
// in a retransmission Controller. The returned Client is not yet
// connected; call Connect before Send.
func Build(cfg Config) (*Client, error) {
	cfg.applyDefaults()

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("rclient: Endpoint is required")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("rclient: Secret is required")
	}

	tcfg := transport.Config{
		Endpoint:             cfg.Endpoint,
		Secret:               []byte(cfg.Secret),
		ConnectTimeout:       cfg.ConnectTimeout,
		ReconnectDelay:       cfg.ReconnectDelay,
		AutoReconnectEnabled: cfg.AutoReconnectEnabled,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		KeepAliveInterval:    cfg.KeepAliveInterval,
	}

	var t transport.Transport
	switch cfg.Kind {
	case KindDatagram:
		t = transport.NewDatagram(tcfg)
	case KindStream:
		t = transport.NewStream(tcfg)
	case KindSecureStream:
		if cfg.TLSConfig == nil {
			return nil, fmt.Errorf("rclient: TLSConfig is required for KindSecureStream")
		}
		t = transport.NewSecureStream(tcfg, cfg.TLSConfig)
	default:
		return nil, fmt.Errorf("rclient: unknown transport kind %d", cfg.Kind)
	}

	return &Client{
		cfg:       cfg,
		transport: t,
		controller: &retransmit.Controller{
			Transport: t,
			Strategy:  cfg.Strategy,
			IDs:       retransmit.NewIdentifierAllocator(),
		},
	}, nil
}

// Connect establishes the underlying transport connection. For a
// datagram transport it binds the local socket (there is no handshake);
// for the stream-based transports it dials (and, for SecureStream,
// completes the TLS handshake).
func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Close tears the transport down, failing any requests still in
// flight.
func (c *Client) Close() error {
	return c.transport.Close()
}

// IsConnected reports whether the transport is currently usable.
func (c *Client) IsConnected() bool {
	return c.transport.State() == transport.Connected
}

// Reconnect forces the underlying transport to re-dial, for callers
// that need explicit lifecycle control over a stream transport. A
// no-op for a datagram transport, which has no connection to re-dial.
func (c *Client) Reconnect(ctx context.Context) error {
	return c.transport.Reconnect(ctx)
}

// Send runs req through the configured retransmission strategy and
// returns the matching response, or an error once retries or the
// request's total deadline are exhausted.
func (c *Client) Send(ctx context.Context, req *rpacket.Packet) (*rpacket.Packet, error) {
	return c.controller.Send(ctx, req, c.cfg.Dictionary)
}

// SendAsync runs Send in its own goroutine and reports the result on
// the returned channel, for callers that want to fire off several
// requests concurrently without managing goroutines themselves.
func (c *Client) SendAsync(ctx context.Context, req *rpacket.Packet) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		resp, err := c.Send(ctx, req)
		out <- Result{Packet: resp, Err: err}
		close(out)
	}()
	return out
}

// Result is the outcome delivered on a SendAsync channel.
type Result struct {
	Packet *rpacket.Packet
	Err    error
}

// Dictionary returns the dictionary this client was built with.
func (c *Client) Dictionary() rdict.Dictionary {
	return c.cfg.Dictionary
}
