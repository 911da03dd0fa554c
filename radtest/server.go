// Package radtest provides a minimal, configurable RADIUS server used
// as a test collaborator for the transport and rclient packages,
// generalizing the teacher's radiusserver/radius_server.go accept/
// decode/respond loop into something a test can script (accept,
// reject, delay, or tamper with responses) instead of wiring to a real
// upstream handler.
package radtest

import (
	"crypto/tls"
	"encoding/binary"
	"net"
	"time"

	"github.com/jfortiz/radiuscore/rdict"
	"github.com/jfortiz/radiuscore/rpacket"
)

// Behavior is the scripted response a Server gives to every request it
// receives.
type Behavior struct {
	// Accept selects Access-Accept when true, Access-Reject when
	// false, for Access-Request packets. Accounting-Request always
	// gets Accounting-Response regardless of this field.
	Accept bool

	// Delay pauses this long before replying, to exercise a client's
	// per-attempt timeout handling.
	Delay time.Duration

	// Drop, when true, silently discards the request instead of
	// replying at all.
	Drop bool

	// TamperAuthenticator flips a bit in the encoded response after
	// the authenticator is computed, to exercise a client's response
	// validation.
	TamperAuthenticator bool

	// ReplyAVPs are attached to every accepted response.
	ReplyAVPs []rpacket.AVP
}

// Server is a scriptable RADIUS responder bound to one UDP or TCP/TLS
// socket.
type Server struct {
	secret   []byte
	dict     rdict.Dictionary
	behavior Behavior

	pc       net.PacketConn
	listener net.Listener
	done     chan struct{}
}

// NewUDPServer starts a datagram server on an ephemeral loopback port.
func NewUDPServer(secret []byte, dict rdict.Dictionary, behavior Behavior) (*Server, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		return nil, err
	}
	s := &Server{secret: secret, dict: dict, behavior: behavior, pc: conn, done: make(chan struct{})}
	go s.udpLoop(conn)
	return s, nil
}

// NewTCPServer starts a stream server on an ephemeral loopback port.
func NewTCPServer(secret []byte, dict rdict.Dictionary, behavior Behavior) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{secret: secret, dict: dict, behavior: behavior, listener: ln, done: make(chan struct{})}
	go s.streamAcceptLoop(ln, nil)
	return s, nil
}

// NewTLSServer starts a RadSec server on an ephemeral loopback port
// using tlsConfig for the server side of the handshake.
func NewTLSServer(secret []byte, dict rdict.Dictionary, behavior Behavior, tlsConfig *tls.Config) (*Server, error) {
	ln, err := tls.Listen("tcp", "127.0.0.1:0", tlsConfig)
	if err != nil {
		return nil, err
	}
	s := &Server{secret: secret, dict: dict, behavior: behavior, listener: ln, done: make(chan struct{})}
	go s.streamAcceptLoop(ln, nil)
	return s, nil
}

// Addr returns the "host:port" a client should dial.
func (s *Server) Addr() string {
	if s.pc != nil {
		return s.pc.LocalAddr().String()
	}
	return s.listener.Addr().String()
}

// Close tears the server down.
func (s *Server) Close() {
	if s.pc != nil {
		_ = s.pc.Close()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *Server) udpLoop(conn *net.UDPConn) {
	buf := make([]byte, 4096)
	for {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			close(s.done)
			return
		}
		wire := append([]byte(nil), buf[:n]...)
		go func() {
			resp, ok := s.handle(wire)
			if !ok {
				return
			}
			_, _ = conn.WriteToUDP(resp, raddr)
		}()
	}
}

func (s *Server) streamAcceptLoop(ln net.Listener, _ interface{}) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			close(s.done)
			return
		}
		go s.streamConnLoop(conn)
	}
}

func (s *Server) streamConnLoop(conn net.Conn) {
	defer conn.Close()
	prefix := make([]byte, 4)
	for {
		if _, err := readFull(conn, prefix); err != nil {
			return
		}
		length := int(binary.BigEndian.Uint32(prefix))
		if length <= 0 || length > 4096 {
			return
		}
		wire := make([]byte, length)
		if _, err := readFull(conn, wire); err != nil {
			return
		}

		resp, ok := s.handle(wire)
		if !ok {
			continue
		}
		framed := make([]byte, 4+len(resp))
		binary.BigEndian.PutUint32(framed, uint32(len(resp)))
		copy(framed[4:], resp)
		if _, err := conn.Write(framed); err != nil {
			return
		}
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// handle decodes wire, applies the scripted Behavior, and returns the
// encoded response. The second return value is false when the
// behavior says to drop the request.
func (s *Server) handle(wire []byte) ([]byte, bool) {
	if s.behavior.Drop {
		return nil, false
	}
	if s.behavior.Delay > 0 {
		time.Sleep(s.behavior.Delay)
	}

	req, err := rpacket.DecodeRequest(wire, s.secret, s.dict)
	if err != nil {
		return nil, false
	}

	var code rpacket.Code
	switch req.Code {
	case rpacket.AccessRequest:
		if s.behavior.Accept {
			code = rpacket.AccessAccept
		} else {
			code = rpacket.AccessReject
		}
	case rpacket.AccountingRequest:
		code = rpacket.AccountingResponse
	default:
		code = rpacket.AccessAccept
	}

	resp := rpacket.ResponseTo(code, req)
	for _, avp := range s.behavior.ReplyAVPs {
		resp.Add(avp)
	}

	respWire, err := rpacket.EncodeResponse(resp, req.Authenticator, s.secret, s.dict)
	if err != nil {
		return nil, false
	}

	if s.behavior.TamperAuthenticator {
		respWire[4] ^= 0x01
	}

	return respWire, true
}
