package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/jfortiz/radiuscore/rdict"
	"github.com/jfortiz/radiuscore/rerrors"
	"github.com/jfortiz/radiuscore/rpacket"
)

// framedEchoServer speaks the 4-byte length-prefix framing directly,
// independent of radtest, so this package's own tests catch a framing
// regression without depending on another package's server.
func framedEchoServer(t *testing.T, secret []byte, accept bool) (addr string, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	serveConn := func(conn net.Conn) {
		defer conn.Close()
		prefix := make([]byte, 4)
		for {
			if _, err := io.ReadFull(conn, prefix); err != nil {
				return
			}
			length := int(binary.BigEndian.Uint32(prefix))
			wire := make([]byte, length)
			if _, err := io.ReadFull(conn, wire); err != nil {
				return
			}

			req, err := rpacket.DecodeRequest(wire, secret, rdict.Default)
			if err != nil {
				return
			}
			code := rpacket.AccessReject
			if accept {
				code = rpacket.AccessAccept
			}
			resp := rpacket.ResponseTo(code, req)
			respWire, err := rpacket.EncodeResponse(resp, req.Authenticator, secret, rdict.Default)
			if err != nil {
				return
			}
			framed := make([]byte, 4+len(respWire))
			binary.BigEndian.PutUint32(framed, uint32(len(respWire)))
			copy(framed[4:], respWire)
			if _, err := conn.Write(framed); err != nil {
				return
			}
		}
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(conn)
		}
	}()

	return ln.Addr().String(), func() { _ = ln.Close() }
}

func TestStreamSendReceivesFramedResponse(t *testing.T) {
	secret := []byte("streamtest")
	addr, stop := framedEchoServer(t, secret, true)
	defer stop()

	s := NewStream(Config{Endpoint: addr, Secret: secret})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	req := rpacket.New(rpacket.AccessRequest)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := s.Send(ctx, 7, req, rdict.Default)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Code != rpacket.AccessAccept {
		t.Fatalf("Code = %v, want Access-Accept", resp.Code)
	}
}

func TestStreamSendOversizeFrameDisconnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		prefix := make([]byte, 4)
		if _, err := io.ReadFull(conn, prefix); err != nil {
			return
		}
		length := int(binary.BigEndian.Uint32(prefix))
		io.CopyN(io.Discard, conn, int64(length))

		// Reply with a frame length that exceeds the 4096 cap.
		bad := make([]byte, 4)
		binary.BigEndian.PutUint32(bad, 1<<20)
		_, _ = conn.Write(bad)
	}()

	s := NewStream(Config{Endpoint: ln.Addr().String(), Secret: []byte("x"), MaxReconnectAttempts: 1})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	req := rpacket.New(rpacket.AccessRequest)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := s.Send(ctx, 3, req, rdict.Default); err == nil {
		t.Fatal("expected error after oversize frame closed the connection")
	}
}

func TestStreamReconnectExhaustionSurfacesErrReconnectExceeded(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	addr := ln.Addr().String()

	s := NewStream(Config{
		Endpoint:             addr,
		Secret:               []byte("x"),
		AutoReconnectEnabled: true,
		MaxReconnectAttempts: 1,
		ReconnectDelay:       10 * time.Millisecond,
	})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()
	ln.Close()

	req := rpacket.New(rpacket.AccessRequest)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deadline := time.Now().Add(2 * time.Second)
	var sendErr error
	for time.Now().Before(deadline) {
		_, sendErr = s.Send(ctx, 5, req, rdict.Default)
		if sendErr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !errors.Is(sendErr, rerrors.ErrReconnectExceeded) {
		t.Fatalf("Send error = %v, want ErrReconnectExceeded", sendErr)
	}
}

func TestStreamReconnectForcesRedial(t *testing.T) {
	secret := []byte("streamtest")
	addr, stop := framedEchoServer(t, secret, true)
	defer stop()

	s := NewStream(Config{Endpoint: addr, Secret: secret})
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if s.State() != Connected {
		t.Fatalf("State() = %v after Reconnect, want Connected", s.State())
	}

	req := rpacket.New(rpacket.AccessRequest)
	resp, err := s.Send(ctx, 9, req, rdict.Default)
	if err != nil {
		t.Fatalf("Send after Reconnect: %v", err)
	}
	if resp.Code != rpacket.AccessAccept {
		t.Fatalf("Code = %v, want Access-Accept", resp.Code)
	}
}
