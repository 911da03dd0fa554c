package rclient

import (
	"context"
	"crypto/tls"
	"testing"
	"time"

	"github.com/jfortiz/radiuscore/radtest"
	"github.com/jfortiz/radiuscore/rdict"
	"github.com/jfortiz/radiuscore/retransmit"
	"github.com/jfortiz/radiuscore/rpacket"
)

var secret = []byte("clienttest")

func TestClientDatagramAccept(t *testing.T) {
	srv, err := radtest.NewUDPServer(secret, rdict.Default, radtest.Behavior{Accept: true})
	if err != nil {
		t.Fatalf("NewUDPServer: %v", err)
	}
	defer srv.Close()

	c, err := Build(Config{
		Endpoint: srv.Addr(),
		Secret:   string(secret),
		Kind:     KindDatagram,
		Strategy: retransmit.Constant{Attempts: 2, Timeout: time.Second},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	req := rpacket.New(rpacket.AccessRequest)
	avp, _ := rpacket.NewAVP(rdict.Default, "User-Name", "bart")
	req.Add(avp)

	resp, err := c.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Code != rpacket.AccessAccept {
		t.Fatalf("Code = %v, want Access-Accept", resp.Code)
	}
}

func TestClientDatagramReject(t *testing.T) {
	srv, err := radtest.NewUDPServer(secret, rdict.Default, radtest.Behavior{Accept: false})
	if err != nil {
		t.Fatalf("NewUDPServer: %v", err)
	}
	defer srv.Close()

	c, err := Build(Config{Endpoint: srv.Addr(), Secret: string(secret), Kind: KindDatagram})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	resp, err := c.Send(context.Background(), rpacket.New(rpacket.AccessRequest))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Code != rpacket.AccessReject {
		t.Fatalf("Code = %v, want Access-Reject", resp.Code)
	}
}

func TestClientStreamAccept(t *testing.T) {
	srv, err := radtest.NewTCPServer(secret, rdict.Default, radtest.Behavior{Accept: true})
	if err != nil {
		t.Fatalf("NewTCPServer: %v", err)
	}
	defer srv.Close()

	c, err := Build(Config{Endpoint: srv.Addr(), Secret: string(secret), Kind: KindStream})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	resp, err := c.Send(context.Background(), rpacket.New(rpacket.AccessRequest))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Code != rpacket.AccessAccept {
		t.Fatalf("Code = %v, want Access-Accept", resp.Code)
	}
}

func TestClientSecureStreamAccept(t *testing.T) {
	cert, err := generateSelfSignedCert(t)
	if err != nil {
		t.Fatalf("generateSelfSignedCert: %v", err)
	}

	srv, err := radtest.NewTLSServer(secret, rdict.Default, radtest.Behavior{Accept: true},
		&tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		t.Fatalf("NewTLSServer: %v", err)
	}
	defer srv.Close()

	c, err := Build(Config{
		Endpoint:  srv.Addr(),
		Secret:    string(secret),
		Kind:      KindSecureStream,
		TLSConfig: &tls.Config{InsecureSkipVerify: true},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	resp, err := c.Send(context.Background(), rpacket.New(rpacket.AccessRequest))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Code != rpacket.AccessAccept {
		t.Fatalf("Code = %v, want Access-Accept", resp.Code)
	}
}

func TestClientRetriesThenExhausts(t *testing.T) {
	srv, err := radtest.NewUDPServer(secret, rdict.Default, radtest.Behavior{Drop: true})
	if err != nil {
		t.Fatalf("NewUDPServer: %v", err)
	}
	defer srv.Close()

	c, err := Build(Config{
		Endpoint: srv.Addr(),
		Secret:   string(secret),
		Kind:     KindDatagram,
		Strategy: retransmit.Constant{Attempts: 2, Timeout: 100 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if _, err := c.Send(context.Background(), rpacket.New(rpacket.AccessRequest)); err == nil {
		t.Fatal("expected error after retries exhausted against a dropping server")
	}
}

func TestClientRejectsTamperedAuthenticator(t *testing.T) {
	srv, err := radtest.NewUDPServer(secret, rdict.Default, radtest.Behavior{Accept: true, TamperAuthenticator: true})
	if err != nil {
		t.Fatalf("NewUDPServer: %v", err)
	}
	defer srv.Close()

	c, err := Build(Config{
		Endpoint: srv.Addr(),
		Secret:   string(secret),
		Kind:     KindDatagram,
		Strategy: retransmit.Constant{Attempts: 1, Timeout: 300 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if _, err := c.Send(context.Background(), rpacket.New(rpacket.AccessRequest)); err == nil {
		t.Fatal("expected authenticator validation failure, got nil error")
	}
}
