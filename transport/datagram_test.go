package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jfortiz/radiuscore/rdict"
	"github.com/jfortiz/radiuscore/rpacket"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// echoUDPServer answers every Access-Request it receives with an
// Access-Accept, for exercising Datagram without a real RADIUS server.
func echoUDPServer(t *testing.T, secret []byte) (addr string, stop func()) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for {
			n, raddr, err := conn.ReadFromUDP(buf)
			if err != nil {
				close(done)
				return
			}
			req, err := rpacket.DecodeRequest(buf[:n], secret, rdict.Default)
			if err != nil {
				continue
			}
			resp := rpacket.ResponseTo(rpacket.AccessAccept, req)
			wire, err := rpacket.EncodeResponse(resp, req.Authenticator, secret, rdict.Default)
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(wire, raddr)
		}
	}()

	return conn.LocalAddr().String(), func() {
		_ = conn.Close()
		<-done
	}
}

func TestDatagramSendReceivesAccept(t *testing.T) {
	secret := []byte("testing123")
	addr, stop := echoUDPServer(t, secret)
	defer stop()

	dg := NewDatagram(Config{Endpoint: addr, Secret: secret})
	if err := dg.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer dg.Close()

	req := rpacket.New(rpacket.AccessRequest)
	avp, err := rpacket.NewAVP(rdict.Default, "User-Name", "homer")
	if err != nil {
		t.Fatalf("NewAVP: %v", err)
	}
	req.Add(avp)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := dg.Send(ctx, 42, req, rdict.Default)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Code != rpacket.AccessAccept {
		t.Fatalf("Code = %v, want Access-Accept", resp.Code)
	}
}

func TestDatagramSendTimesOutWithNoServer(t *testing.T) {
	unreachable, stop := echoUDPServer(t, []byte("secret"))
	stop() // close immediately so nothing answers

	dg := NewDatagram(Config{Endpoint: unreachable, Secret: []byte("secret")})
	if err := dg.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer dg.Close()

	req := rpacket.New(rpacket.AccessRequest)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	if _, err := dg.Send(ctx, 1, req, rdict.Default); err == nil {
		t.Fatal("expected timeout error, got nil")
	}
}
