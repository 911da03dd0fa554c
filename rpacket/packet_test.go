package rpacket

import (
	"bytes"
	"net"
	"testing"

	"github.com/jfortiz/radiuscore/rdict"
)

var testSecret = []byte("xyzzy5461")

func mustAVP(t *testing.T, name string, value interface{}) AVP {
	t.Helper()
	a, err := NewAVP(rdict.Default, name, value)
	if err != nil {
		t.Fatalf("NewAVP(%q): %v", name, err)
	}
	return a
}

func TestEncodeDecodeRequestRoundTrip(t *testing.T) {
	p := New(AccessRequest)
	p.Add(mustAVP(t, "User-Name", "bart"))
	p.Add(mustAVP(t, "User-Password", "simpson"))
	p.Add(mustAVP(t, "NAS-IP-Address", net.ParseIP("192.0.2.1")))

	wire, err := EncodeRequest(p, 7, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	if len(wire) < minPacketLen || len(wire) > maxPacketLen {
		t.Fatalf("encoded length %d out of bounds", len(wire))
	}
	if wire[1] != 7 {
		t.Fatalf("identifier byte = %d, want 7", wire[1])
	}

	decoded, err := DecodeRequest(wire, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}

	un, found := decoded.Get("User-Name")
	if !found || un.GetString() != "bart" {
		t.Fatalf("User-Name = %+v, found=%v", un, found)
	}

	pw, found := decoded.Get("User-Password")
	if !found || pw.GetString() != "simpson" {
		t.Fatalf("User-Password round-trip failed: %+v found=%v", pw, found)
	}

	nas, found := decoded.Get("NAS-IP-Address")
	if !found || nas.GetIPAddress().String() != "192.0.2.1" {
		t.Fatalf("NAS-IP-Address round-trip failed: %+v", nas)
	}
}

func TestEncodeDecodeResponseAuthenticator(t *testing.T) {
	req := New(AccessRequest)
	req.Add(mustAVP(t, "User-Name", "lisa"))
	wire, err := EncodeRequest(req, 3, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	resp := ResponseTo(AccessAccept, req)
	resp.Add(mustAVP(t, "Reply-Message", "welcome"))
	respWire, err := EncodeResponse(resp, req.Authenticator, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}

	decoded, err := DecodeResponse(respWire, wire[1], req.Authenticator, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if decoded.Code != AccessAccept {
		t.Fatalf("Code = %v, want Access-Accept", decoded.Code)
	}

	tampered := append([]byte(nil), respWire...)
	tampered[minPacketLen+2] ^= 0xff
	if _, err := DecodeResponse(tampered, wire[1], req.Authenticator, testSecret, rdict.Default); err == nil {
		t.Fatal("expected authenticator mismatch on tampered response, got nil error")
	}
}

func TestMessageAuthenticatorRoundTrip(t *testing.T) {
	p := New(AccessRequest)
	p.Add(mustAVP(t, "User-Name", "maggie"))
	p.Add(AVP{Code: messageAuthenticatorCode, Name: MessageAuthenticatorName, Value: make([]byte, 16)})

	wire, err := EncodeRequest(p, 1, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	if _, err := DecodeRequest(wire, testSecret, rdict.Default); err != nil {
		t.Fatalf("DecodeRequest with valid Message-Authenticator: %v", err)
	}

	tampered := append([]byte(nil), wire...)
	off, found := findMessageAuthenticator(tampered)
	if !found {
		t.Fatal("Message-Authenticator not found in encoded packet")
	}
	tampered[off] ^= 0xff
	if _, err := DecodeRequest(tampered, testSecret, rdict.Default); err == nil {
		t.Fatal("expected Message-Authenticator mismatch, got nil error")
	}
}

func TestDecodeRequestRejectsTruncatedPacket(t *testing.T) {
	if _, err := DecodeRequest(make([]byte, 19), testSecret, rdict.Default); err == nil {
		t.Fatal("expected error decoding 19 byte buffer, got nil")
	}
}

func TestDecodeRequestRejectsOversizePacket(t *testing.T) {
	if _, err := DecodeRequest(make([]byte, maxPacketLen+1), testSecret, rdict.Default); err == nil {
		t.Fatal("expected error decoding 4097 byte buffer, got nil")
	}
}

func TestEncodeRequestAtMinimumLength(t *testing.T) {
	p := New(AccessRequest)
	wire, err := EncodeRequest(p, 0, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("EncodeRequest with no attributes: %v", err)
	}
	if len(wire) != minPacketLen {
		t.Fatalf("len = %d, want %d", len(wire), minPacketLen)
	}
}

func TestVendorSpecificAttributeRoundTrip(t *testing.T) {
	dict, err := rdict.FromJSON([]byte(`{
		"Vendors": [{"VendorID": 9, "VendorName": "Cisco"}],
		"Attrs": [{"VendorID": 9, "Attributes": [
			{"Code": 1, "Name": "AVPair", "Type": "String"}
		]}]
	}`))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}

	p := New(AccessRequest)
	avp, err := NewAVP(dict, "Cisco-AVPair", "shell:priv-lvl=15")
	if err != nil {
		t.Fatalf("NewAVP(%q): %v", "Cisco-AVPair", err)
	}
	p.Add(avp)

	wire, err := EncodeRequest(p, 9, testSecret, dict)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	decoded, err := DecodeRequest(wire, testSecret, dict)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	a, found := decoded.Get("Cisco-AVPair")
	if !found || a.GetString() != "shell:priv-lvl=15" {
		t.Fatalf("Cisco-AVPair round trip failed: %+v found=%v", a, found)
	}
}

func TestTunnelPasswordRoundTrip(t *testing.T) {
	p := New(AccessRequest)
	p.Add(mustAVP(t, "Tunnel-Password", "secret-tunnel:1"))

	wire, err := EncodeRequest(p, 2, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	decoded, err := DecodeRequest(wire, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}

	a, found := decoded.Get("Tunnel-Password")
	if !found {
		t.Fatal("Tunnel-Password not found after round trip")
	}
	if a.GetString() != "secret-tunnel" {
		t.Fatalf("Tunnel-Password value = %q, want %q", a.GetString(), "secret-tunnel")
	}
	if a.Tag != 1 {
		t.Fatalf("Tunnel-Password tag = %d, want 1", a.Tag)
	}
}

func TestConcatAttributeSplitAndMergeRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 900)

	p := New(AccessRequest)
	p.Add(AVP{Code: 79, Name: "EAP-Message", Value: payload})

	wire, err := EncodeRequest(p, 5, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}

	count := 0
	for pos := minPacketLen; pos+2 <= len(wire); {
		length := int(wire[pos+1])
		if wire[pos] == 79 {
			count++
		}
		pos += length
	}
	if count < 4 {
		t.Fatalf("expected EAP-Message to be split into multiple fragments, got %d", count)
	}

	decoded, err := DecodeRequest(wire, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}

	eap, found := decoded.Get("EAP-Message")
	if !found {
		t.Fatal("EAP-Message not found after round trip")
	}
	if !bytes.Equal(eap.GetOctets(), payload) {
		t.Fatalf("EAP-Message round trip mismatch: got %d bytes, want %d", len(eap.GetOctets()), len(payload))
	}

	rewire, err := EncodeRequest(decoded, 6, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("re-EncodeRequest of decoded packet: %v", err)
	}
	redecoded, err := DecodeRequest(rewire, testSecret, rdict.Default)
	if err != nil {
		t.Fatalf("DecodeRequest of re-encoded packet: %v", err)
	}
	reEap, found := redecoded.Get("EAP-Message")
	if !found || !bytes.Equal(reEap.GetOctets(), payload) {
		t.Fatal("encode(decode(wire)) did not preserve EAP-Message value")
	}
}

func TestCodeString(t *testing.T) {
	if got := AccessRequest.String(); got != "Access-Request" {
		t.Fatalf("String() = %q", got)
	}
	if got := Code(200).String(); got == "" || !bytes.Contains([]byte(got), []byte("200")) {
		t.Fatalf("unknown code String() = %q", got)
	}
}
