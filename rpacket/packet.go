package rpacket

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/jfortiz/radiuscore/rdict"
)

// Code identifies a RADIUS packet's message type, per RFC 2865 §3 and
// RFC 2866 §3.
type Code byte

const (
	AccessRequest      Code = 1
	AccessAccept       Code = 2
	AccessReject       Code = 3
	AccountingRequest  Code = 4
	AccountingResponse Code = 5
	AccessChallenge    Code = 11
	StatusServer       Code = 12
	DisconnectRequest  Code = 40
	DisconnectACK      Code = 41
	DisconnectNAK      Code = 42
	CoARequest         Code = 43
	CoAACK             Code = 44
	CoANAK             Code = 45
)

func (c Code) IsRequest() bool {
	switch c {
	case AccessRequest, AccountingRequest, StatusServer, DisconnectRequest, CoARequest:
		return true
	default:
		return false
	}
}

func (c Code) String() string {
	switch c {
	case AccessRequest:
		return "Access-Request"
	case AccessAccept:
		return "Access-Accept"
	case AccessReject:
		return "Access-Reject"
	case AccountingRequest:
		return "Accounting-Request"
	case AccountingResponse:
		return "Accounting-Response"
	case AccessChallenge:
		return "Access-Challenge"
	case StatusServer:
		return "Status-Server"
	case DisconnectRequest:
		return "Disconnect-Request"
	case DisconnectACK:
		return "Disconnect-ACK"
	case DisconnectNAK:
		return "Disconnect-NAK"
	case CoARequest:
		return "CoA-Request"
	case CoAACK:
		return "CoA-ACK"
	case CoANAK:
		return "CoA-NAK"
	default:
		return fmt.Sprintf("Code(%d)", byte(c))
	}
}

const (
	minPacketLen = 20
	maxPacketLen = 4096
)

var zeroAuthenticator [16]byte

// MessageAuthenticatorName is the dictionary attribute name for the
// HMAC-MD5 integrity attribute (type 80) added by RFC 2869 §5.14. The
// teacher's captured snapshot does not implement it; this module adds
// it since a modern client core is expected to send and validate it.
const MessageAuthenticatorName = "Message-Authenticator"

// Packet is a decoded RADIUS packet.
type Packet struct {
	Code          Code
	Identifier    byte
	Authenticator [16]byte
	AVPs          []AVP
}

// New builds an empty packet of the given code and a random
// authenticator, the way the teacher's NewRadiusRequest does.
func New(code Code) *Packet {
	p := &Packet{Code: code}
	_, _ = rand.Read(p.Authenticator[:])
	return p
}

// Add appends avp to the packet and returns the packet, for chained
// construction.
func (p *Packet) Add(avp AVP) *Packet {
	p.AVPs = append(p.AVPs, avp)
	return p
}

// Get returns the first AVP named name, if present.
func (p *Packet) Get(name string) (AVP, bool) {
	for _, a := range p.AVPs {
		if a.Name == name {
			return a, true
		}
	}
	return AVP{}, false
}

// GetAll returns every AVP named name, in packet order.
func (p *Packet) GetAll(name string) []AVP {
	var out []AVP
	for _, a := range p.AVPs {
		if a.Name == name {
			out = append(out, a)
		}
	}
	return out
}

// ResponseTo builds an empty response packet addressed to the same
// identifier as p, for a server-side or test collaborator to populate.
func ResponseTo(code Code, request *Packet) *Packet {
	return &Packet{Code: code, Identifier: request.Identifier}
}

// EncodeRequest serializes p as an outbound request, assigning
// identifier and computing the Request Authenticator for
// Access-Request (RFC 2865 §3) or a fresh MD5-based authenticator for
// other request codes (RFC 2866 §3). If p already carries a
// Message-Authenticator placeholder it is recomputed in place.
func EncodeRequest(p *Packet, identifier byte, secret []byte, dict rdict.Dictionary) ([]byte, error) {
	p.Identifier = identifier

	switch p.Code {
	case AccessRequest:
		_, _ = rand.Read(p.Authenticator[:])
	default:
		p.Authenticator = zeroAuthenticator
	}

	body, err := encodeAVPs(p.AVPs, dict, secret, p.Authenticator)
	if err != nil {
		return nil, asEncodeError(err)
	}

	total := minPacketLen + len(body)
	if total > maxPacketLen {
		return nil, asEncodeError(fmt.Errorf("%w: got %d bytes", errPacketTooLarge, total))
	}

	buf := make([]byte, minPacketLen, total)
	buf[0] = byte(p.Code)
	buf[1] = p.Identifier
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	copy(buf[4:20], p.Authenticator[:])
	buf = append(buf, body...)

	if off, ok := findMessageAuthenticator(buf); ok {
		computeAndPatchMessageAuthenticator(buf, off, secret)
	}

	if p.Code != AccessRequest {
		sum := md5.New()
		sum.Write(buf)
		sum.Write(secret)
		copy(buf[4:20], sum.Sum(nil))
		copy(p.Authenticator[:], buf[4:20])
	}

	return buf, nil
}

// EncodeResponse serializes p as a reply to a request whose
// authenticator is reqAuthenticator, computing the Response
// Authenticator per RFC 2865 §3 (MD5 over code||id||length||request
// authenticator||attributes||secret).
func EncodeResponse(p *Packet, reqAuthenticator [16]byte, secret []byte, dict rdict.Dictionary) ([]byte, error) {
	body, err := encodeAVPs(p.AVPs, dict, secret, reqAuthenticator)
	if err != nil {
		return nil, asEncodeError(err)
	}

	total := minPacketLen + len(body)
	if total > maxPacketLen {
		return nil, asEncodeError(fmt.Errorf("%w: got %d bytes", errPacketTooLarge, total))
	}

	buf := make([]byte, minPacketLen, total)
	buf[0] = byte(p.Code)
	buf[1] = p.Identifier
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	copy(buf[4:20], reqAuthenticator[:])
	buf = append(buf, body...)

	if off, ok := findMessageAuthenticator(buf); ok {
		computeAndPatchMessageAuthenticator(buf, off, secret)
	}

	sum := md5.New()
	sum.Write(buf)
	sum.Write(secret)
	copy(buf[4:20], sum.Sum(nil))
	copy(p.Authenticator[:], buf[4:20])

	return buf, nil
}

func encodeAVPs(avps []AVP, dict rdict.Dictionary, secret []byte, authenticator [16]byte) ([]byte, error) {
	avps = splitConcatAVPs(avps, dict)
	var body []byte
	for _, a := range avps {
		var err error
		body, err = writeAVP(body, a, dict, secret, authenticator)
		if err != nil {
			return nil, err
		}
	}
	return body, nil
}

// DecodeRequest parses buf as an inbound request and validates its
// Message-Authenticator, if present, per RFC 2869 §5.14. The request's
// own authenticator is not itself validated against anything (a fresh
// request has no predecessor to check against); callers that require
// origin authentication should rely on the Message-Authenticator check.
func DecodeRequest(buf []byte, secret []byte, dict rdict.Dictionary) (*Packet, error) {
	p, err := decodeHeader(buf)
	if err != nil {
		return nil, asDecodeError(err)
	}

	avps, err := readAVPs(buf[minPacketLen:], dict, secret, p.Authenticator)
	if err != nil {
		return nil, asDecodeError(err)
	}
	p.AVPs = avps

	// Access-Request carries its own fresh authenticator as both the
	// encryption input and the Message-Authenticator hash input. Every
	// other request code hashes with the authenticator field zeroed,
	// since the real value is itself an MD5 digest only known once the
	// Message-Authenticator has already been computed (RFC 2869 §5.14).
	authForHash := p.Authenticator
	if p.Code != AccessRequest {
		authForHash = zeroAuthenticator
	}
	if err := validateMessageAuthenticator(buf, authForHash, secret); err != nil {
		return nil, asDecodeError(err)
	}

	return p, nil
}

// DecodeResponse parses buf as a reply to a request sent with
// reqAuthenticator and reqIdentifier, validating the Response
// Authenticator (RFC 2865 §3) and, if present, the Message-Authenticator
// (RFC 2869 §5.14). Both checks are mandatory: a reply that fails
// either is indistinguishable from an off-path spoofed packet and must
// not be accepted as a match for the outstanding request.
func DecodeResponse(buf []byte, reqIdentifier byte, reqAuthenticator [16]byte, secret []byte, dict rdict.Dictionary) (*Packet, error) {
	p, err := decodeHeader(buf)
	if err != nil {
		return nil, asDecodeError(err)
	}

	if p.Identifier != reqIdentifier {
		return nil, asDecodeError(fmt.Errorf("%w: got identifier %d, want %d", errBadAuthenticator, p.Identifier, reqIdentifier))
	}

	sum := md5.New()
	sum.Write(buf[:4])
	sum.Write(reqAuthenticator[:])
	sum.Write(buf[minPacketLen:])
	sum.Write(secret)
	if !hmacEqual(sum.Sum(nil), p.Authenticator[:]) {
		return nil, asDecodeError(errBadAuthenticator)
	}

	avps, err := readAVPs(buf[minPacketLen:], dict, secret, reqAuthenticator)
	if err != nil {
		return nil, asDecodeError(err)
	}
	p.AVPs = avps

	if err := validateMessageAuthenticator(buf, reqAuthenticator, secret); err != nil {
		return nil, asDecodeError(err)
	}

	return p, nil
}

func decodeHeader(buf []byte) (*Packet, error) {
	if len(buf) < minPacketLen {
		return nil, fmt.Errorf("%w: got %d bytes", errPacketTooSmall, len(buf))
	}
	if len(buf) > maxPacketLen {
		return nil, fmt.Errorf("%w: got %d bytes", errPacketTooLarge, len(buf))
	}

	length := int(binary.BigEndian.Uint16(buf[2:4]))
	if length < minPacketLen || length > len(buf) {
		return nil, fmt.Errorf("%w: header declares %d bytes, have %d", errTruncated, length, len(buf))
	}
	buf = buf[:length]

	p := &Packet{Code: Code(buf[0]), Identifier: buf[1]}
	copy(p.Authenticator[:], buf[4:20])
	return p, nil
}

// findMessageAuthenticator locates the value bytes of a
// Message-Authenticator attribute in an already-framed packet buffer,
// returning the offset of its first value byte.
func findMessageAuthenticator(buf []byte) (int, bool) {
	pos := minPacketLen
	for pos+2 <= len(buf) {
		code := buf[pos]
		length := int(buf[pos+1])
		if length < 2 || pos+length > len(buf) {
			return 0, false
		}
		if code == messageAuthenticatorCode && length == 18 {
			return pos + 2, true
		}
		pos += length
	}
	return 0, false
}

const messageAuthenticatorCode byte = 80

// computeAndPatchMessageAuthenticator zeroes the 16 byte
// Message-Authenticator value, computes HMAC-MD5 over the whole packet
// with the zeroed field, and writes the result back in place, per RFC
// 2869 §5.14.
func computeAndPatchMessageAuthenticator(buf []byte, valueOffset int, secret []byte) {
	for i := 0; i < 16; i++ {
		buf[valueOffset+i] = 0
	}
	mac := hmac.New(md5.New, secret)
	mac.Write(buf)
	copy(buf[valueOffset:valueOffset+16], mac.Sum(nil))
}

// validateMessageAuthenticator recomputes the HMAC-MD5 over buf with
// the authenticator field set to authenticatorForHash (the request
// authenticator for a response, or the packet's own authenticator for
// a request) and the Message-Authenticator value zeroed, comparing
// against the value actually present. A packet with no
// Message-Authenticator attribute passes trivially: the attribute is
// optional per RFC 2869, and its absence is a policy decision for the
// caller, not a codec-level error.
func validateMessageAuthenticator(buf []byte, authenticatorForHash [16]byte, secret []byte) error {
	off, found := findMessageAuthenticator(buf)
	if !found {
		return nil
	}

	scratch := make([]byte, len(buf))
	copy(scratch, buf)
	copy(scratch[4:20], authenticatorForHash[:])
	original := make([]byte, 16)
	copy(original, scratch[off:off+16])
	for i := 0; i < 16; i++ {
		scratch[off+i] = 0
	}

	mac := hmac.New(md5.New, secret)
	mac.Write(scratch)
	if !hmacEqual(mac.Sum(nil), original) {
		return errMissingAuthToken
	}
	return nil
}

func hmacEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// Len returns the encoded length of the packet, computed by re-running
// the codec; intended for diagnostics, not a fast path.
func (p *Packet) Len(dict rdict.Dictionary, secret []byte) (int, error) {
	body, err := encodeAVPs(p.AVPs, dict, secret, p.Authenticator)
	if err != nil {
		return 0, err
	}
	return minPacketLen + len(body), nil
}
