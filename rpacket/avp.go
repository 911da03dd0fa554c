// Package rpacket implements the RADIUS wire codec: attribute (AVP)
// encoding and decoding, packet framing, and the Request/Response and
// Message-Authenticator computations, generalized from the teacher's
// core/radius_AVP.go and core/radius_packet.go to the Dictionary
// abstraction in rdict instead of a single process-wide dictionary
// global.
package rpacket

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jfortiz/radiuscore/rdict"
)

// VendorSpecific is the attribute type (26) that subframes vendor
// attributes, per RFC 2865 §5.26.
const VendorSpecific byte = 26

// NoTag marks an AVP whose dictionary item is Tagged but whose tag byte
// is not in use, per RFC 2868 §3.1.
const NoTag byte = 0

// AVP is one decoded attribute-value pair. Value holds a Go-native
// representation selected by the dictionary Item's ValueType:
// []byte for Octets, string for String, uint32 for Integer/Time,
// net.IP for Address/IPv6Address, uint64 for Integer64, and a string in
// CIDR form for IPv6Prefix.
type AVP struct {
	Code     byte
	VendorID uint32
	Name     string
	Tag      byte
	Value    interface{}
}

// NewAVP builds an AVP by dictionary name, looking up the wire type and
// coercing value into the representation ValueType expects. It mirrors
// the teacher's NewRadiusAVP constructor, including the "value:tag"
// string convention for tagged attributes.
func NewAVP(dict rdict.Dictionary, name string, value interface{}) (AVP, error) {
	item, found := dict.ByName(name)
	if !found {
		return AVP{}, fmt.Errorf("%w: attribute %q not in dictionary", errUnknownAttribute, name)
	}

	tag := NoTag
	if item.Tagged {
		if s, ok := value.(string); ok {
			if idx := strings.LastIndex(s, ":"); idx >= 0 {
				if t, err := strconv.Atoi(s[idx+1:]); err == nil && t >= 0 && t <= 31 {
					tag = byte(t)
					value = s[:idx]
				}
			}
		}
	}

	coerced, err := coerceValue(item, value)
	if err != nil {
		return AVP{}, fmt.Errorf("attribute %q: %w", name, err)
	}

	return AVP{
		Code:     item.Type,
		VendorID: item.VendorID,
		Name:     item.Name,
		Tag:      tag,
		Value:    coerced,
	}, nil
}

func coerceValue(item rdict.Item, value interface{}) (interface{}, error) {
	switch item.ValueType {
	case rdict.TypeString:
		switch v := value.(type) {
		case string:
			if item.EnumValues != nil {
				if n, ok := item.EnumValues[v]; ok {
					return uint32(n), nil
				}
			}
			return v, nil
		default:
			return nil, fmt.Errorf("expected string value, got %T", value)
		}
	case rdict.TypeOctets:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			return []byte(v), nil
		default:
			return nil, fmt.Errorf("expected []byte value, got %T", value)
		}
	case rdict.TypeInteger, rdict.TypeTime:
		switch v := value.(type) {
		case uint32:
			return v, nil
		case int:
			return uint32(v), nil
		case string:
			if item.EnumValues != nil {
				if n, ok := item.EnumValues[v]; ok {
					return uint32(n), nil
				}
			}
			return 0, fmt.Errorf("%q is not a valid enum value", v)
		default:
			return nil, fmt.Errorf("expected integer value, got %T", value)
		}
	case rdict.TypeInteger64:
		switch v := value.(type) {
		case uint64:
			return v, nil
		case int:
			return uint64(v), nil
		default:
			return nil, fmt.Errorf("expected integer64 value, got %T", value)
		}
	case rdict.TypeAddress, rdict.TypeIPv6Address:
		switch v := value.(type) {
		case net.IP:
			return v, nil
		case string:
			ip := net.ParseIP(v)
			if ip == nil {
				return nil, fmt.Errorf("%q is not a valid IP address", v)
			}
			return ip, nil
		default:
			return nil, fmt.Errorf("expected IP value, got %T", value)
		}
	case rdict.TypeIPv6Prefix:
		if v, ok := value.(string); ok {
			return v, nil
		}
		return nil, fmt.Errorf("expected CIDR string value, got %T", value)
	case rdict.TypeInterfaceID:
		if v, ok := value.([]byte); ok {
			return v, nil
		}
		return nil, fmt.Errorf("expected 8-byte interface id, got %T", value)
	default:
		return nil, fmt.Errorf("unsupported value type %v", item.ValueType)
	}
}

// GetOctets returns the AVP value as raw bytes, converting scalar types
// the same way the teacher's GetOctets does.
func (a AVP) GetOctets() []byte {
	switch v := a.Value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	case uint32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, v)
		return b
	case uint64:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, v)
		return b
	case net.IP:
		if ip4 := v.To4(); ip4 != nil {
			return ip4
		}
		return v.To16()
	default:
		return nil
	}
}

// GetString renders the AVP value as a human string, same fallback
// order as the teacher's GetString.
func (a AVP) GetString() string {
	switch v := a.Value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case net.IP:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// GetInt returns the AVP value as an int64, for Integer/Integer64/Time
// typed attributes.
func (a AVP) GetInt() int64 {
	switch v := a.Value.(type) {
	case uint32:
		return int64(v)
	case uint64:
		return int64(v)
	default:
		return 0
	}
}

// GetDate returns the AVP value interpreted as a Unix timestamp.
func (a AVP) GetDate() time.Time {
	if v, ok := a.Value.(uint32); ok {
		return time.Unix(int64(v), 0).UTC()
	}
	return time.Time{}
}

// GetIPAddress returns the AVP value as a net.IP, or nil if the
// attribute is not address typed.
func (a AVP) GetIPAddress() net.IP {
	ip, _ := a.Value.(net.IP)
	return ip
}

// encodeValue writes the attribute's raw value bytes (without the
// code/length/vendor framing) for the plain, unencrypted case.
func encodeValue(item rdict.Item, value interface{}) ([]byte, error) {
	switch item.ValueType {
	case rdict.TypeString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", value)
		}
		return []byte(s), nil
	case rdict.TypeOctets, rdict.TypeInterfaceID:
		b, ok := value.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte, got %T", value)
		}
		return b, nil
	case rdict.TypeInteger, rdict.TypeTime:
		v, ok := value.(uint32)
		if !ok {
			return nil, fmt.Errorf("expected uint32, got %T", value)
		}
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, v)
		return b, nil
	case rdict.TypeInteger64:
		v, ok := value.(uint64)
		if !ok {
			return nil, fmt.Errorf("expected uint64, got %T", value)
		}
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, v)
		return b, nil
	case rdict.TypeAddress:
		ip, ok := value.(net.IP)
		if !ok {
			return nil, fmt.Errorf("expected net.IP, got %T", value)
		}
		ip4 := ip.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("%v is not an IPv4 address", ip)
		}
		return ip4, nil
	case rdict.TypeIPv6Address:
		ip, ok := value.(net.IP)
		if !ok {
			return nil, fmt.Errorf("expected net.IP, got %T", value)
		}
		ip16 := ip.To16()
		if ip16 == nil {
			return nil, fmt.Errorf("%v is not an IPv6 address", ip)
		}
		return ip16, nil
	case rdict.TypeIPv6Prefix:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected CIDR string, got %T", value)
		}
		_, ipnet, err := net.ParseCIDR(s)
		if err != nil {
			return nil, fmt.Errorf("bad IPv6 prefix %q: %w", s, err)
		}
		ones, _ := ipnet.Mask.Size()
		out := make([]byte, 2, 18)
		out[1] = byte(ones)
		out = append(out, ipnet.IP.To16()...)
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %v", item.ValueType)
	}
}

// decodeValue parses the attribute's raw value bytes into a Go native
// representation selected by item.ValueType.
func decodeValue(item rdict.Item, raw []byte) (interface{}, error) {
	switch item.ValueType {
	case rdict.TypeString:
		return string(raw), nil
	case rdict.TypeOctets, rdict.TypeInterfaceID:
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	case rdict.TypeInteger, rdict.TypeTime:
		if len(raw) != 4 {
			return nil, fmt.Errorf("%w: integer attribute has %d bytes, want 4", errBadLength, len(raw))
		}
		return binary.BigEndian.Uint32(raw), nil
	case rdict.TypeInteger64:
		if len(raw) != 8 {
			return nil, fmt.Errorf("%w: integer64 attribute has %d bytes, want 8", errBadLength, len(raw))
		}
		return binary.BigEndian.Uint64(raw), nil
	case rdict.TypeAddress:
		if len(raw) != 4 {
			return nil, fmt.Errorf("%w: address attribute has %d bytes, want 4", errBadLength, len(raw))
		}
		return net.IP(append([]byte(nil), raw...)), nil
	case rdict.TypeIPv6Address:
		if len(raw) != 16 {
			return nil, fmt.Errorf("%w: ipv6 address attribute has %d bytes, want 16", errBadLength, len(raw))
		}
		return net.IP(append([]byte(nil), raw...)), nil
	case rdict.TypeIPv6Prefix:
		if len(raw) != 18 {
			return nil, fmt.Errorf("%w: ipv6 prefix attribute has %d bytes, want 18", errBadLength, len(raw))
		}
		ones := int(raw[1])
		ip := net.IP(append([]byte(nil), raw[2:]...))
		return fmt.Sprintf("%s/%d", ip.String(), ones), nil
	default:
		return nil, fmt.Errorf("unsupported value type %v", item.ValueType)
	}
}

// encrypt1 implements the RFC 2865 §5.2 User-Password obfuscation
// (shared with Tunnel-Password's per-block chaining), carried over
// unchanged from the teacher's encrypt1.
func encrypt1(plaintext, secret, salt []byte) []byte {
	padded := make([]byte, ((len(plaintext)+15)/16)*16)
	copy(padded, plaintext)
	if len(plaintext) == 0 {
		padded = make([]byte, 16)
	}

	out := make([]byte, len(padded))
	prev := salt
	for i := 0; i < len(padded); i += 16 {
		h := md5.New()
		h.Write(secret)
		h.Write(prev)
		b := h.Sum(nil)
		for j := 0; j < 16; j++ {
			out[i+j] = padded[i+j] ^ b[j]
		}
		prev = out[i : i+16]
	}
	return out
}

// decrypt1 reverses encrypt1.
func decrypt1(ciphertext, secret, salt []byte) []byte {
	out := make([]byte, len(ciphertext))
	prev := salt
	for i := 0; i+16 <= len(ciphertext); i += 16 {
		h := md5.New()
		h.Write(secret)
		h.Write(prev)
		b := h.Sum(nil)
		for j := 0; j < 16; j++ {
			out[i+j] = ciphertext[i+j] ^ b[j]
		}
		prev = ciphertext[i : i+16]
	}
	return out
}

func randomSalt() []byte {
	s := make([]byte, 2)
	_, _ = rand.Read(s)
	s[0] |= 0x80
	return s
}
