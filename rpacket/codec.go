package rpacket

import (
	"bytes"
	"fmt"

	"github.com/jfortiz/radiuscore/rdict"
)

// writeAVP appends the wire encoding of a to buf, applying the
// User-Password/Tunnel-Password obfuscation, vendor-specific (type 26)
// subframing, tag byte, and internal length prefix the dictionary Item
// calls for. secret and authenticator are the request's shared secret
// and the authenticator bytes used as encryption input (the request
// authenticator for an outbound request, per RFC 2865 §5.2).
func writeAVP(buf []byte, a AVP, dict rdict.Dictionary, secret []byte, authenticator [16]byte) ([]byte, error) {
	item, found := itemFor(dict, a)
	if !found {
		item = rdict.Item{Type: a.Code, VendorID: a.VendorID, ValueType: rdict.TypeOctets}
	}

	raw, err := encodeValue(item, a.Value)
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", a.Name, err)
	}

	if item.WithLen {
		raw = append([]byte{byte(len(raw))}, raw...)
	}

	var salt []byte
	if item.Salted {
		salt = randomSalt()
	}

	if item.Encrypted {
		if item.Salted {
			raw = encrypt1(raw, secret, append(append([]byte{}, authenticator[:]...), salt...))
		} else {
			raw = encrypt1(raw, secret, authenticator[:])
		}
	}

	prefix := 0
	if item.Tagged {
		prefix++
	}
	if item.Salted {
		prefix += 2
	}

	if a.VendorID != 0 {
		vendorAttrLen := 2 + prefix + len(raw)
		if vendorAttrLen > 255 {
			return nil, fmt.Errorf("attribute %q: value too large to encode", a.Name)
		}
		totalLen := 6 + vendorAttrLen
		if totalLen > 255 {
			return nil, fmt.Errorf("attribute %q: value too large to encode", a.Name)
		}
		buf = append(buf, VendorSpecific, byte(totalLen))
		buf = append(buf, byte(a.VendorID>>24), byte(a.VendorID>>16), byte(a.VendorID>>8), byte(a.VendorID))
		buf = append(buf, a.Code, byte(vendorAttrLen))
		if item.Tagged {
			buf = append(buf, a.Tag)
		}
		if item.Salted {
			buf = append(buf, salt...)
		}
		buf = append(buf, raw...)
		return buf, nil
	}

	totalLen := 2 + prefix + len(raw)
	if totalLen > 255 {
		return nil, fmt.Errorf("attribute %q: value too large to encode", a.Name)
	}
	buf = append(buf, a.Code, byte(totalLen))
	if item.Tagged {
		buf = append(buf, a.Tag)
	}
	if item.Salted {
		buf = append(buf, salt...)
	}
	buf = append(buf, raw...)
	return buf, nil
}

func itemFor(dict rdict.Dictionary, a AVP) (rdict.Item, bool) {
	return dict.ByCode(rdict.Code{VendorID: a.VendorID, Type: a.Code})
}

// concatChunkLen is the per-fragment payload size a Concat attribute is
// split into on encode, the same 240-byte margin (well under the
// 255-byte attribute limit once code/length/vendor overhead is added)
// the teacher's RadiusPacket.ToWriter uses.
const concatChunkLen = 240

// splitConcatAVPs expands any AVP whose dictionary item is marked
// Concat and whose octet value is longer than concatChunkLen bytes into
// consecutive same-code fragments, mirroring the merge
// readAVPs performs on decode (RFC 2869 §5.13, e.g. EAP-Message).
// AVPs that don't need splitting pass through unchanged.
func splitConcatAVPs(avps []AVP, dict rdict.Dictionary) []AVP {
	var out []AVP
	for _, a := range avps {
		item, found := itemFor(dict, a)
		if !found || !item.Concat {
			out = append(out, a)
			continue
		}
		octets := a.GetOctets()
		if len(octets) <= concatChunkLen {
			out = append(out, a)
			continue
		}
		for start := 0; start < len(octets); start += concatChunkLen {
			end := start + concatChunkLen
			if end > len(octets) {
				end = len(octets)
			}
			chunk := a
			chunk.Value = append([]byte(nil), octets[start:end]...)
			out = append(out, chunk)
		}
	}
	return out
}

// readAVPs parses the attribute section of a packet (buf, immediately
// following the 20 byte header) into a slice of AVPs, resolving each
// one against dict and reversing the same obfuscation writeAVP applies.
// Concat attributes (RFC 2869 §5.13, e.g. EAP-Message) are merged into
// one logical AVP whose value is the concatenation of every instance's
// raw bytes, per spec.md's attribute model.
func readAVPs(buf []byte, dict rdict.Dictionary, secret []byte, authenticator [16]byte) ([]AVP, error) {
	var out []AVP
	concatBuf := make(map[rdict.Code][]byte)
	concatOrder := make([]rdict.Code, 0)

	pos := 0
	for pos < len(buf) {
		if pos+2 > len(buf) {
			return nil, fmt.Errorf("%w: attribute header truncated", errTruncated)
		}
		code := buf[pos]
		length := int(buf[pos+1])
		if length < 2 || pos+length > len(buf) {
			return nil, fmt.Errorf("%w: attribute length %d out of range", errBadLength, length)
		}
		body := buf[pos+2 : pos+length]
		pos += length

		if code == VendorSpecific {
			avps, err := readVendorAVP(body, dict, secret, authenticator)
			if err != nil {
				return nil, err
			}
			for _, a := range avps {
				out, concatOrder = appendOrConcat(out, concatBuf, concatOrder, dict, a)
			}
			continue
		}

		item, found := dict.ByCode(rdict.Code{Type: code})
		if !found {
			item = rdict.Item{Type: code, ValueType: rdict.TypeOctets}
		}

		a, err := readOneAVP(item, 0, code, body, secret, authenticator)
		if err != nil {
			return nil, err
		}
		out, concatOrder = appendOrConcat(out, concatBuf, concatOrder, dict, a)
	}

	for _, c := range concatOrder {
		item, _ := dict.ByCode(c)
		merged := AVP{Code: c.Type, VendorID: c.VendorID, Name: item.Name, Value: concatBuf[c]}
		if merged.Name == "" {
			merged.Name = rdict.Unknown.Name
		}
		out = append(out, merged)
	}

	return out, nil
}

// appendOrConcat routes a into out directly, or buffers it under
// concatBuf/concatOrder when its dictionary item is marked Concat, so
// repeated instances are merged once all have been read.
func appendOrConcat(out []AVP, concatBuf map[rdict.Code][]byte, concatOrder []rdict.Code, dict rdict.Dictionary, a AVP) ([]AVP, []rdict.Code) {
	item, found := itemFor(dict, a)
	if !found || !item.Concat {
		return append(out, a), concatOrder
	}
	c := rdict.Code{VendorID: a.VendorID, Type: a.Code}
	if _, seen := concatBuf[c]; !seen {
		concatOrder = append(concatOrder, c)
	}
	concatBuf[c] = append(concatBuf[c], a.GetOctets()...)
	return out, concatOrder
}

func readVendorAVP(body []byte, dict rdict.Dictionary, secret []byte, authenticator [16]byte) ([]AVP, error) {
	if len(body) < 6 {
		return nil, fmt.Errorf("%w: vendor attribute truncated", errTruncated)
	}
	vendorID := uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
	vendorCode := body[4]
	vendorLen := int(body[5])
	if vendorLen < 2 || 4+vendorLen > len(body) {
		return nil, fmt.Errorf("%w: vendor attribute length %d out of range", errBadLength, vendorLen)
	}
	vendorBody := body[6 : 4+vendorLen]

	item, found := dict.ByCode(rdict.Code{VendorID: vendorID, Type: vendorCode})
	if !found {
		item = rdict.Item{VendorID: vendorID, Type: vendorCode, ValueType: rdict.TypeOctets}
	}

	a, err := readOneAVP(item, vendorID, vendorCode, vendorBody, secret, authenticator)
	if err != nil {
		return nil, err
	}
	return []AVP{a}, nil
}

func readOneAVP(item rdict.Item, vendorID uint32, code byte, body []byte, secret []byte, authenticator [16]byte) (AVP, error) {
	tag := NoTag
	if item.Tagged {
		if len(body) < 1 {
			return AVP{}, fmt.Errorf("%w: tagged attribute has no tag byte", errBadLength)
		}
		tag = body[0]
		body = body[1:]
	}

	var salt []byte
	if item.Salted {
		if len(body) < 2 {
			return AVP{}, fmt.Errorf("%w: salted attribute has no salt", errBadLength)
		}
		salt = body[:2]
		body = body[2:]
	}

	raw := body
	if item.Encrypted {
		if item.Salted {
			raw = decrypt1(body, secret, append(append([]byte{}, authenticator[:]...), salt...))
		} else {
			raw = decrypt1(body, secret, authenticator[:])
		}
		if !item.WithLen {
			raw = bytes.TrimRight(raw, "\x00")
		}
	}

	if item.WithLen {
		if len(raw) < 1 {
			return AVP{}, fmt.Errorf("%w: length-prefixed attribute is empty", errBadLength)
		}
		n := int(raw[0])
		if 1+n > len(raw) {
			return AVP{}, fmt.Errorf("%w: internal length %d exceeds value", errBadLength, n)
		}
		raw = raw[1 : 1+n]
	}

	value, err := decodeValue(item, raw)
	if err != nil {
		return AVP{}, err
	}

	name := item.Name
	if name == "" {
		name = rdict.Unknown.Name
	}

	return AVP{Code: code, VendorID: vendorID, Name: name, Tag: tag, Value: value}, nil
}
