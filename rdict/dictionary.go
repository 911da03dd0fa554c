// Package rdict defines the read-only attribute dictionary the packet
// codec consults, and a default JSON-backed implementation. Per spec.md
// §1/§6 the dictionary is an external collaborator whose file format the
// core does not define; this package supplies the lookup interface plus a
// usable concrete loader, generalized from the teacher's
// core/radiusdict.go.
package rdict

import (
	"encoding/json"
	"fmt"
)

// AttributeType identifies how an attribute's value bytes are encoded on
// the wire.
type AttributeType int

const (
	TypeOctets AttributeType = iota
	TypeString
	TypeAddress
	TypeInteger
	TypeTime
	TypeIPv6Address
	TypeIPv6Prefix
	TypeInterfaceID
	TypeInteger64
)

// Code identifies an attribute by its numeric type and, for vendor
// specific attributes (type 26), its vendor ID.
type Code struct {
	VendorID uint32
	Type     byte
}

// Item is the metadata the codec needs to encode or decode one attribute.
type Item struct {
	VendorID   uint32
	Type       byte
	Name       string
	ValueType  AttributeType
	EnumValues map[string]int64
	EnumNames  map[int64]string
	Encrypted  bool // User-Password style obfuscation
	Salted     bool // Tunnel-Password style obfuscation
	Tagged     bool
	WithLen    bool // value is internally length-prefixed before encryption
	Concat     bool // repeated instances concatenate into one logical value
}

// Unknown supplies the Name the codec gives an attribute whose code has no
// matching Item (ByCode and ByName themselves return a zero Item and
// false); such an attribute is treated as an opaque octet string, per
// spec.md §3.2.
var Unknown = Item{Name: "Unknown", ValueType: TypeOctets}

// Dictionary is the read-only lookup the codec consults. Implementations
// must be safe for concurrent use after construction, since a Dictionary
// is shared across every client and transport built against it.
type Dictionary interface {
	ByCode(code Code) (Item, bool)
	ByName(name string) (Item, bool)
}

// staticDict is a simple in-memory Dictionary, the same shape as the
// teacher's RadiusDict.
type staticDict struct {
	byCode map[Code]Item
	byName map[string]Item
}

func (d *staticDict) ByCode(code Code) (Item, bool) {
	item, found := d.byCode[code]
	return item, found
}

func (d *staticDict) ByName(name string) (Item, bool) {
	item, found := d.byName[name]
	return item, found
}

// jsonAttribute and jsonVendor mirror the teacher's jRadiusAVP/jVendor
// on-disk shape.
type jsonAttribute struct {
	Code       byte
	Name       string
	Type       string
	EnumValues map[string]int64
	Encrypted  bool
	Tagged     bool
	Salted     bool
	WithLen    bool
	Concat     bool
}

type jsonVendorAttributes struct {
	VendorID   uint32
	Attributes []jsonAttribute
}

type jsonVendor struct {
	VendorID   uint32
	VendorName string
}

type jsonDictionary struct {
	Vendors []jsonVendor
	Attrs   []jsonVendorAttributes
}

// FromJSON builds a Dictionary from the JSON document shape above,
// generalizing the teacher's NewRadiusDictionaryFromJSON.
func FromJSON(data []byte) (Dictionary, error) {
	var raw jsonDictionary
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("bad dictionary json: %w", err)
	}

	vendorNames := make(map[uint32]string, len(raw.Vendors))
	for _, v := range raw.Vendors {
		vendorNames[v.VendorID] = v.VendorName
	}

	d := &staticDict{
		byCode: make(map[Code]Item),
		byName: make(map[string]Item),
	}

	for _, va := range raw.Attrs {
		prefix := ""
		if name := vendorNames[va.VendorID]; name != "" {
			prefix = name + "-"
		}
		for _, attr := range va.Attributes {
			vt, err := parseValueType(attr.Type)
			if err != nil {
				return nil, fmt.Errorf("attribute %s: %w", attr.Name, err)
			}
			if attr.Concat && vt != TypeOctets {
				return nil, fmt.Errorf("attribute %s: concat only valid for Octets type", attr.Name)
			}

			var enumNames map[int64]string
			if attr.EnumValues != nil {
				enumNames = make(map[int64]string, len(attr.EnumValues))
				for name, value := range attr.EnumValues {
					enumNames[value] = name
				}
			}

			item := Item{
				VendorID:   va.VendorID,
				Type:       attr.Code,
				Name:       prefix + attr.Name,
				ValueType:  vt,
				EnumValues: attr.EnumValues,
				EnumNames:  enumNames,
				Encrypted:  attr.Encrypted,
				Tagged:     attr.Tagged,
				Salted:     attr.Salted,
				WithLen:    attr.WithLen,
				Concat:     attr.Concat,
			}

			d.byCode[Code{VendorID: va.VendorID, Type: attr.Code}] = item
			d.byName[item.Name] = item
		}
	}

	return d, nil
}

func parseValueType(s string) (AttributeType, error) {
	switch s {
	case "Octets":
		return TypeOctets, nil
	case "String":
		return TypeString, nil
	case "Address":
		return TypeAddress, nil
	case "Integer":
		return TypeInteger, nil
	case "Time":
		return TypeTime, nil
	case "IPv6Address":
		return TypeIPv6Address, nil
	case "IPv6Prefix":
		return TypeIPv6Prefix, nil
	case "InterfaceId":
		return TypeInterfaceID, nil
	case "Integer64":
		return TypeInteger64, nil
	default:
		return 0, fmt.Errorf("%q is not a valid attribute type", s)
	}
}
