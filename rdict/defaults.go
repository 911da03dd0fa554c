package rdict

// Default is a small built-in Dictionary covering the RFC 2865/2866/2869
// attributes this module's own tests and the retransmission/transport
// examples exercise (User-Name, User-Password, NAS identification,
// CHAP, Message-Authenticator, and so on). A consumer with a full
// dictionary file should load it with FromJSON instead; Default exists so
// the module is usable standalone, the same way the teacher's
// resources/searchRules.json ships a bootstrap dictionary with the repo.
var Default = mustBuildDefault()

func mustBuildDefault() Dictionary {
	d := &staticDict{
		byCode: make(map[Code]Item),
		byName: make(map[string]Item),
	}

	add := func(item Item) {
		d.byCode[Code{VendorID: item.VendorID, Type: item.Type}] = item
		d.byName[item.Name] = item
	}

	add(Item{Type: 1, Name: "User-Name", ValueType: TypeString})
	add(Item{Type: 2, Name: "User-Password", ValueType: TypeOctets, Encrypted: true, WithLen: false})
	add(Item{Type: 3, Name: "CHAP-Password", ValueType: TypeOctets})
	add(Item{Type: 4, Name: "NAS-IP-Address", ValueType: TypeAddress})
	add(Item{Type: 5, Name: "NAS-Port", ValueType: TypeInteger})
	add(Item{Type: 6, Name: "Service-Type", ValueType: TypeInteger, EnumValues: map[string]int64{
		"Login": 1, "Framed": 2, "Callback-Login": 3, "Callback-Framed": 4,
		"Outbound": 5, "Administrative": 6, "NAS-Prompt": 7, "Authenticate-Only": 8,
	}})
	add(Item{Type: 7, Name: "Framed-Protocol", ValueType: TypeInteger, EnumValues: map[string]int64{
		"PPP": 1, "SLIP": 2,
	}})
	add(Item{Type: 8, Name: "Framed-IP-Address", ValueType: TypeAddress})
	add(Item{Type: 11, Name: "Filter-Id", ValueType: TypeString})
	add(Item{Type: 12, Name: "Framed-MTU", ValueType: TypeInteger})
	add(Item{Type: 18, Name: "Reply-Message", ValueType: TypeString})
	add(Item{Type: 24, Name: "State", ValueType: TypeOctets})
	add(Item{Type: 25, Name: "Class", ValueType: TypeOctets})
	add(Item{Type: 27, Name: "Session-Timeout", ValueType: TypeInteger})
	add(Item{Type: 28, Name: "Idle-Timeout", ValueType: TypeInteger})
	add(Item{Type: 30, Name: "Called-Station-Id", ValueType: TypeString})
	add(Item{Type: 31, Name: "Calling-Station-Id", ValueType: TypeString})
	add(Item{Type: 32, Name: "NAS-Identifier", ValueType: TypeString})
	add(Item{Type: 33, Name: "Proxy-State", ValueType: TypeOctets})
	add(Item{Type: 40, Name: "Acct-Status-Type", ValueType: TypeInteger, EnumValues: map[string]int64{
		"Start": 1, "Stop": 2, "Interim-Update": 3, "Accounting-On": 7, "Accounting-Off": 8,
	}})
	add(Item{Type: 41, Name: "Acct-Delay-Time", ValueType: TypeInteger})
	add(Item{Type: 42, Name: "Acct-Input-Octets", ValueType: TypeInteger})
	add(Item{Type: 43, Name: "Acct-Output-Octets", ValueType: TypeInteger})
	add(Item{Type: 44, Name: "Acct-Session-Id", ValueType: TypeString})
	add(Item{Type: 45, Name: "Acct-Authentic", ValueType: TypeInteger})
	add(Item{Type: 46, Name: "Acct-Session-Time", ValueType: TypeInteger})
	add(Item{Type: 60, Name: "CHAP-Challenge", ValueType: TypeOctets})
	add(Item{Type: 61, Name: "NAS-Port-Type", ValueType: TypeInteger})
	add(Item{Type: 64, Name: "Tunnel-Type", ValueType: TypeInteger, Tagged: true})
	add(Item{Type: 65, Name: "Tunnel-Medium-Type", ValueType: TypeInteger, Tagged: true})
	add(Item{Type: 69, Name: "Tunnel-Password", ValueType: TypeOctets, Encrypted: true, Salted: true, Tagged: true, WithLen: true})
	add(Item{Type: 79, Name: "EAP-Message", ValueType: TypeOctets, Concat: true})
	add(Item{Type: 80, Name: "Message-Authenticator", ValueType: TypeOctets})
	add(Item{Type: 87, Name: "NAS-Port-Id", ValueType: TypeString})
	add(Item{Type: 95, Name: "NAS-IPv6-Address", ValueType: TypeIPv6Address})
	add(Item{Type: 97, Name: "Framed-Interface-Id", ValueType: TypeInterfaceID})
	add(Item{Type: 98, Name: "Framed-IPv6-Prefix", ValueType: TypeIPv6Prefix})

	return d
}
