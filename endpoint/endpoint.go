// Package endpoint provides the canonical host+port identity (spec.md C1)
// that listening sockets and virtual servers are keyed by.
package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Family distinguishes the address families an Endpoint can carry.
type Family uint8

const (
	IPv4 Family = iota
	IPv6
)

// Endpoint is a normalized host+port identity with total ordering and
// canonical-form equality. Endpoints are created at config-load time and
// never mutated afterward.
type Endpoint struct {
	family Family
	addr   [16]byte // IPv4 uses the first 4 bytes
	port   uint16
}

// wildcardBytes reports whether ip is the all-zero wildcard address for fam.
func wildcardBytes(ip net.IP, fam Family) bool {
	if fam == IPv4 {
		return ip.Equal(net.IPv4zero)
	}
	return ip.Equal(net.IPv6zero)
}

// Parse builds an Endpoint from a host literal (IPv4, IPv6, or a wildcard
// such as "0.0.0.0"/"::"/"*") and a 1..65535 port.
func Parse(host string, port int) (Endpoint, error) {
	if port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("endpoint: invalid port %d", port)
	}
	host = strings.TrimSpace(host)
	if host == "" || host == "*" {
		return Endpoint{family: IPv4, port: uint16(port)}, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Endpoint{}, fmt.Errorf("endpoint: invalid host %q", host)
	}
	var e Endpoint
	e.port = uint16(port)
	if v4 := ip.To4(); v4 != nil {
		e.family = IPv4
		copy(e.addr[:4], v4)
	} else {
		e.family = IPv6
		copy(e.addr[:16], ip.To16())
	}
	return e, nil
}

// MustParse is Parse but panics on error; intended for config validation
// call sites that have already checked the string is well-formed.
func MustParse(host string, port int) Endpoint {
	e, err := Parse(host, port)
	if err != nil {
		panic(err)
	}
	return e
}

// Family returns the address family of e.
func (e Endpoint) Family() Family { return e.family }

// Port returns the port of e.
func (e Endpoint) Port() uint16 { return e.port }

// IsWildcard reports whether e binds to the any-address for its family.
func (e Endpoint) IsWildcard() bool {
	for _, b := range e.addrBytes() {
		if b != 0 {
			return false
		}
	}
	return true
}

func (e Endpoint) addrBytes() []byte {
	if e.family == IPv4 {
		return e.addr[:4]
	}
	return e.addr[:16]
}

// IP returns the net.IP form of the address.
func (e Endpoint) IP() net.IP {
	b := make([]byte, len(e.addrBytes()))
	copy(b, e.addrBytes())
	return net.IP(b)
}

// String renders the canonical "host:port" form, stable under copy.
func (e Endpoint) String() string {
	if e.family == IPv6 {
		return "[" + e.IP().String() + "]:" + strconv.Itoa(int(e.port))
	}
	return e.IP().String() + ":" + strconv.Itoa(int(e.port))
}

// Equal reports whether e and o refer to the same endpoint (family, address
// bytes, and port all equal).
func (e Endpoint) Equal(o Endpoint) bool {
	return e.Compare(o) == 0
}

// Compare gives a total ordering over Endpoint by family, then address
// bytes, then port. It returns <0, 0, or >0.
func (e Endpoint) Compare(o Endpoint) int {
	if e.family != o.family {
		if e.family < o.family {
			return -1
		}
		return 1
	}
	if c := compareBytes(e.addrBytes(), o.addrBytes()); c != 0 {
		return c
	}
	switch {
	case e.port < o.port:
		return -1
	case e.port > o.port:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
