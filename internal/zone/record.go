package zone

import (
	"fmt"
	"net/netip"
	"strings"
)

type Family int

const (
	FamilyUnspec Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "unspec"
	}
}

// RRType is the host-address record type carrying this family.
func (f Family) RRType() string {
	if f == FamilyIPv4 {
		return "A"
	}
	return "AAAA"
}

// FamilyOf classifies an address; 4-in-6 mapped addresses count as IPv4.
func FamilyOf(addr netip.Addr) Family {
	switch {
	case !addr.IsValid():
		return FamilyUnspec
	case addr.Unmap().Is4():
		return FamilyIPv4
	default:
		return FamilyIPv6
	}
}

// Record is one host-address record. It has no identity beyond (Hostname, Addr).
type Record struct {
	Hostname string
	Family   Family
	Addr     netip.Addr
	TTL      int
}

func (r Record) String() string {
	return fmt.Sprintf("%s %d %s %s", r.Hostname, r.TTL, r.Family.RRType(), r.Addr)
}

// Routable reports whether addr may be published: global-scope unicast of the wanted family.
func Routable(addr netip.Addr, family Family) bool {
	if !addr.IsValid() || FamilyOf(addr) != family {
		return false
	}
	if addr.IsLinkLocalUnicast() || addr.IsLoopback() || addr.IsMulticast() || addr.IsUnspecified() {
		return false
	}
	return true
}

// SameHostname compares hostnames case-insensitively, ignoring the root dot.
func SameHostname(a, b string) bool {
	return strings.EqualFold(strings.TrimSuffix(a, "."), strings.TrimSuffix(b, "."))
}
