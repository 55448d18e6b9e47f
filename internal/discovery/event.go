package discovery

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/danmuck/republish/internal/zone"
)

var (
	ErrResolution   = errors.New("discovery: resolution failed")
	ErrBrowseFailed = errors.New("discovery: browse failed")
	ErrBadAddress   = errors.New("discovery: bad address")
)

type Kind int

const (
	KindFound Kind = iota
	KindLost
)

func (k Kind) String() string {
	if k == KindLost {
		return "lost"
	}
	return "found"
}

// Event is one discovery notification. Family and Addr are only set for KindFound.
type Event struct {
	Kind   Kind
	Name   string
	Family zone.Family
	Addr   netip.Addr
}

func AddressFound(name string, addr netip.Addr) Event {
	return Event{Kind: KindFound, Name: name, Family: zone.FamilyOf(addr), Addr: addr}
}

// AddressFoundBytes builds a found event from raw address bytes of the given family.
func AddressFoundBytes(name string, family zone.Family, raw []byte) (Event, error) {
	addr, ok := netip.AddrFromSlice(raw)
	if !ok {
		return Event{}, fmt.Errorf("%w: %d bytes", ErrBadAddress, len(raw))
	}
	if family == zone.FamilyIPv4 {
		addr = addr.Unmap()
	}
	if zone.FamilyOf(addr) != family {
		return Event{}, fmt.Errorf("%w: %s is not %s", ErrBadAddress, addr, family)
	}
	return Event{Kind: KindFound, Name: name, Family: family, Addr: addr}, nil
}

func AddressLost(name string) Event {
	return Event{Kind: KindLost, Name: name}
}

// FamiliesFromSpec reads an address family spec such as "4", "6" or "46". Anything without a
// digit means both.
func FamiliesFromSpec(spec string) []zone.Family {
	has4 := strings.Contains(spec, "4")
	has6 := strings.Contains(spec, "6")
	switch {
	case has4 && !has6:
		return []zone.Family{zone.FamilyIPv4}
	case has6 && !has4:
		return []zone.Family{zone.FamilyIPv6}
	default:
		return []zone.Family{zone.FamilyIPv4, zone.FamilyIPv6}
	}
}
