package discovery

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/danmuck/republish/internal/zone"
)

func TestAddressFoundBytes(t *testing.T) {
	raw := netip.MustParseAddr("2001:db8::1").As16()
	ev, err := AddressFoundBytes("host.local", zone.FamilyIPv6, raw[:])
	if err != nil {
		t.Fatalf("found bytes: %v", err)
	}
	if ev.Kind != KindFound || ev.Family != zone.FamilyIPv6 || ev.Addr.String() != "2001:db8::1" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	v4 := []byte{192, 0, 2, 7}
	ev, err = AddressFoundBytes("printer.local", zone.FamilyIPv4, v4)
	if err != nil || ev.Addr.String() != "192.0.2.7" {
		t.Fatalf("unexpected v4 event: %+v err=%v", ev, err)
	}

	if _, err := AddressFoundBytes("host.local", zone.FamilyIPv6, []byte{1, 2, 3}); !errors.Is(err, ErrBadAddress) {
		t.Fatalf("expected ErrBadAddress for short address, got %v", err)
	}
	if _, err := AddressFoundBytes("host.local", zone.FamilyIPv6, v4); !errors.Is(err, ErrBadAddress) {
		t.Fatalf("expected family mismatch, got %v", err)
	}
}

func TestAddressLost(t *testing.T) {
	ev := AddressLost("host.local")
	if ev.Kind != KindLost || ev.Name != "host.local" || ev.Addr.IsValid() {
		t.Fatalf("unexpected lost event: %+v", ev)
	}
	if ev.Kind.String() != "lost" || KindFound.String() != "found" {
		t.Fatalf("unexpected kind names")
	}
}

func TestFamiliesFromSpec(t *testing.T) {
	if got := FamiliesFromSpec("6"); len(got) != 1 || got[0] != zone.FamilyIPv6 {
		t.Fatalf("spec 6: %v", got)
	}
	if got := FamiliesFromSpec("4"); len(got) != 1 || got[0] != zone.FamilyIPv4 {
		t.Fatalf("spec 4: %v", got)
	}
	if got := FamiliesFromSpec("46"); len(got) != 2 {
		t.Fatalf("spec 46: %v", got)
	}
	if got := FamiliesFromSpec(""); len(got) != 2 {
		t.Fatalf("empty spec: %v", got)
	}
}
