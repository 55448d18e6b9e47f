package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/danmuck/republish/internal/zone"
)

type Outcome int

const (
	// OutcomeFound means a responder claimed the address under Name.
	OutcomeFound Outcome = iota
	// OutcomeNotFound means nobody answered before the deadline.
	OutcomeNotFound
	// OutcomeFailed means the query itself could not be carried out.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "failed"
	}
}

type Resolution struct {
	Family  zone.Family
	Addr    netip.Addr
	Name    string
	Outcome Outcome
	Err     error
}

// Resolver maps an address back to the local-link name that currently owns it. done is called
// exactly once, from a goroutine owned by the resolver.
type Resolver interface {
	Resolve(ctx context.Context, family zone.Family, addr netip.Addr, done func(Resolution))
}

const (
	MDNSGroupIPv4 = "224.0.0.251:5353"
	MDNSGroupIPv6 = "ff02::fb"
)

// MulticastResolver sends a one-shot PTR query for the reverse name to the mDNS group from an
// ephemeral port; responders answer by unicast to that port.
type MulticastResolver struct {
	Timeout   time.Duration
	Interface string

	// targets replaces the mDNS groups when set.
	targets []string
}

func NewMulticastResolver(timeout time.Duration, iface string) *MulticastResolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &MulticastResolver{Timeout: timeout, Interface: strings.TrimSpace(iface)}
}

func (r *MulticastResolver) Resolve(ctx context.Context, family zone.Family, addr netip.Addr, done func(Resolution)) {
	go func() {
		res := r.lookup(ctx, addr)
		res.Family = family
		done(res)
	}()
}

func (r *MulticastResolver) destinations() []string {
	if len(r.targets) > 0 {
		return r.targets
	}
	return r.groups()
}

func (r *MulticastResolver) groups() []string {
	out := []string{MDNSGroupIPv4}
	if r.Interface != "" {
		out = append(out, net.JoinHostPort(MDNSGroupIPv6+"%"+r.Interface, "5353"))
	}
	return out
}

func (r *MulticastResolver) lookup(ctx context.Context, addr netip.Addr) Resolution {
	res := Resolution{Addr: addr}
	fail := func(err error) Resolution {
		res.Outcome = OutcomeFailed
		res.Err = fmt.Errorf("%w: %s: %v", ErrResolution, addr, err)
		return res
	}

	reverse, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return fail(err)
	}
	query := new(dns.Msg)
	query.SetQuestion(reverse, dns.TypePTR)
	query.RecursionDesired = false
	packed, err := query.Pack()
	if err != nil {
		return fail(err)
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return fail(err)
	}
	defer conn.Close()

	sent := 0
	var sendErr error
	for _, group := range r.destinations() {
		dst, err := net.ResolveUDPAddr("udp", group)
		if err != nil {
			sendErr = err
			continue
		}
		if _, err := conn.WriteTo(packed, dst); err != nil {
			sendErr = err
			continue
		}
		sent++
	}
	if sent == 0 {
		return fail(sendErr)
	}

	deadline := time.Now().Add(r.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fail(err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	buf := make([]byte, dns.MaxMsgSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() == nil {
				res.Outcome = OutcomeNotFound
				return res
			}
			return fail(err)
		}
		if name, ok := ptrAnswer(buf[:n], query.Id, reverse); ok {
			res.Outcome = OutcomeFound
			res.Name = name
			return res
		}
	}
}

// ptrAnswer extracts the PTR target for reverse from a response packet. Packets for other
// queries are ignored.
func ptrAnswer(packet []byte, id uint16, reverse string) (string, bool) {
	msg := new(dns.Msg)
	if err := msg.Unpack(packet); err != nil || !msg.Response {
		return "", false
	}
	if msg.Id != 0 && msg.Id != id {
		return "", false
	}
	for _, rr := range append(msg.Answer, msg.Extra...) {
		ptr, ok := rr.(*dns.PTR)
		if !ok || !strings.EqualFold(ptr.Hdr.Name, reverse) {
			continue
		}
		return strings.TrimSuffix(ptr.Ptr, "."), true
	}
	return "", false
}
