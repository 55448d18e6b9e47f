package zone

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

var ErrSnapshotQuery = errors.New("zone: snapshot query failed")

// SnapshotReader returns the addresses currently published for a hostname. A hostname absent from
// the zone yields an empty slice and a nil error; infrastructure failures wrap ErrSnapshotQuery.
type SnapshotReader interface {
	Snapshot(ctx context.Context, hostname string) ([]netip.Addr, error)
}

// DNSReader queries a name server for the hostname's host-address records.
type DNSReader struct {
	Server string
	Family Family
	Client *dns.Client
}

func NewDNSReader(server string, family Family, timeout time.Duration) *DNSReader {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DNSReader{
		Server: ServerAddr(server),
		Family: family,
		Client: &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// ServerAddr appends the DNS port when server carries none.
func ServerAddr(server string) string {
	server = strings.TrimSpace(server)
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(strings.Trim(server, "[]"), "53")
}

func (r *DNSReader) Snapshot(ctx context.Context, hostname string) ([]netip.Addr, error) {
	qtype := dns.TypeAAAA
	if r.Family == FamilyIPv4 {
		qtype = dns.TypeA
	}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(hostname), qtype)
	msg.RecursionDesired = true

	resp, _, err := r.Client.ExchangeContext(ctx, msg, r.Server)
	if err == nil && resp != nil && resp.Truncated {
		tcp := *r.Client
		tcp.Net = "tcp"
		resp, _, err = tcp.ExchangeContext(ctx, msg, r.Server)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s via %s: %v", ErrSnapshotQuery, hostname, r.Server, err)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return []netip.Addr{}, nil
	default:
		return nil, fmt.Errorf("%w: %s via %s: rcode %s", ErrSnapshotQuery, hostname, r.Server, dns.RcodeToString[resp.Rcode])
	}
	return addrsFromAnswer(resp.Answer, r.Family), nil
}

// addrsFromAnswer keeps answer order and drops duplicates and other families.
func addrsFromAnswer(answer []dns.RR, family Family) []netip.Addr {
	out := make([]netip.Addr, 0, len(answer))
	seen := make(map[netip.Addr]struct{}, len(answer))
	for _, rr := range answer {
		var ip net.IP
		switch v := rr.(type) {
		case *dns.AAAA:
			ip = v.AAAA
		case *dns.A:
			ip = v.A
		default:
			continue
		}
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		if family == FamilyIPv4 {
			addr = addr.Unmap()
		}
		if FamilyOf(addr) != family {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}
