package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"

	logs "github.com/danmuck/republish/internal/logging"
	"github.com/danmuck/republish/internal/zone"
)

type BrowserConfig struct {
	Service  string
	Domain   string
	Families []zone.Family
	Interval time.Duration
	Timeout  time.Duration
	// WithdrawOnLoss emits AddressLost for hosts missing from LostAfter consecutive passes.
	WithdrawOnLoss bool
	LostAfter      int
	// ResyncEvery re-emits every known pair after this many passes; zero disables it.
	ResyncEvery int
	// MaxFailedPasses is how many consecutive failed browse passes are tolerated before Run
	// gives up with ErrBrowseFailed.
	MaxFailedPasses int
	Interface       *net.Interface
}

func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Service:         "_ssh._tcp",
		Domain:          "local",
		Families:        []zone.Family{zone.FamilyIPv6},
		Interval:        30 * time.Second,
		Timeout:         3 * time.Second,
		LostAfter:       3,
		ResyncEvery:     20,
		MaxFailedPasses: 3,
	}
}

type pair struct {
	host string
	addr netip.Addr
}

// Browser turns periodic mDNS browse passes into discovery events. Only new (host, address)
// pairs are emitted between resyncs.
type Browser struct {
	cfg    BrowserConfig
	query  func(*mdns.QueryParam) error
	known  map[pair]struct{}
	missed map[string]int
	passes int
	log    zerolog.Logger
}

func NewBrowser(cfg BrowserConfig) *Browser {
	def := DefaultBrowserConfig()
	if strings.TrimSpace(cfg.Service) == "" {
		cfg.Service = def.Service
	}
	if strings.TrimSpace(cfg.Domain) == "" {
		cfg.Domain = def.Domain
	}
	if len(cfg.Families) == 0 {
		cfg.Families = def.Families
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.LostAfter <= 0 {
		cfg.LostAfter = def.LostAfter
	}
	if cfg.MaxFailedPasses <= 0 {
		cfg.MaxFailedPasses = def.MaxFailedPasses
	}
	return &Browser{
		cfg:    cfg,
		query:  mdns.Query,
		known:  make(map[pair]struct{}),
		missed: make(map[string]int),
		log:    logs.Component("discovery.browser"),
	}
}

// Run browses until ctx is done. A failed pass is logged and retried on the next tick; only
// MaxFailedPasses failures in a row return ErrBrowseFailed.
func (b *Browser) Run(ctx context.Context, out chan<- Event) error {
	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		entries, err := b.pass(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			failures++
			if failures >= b.cfg.MaxFailedPasses {
				return fmt.Errorf("%w: service=%s after %d passes: %v", ErrBrowseFailed, b.cfg.Service, failures, err)
			}
			b.log.Warn().Err(err).Str("service", b.cfg.Service).Int("failures", failures).Msg("browse pass failed")
		} else {
			failures = 0
			b.emit(ctx, out, b.diff(entries))
		}
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (b *Browser) emit(ctx context.Context, out chan<- Event, events []Event) {
	for _, ev := range events {
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (b *Browser) pass(ctx context.Context) ([]*mdns.ServiceEntry, error) {
	entries := make(chan *mdns.ServiceEntry, 64)
	done := make(chan error, 1)
	params := &mdns.QueryParam{
		Service:   b.cfg.Service,
		Domain:    b.cfg.Domain,
		Timeout:   b.cfg.Timeout,
		Interface: b.cfg.Interface,
		Entries:   entries,
	}
	go func() { done <- b.query(params) }()

	var out []*mdns.ServiceEntry
	for {
		select {
		case entry := <-entries:
			out = append(out, entry)
		case err := <-done:
			for {
				select {
				case entry := <-entries:
					out = append(out, entry)
				default:
					return out, err
				}
			}
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}

func (b *Browser) wants(family zone.Family) bool {
	for _, f := range b.cfg.Families {
		if f == family {
			return true
		}
	}
	return false
}

// diff folds one pass into the browser state and returns the events it implies.
func (b *Browser) diff(entries []*mdns.ServiceEntry) []Event {
	b.passes++
	resync := b.cfg.ResyncEvery > 0 && b.passes%b.cfg.ResyncEvery == 0

	current := make(map[pair]struct{})
	hosts := make(map[string]struct{})
	var events []Event
	for _, entry := range entries {
		if entry == nil || strings.TrimSpace(entry.Host) == "" {
			continue
		}
		host := strings.TrimSuffix(entry.Host, ".")
		hosts[host] = struct{}{}
		for _, ip := range []net.IP{entry.AddrV6, entry.AddrV4} {
			addr, ok := netip.AddrFromSlice(ip)
			if !ok {
				continue
			}
			addr = addr.Unmap()
			if !b.wants(zone.FamilyOf(addr)) {
				continue
			}
			p := pair{host: host, addr: addr}
			if _, dup := current[p]; dup {
				continue
			}
			current[p] = struct{}{}
			if _, seen := b.known[p]; seen && !resync {
				continue
			}
			b.log.Debug().Str("host", host).Stringer("addr", addr).Str("service", b.cfg.Service).Msg("found")
			events = append(events, AddressFound(host, addr))
		}
	}

	knownHosts := make(map[string]struct{})
	for p := range b.known {
		knownHosts[p.host] = struct{}{}
		if _, ok := hosts[p.host]; ok {
			if _, still := current[p]; !still {
				delete(b.known, p)
			}
		}
	}
	for host := range knownHosts {
		if _, ok := hosts[host]; ok {
			delete(b.missed, host)
			continue
		}
		b.missed[host]++
	}
	for host, misses := range b.missed {
		if misses < b.cfg.LostAfter {
			continue
		}
		delete(b.missed, host)
		for p := range b.known {
			if p.host == host {
				delete(b.known, p)
			}
		}
		if b.cfg.WithdrawOnLoss {
			b.log.Debug().Str("host", host).Int("passes", misses).Msg("lost")
			events = append(events, AddressLost(host))
		}
	}

	for p := range current {
		b.known[p] = struct{}{}
	}
	return events
}
