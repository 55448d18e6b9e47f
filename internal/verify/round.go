package verify

import (
	"net/netip"
	"time"

	"github.com/danmuck/republish/internal/zone"
)

// Round is the verification state for one discovered address.
type Round struct {
	ID         string
	Hostname   string
	Family     zone.Family
	Addr       netip.Addr
	Candidates []netip.Addr
	StartedAt  time.Time

	alreadyPresent bool
	pending        int
	verdicts       map[netip.Addr]bool
}

// Pending returns how many resolution results the round still waits for.
func (r *Round) Pending() int {
	return r.pending
}

// Drops returns the candidates judged stale so far, in candidate order.
func (r *Round) Drops() []netip.Addr {
	out := make([]netip.Addr, 0, len(r.verdicts))
	for _, c := range r.Candidates {
		if drop, ok := r.verdicts[c]; ok && drop {
			out = append(out, c)
		}
	}
	return out
}

func (r *Round) AlreadyPresent() bool {
	return r.alreadyPresent
}

// Transaction builds the committed mutation: deletes for stale candidates, then the new address
// unless the zone already carried it.
func (r *Round) Transaction(server, keyRef string, ttl int) *zone.Transaction {
	tx := zone.NewTransaction(server, keyRef)
	for _, addr := range r.Drops() {
		tx.Delete(r.Hostname, addr)
	}
	if !r.alreadyPresent {
		tx.Add(zone.Record{Hostname: r.Hostname, Family: r.Family, Addr: r.Addr, TTL: ttl})
	}
	return tx
}
