package reconcile

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/danmuck/republish/internal/discovery"
	logs "github.com/danmuck/republish/internal/logging"
	"github.com/danmuck/republish/internal/names"
	"github.com/danmuck/republish/internal/observability"
	"github.com/danmuck/republish/internal/verify"
	"github.com/danmuck/republish/internal/zone"
)

// Engine turns discovery events into zone transactions. Everything except Status must be called
// from the goroutine running Run, or from a single test goroutine when Run is not used.
type Engine struct {
	cfg       Config
	rewriter  names.Rewriter
	snapshots zone.SnapshotReader
	applier   Applier
	tracker   *verify.Tracker
	sinks     []Sink
	now       func() time.Time

	results chan verify.Result
	stopped chan struct{}
	runOnce sync.Once

	mu     sync.Mutex
	status Status
}

func New(cfg Config, snapshots zone.SnapshotReader, applier Applier, resolver discovery.Resolver, sinks ...Sink) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if snapshots == nil || applier == nil {
		return nil, errors.New("reconcile: snapshot reader and applier are required")
	}
	if cfg.Mode == ModeAudited && resolver == nil {
		return nil, errors.New("reconcile: audited mode requires a resolver")
	}
	e := &Engine{
		cfg:       cfg,
		rewriter:  names.NewRewriter(cfg.LocalSuffix, cfg.RemoteDomain),
		snapshots: snapshots,
		applier:   applier,
		sinks:     sinks,
		now:       time.Now,
		results:   make(chan verify.Result, 64),
		stopped:   make(chan struct{}),
		status:    Status{Mode: cfg.Mode},
	}
	e.tracker = verify.NewTracker(verify.TrackerConfig{
		Resolver: resolver,
		Rewriter: e.rewriter,
		Deliver:  e.deliver,
		Commit:   e.commitRound,
	})
	return e, nil
}

// Run processes events and verification results until ctx is done. When events is closed, Run
// returns once no verification round is pending.
func (e *Engine) Run(ctx context.Context, events <-chan discovery.Event) error {
	defer e.runOnce.Do(func() { close(e.stopped) })

	for {
		if events == nil && e.tracker.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			e.Handle(ctx, ev)
		case res := <-e.results:
			e.HandleResult(ctx, res)
		}
	}
}

// deliver is the resolver callback path back into the loop.
func (e *Engine) deliver(res verify.Result) {
	select {
	case e.results <- res:
	case <-e.stopped:
	default:
		go func() {
			select {
			case e.results <- res:
			case <-e.stopped:
			}
		}()
	}
}

// Results exposes pending verification results for callers driving the engine without Run.
func (e *Engine) Results() <-chan verify.Result {
	return e.results
}

func (e *Engine) Handle(ctx context.Context, ev discovery.Event) Decision {
	var d Decision
	switch ev.Kind {
	case discovery.KindLost:
		d = e.HandleLost(ctx, ev.Name)
	default:
		d = e.HandleFound(ctx, ev.Name, ev.Addr)
	}
	observability.RecordDiscoveryEvent(ev.Kind.String(), string(d))
	return d
}

// HandleFound reconciles one discovered (name, address) pair against the zone.
func (e *Engine) HandleFound(ctx context.Context, name string, addr netip.Addr) Decision {
	e.bump(func(s *Status) { s.EventsFound++ })

	if !zone.Routable(addr, e.cfg.Family) {
		logs.Tracef("reconcile.Engine.HandleFound skip name=%q addr=%s", name, addr)
		e.bump(func(s *Status) { s.Ignored++ })
		return DecisionIgnored
	}

	hostname, err := e.rewriter.Rewrite(name)
	if err != nil {
		logs.Errorf("reconcile.Engine.HandleFound rejected name=%q err=%v", name, err)
		e.bump(func(s *Status) { s.Malformed++ })
		return DecisionMalformed
	}

	snapshot, err := e.snapshots.Snapshot(ctx, hostname)
	if err != nil {
		logs.Warnf("reconcile.Engine.HandleFound snapshot unavailable host=%q skipping err=%v", hostname, err)
		e.bump(func(s *Status) { s.SnapshotErrors++ })
		return DecisionSnapshotError
	}

	present := false
	for _, existing := range snapshot {
		logs.Tracef("? %s -> %s (new=%s same=%v)", hostname, existing, addr, existing == addr)
		if existing == addr {
			present = true
		}
	}

	if e.cfg.Mode == ModeUnaudited {
		return e.upsert(ctx, hostname, addr, snapshot, present)
	}

	if present {
		return DecisionPresent
	}
	round := e.tracker.StartRound(ctx, hostname, addr, snapshot)
	e.bump(func(s *Status) {
		s.RoundsStarted++
		s.PendingRounds = e.tracker.Pending()
	})
	if round.Pending() == 0 {
		return DecisionCommitted
	}
	return DecisionAwaiting
}

// upsert is the unaudited three-way branch on snapshot size.
func (e *Engine) upsert(ctx context.Context, hostname string, addr netip.Addr, snapshot []netip.Addr, present bool) Decision {
	tx := zone.NewTransaction(e.cfg.Server, e.cfg.KeyRef)
	record := zone.Record{Hostname: hostname, Family: e.cfg.Family, Addr: addr, TTL: e.cfg.TTL}

	var d Decision
	switch {
	case len(snapshot) == 0:
		tx.Add(record)
		d = DecisionAdd
	case len(snapshot) == 1 && present:
		return DecisionPresent
	case len(snapshot) == 1:
		tx.Delete(hostname, snapshot[0])
		tx.Add(record)
		d = DecisionUpdate
	default:
		logs.Warnf("reconcile.Engine.upsert unexpectedly many records host=%q count=%d, collapsing to %s", hostname, len(snapshot), addr)
		tx.DeleteAll(hostname, e.cfg.Family)
		tx.Add(record)
		d = DecisionCollapse
	}
	e.apply(ctx, "found", hostname, "", tx)
	return d
}

// HandleLost removes every address record for the hostname. It does not consult the zone.
func (e *Engine) HandleLost(ctx context.Context, name string) Decision {
	e.bump(func(s *Status) { s.EventsLost++ })

	hostname, err := e.rewriter.Rewrite(name)
	if err != nil {
		logs.Errorf("reconcile.Engine.HandleLost rejected name=%q err=%v", name, err)
		e.bump(func(s *Status) { s.Malformed++ })
		return DecisionMalformed
	}
	tx := zone.NewTransaction(e.cfg.Server, e.cfg.KeyRef).DeleteAll(hostname, e.cfg.Family)
	e.apply(ctx, "lost", hostname, "", tx)
	return DecisionDeleteAll
}

func (e *Engine) HandleResult(ctx context.Context, res verify.Result) {
	e.tracker.OnResult(ctx, res)
	e.bump(func(s *Status) { s.PendingRounds = e.tracker.Pending() })
}

func (e *Engine) commitRound(ctx context.Context, round *verify.Round) {
	tx := round.Transaction(e.cfg.Server, e.cfg.KeyRef, e.cfg.TTL)
	e.bump(func(s *Status) { s.RoundsCommitted++ })
	logs.Debugf(
		"reconcile.Engine.commitRound round=%s host=%q drops=%d add=%v",
		round.ID, round.Hostname, len(round.Drops()), !round.AlreadyPresent(),
	)
	e.apply(ctx, "verified", round.Hostname, round.ID, tx)
}

func (e *Engine) apply(ctx context.Context, trigger, hostname, roundID string, tx *zone.Transaction) {
	if tx.Empty() {
		return
	}
	for _, op := range tx.Ops {
		switch {
		case op.Kind == zone.OpAdd && tx.Count(zone.OpDelete)+tx.Count(zone.OpDeleteAll) > 0:
			logs.Infof("~ %s -> %s", op.Hostname, op.Addr)
		case op.Kind == zone.OpAdd:
			logs.Infof("+ %s -> %s", op.Hostname, op.Addr)
		case op.Kind == zone.OpDelete:
			logs.Infof("- %s %s", op.Hostname, op.Addr)
		default:
			logs.Infof("- %s", op.Hostname)
		}
	}

	err := e.applier.Apply(ctx, tx)
	at := e.now()
	e.bump(func(s *Status) {
		if err != nil {
			s.Failed++
			return
		}
		s.Applied++
		s.LastApplied = at
	})
	if err != nil {
		logs.Errorf("reconcile.Engine.apply host=%q trigger=%s err=%v", hostname, trigger, err)
	}

	outcome := newOutcome(trigger, hostname, roundID, tx, err, at)
	for _, sink := range e.sinks {
		if sinkErr := sink.Record(ctx, outcome); sinkErr != nil {
			logs.Warnf("reconcile.Engine.apply sink failed host=%q err=%v", hostname, sinkErr)
		}
	}
}

func (e *Engine) bump(fn func(*Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.status)
}

// Status is safe to call from any goroutine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}
