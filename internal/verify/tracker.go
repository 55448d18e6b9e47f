package verify

import (
	"context"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/republish/internal/discovery"
	logs "github.com/danmuck/republish/internal/logging"
	"github.com/danmuck/republish/internal/names"
	"github.com/danmuck/republish/internal/observability"
	"github.com/danmuck/republish/internal/zone"
)

// Result is a resolution bound to the round that requested it.
type Result struct {
	RoundID    string
	Resolution discovery.Resolution
}

// CommitFunc receives a round whose results are all in. The round is already disposed.
type CommitFunc func(ctx context.Context, round *Round)

type TrackerConfig struct {
	Resolver discovery.Resolver
	Rewriter names.Rewriter
	// Deliver hands a resolver callback back to the owning goroutine.
	Deliver func(Result)
	Commit  CommitFunc
}

type Tracker struct {
	resolver discovery.Resolver
	rewriter names.Rewriter
	deliver  func(Result)
	commit   CommitFunc
	rounds   map[string]*Round
	now      func() time.Time
}

func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{
		resolver: cfg.Resolver,
		rewriter: cfg.Rewriter,
		deliver:  cfg.Deliver,
		commit:   cfg.Commit,
		rounds:   make(map[string]*Round),
		now:      time.Now,
	}
}

// StartRound re-resolves every snapshot address other than addr. With nothing to verify the round
// commits before StartRound returns.
func (t *Tracker) StartRound(ctx context.Context, hostname string, addr netip.Addr, snapshot []netip.Addr) *Round {
	round := &Round{
		ID:        uuid.NewString(),
		Hostname:  hostname,
		Family:    zone.FamilyOf(addr),
		Addr:      addr,
		StartedAt: t.now(),
		verdicts:  make(map[netip.Addr]bool),
	}
	for _, existing := range snapshot {
		if existing == addr {
			round.alreadyPresent = true
			continue
		}
		if containsAddr(round.Candidates, existing) {
			continue
		}
		round.Candidates = append(round.Candidates, existing)
	}
	round.pending = len(round.Candidates)

	if round.pending == 0 {
		logs.Debugf("verify.Tracker.StartRound round=%s host=%q nothing to verify", round.ID, hostname)
		t.finish(ctx, round)
		return round
	}

	t.rounds[round.ID] = round
	observability.SetPendingRounds(len(t.rounds))
	logs.Debugf("verify.Tracker.StartRound round=%s host=%q addr=%s candidates=%d", round.ID, hostname, addr, round.pending)

	for _, candidate := range round.Candidates {
		id := round.ID
		t.resolver.Resolve(ctx, round.Family, candidate, func(res discovery.Resolution) {
			t.deliver(Result{RoundID: id, Resolution: res})
		})
	}
	return round
}

// OnResult records one resolution. It returns true when the result completed its round.
func (t *Tracker) OnResult(ctx context.Context, res Result) bool {
	round, ok := t.rounds[res.RoundID]
	if !ok {
		logs.Warnf("verify.Tracker.OnResult unknown round=%s addr=%s", res.RoundID, res.Resolution.Addr)
		return false
	}
	addr := res.Resolution.Addr
	if !containsAddr(round.Candidates, addr) {
		logs.Warnf("verify.Tracker.OnResult round=%s unexpected addr=%s", round.ID, addr)
		return false
	}
	if _, dup := round.verdicts[addr]; dup {
		logs.Warnf("verify.Tracker.OnResult round=%s duplicate result addr=%s", round.ID, addr)
		return false
	}

	drop := t.stale(round, res.Resolution)
	round.verdicts[addr] = drop
	round.pending--
	observability.RecordVerification(res.Resolution.Outcome.String(), drop)
	logs.Tracef(
		"verify.Tracker.OnResult round=%s host=%q addr=%s outcome=%s name=%q drop=%v pending=%d",
		round.ID, round.Hostname, addr, res.Resolution.Outcome, res.Resolution.Name, drop, round.pending,
	)
	if res.Resolution.Err != nil {
		logs.Warnf("verify.Tracker.OnResult round=%s addr=%s keeping on error err=%v", round.ID, addr, res.Resolution.Err)
	}

	if round.pending > 0 {
		return false
	}
	delete(t.rounds, round.ID)
	observability.SetPendingRounds(len(t.rounds))
	t.finish(ctx, round)
	return true
}

// stale decides whether a candidate no longer belongs to the round's hostname. A failed query
// leaves the address alone.
func (t *Tracker) stale(round *Round, res discovery.Resolution) bool {
	switch res.Outcome {
	case discovery.OutcomeFound:
		return !t.rewriter.SameHost(res.Name, round.Hostname)
	case discovery.OutcomeNotFound:
		return true
	default:
		return false
	}
}

func (t *Tracker) finish(ctx context.Context, round *Round) {
	if t.commit != nil {
		t.commit(ctx, round)
	}
}

// Pending returns the number of rounds waiting on results.
func (t *Tracker) Pending() int {
	return len(t.rounds)
}

// Round looks up an in-flight round.
func (t *Tracker) Round(id string) (*Round, bool) {
	r, ok := t.rounds[id]
	return r, ok
}

func containsAddr(list []netip.Addr, addr netip.Addr) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
