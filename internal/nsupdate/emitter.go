package nsupdate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logs "github.com/danmuck/republish/internal/logging"
	"github.com/danmuck/republish/internal/observability"
	"github.com/danmuck/republish/internal/zone"
)

var (
	ErrUpdateChannel       = errors.New("nsupdate: update channel failure")
	ErrToleranceExhausted  = errors.New("nsupdate: failure tolerance exhausted")
	ErrMissingKeyReference = errors.New("nsupdate: missing key reference")
)

const DefaultSettleInterval = 100 * time.Millisecond

// EmitterConfig configures the update channel invocation.
type EmitterConfig struct {
	Binary string
	Settle time.Duration
	Budget int
	// Fatal is called once the budget is spent. The default logs and exits the process.
	Fatal func(error)
}

func DefaultEmitterConfig() EmitterConfig {
	return EmitterConfig{
		Binary: "nsupdate",
		Settle: DefaultSettleInterval,
		Budget: DefaultFailureBudget,
	}
}

// Emitter hands transactions to the zone update channel, one at a time.
type Emitter struct {
	runner    Runner
	binary    string
	settle    time.Duration
	tolerance *Tolerance
	fatal     func(error)
	sleep     func(time.Duration)
}

func NewEmitter(runner Runner, cfg EmitterConfig) *Emitter {
	if runner == nil {
		runner = LocalRunner{}
	}
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "nsupdate"
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	fatal := cfg.Fatal
	if fatal == nil {
		fatal = func(err error) { logs.Fatalf("nsupdate.Emitter giving up err=%v", err) }
	}
	tolerance := NewTolerance(cfg.Budget)
	observability.SetToleranceRemaining(tolerance.Remaining())
	return &Emitter{
		runner:    runner,
		binary:    cfg.Binary,
		settle:    cfg.Settle,
		tolerance: tolerance,
		fatal:     fatal,
		sleep:     time.Sleep,
	}
}

func (e *Emitter) Tolerance() *Tolerance {
	return e.tolerance
}

// Apply sends tx as a single nsupdate invocation and then pauses for the settle interval.
// Empty transactions are skipped without invoking the channel or pausing.
func (e *Emitter) Apply(ctx context.Context, tx *zone.Transaction) error {
	if tx.Empty() {
		return nil
	}
	if strings.TrimSpace(tx.KeyRef) == "" {
		return ErrMissingKeyReference
	}
	defer e.sleep(e.settle)

	script := tx.Script()
	logs.Tracef("nsupdate.Emitter.Apply script=%q", script)

	start := time.Now()
	out, err := e.runner.Run(ctx, script, e.binary, "-k", tx.KeyRef)
	observability.RecordUpdate(err == nil, time.Since(start))
	if err == nil {
		return nil
	}

	remaining := e.tolerance.Consume()
	observability.SetToleranceRemaining(remaining)
	failure := fmt.Errorf("%w: %v: %s", ErrUpdateChannel, err, strings.TrimSpace(out))
	if remaining == 0 {
		e.fatal(fmt.Errorf("%w after %d failures: %v", ErrToleranceExhausted, e.tolerance.Budget(), failure))
		return failure
	}
	logs.Errorf("nsupdate.Emitter.Apply failed, tolerating %d more failures err=%v", remaining, failure)
	return failure
}
