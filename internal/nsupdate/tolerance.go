package nsupdate

import "sync"

const DefaultFailureBudget = 5

// Tolerance is a lifetime failure budget. It is only ever consumed, never restored.
type Tolerance struct {
	mu        sync.Mutex
	budget    int
	remaining int
}

func NewTolerance(budget int) *Tolerance {
	if budget <= 0 {
		budget = DefaultFailureBudget
	}
	return &Tolerance{budget: budget, remaining: budget}
}

// Consume spends one unit and returns what is left. It never goes below zero.
func (t *Tolerance) Consume() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.remaining > 0 {
		t.remaining--
	}
	return t.remaining
}

func (t *Tolerance) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

func (t *Tolerance) Budget() int {
	return t.budget
}

func (t *Tolerance) Exhausted() bool {
	return t.Remaining() == 0
}
