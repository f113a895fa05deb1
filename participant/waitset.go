package participant

import (
	"context"
	"sync"
	"time"
)

// Condition is the common interface GuardCondition, ReadCondition, and
// StatusCondition implement.
type Condition interface {
	// Triggered reports whether this condition is currently satisfied.
	Triggered() bool
}

// GuardCondition is a manually-triggered Condition, set and cleared
// explicitly by the application.
type GuardCondition struct {
	mu      sync.Mutex
	trigger bool
}

func NewGuardCondition() *GuardCondition { return &GuardCondition{} }

func (g *GuardCondition) Triggered() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.trigger
}

// SetTrigger sets or clears the guard's triggered state.
func (g *GuardCondition) SetTrigger(v bool) {
	g.mu.Lock()
	g.trigger = v
	g.mu.Unlock()
}

// ReadCondition triggers whenever its associated DataReader has data
// matching the given predicate available to take/read.
type ReadCondition struct {
	reader    *DataReader
	predicate func(*DataReader) bool
}

// NewReadCondition builds a ReadCondition bound to reader, triggered
// whenever predicate(reader) is true. A nil predicate defaults to
// "reader has at least one unread sample".
func NewReadCondition(reader *DataReader, predicate func(*DataReader) bool) *ReadCondition {
	if predicate == nil {
		predicate = func(r *DataReader) bool { return r.UnreadCount() > 0 }
	}
	return &ReadCondition{reader: reader, predicate: predicate}
}

func (c *ReadCondition) Triggered() bool { return c.predicate(c.reader) }

// StatusCondition triggers whenever any of the status kinds it watches
// has a pending, unread change on its owning entity.
type StatusCondition struct {
	mu      sync.Mutex
	pending map[StatusKind]bool
}

func NewStatusCondition() *StatusCondition {
	return &StatusCondition{pending: make(map[StatusKind]bool)}
}

func (c *StatusCondition) Triggered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}

// Mark records that a status of the given kind became pending.
func (c *StatusCondition) Mark(kind StatusKind) {
	c.mu.Lock()
	c.pending[kind] = true
	c.mu.Unlock()
}

// ClearAll resets the pending set, e.g. after the application has
// observed and handled the statuses.
func (c *StatusCondition) ClearAll() {
	c.mu.Lock()
	c.pending = make(map[StatusKind]bool)
	c.mu.Unlock()
}

// WaitSet holds a set of Conditions and blocks until at least one is
// triggered or a timeout elapses. Polling interval is a
// pragmatic compromise for conditions with no native wakeup channel
// (ReadCondition/StatusCondition are snapshot-polled); GuardCondition
// wakers could be made event-driven without changing this API.
type WaitSet struct {
	mu         sync.Mutex
	conditions []Condition
	pollEvery  time.Duration
}

// NewWaitSet builds an empty WaitSet.
func NewWaitSet() *WaitSet {
	return &WaitSet{pollEvery: 10 * time.Millisecond}
}

// Attach adds a condition to the set.
func (w *WaitSet) Attach(c Condition) {
	w.mu.Lock()
	w.conditions = append(w.conditions, c)
	w.mu.Unlock()
}

// Detach removes a condition from the set.
func (w *WaitSet) Detach(c Condition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, existing := range w.conditions {
		if existing == c {
			w.conditions = append(w.conditions[:i], w.conditions[i+1:]...)
			return
		}
	}
}

// Wait blocks until at least one attached condition is triggered or
// timeout elapses, returning the triggered subset. A zero timeout waits
// indefinitely (bounded only by ctx).
func (w *WaitSet) Wait(ctx context.Context, timeout time.Duration) []Condition {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		if triggered := w.snapshot(); len(triggered) > 0 {
			return triggered
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !deadline.IsZero() && time.Now().After(deadline) {
				return nil
			}
		}
	}
}

func (w *WaitSet) snapshot() []Condition {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Condition
	for _, c := range w.conditions {
		if c.Triggered() {
			out = append(out, c)
		}
	}
	return out
}
