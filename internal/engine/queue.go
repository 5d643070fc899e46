// Package engine implements the consensus validation engine for extracted
// formulas.
package engine

import (
	"sync"
	"time"

	"github.com/propflow/veritas/internal/model"
)

// Queue orders pending formulas by priority tier, then by enqueue order.
// It also tracks the in-flight set so that at most one attempt per formula
// is ever active, even across concurrent workers.
type Queue struct {
	queued   map[string]struct{}
	inflight map[string]struct{}
	entries  []queueEntry
	seq      uint64
	mu       sync.Mutex
}

type queueEntry struct {
	enqueuedAt time.Time
	formula    model.Formula
	tier       model.PriorityTier
	seq        uint64
}

// NewQueue creates an empty priority queue.
func NewQueue() *Queue {
	return &Queue{
		queued:   make(map[string]struct{}),
		inflight: make(map[string]struct{}),
	}
}

// Enqueue inserts a formula. Returns false if the formula was suppressed:
// already queued, or in a terminal status. A formula currently in flight may
// be queued again (a retry), but will not be dequeued until its active
// attempt finishes.
func (q *Queue) Enqueue(f model.Formula) bool {
	if f.Status.IsTerminal() {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[f.ID]; ok {
		return false
	}

	q.seq++
	q.entries = append(q.entries, queueEntry{
		formula:    f,
		tier:       f.Tier(),
		enqueuedAt: time.Now(),
		seq:        q.seq,
	})
	q.queued[f.ID] = struct{}{}
	return true
}

// DequeueNext returns the highest-priority, oldest-enqueued formula with no
// active attempt and marks it in flight. The second return is false when no
// eligible formula exists; an empty queue is not an error.
func (q *Queue) DequeueNext() (model.Formula, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	best := -1
	for i, e := range q.entries {
		if _, busy := q.inflight[e.formula.ID]; busy {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		b := q.entries[best]
		if e.tier.Rank() < b.tier.Rank() || (e.tier.Rank() == b.tier.Rank() && e.seq < b.seq) {
			best = i
		}
	}

	if best == -1 {
		return model.Formula{}, false
	}

	e := q.entries[best]
	q.entries = append(q.entries[:best], q.entries[best+1:]...)
	delete(q.queued, e.formula.ID)
	q.inflight[e.formula.ID] = struct{}{}
	return e.formula, true
}

// Finish removes a formula from the in-flight set once its round completes.
func (q *Queue) Finish(formulaID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, formulaID)
}

// Idle reports whether the queue holds no entries and no in-flight work.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries) == 0 && len(q.inflight) == 0
}

// Depth returns the number of queued formulas per tier.
func (q *Queue) Depth() map[model.PriorityTier]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	depth := make(map[model.PriorityTier]int, 3)
	for _, e := range q.entries {
		depth[e.tier]++
	}
	return depth
}
