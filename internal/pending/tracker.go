// Package pending serializes remote writes per entity identifier. It is the
// only serialization primitive in the sync engine: local state changes are
// applied synchronously by their owning store, while the tracker guarantees
// that remote I/O for a given entity happens one operation at a time, in
// enqueue order.
package pending

import "sync"

// Operation is a queued remote write. Its error is routed to the enqueue
// call's error handler and never into the next queued operation.
type Operation func() error

// ErrorHandler receives the failure of a single queued operation.
type ErrorHandler func(err error)

type queuedWrite struct {
	settled chan struct{}
}

// Tracker keys chains of queued writes by entity id. The zero value is not
// usable; construct with NewTracker.
type Tracker struct {
	mu       sync.Mutex
	tails    map[string]*queuedWrite
	inFlight sync.WaitGroup
}

// NewTracker constructs an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{tails: make(map[string]*queuedWrite)}
}

// Enqueue appends operation to the write chain for id. The operation starts
// after every previously enqueued operation for the same id has settled,
// regardless of whether those operations succeeded. On failure the error goes
// to onError; once settled, the tracker entry for id is cleared when this
// operation is still the recorded tail, so an idle id holds no state.
// Operations for distinct ids run fully in parallel.
func (t *Tracker) Enqueue(id string, operation Operation, onError ErrorHandler) {
	if operation == nil {
		return
	}
	current := &queuedWrite{settled: make(chan struct{})}

	t.mu.Lock()
	previous := t.tails[id]
	t.tails[id] = current
	t.mu.Unlock()

	t.inFlight.Add(1)
	go func() {
		defer t.inFlight.Done()
		defer close(current.settled)

		if previous != nil {
			<-previous.settled
		}

		if err := operation(); err != nil && onError != nil {
			onError(err)
		}

		t.mu.Lock()
		if t.tails[id] == current {
			delete(t.tails, id)
		}
		t.mu.Unlock()
	}()
}

// HasPending reports whether any write for id is queued or in flight.
func (t *Tracker) HasPending(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tails[id]
	return ok
}

// Wait blocks until every queued operation across all ids has settled.
// Intended for shutdown and tests; new enqueues during Wait extend it.
func (t *Tracker) Wait() {
	t.inFlight.Wait()
}
