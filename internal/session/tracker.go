// Package session orders requests that compete for the same UI slot so that the
// most recent one wins.
package session

import (
	"context"
	"sync"

	"github.com/starford/dastan/internal/apperr"
)

// Ticket identifies one request in a slot.
type Ticket struct {
	Slot       string
	Generation uint64
}

type slotState struct {
	generation uint64
	cancel     context.CancelFunc
}

// Tracker keeps the newest generation and its cancel func per busy slot.
// Starting a request in a slot cancels the one already in flight there.
// A slot is dropped once its newest request finishes. Generations come from a
// single tracker-wide counter so a recreated slot never reuses a number.
type Tracker struct {
	mu    sync.Mutex
	next  uint64
	slots map[string]*slotState
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{slots: make(map[string]*slotState)}
}

// Key builds the slot key of a tool within a session.
func Key(sessionID, tool string) string {
	return sessionID + "/" + tool
}

// Begin starts a new generation in slot, cancelling the previous one.
// The returned context is cancelled when a newer request begins or parent ends;
// callers must call Finish.
func (t *Tracker) Begin(parent context.Context, slot string) (context.Context, Ticket) {
	ctx, cancel := context.WithCancel(parent)

	t.mu.Lock()
	st, ok := t.slots[slot]
	if !ok {
		st = &slotState{}
		t.slots[slot] = st
	}
	if st.cancel != nil {
		st.cancel()
	}
	t.next++
	st.generation = t.next
	st.cancel = cancel
	ticket := Ticket{Slot: slot, Generation: st.generation}
	t.mu.Unlock()

	return ctx, ticket
}

// Finish releases the ticket and reports whether it is still the newest in its slot.
func (t *Tracker) Finish(ticket Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.slots[ticket.Slot]
	if !ok || st.generation != ticket.Generation {
		return false
	}
	if st.cancel != nil {
		st.cancel()
	}
	delete(t.slots, ticket.Slot)
	return true
}

// Current reports whether ticket is still the newest in its slot.
func (t *Tracker) Current(ticket Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.slots[ticket.Slot]
	return ok && st.generation == ticket.Generation
}

// Generation returns the generation in flight in slot, or 0 when it is idle.
func (t *Tracker) Generation(slot string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.slots[slot]; ok {
		return st.generation
	}
	return 0
}

// Len returns the number of slots with a request in flight.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// Run executes fn under slot. If a newer request begins in the same slot before
// fn returns, fn's context is cancelled and Run returns apperr.ErrStale.
func Run[T any](t *Tracker, parent context.Context, slot string, fn func(ctx context.Context) (T, error)) (T, Ticket, error) {
	ctx, ticket := t.Begin(parent, slot)
	res, err := fn(ctx)
	if !t.Finish(ticket) {
		var zero T
		return zero, ticket, apperr.ErrStale
	}
	return res, ticket, err
}
