// Package limiter enforces at-most-one-concurrent-use of the interactive
// browser session shared by the initiation and reply workers.
package limiter

import (
	"fmt"
	"sync"
)

// Slot identifies which worker currently holds the interactive session.
type Slot string

const (
	// SlotNone means the session is idle.
	SlotNone Slot = ""
	// SlotInitiation is held while acquiring media and posting acknowledgements.
	SlotInitiation Slot = "initiation"
	// SlotReply is held while posting a final reply.
	SlotReply Slot = "reply"
)

var (
	// ErrNotHeld is returned when releasing a slot that is not held.
	ErrNotHeld = fmt.Errorf("session slot not held")
)

// SessionGuard is the single point of mutual exclusion for the stateful
// browser session. The session is not safely shareable, so the guard is
// intentionally coarse: one holder at a time, no queueing.
type SessionGuard struct {
	mu     sync.Mutex
	holder Slot
}

// NewSessionGuard creates an idle guard.
func NewSessionGuard() *SessionGuard {
	return &SessionGuard{}
}

// TryAcquire claims the session for the given slot. Returns false without
// blocking when any slot already holds it.
func (g *SessionGuard) TryAcquire(slot Slot) bool {
	if slot == SlotNone {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holder != SlotNone {
		return false
	}
	g.holder = slot
	return true
}

// Release frees the session. The releasing slot must match the holder.
func (g *SessionGuard) Release(slot Slot) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.holder != slot {
		return fmt.Errorf("%w: holder is %q, release requested by %q", ErrNotHeld, g.holder, slot)
	}
	g.holder = SlotNone
	return nil
}

// Idle reports whether no worker holds the session.
func (g *SessionGuard) Idle() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder == SlotNone
}

// IsInitiating reports whether the initiation worker holds the session.
func (g *SessionGuard) IsInitiating() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder == SlotInitiation
}

// IsPostingReply reports whether the reply worker holds the session.
func (g *SessionGuard) IsPostingReply() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder == SlotReply
}
