// Package guard provides the reentrancy guard used by pools and the auction.
package guard

import (
	"sync"

	errorsmod "cosmossdk.io/errors"
)

// ErrReentrancy is returned when a guarded section is entered twice.
var ErrReentrancy = errorsmod.Register("guard", 2, "reentrant call")

// State is the guard's position in its Idle -> Entered -> Idle cycle.
type State uint8

const (
	Idle State = iota
	Entered
)

func (s State) String() string {
	if s == Entered {
		return "entered"
	}
	return "idle"
}

// Guard protects one pool's critical section. The zero value is idle.
type Guard struct {
	mu    sync.Mutex
	state State
	name  string
}

// New returns an idle guard labelled for error messages.
func New(name string) *Guard {
	return &Guard{name: name}
}

// Enter moves the guard to Entered or fails if it already is.
func (g *Guard) Enter() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == Entered {
		return errorsmod.Wrapf(ErrReentrancy, "%s is locked", g.name)
	}
	g.state = Entered
	return nil
}

// Exit returns the guard to Idle.
func (g *Guard) Exit() {
	g.mu.Lock()
	g.state = Idle
	g.mu.Unlock()
}

// State reports the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Do runs fn inside the guard. The guard is released on every return path,
// including a panic.
func (g *Guard) Do(fn func() error) error {
	if err := g.Enter(); err != nil {
		return err
	}
	defer g.Exit()
	return fn()
}
