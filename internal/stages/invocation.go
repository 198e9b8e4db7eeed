package stages

import (
	"fmt"
	"time"
)

// State is the lifecycle position of one stage invocation.
type State string

const (
	StateIdle      State = "idle"
	StateStaging   State = "staging"
	StateInvoked   State = "invoked"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

var transitions = map[State][]State{
	StateIdle:    {StateStaging, StateFailed},
	StateStaging: {StateInvoked, StateFailed},
	StateInvoked: {StateSucceeded, StateFailed},
}

// Invocation records one engine call. It is never persisted.
type Invocation struct {
	Stage      string
	RequestID  string
	Binary     string
	Args       []string
	ScratchDir string
	Outputs    []string // declared output paths inside ScratchDir
	State      State
	StartedAt  time.Time
}

// advance moves the invocation to next, rejecting illegal transitions.
// Succeeded and Failed are terminal.
func (inv *Invocation) advance(next State) error {
	for _, allowed := range transitions[inv.State] {
		if allowed == next {
			inv.State = next
			return nil
		}
	}
	return fmt.Errorf("illegal state transition %s -> %s", inv.State, next)
}
