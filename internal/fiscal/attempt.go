package fiscal

import (
	"fmt"
)

// State is the stage of a single authorization attempt
type State string

const (
	StateBuilding  State = "building"
	StateSigned    State = "signed"
	StateSubmitted State = "submitted"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateFailed    State = "failed"
)

var transitions = map[State][]State{
	StateBuilding:  {StateSigned, StateFailed},
	StateSigned:    {StateSubmitted, StateFailed},
	StateSubmitted: {StateApproved, StateRejected, StateFailed},
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Attempt tracks one authorization. Terminal attempts are never reused;
// a retry is a new Attempt with a freshly resolved number.
type Attempt struct {
	ID    string
	State State
}

func newAttempt(id string) *Attempt {
	return &Attempt{ID: id, State: StateBuilding}
}

func (a *Attempt) advance(to State) error {
	for _, allowed := range transitions[a.State] {
		if allowed == to {
			a.State = to
			return nil
		}
	}
	return fmt.Errorf("attempt %s: invalid transition %s -> %s", a.ID, a.State, to)
}

// AttemptError reports the stage at which an attempt failed
type AttemptError struct {
	AttemptID string
	Stage     State
	Err       error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt %s failed while %s: %v", e.AttemptID, e.Stage, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}
