package ledger

import "fmt"

// State is the lifecycle position of an event inside the Coordinator
type State string

const (
	StateProposed  State = "proposed"
	StateValidated State = "validated"
	StateCommitted State = "committed"
	StateRejected  State = "rejected"
)

var transitions = map[State][]State{
	StateProposed:  {StateValidated, StateRejected},
	StateValidated: {StateCommitted, StateRejected},
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRejected
}

// lifecycle tracks one event through the state machine.
type lifecycle struct {
	state        State
	onTransition func(from, to State)
}

func newLifecycle() *lifecycle {
	return &lifecycle{state: StateProposed}
}

func (l *lifecycle) to(next State) error {
	for _, allowed := range transitions[l.state] {
		if allowed == next {
			if l.onTransition != nil {
				l.onTransition(l.state, next)
			}
			l.state = next
			return nil
		}
	}
	return fmt.Errorf("ledger: illegal transition %s -> %s", l.state, next)
}

// reject moves the event to Rejected and wraps cause with the stage it
// reached. A lifecycle that already committed returns cause unchanged.
func (l *lifecycle) reject(p proposal, cause error) error {
	stage := l.state
	if err := l.to(StateRejected); err != nil {
		return cause
	}
	return &RejectedError{
		Event:   p.event,
		Action:  p.action,
		EventID: p.eventID,
		Stage:   stage,
		Err:     cause,
	}
}
