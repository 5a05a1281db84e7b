package fragment

import "fmt"

// State is the phase of one fragmented operation.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingReply
	StateContinuing
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateContinuing:
		return "continuing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	StateIdle:          {StateSending, StateFailed},
	StateSending:       {StateAwaitingReply, StateFailed},
	StateAwaitingReply: {StateCompleted, StateContinuing, StateFailed},
	StateContinuing:    {StateSending, StateFailed},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
