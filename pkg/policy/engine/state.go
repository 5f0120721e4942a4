package engine

// State is a position in the per-request check lifecycle.
type State string

const (
	StateIdle          State = "IDLE"
	StatePreCheck      State = "PRE_CHECK"
	StatePreBlocked    State = "PRE_BLOCKED"
	StatePreAllowed    State = "PRE_ALLOWED"
	StateToolExecution State = "TOOL_EXECUTION"
	StatePostCheck     State = "POST_CHECK"
	StatePostBlocked   State = "POST_BLOCKED"
	StatePostAllowed   State = "POST_ALLOWED"
	StateDone          State = "DONE"
)

var transitions = map[State][]State{
	StateIdle:          {StatePreCheck},
	StatePreCheck:      {StatePreBlocked, StatePreAllowed},
	StatePreAllowed:    {StateToolExecution, StatePostCheck},
	StateToolExecution: {StatePostCheck},
	StatePostCheck:     {StatePostBlocked, StatePostAllowed},
	StatePostBlocked:   {StateDone},
	StatePostAllowed:   {StateDone},
}

// CanTransition reports whether the lifecycle permits moving from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}
