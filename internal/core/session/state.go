package session

// State is a node of the build retry state machine.
type State int

const (
	StateIdle State = iota
	StateProbing
	StateAttempting
	StateClassifying
	StateDeciding
	StateRewriting
	StateSucceeded
	StateExhausted
	StateUnrecoverable
)

var stateNames = [...]string{
	StateIdle:          "idle",
	StateProbing:       "probing",
	StateAttempting:    "attempting",
	StateClassifying:   "classifying",
	StateDeciding:      "deciding",
	StateRewriting:     "rewriting",
	StateSucceeded:     "succeeded",
	StateExhausted:     "exhausted",
	StateUnrecoverable: "unrecoverable",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateExhausted || s == StateUnrecoverable
}

// transitions is the complete table of legal moves. Attempting, Deciding and
// Rewriting may also end in Unrecoverable on infrastructure failure,
// generator failure or cancellation.
var transitions = map[State][]State{
	StateIdle:        {StateProbing},
	StateProbing:     {StateAttempting, StateUnrecoverable},
	StateAttempting:  {StateSucceeded, StateClassifying, StateUnrecoverable},
	StateClassifying: {StateDeciding},
	StateDeciding:    {StateRewriting, StateExhausted, StateUnrecoverable},
	StateRewriting:   {StateAttempting, StateUnrecoverable},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
