package workflow

// State represents a stage in the import reconciliation lifecycle.
type State string

const (
	StateAnalyzed           State = "ANALYZED"
	StateCommitted          State = "COMMITTED"
	StatePartiallyCommitted State = "PARTIALLY_COMMITTED"
	StateCancelled          State = "CANCELLED"
	StateError              State = "ERROR"
)

var validStates = map[State]bool{
	StateAnalyzed:           true,
	StateCommitted:          true,
	StatePartiallyCommitted: true,
	StateCancelled:          true,
	StateError:              true,
}

var terminalStates = map[State]bool{
	StateCancelled: true,
}

// IsTerminal returns true if no further transitions are allowed from s.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsValid returns true if s is a known lifecycle state.
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}
