package batch

// RunState is the progress of one run through a batch.
type RunState string

const (
	StatePending     RunState = "pending"
	StateResolving   RunState = "resolving"
	StateClassifying RunState = "classifying"
	StateSubmitting  RunState = "submitting"
	StateSubmitted   RunState = "submitted"
	StateSkipped     RunState = "skipped"
)

// IsTerminal reports whether no further transitions follow s.
func (s RunState) IsTerminal() bool {
	return s == StateSubmitted || s == StateSkipped
}

// next lists the allowed transitions. Any non-terminal state may fall to skipped.
var next = map[RunState]RunState{
	StatePending:     StateResolving,
	StateResolving:   StateClassifying,
	StateClassifying: StateSubmitting,
	StateSubmitting:  StateSubmitted,
}

// CanTransition reports whether a run may move from s to to.
func (s RunState) CanTransition(to RunState) bool {
	if s.IsTerminal() {
		return false
	}
	if to == StateSkipped {
		return true
	}
	return next[s] == to
}
