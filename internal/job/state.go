package job

// State is the runner's lifecycle position.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateStopped   State = "stopped"
)

// Active reports whether a batch occupies the execution slot.
func (s State) Active() bool {
	return s == StateRunning || s == StateStopping
}

// Terminal reports whether s ends a batch.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateStopped:
		return true
	default:
		return false
	}
}

// validTransition enforces the state machine edges. Start may leave Idle or
// any terminal state; a rejected start goes straight to Failed.
func validTransition(from, to State) bool {
	switch from {
	case StateIdle, StateCompleted, StateFailed, StateStopped:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to == StateStopping || to == StateCompleted || to == StateFailed || to == StateStopped
	case StateStopping:
		return to == StateStopped
	default:
		return false
	}
}
