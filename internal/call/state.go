package call

type State int

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateNegotiating
	StateConnected
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring_media"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s can no longer change.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

type Role int

const (
	RoleUndetermined Role = iota
	RoleOffering
	RoleAnswering
)

func (r Role) String() string {
	switch r {
	case RoleOffering:
		return "offering"
	case RoleAnswering:
		return "answering"
	default:
		return "undetermined"
	}
}

// Snapshot is a consistent copy of a session's observable state.
type Snapshot struct {
	State  State
	Role   Role
	Status string
	Err    *CallError
}
