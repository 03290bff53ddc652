package controller

// State is a step of the location-to-display pipeline.
type State int

const (
	StateInit State = iota
	StateCheckingLocationService
	StateLocationDisabled
	StateCheckingPermissions
	StatePermissionDenied
	StateFetching
	StateIdle
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateCheckingLocationService:
		return "checking_location_service"
	case StateLocationDisabled:
		return "location_disabled"
	case StateCheckingPermissions:
		return "checking_permissions"
	case StatePermissionDenied:
		return "permission_denied"
	case StateFetching:
		return "fetching"
	case StateIdle:
		return "idle"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the cycle has ended in s and needs a new Start or
// Refresh to make progress.
func (s State) Terminal() bool {
	switch s {
	case StateLocationDisabled, StatePermissionDenied, StateIdle, StateError:
		return true
	}
	return false
}
