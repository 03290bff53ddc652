package location

import (
	"context"
	"errors"
	"sync"

	"github.com/kjstillabower/weatherapp/internal/models"
	"github.com/kjstillabower/weatherapp/internal/observability"
	"github.com/kjstillabower/weatherapp/internal/permission"
)

var (
	ErrPermissionDenied = errors.New("location permission denied")
	ErrLocationDisabled = errors.New("location service disabled")
)

// Priority is the requested accuracy/power trade-off.
type Priority int

const (
	PriorityHighAccuracy Priority = iota
	PriorityBalanced
	PriorityLowPower
)

func (p Priority) String() string {
	switch p {
	case PriorityHighAccuracy:
		return "high_accuracy"
	case PriorityBalanced:
		return "balanced"
	case PriorityLowPower:
		return "low_power"
	default:
		return "unknown"
	}
}

// Callback receives exactly one fix. It runs on a provider goroutine; callers
// that need a particular goroutine must hand the value over themselves.
type Callback func(models.Coordinates)

// Subscription is an outstanding single-fix request.
type Subscription interface {
	// Cancel stops the request. The callback does not fire after Cancel returns.
	Cancel()
}

// Provider produces location fixes. RequestOnce never retries and sets no
// timeout of its own: if no fix can be produced the callback is never called.
type Provider interface {
	Name() string
	Enabled() bool
	RequestOnce(ctx context.Context, priority Priority, cb Callback) (Subscription, error)
}

// requireGrant returns ErrPermissionDenied unless fine or coarse location is granted.
func requireGrant(perms permission.Checker) error {
	if perms == nil {
		return ErrPermissionDenied
	}
	if perms.Granted(permission.FineLocation) || perms.Granted(permission.CoarseLocation) {
		return nil
	}
	return ErrPermissionDenied
}

// subscription guards a callback so it fires at most once and never after Cancel.
type subscription struct {
	mu       sync.Mutex
	done     bool
	cancel   context.CancelFunc
	provider string
}

func newSubscription(ctx context.Context, provider string) (*subscription, context.Context) {
	subCtx, cancel := context.WithCancel(ctx)
	return &subscription{cancel: cancel, provider: provider}, subCtx
}

func (s *subscription) Cancel() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
	s.cancel()
}

// deliver invokes cb unless the subscription was cancelled or already fired.
// The lock is held across cb so Cancel cannot return while cb is running.
func (s *subscription) deliver(cb Callback, fix models.Coordinates) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	s.cancel()
	observability.LocationFixesTotal.WithLabelValues(s.provider).Inc()
	cb(fix)
	return true
}
