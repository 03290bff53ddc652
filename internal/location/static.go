package location

import (
	"context"

	"github.com/kjstillabower/weatherapp/internal/models"
	"github.com/kjstillabower/weatherapp/internal/permission"
)

// StaticProvider reports configured coordinates, standing in for a GPS
// receiver on machines without one.
type StaticProvider struct {
	fix     models.Coordinates
	enabled bool
	perms   permission.Checker
}

// NewStaticProvider returns a provider that always reports fix when enabled.
func NewStaticProvider(fix models.Coordinates, enabled bool, perms permission.Checker) *StaticProvider {
	return &StaticProvider{fix: fix, enabled: enabled, perms: perms}
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) Enabled() bool { return p.enabled }

// RequestOnce delivers the configured fix from a new goroutine.
func (p *StaticProvider) RequestOnce(ctx context.Context, priority Priority, cb Callback) (Subscription, error) {
	if err := requireGrant(p.perms); err != nil {
		return nil, err
	}
	if !p.enabled {
		return nil, ErrLocationDisabled
	}
	sub, subCtx := newSubscription(ctx, p.Name())
	go func() {
		if subCtx.Err() != nil {
			return
		}
		sub.deliver(cb, p.fix)
	}()
	return sub, nil
}
