package location

import "context"

// Multi combines providers the way a fused provider does: it is enabled when
// any member is, and a request goes to the first enabled member.
type Multi struct {
	providers []Provider
}

func NewMulti(providers ...Provider) *Multi {
	return &Multi{providers: providers}
}

func (m *Multi) Name() string {
	if p := m.first(); p != nil {
		return p.Name()
	}
	return "none"
}

func (m *Multi) Enabled() bool {
	return m.first() != nil
}

func (m *Multi) RequestOnce(ctx context.Context, priority Priority, cb Callback) (Subscription, error) {
	p := m.first()
	if p == nil {
		return nil, ErrLocationDisabled
	}
	return p.RequestOnce(ctx, priority, cb)
}

func (m *Multi) first() Provider {
	for _, p := range m.providers {
		if p.Enabled() {
			return p
		}
	}
	return nil
}
