package permission

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Permission names an OS-level grant the app needs.
type Permission string

const (
	FineLocation   Permission = "ACCESS_FINE_LOCATION"
	CoarseLocation Permission = "ACCESS_COARSE_LOCATION"
)

// Location is the set requested before acquiring a fix.
var Location = []Permission{FineLocation, CoarseLocation}

// Report is the outcome of one Request call.
type Report struct {
	Granted           []Permission
	Denied            []Permission
	PermanentlyDenied bool
	// RationaleNeeded is set when a previously denied permission is about to be
	// asked for again. Nothing was asked; the caller should explain why the
	// permission is needed, call AcknowledgeRationale and request again.
	RationaleNeeded bool
}

// AllGranted reports whether every requested permission was granted.
func (r Report) AllGranted() bool {
	return len(r.Granted) > 0 && len(r.Denied) == 0 && !r.RationaleNeeded
}

// AnyPermanentlyDenied reports whether at least one permission can no longer
// be requested.
func (r Report) AnyPermanentlyDenied() bool {
	return r.PermanentlyDenied
}

// Requester asks for permissions.
type Requester interface {
	Request(ctx context.Context, perms ...Permission) (Report, error)
	AcknowledgeRationale(perms ...Permission)
}

// Checker answers whether a permission has been granted.
type Checker interface {
	Granted(p Permission) bool
}

// Prompter asks the user a question and returns the raw answer.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Policy selects how undecided permissions are resolved.
type Policy string

const (
	PolicyGranted           Policy = "granted"
	PolicyDenied            Policy = "denied"
	PolicyDeniedPermanently Policy = "denied_permanently"
	PolicyPrompt            Policy = "prompt"
)

// ParsePolicy validates a policy name from config.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyGranted, PolicyDenied, PolicyDeniedPermanently, PolicyPrompt:
		return p, nil
	case "":
		return PolicyPrompt, nil
	default:
		return "", fmt.Errorf("permission.policy must be granted, denied, denied_permanently or prompt, got %q", s)
	}
}

type decision int

const (
	undecided decision = iota
	granted
	denied
	rationaleShown
	deniedPermanently
)

// Gate remembers grant decisions for the lifetime of the process and
// resolves undecided permissions with its policy.
type Gate struct {
	mu        sync.Mutex
	policy    Policy
	prompter  Prompter
	decisions map[Permission]decision
}

// NewGate creates a Gate. prompter is only used with PolicyPrompt; a nil
// prompter denies.
func NewGate(policy Policy, prompter Prompter) *Gate {
	return &Gate{
		policy:    policy,
		prompter:  prompter,
		decisions: make(map[Permission]decision),
	}
}

// Granted implements Checker.
func (g *Gate) Granted(p Permission) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decisions[p] == granted
}

// AcknowledgeRationale marks the rationale as shown so the next Request asks again.
func (g *Gate) AcknowledgeRationale(perms ...Permission) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range perms {
		if g.decisions[p] == denied {
			g.decisions[p] = rationaleShown
		}
	}
}

// Request resolves every permission. Already granted or permanently denied
// permissions are reported without asking.
func (g *Gate) Request(ctx context.Context, perms ...Permission) (Report, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var report Report
	var pending []Permission
	for _, p := range perms {
		switch g.decisions[p] {
		case granted:
			report.Granted = append(report.Granted, p)
		case deniedPermanently:
			report.Denied = append(report.Denied, p)
			report.PermanentlyDenied = true
		case denied:
			report.RationaleNeeded = true
			report.Denied = append(report.Denied, p)
		default:
			pending = append(pending, p)
		}
	}
	if report.RationaleNeeded || len(pending) == 0 {
		return report, nil
	}

	outcome, err := g.resolve(ctx, pending)
	if err != nil {
		return Report{}, err
	}
	for _, p := range pending {
		g.decisions[p] = outcome
		switch outcome {
		case granted:
			report.Granted = append(report.Granted, p)
		case deniedPermanently:
			report.Denied = append(report.Denied, p)
			report.PermanentlyDenied = true
		default:
			report.Denied = append(report.Denied, p)
		}
	}
	return report, nil
}

func (g *Gate) resolve(ctx context.Context, pending []Permission) (decision, error) {
	switch g.policy {
	case PolicyGranted:
		return granted, nil
	case PolicyDenied:
		return denied, nil
	case PolicyDeniedPermanently:
		return deniedPermanently, nil
	}
	if g.prompter == nil {
		return denied, nil
	}
	names := make([]string, len(pending))
	for i, p := range pending {
		names[i] = string(p)
	}
	answer, err := g.prompter.Ask(ctx, fmt.Sprintf("Allow weatherapp to access your location (%s)? [y/n/never]", strings.Join(names, ", ")))
	if err != nil {
		return undecided, fmt.Errorf("prompt for permission: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "allow":
		return granted, nil
	case "never", "don't ask again":
		return deniedPermanently, nil
	default:
		return denied, nil
	}
}
