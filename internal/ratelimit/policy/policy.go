// Package policy defines the static limiter policy table: one validated,
// immutable record per limiter class, built once at startup. Replacements
// swap the whole snapshot atomically so concurrent readers never observe a
// half-updated table.
package policy

import (
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"gatekeeper/internal/platform/config"
	"gatekeeper/internal/ratelimit/models"
)

// Policy is one class's limit record. Immutable after load.
type Policy struct {
	Class     models.Class
	Window    time.Duration
	Max       int
	ErrorCode string
	Message   string
	// RetryAfter is the seconds reported to a rejected caller, normally
	// equal to the window.
	RetryAfter int
	// Skip, when non-nil, exempts matching source addresses from the policy
	// entirely (e.g. loopback in development). The counter is not touched.
	Skip func(sourceIP string) bool
}

func (p Policy) validate() error {
	if !p.Class.IsValid() {
		return fmt.Errorf("policy for unknown class %q", p.Class)
	}
	if p.Window <= 0 {
		return fmt.Errorf("policy %s: window must be positive, got %s", p.Class, p.Window)
	}
	if p.Max <= 0 {
		return fmt.Errorf("policy %s: max must be positive, got %d", p.Class, p.Max)
	}
	if p.ErrorCode == "" {
		return fmt.Errorf("policy %s: error code is required", p.Class)
	}
	return nil
}

// Table is the process-wide policy lookup. Safe for concurrent readers; the
// snapshot pointer is replaced atomically on Replace.
type Table struct {
	snapshot atomic.Pointer[map[models.Class]Policy]
}

// Option adjusts table construction.
type Option func(*loadOptions)

type loadOptions struct {
	overrides map[string]config.PolicyOverride
	devMode   bool
}

// WithOverrides applies per-class number overrides from configuration.
// Overrides naming an unknown class fail the load.
func WithOverrides(overrides map[string]config.PolicyOverride) Option {
	return func(o *loadOptions) {
		o.overrides = overrides
	}
}

// WithDevMode attaches a loopback skip predicate to every policy so local
// development traffic is never throttled.
func WithDevMode(devMode bool) Option {
	return func(o *loadOptions) {
		o.devMode = devMode
	}
}

// Load builds the policy table from the built-in defaults plus options.
// Any malformed policy is a startup error; there is no partial table.
func Load(opts ...Option) (*Table, error) {
	var lo loadOptions
	for _, opt := range opts {
		opt(&lo)
	}

	policies := defaults()

	for class, ov := range lo.overrides {
		p, ok := policies[models.Class(class)]
		if !ok {
			return nil, fmt.Errorf("policy override for unknown class %q", class)
		}
		p.Max = ov.Max
		p.Window = ov.Window
		p.RetryAfter = int(ov.Window.Seconds())
		policies[p.Class] = p
	}

	if lo.devMode {
		for class, p := range policies {
			p.Skip = isLoopback
			policies[class] = p
		}
	}

	t := &Table{}
	if err := t.Replace(policies); err != nil {
		return nil, err
	}
	return t, nil
}

// Resolve returns the policy for a class. An unknown class is a configuration
// error: the caller asked for a limit that was never defined.
func (t *Table) Resolve(class models.Class) (Policy, error) {
	policies := *t.snapshot.Load()
	p, ok := policies[class]
	if !ok {
		return Policy{}, fmt.Errorf("no policy configured for class %q", class)
	}
	return p, nil
}

// Replace validates the given policies and installs them as the new snapshot
// in one atomic swap. The previous snapshot stays intact on error.
func (t *Table) Replace(policies map[models.Class]Policy) error {
	for _, class := range models.Classes() {
		p, ok := policies[class]
		if !ok {
			return fmt.Errorf("policy table missing class %q", class)
		}
		if err := p.validate(); err != nil {
			return err
		}
	}
	if len(policies) != len(models.Classes()) {
		return fmt.Errorf("policy table has %d entries, want %d", len(policies), len(models.Classes()))
	}

	snapshot := make(map[models.Class]Policy, len(policies))
	for class, p := range policies {
		snapshot[class] = p
	}
	t.snapshot.Store(&snapshot)
	return nil
}

// defaults returns the built-in policy numbers. Severity is monotonic:
// the more sensitive the operation, the smaller the window and max.
func defaults() map[models.Class]Policy {
	table := map[models.Class]Policy{
		models.ClassInteractiveAuth: {
			Window:    15 * time.Minute,
			Max:       5,
			ErrorCode: "TOO_MANY_AUTH_ATTEMPTS",
			Message:   "Too many authentication attempts. Please try again later.",
		},
		models.ClassBulkMessagingHeavy: {
			Window:    time.Hour,
			Max:       10,
			ErrorCode: "BROADCAST_LIMIT_EXCEEDED",
			Message:   "Broadcast send limit reached for this hour.",
		},
		models.ClassBulkMessaging: {
			Window:    time.Hour,
			Max:       50,
			ErrorCode: "BULK_MESSAGING_LIMIT_EXCEEDED",
			Message:   "Bulk messaging limit reached for this hour.",
		},
		models.ClassFileUpload: {
			Window:    10 * time.Minute,
			Max:       20,
			ErrorCode: "UPLOAD_LIMIT_EXCEEDED",
			Message:   "Too many uploads. Please try again later.",
		},
		models.ClassGeneralAPI: {
			Window:    time.Minute,
			Max:       100,
			ErrorCode: "RATE_LIMIT_EXCEEDED",
			Message:   "Too many requests. Please slow down.",
		},
		models.ClassPremiumTier: {
			Window:    time.Minute,
			Max:       500,
			ErrorCode: "RATE_LIMIT_EXCEEDED",
			Message:   "Too many requests. Please slow down.",
		},
		models.ClassPublicAPI: {
			Window:    time.Minute,
			Max:       300,
			ErrorCode: "RATE_LIMIT_EXCEEDED",
			Message:   "Too many requests. Please slow down.",
		},
	}

	for class, p := range table {
		p.Class = class
		p.RetryAfter = int(p.Window.Seconds())
		table[class] = p
	}
	return table
}

func isLoopback(sourceIP string) bool {
	addr, err := netip.ParseAddr(sourceIP)
	return err == nil && addr.IsLoopback()
}
