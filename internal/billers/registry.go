package billers

import (
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
)

// Registry holds the configured biller adapters keyed by name. Circuit
// breaking is not handled here: callers route adapter calls through the
// shared call gate, keyed by biller name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates a registry from the given adapters. With none given,
// a pair of mock billers is registered for local development.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}

	if len(adapters) == 0 {
		r.Register(NewMockBiller("netbilling",
			WithLatency(200*time.Millisecond),
			WithDeclineRate(0.05),
			WithChallengeRate(0.10),
		))
		r.Register(NewMockBiller("epoch",
			WithLatency(300*time.Millisecond),
			WithDeclineRate(0.08),
		))
	} else {
		for _, a := range adapters {
			r.Register(a)
		}
	}

	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a biller name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown biller %q: %w", name, domainErrors.ErrBillerNotFound)
	}
	return a, nil
}

// Names lists the registered biller names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
