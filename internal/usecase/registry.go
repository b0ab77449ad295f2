package usecase

import (
	"context"
	"sort"

	"github.com/siteproof/throttle-service/internal/core/domain"
)

// DefaultScope is the profile applied when a caller names no scope.
const DefaultScope = "default"

// Registry maps scope names to their limiters. It is built once at startup
// by the application wiring and passed by reference; there is deliberately
// no package-level instance, so tests construct isolated registries.
type Registry struct {
	limiters map[string]*Limiter
}

// NewRegistry builds a registry over the provided limiters.
func NewRegistry(limiters map[string]*Limiter) *Registry {
	reg := &Registry{limiters: make(map[string]*Limiter, len(limiters))}
	for scope, limiter := range limiters {
		if limiter == nil {
			continue
		}
		reg.limiters[scope] = limiter
	}
	return reg
}

// Get resolves a scope name to its limiter. An empty scope falls back to
// the default profile; a name that was never configured is an error.
func (r *Registry) Get(scope string) (*Limiter, error) {
	if scope == "" {
		scope = DefaultScope
	}

	limiter, ok := r.limiters[scope]
	if !ok {
		return nil, domain.ErrUnknownScope
	}
	return limiter, nil
}

// Scopes lists configured scope names in stable order.
func (r *Registry) Scopes() []string {
	names := make([]string, 0, len(r.limiters))
	for scope := range r.limiters {
		names = append(names, scope)
	}
	sort.Strings(names)
	return names
}

// RemoveExpired sweeps every limiter's store and returns the total records
// dropped. Limiters sharing one store simply find nothing left to sweep.
func (r *Registry) RemoveExpired(ctx context.Context) (int, error) {
	total := 0
	for _, scope := range r.Scopes() {
		removed, err := r.limiters[scope].RemoveExpired(ctx)
		if err != nil {
			return total, err
		}
		total += removed
	}
	return total, nil
}
