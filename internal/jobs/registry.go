package jobs

import (
	"sync"
)

// GenerateTypeID builds the id of a job type from its application and name
func GenerateTypeID(app, name string) string {
	return app + "-" + name
}

// Registry maps type ids onto job types
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
	order []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]Type),
	}
}

// Register adds job types. It fails with a ConfigurationError on an empty or duplicated id,
// and on a recurring type without a valid default period. Nothing is registered on failure.
func (r *Registry) Register(types ...Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(types))
	for _, t := range types {
		id := t.ID()
		if id == "" {
			return &ConfigurationError{TypeID: id, Reason: "empty type id"}
		}
		if _, exists := r.types[id]; exists || seen[id] {
			return &ConfigurationError{TypeID: id, Reason: "duplicated type id"}
		}
		if t.Periodic() != NotPeriodic {
			if err := t.DefaultPeriod().Validate(); err != nil {
				return &ConfigurationError{TypeID: id, Reason: "invalid default period: " + err.Error()}
			}
		}
		seen[id] = true
	}

	for _, t := range types {
		r.types[t.ID()] = t
		r.order = append(r.order, t.ID())
	}
	return nil
}

// Lookup returns the type registered under id.
// Unknown ids are not an error: jobs may outlive the removal of their type.
func (r *Registry) Lookup(id string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[id]
	return t, ok
}

// All returns the registered types in registration order
func (r *Registry) All() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.order))
	for _, id := range r.order {
		types = append(types, r.types[id])
	}
	return types
}
