package registry

import (
	"errors"
	"fmt"
)

// Registration installs a group of macros into a registry. Packages expose
// one of these instead of registering themselves at init time.
type Registration func(r *Registry) error

// Builder collects registrations and runs each exactly once in Build.
type Builder struct {
	steps []namedRegistration
}

type namedRegistration struct {
	name string
	fn   Registration
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add queues a registration; name is used in error messages.
func (b *Builder) Add(name string, fn Registration) *Builder {
	b.steps = append(b.steps, namedRegistration{name: name, fn: fn})
	return b
}

// Build creates a registry and applies every queued registration. All
// failures are reported together; the registry keeps whatever succeeded.
func (b *Builder) Build() (*Registry, error) {
	reg := New()
	var errs []error
	for _, step := range b.steps {
		if step.fn == nil {
			continue
		}
		if err := step.fn(reg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	return reg, errors.Join(errs...)
}

// Single is a Registration for one macro under module.
func Single(module string, impl Macro) Registration {
	return func(r *Registry) error {
		return r.Register(module, impl.Name(), impl)
	}
}
