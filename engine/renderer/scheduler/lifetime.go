package scheduler

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/triangle/engine/core"
)

type releaseStep struct {
	name    string
	release func() error
}

// Lifetime records release steps in acquisition order and runs them in reverse.
type Lifetime struct {
	steps    []releaseStep
	released bool
}

func NewLifetime() *Lifetime {
	return &Lifetime{}
}

// Acquired registers the release step for a resource that was just created.
func (l *Lifetime) Acquired(name string, release func() error) {
	l.steps = append(l.steps, releaseStep{name: name, release: release})
}

// Names lists the registered steps in acquisition order.
func (l *Lifetime) Names() []string {
	names := make([]string, len(l.steps))
	for i, s := range l.steps {
		names[i] = s.name
	}
	return names
}

func (l *Lifetime) Len() int {
	return len(l.steps)
}

// Release runs every step, last acquired first. A failing step does not stop the
// remaining ones. Calling Release again does nothing.
func (l *Lifetime) Release() error {
	if l.released {
		return nil
	}
	l.released = true

	var errs []error
	for i := len(l.steps) - 1; i >= 0; i-- {
		step := l.steps[i]
		core.LogDebug("Destroying %s...", step.name)
		if err := step.release(); err != nil {
			core.LogError("failed to destroy %s: %s", step.name, err)
			errs = append(errs, errors.Wrapf(err, "destroy %s", step.name))
		}
	}
	l.steps = nil
	return errors.Join(errs...)
}
