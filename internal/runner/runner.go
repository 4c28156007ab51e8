// Package runner executes design fixtures: it applies a fixture's
// dependency chain and designs against a store, then evaluates the
// fixture's checks.
package runner

import (
	"context"
	"fmt"

	"lodestone/internal/design"
	"lodestone/internal/design/ext"
	"lodestone/internal/domain"
	"lodestone/internal/loader"
	"lodestone/internal/repository"
)

// Runner applies fixtures against a record store.
type Runner struct {
	store    repository.Store
	registry *domain.Registry
}

// New creates a Runner.
func New(store repository.Store, registry *domain.Registry) *Runner {
	return &Runner{store: store, registry: registry}
}

// RunFile loads the fixture at path, applies its dependency chain
// base-first and evaluates each fixture's checks after its designs. A
// failing dependency stops the run before dependents are attempted.
func (r *Runner) RunFile(ctx context.Context, path string) error {
	chain, err := loader.LoadChain(path)
	if err != nil {
		return err
	}
	for _, fixture := range chain {
		if err := r.Run(ctx, fixture); err != nil {
			return fmt.Errorf("%s: %w", fixture.Path, err)
		}
	}
	return nil
}

// Run applies one already-loaded fixture and evaluates its checks.
func (r *Runner) Run(ctx context.Context, fixture *loader.Fixture) error {
	exts := make([]design.Extension, 0, len(fixture.Extensions))
	for _, name := range fixture.Extensions {
		e, err := ext.ByName(name)
		if err != nil {
			return err
		}
		exts = append(exts, e)
	}

	env, err := design.NewEnvironment(r.store, r.registry, design.WithExtensions(exts...))
	if err != nil {
		return err
	}

	for _, doc := range fixture.Designs {
		if err := env.Apply(ctx, doc); err != nil {
			env.RollbackExtensions(ctx)
			return err
		}
	}
	if err := env.CommitExtensions(ctx); err != nil {
		return err
	}

	for i, check := range fixture.Checks {
		if err := Evaluate(ctx, env, check); err != nil {
			return fmt.Errorf("check %d (%s): %w", i, check.Kind, err)
		}
	}
	return nil
}
