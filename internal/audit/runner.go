// Package audit runs units of work inside a store transaction attributed
// to an actor.
package audit

import (
	"context"

	"github.com/nhle/threadmail/internal/store"
)

// Runner executes work in one transaction per call. Records written
// through the transaction are stamped with the runner's actor unless the
// context already names one.
type Runner struct {
	store store.Store
	actor string
}

// NewRunner creates a Runner over s acting as actor.
func NewRunner(s store.Store, actor string) *Runner {
	return &Runner{store: s, actor: actor}
}

// Actor returns the default actor.
func (r *Runner) Actor() string {
	return r.actor
}

// Run calls fn with a transaction-bound store. The transaction commits if
// fn returns nil and rolls back otherwise; fn's error is returned as is.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if store.ActorFromContext(ctx) == "" {
		ctx = store.ContextWithActor(ctx, r.actor)
	}
	return r.store.WithTx(ctx, func(tx store.Store) error {
		return fn(ctx, tx)
	})
}
