package collector

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/declare"
	"github.com/dokzlo13/lmsync/internal/reconcile"
)

// Resource reconciles a single declared collector.
type Resource struct {
	desired    declare.Collector
	reconciler *Reconciler

	// Internal state populated by Load()
	exists bool
}

// NewResource creates a new collector resource.
func NewResource(desired declare.Collector, reconciler *Reconciler) *Resource {
	return &Resource{desired: desired, reconciler: reconciler}
}

// Key returns the resource key.
func (r *Resource) Key() reconcile.ResourceKey {
	return Key(r.desired.Description)
}

// Load checks whether the collector exists.
func (r *Resource) Load(ctx context.Context) error {
	exists, err := r.reconciler.Exists(ctx, r.desired.Description)
	if err != nil {
		return err
	}
	r.exists = exists
	return nil
}

// NeedsReconcile returns true if the collector must be created or destroyed.
func (r *Resource) NeedsReconcile() bool {
	return r.action() != ActionNone
}

// Action names the pending action.
func (r *Resource) Action() string {
	return r.action().String()
}

func (r *Resource) action() Action {
	return DetermineAction(r.desired.Ensure, r.exists)
}

// ReconcileStep performs the pending action. Every action completes in one step.
func (r *Resource) ReconcileStep(ctx context.Context) (done bool, err error) {
	action := r.action()

	log.Debug().
		Str("collector", r.desired.Description).
		Bool("exists", r.exists).
		Str("action", action.String()).
		Msg("Collector reconcile step")

	switch action {
	case ActionCreate:
		if err := r.reconciler.Create(ctx, r.desired.Description); err != nil {
			return false, err
		}
		r.exists = true
	case ActionDestroy:
		if err := r.reconciler.Destroy(ctx, r.desired.Description); err != nil {
			return false, err
		}
		r.exists = false
	}

	return true, nil
}
