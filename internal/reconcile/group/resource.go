package group

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/declare"
	"github.com/dokzlo13/lmsync/internal/reconcile"
)

// Resource reconciles a single declared device group.
type Resource struct {
	desired    declare.DeviceGroup
	reconciler *Reconciler

	// Internal state populated by Load()
	actual Actual
}

// NewResource creates a new group resource.
func NewResource(desired declare.DeviceGroup, reconciler *Reconciler) *Resource {
	return &Resource{desired: desired, reconciler: reconciler}
}

// Key returns the resource key.
func (r *Resource) Key() reconcile.ResourceKey {
	return Key(r.desired.FullPath)
}

// Load resolves the path without creating anything.
func (r *Resource) Load(ctx context.Context) error {
	g, err := r.reconciler.Get(ctx, r.desired.FullPath)
	if err != nil {
		return err
	}
	r.actual = Actual{}
	if g != nil {
		r.actual = Actual{Exists: true, Group: *g}
	}
	return nil
}

// NeedsReconcile returns true if actual != desired.
func (r *Resource) NeedsReconcile() bool {
	return DetermineAction(r.desired, r.actual) != ActionNone
}

// Action names the pending action.
func (r *Resource) Action() string {
	return DetermineAction(r.desired, r.actual).String()
}

// ReconcileStep performs one transition step using the FSM. Creation
// returns done=false so the new group is loaded and checked again.
func (r *Resource) ReconcileStep(ctx context.Context) (done bool, err error) {
	action := DetermineAction(r.desired, r.actual)

	log.Debug().
		Str("group", r.desired.FullPath).
		Bool("exists", r.actual.Exists).
		Str("action", action.String()).
		Msg("Group reconcile step")

	switch action {
	case ActionCreate:
		if _, err := r.reconciler.Create(ctx, r.desired); err != nil {
			return false, err
		}
		return false, nil

	case ActionUpdate:
		if err := r.reconciler.Sync(ctx, r.desired, r.actual.Group); err != nil {
			return false, err
		}
	}

	return true, nil
}
