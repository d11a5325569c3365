package group

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/declare"
	"github.com/dokzlo13/lmsync/internal/logicmonitor"
	"github.com/dokzlo13/lmsync/internal/reconcile"
)

// Reconciler implements exists/create/sync for device groups. Groups are
// never deleted.
type Reconciler struct {
	api      reconcile.ResourceAPI
	resolver *Resolver
	purger   *Purger
}

// NewReconciler creates a device group reconciler.
func NewReconciler(api reconcile.ResourceAPI, opts reconcile.Options) *Reconciler {
	return &Reconciler{
		api:      api,
		resolver: NewResolver(api, opts),
		purger:   NewPurger(api),
	}
}

// Get returns the live group at fullpath, or nil if any segment is missing.
func (r *Reconciler) Get(ctx context.Context, fullpath string) (*logicmonitor.DeviceGroup, error) {
	return r.resolver.Lookup(ctx, fullpath)
}

// Exists reports whether every segment of fullpath exists.
func (r *Reconciler) Exists(ctx context.Context, fullpath string) (bool, error) {
	g, err := r.Get(ctx, fullpath)
	return g != nil, err
}

// Create resolves the declared path, creating missing groups. The terminal
// group is created with the declared description, properties and alertenable.
func (r *Reconciler) Create(ctx context.Context, desired declare.DeviceGroup) (Resolution, error) {
	log.Info().Str("group", desired.FullPath).Msg("Creating device group")
	return r.resolver.Resolve(ctx, desired.FullPath, Attributes{
		Description: desired.Description,
		Properties:  desired.Properties,
		AlertEnable: desired.AlertEnable,
	})
}

// Sync converges an existing group: description and alertenable drift are
// patched, and under mode=purge the property set is made equal to the
// declared one.
func (r *Reconciler) Sync(ctx context.Context, desired declare.DeviceGroup, live logicmonitor.DeviceGroup) error {
	key := Key(desired.FullPath)

	if fields := attributeFields(desired, live); len(fields) > 0 {
		log.Info().
			Str("group", desired.FullPath).
			Strs("fields", fields).
			Msg("Updating device group attributes")

		patch := logicmonitor.DeviceGroup{
			Description:     desired.Description,
			DisableAlerting: !live.AlertEnable(),
		}
		if desired.AlertEnable != nil {
			patch.DisableAlerting = !*desired.AlertEnable
		}

		endpoint := fmt.Sprintf(logicmonitor.DeviceGroupEndpoint, live.ID) + "?patchFields=" + strings.Join(fields, ",")
		env, err := r.api.Update(ctx, endpoint, patch)
		if err != nil {
			return fmt.Errorf("update %s: %w", key, err)
		}
		if reconcile.Classify(env, reconcile.ClassifyOptions{}) != reconcile.OutcomeSuccess {
			return reconcile.NewAPIError("update", key, env)
		}
	}

	if desired.Mode == declare.ModePurge {
		if _, err := r.purger.ReconcileProperties(ctx, key, live.ID, desired.Properties, live.PropertyMap()); err != nil {
			return err
		}
	}

	return nil
}
