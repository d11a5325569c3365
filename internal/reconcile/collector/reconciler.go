// Package collector reconciles collector registrations, keyed by description.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/declare"
	"github.com/dokzlo13/lmsync/internal/logicmonitor"
	"github.com/dokzlo13/lmsync/internal/reconcile"
)

// Reconciler implements exists/create/destroy for collectors.
type Reconciler struct {
	api  reconcile.ResourceAPI
	opts reconcile.Options
}

// NewReconciler creates a collector reconciler.
func NewReconciler(api reconcile.ResourceAPI, opts reconcile.Options) *Reconciler {
	return &Reconciler{api: api, opts: opts}
}

// Key returns the resource key for a collector description.
func Key(description string) reconcile.ResourceKey {
	return reconcile.ResourceKey{Kind: declare.KindCollector, ID: description}
}

func descriptionFilter(description string) string {
	return logicmonitor.Filter(logicmonitor.Eq("description", description))
}

// Exists reports whether a collector with the description is registered.
// A failed query is an error, never "absent", so a flaky API cannot lead
// to a duplicate registration.
func (r *Reconciler) Exists(ctx context.Context, description string) (bool, error) {
	start := time.Now()
	log.Debug().Str("collector", description).Msg("Checking if collector exists")

	c, _, err := r.lookup(ctx, description)
	if err != nil {
		return false, err
	}

	log.Debug().Str("collector", description).Bool("exists", c != nil).Dur("elapsed", time.Since(start)).Msg("Collector lookup finished")
	return c != nil, nil
}

// Create registers a collector with the fixed default fields. Failures are
// returned, not retried.
func (r *Reconciler) Create(ctx context.Context, description string) error {
	start := time.Now()
	log.Info().Str("collector", description).Msg("Creating collector")

	env, err := r.api.Create(ctx, logicmonitor.CollectorsEndpoint, logicmonitor.NewCollector(description))
	if err != nil {
		return fmt.Errorf("create collector %q: %w", description, err)
	}
	if reconcile.Classify(env, reconcile.ClassifyOptions{}) != reconcile.OutcomeSuccess {
		return reconcile.NewAPIError("create", Key(description), env)
	}

	log.Debug().Str("collector", description).Dur("elapsed", time.Since(start)).Msg("Collector created")
	return nil
}

// Destroy deletes the collector with the description. A collector that does
// not exist raises an alert and is not an error; "not found" at delete time
// counts as deleted.
func (r *Reconciler) Destroy(ctx context.Context, description string) error {
	start := time.Now()
	log.Info().Str("collector", description).Msg("Deleting collector")

	c, env, err := r.lookup(ctx, description)
	if err != nil {
		return err
	}
	if c == nil {
		r.opts.Alert(ctx, reconcile.Alert{
			Resource: Key(description),
			Message:  "collector not found, nothing to delete",
			Raw:      env.String(),
		})
		return nil
	}

	log.Debug().Str("collector", description).Int("id", c.ID).Msg("Found collector")

	env, err = r.api.Delete(ctx, fmt.Sprintf(logicmonitor.CollectorEndpoint, c.ID))
	if err != nil {
		return fmt.Errorf("delete collector %q: %w", description, err)
	}
	if reconcile.Classify(env, reconcile.ClassifyOptions{IdempotentDelete: true}) != reconcile.OutcomeSuccess {
		return reconcile.NewAPIError("delete", Key(description), env)
	}

	log.Debug().Str("collector", description).Dur("elapsed", time.Since(start)).Msg("Collector deleted")
	return nil
}

// lookup finds the collector by description. It returns nil when none
// matches. With several matches the ambiguity policy decides; under the
// warn policy the first item in server order is returned.
func (r *Reconciler) lookup(ctx context.Context, description string) (*logicmonitor.Collector, *logicmonitor.Envelope, error) {
	filter := descriptionFilter(description)
	env, err := r.api.Query(ctx, logicmonitor.CollectorsEndpoint, logicmonitor.Query{
		Filter: filter,
		Fields: "id",
		Size:   1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("query collector %q: %w", description, err)
	}

	switch reconcile.Classify(env, reconcile.ClassifyOptions{ExpectSingleItem: true}) {
	case reconcile.OutcomeSuccessEmpty:
		return nil, env, nil
	case reconcile.OutcomeFailure:
		return nil, env, reconcile.NewAPIError("query", Key(description), env)
	}

	page, err := logicmonitor.DecodePage[logicmonitor.Collector](env)
	if err != nil {
		return nil, env, fmt.Errorf("query collector %q: %w", description, err)
	}
	if len(page.Items) == 0 {
		return nil, env, nil
	}
	if err := r.opts.CheckMatches(ctx, Key(description), filter, page.Total); err != nil {
		return nil, env, err
	}
	return &page.Items[0], env, nil
}
