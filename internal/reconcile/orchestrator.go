package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/declare"
)

// maxSteps bounds ReconcileStep calls per resource per pass.
const maxSteps = 5

// Status is the outcome of reconciling one resource in a pass.
type Status string

const (
	StatusUnchanged Status = "unchanged"
	StatusChanged   Status = "changed"
	StatusPlanned   Status = "planned" // dry run: a change would be made
	StatusFailed    Status = "failed"
	StatusInvalid   Status = "invalid" // rejected before any API call
)

// Result is the outcome for one resource.
type Result struct {
	Key      string
	Kind     declare.Kind
	Status   Status
	Actions  []string
	Err      error
	Duration time.Duration
}

// PassReport summarizes one reconciliation pass.
type PassReport struct {
	ID       string
	DryRun   bool
	Started  time.Time
	Finished time.Time
	Results  []Result
}

// Count returns the number of results with the given status.
func (p PassReport) Count(status Status) int {
	n := 0
	for _, r := range p.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Failed reports whether any resource failed or was invalid.
func (p PassReport) Failed() bool {
	return p.Count(StatusFailed) > 0 || p.Count(StatusInvalid) > 0
}

// Source produces the resources for a pass. Invalid declarations are
// returned as errors and reported without stopping the pass.
type Source func(ctx context.Context) (resources []Resource, invalid []error, err error)

// PassObserver is notified after every pass (ledger, metrics, storage).
type PassObserver interface {
	ObservePass(ctx context.Context, report PassReport)
}

// PassObserverFunc adapts a function to PassObserver.
type PassObserverFunc func(ctx context.Context, report PassReport)

func (f PassObserverFunc) ObservePass(ctx context.Context, report PassReport) {
	f(ctx, report)
}

type passIDKey struct{}

// WithPassID returns a context carrying the pass id.
func WithPassID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, passIDKey{}, id)
}

// PassID returns the id of the pass running under ctx, or "".
func PassID(ctx context.Context) string {
	id, _ := ctx.Value(passIDKey{}).(string)
	return id
}

// Orchestrator runs reconciliation passes over the declared resources.
// Passes are serialized: at most one runs at a time.
type Orchestrator struct {
	source    Source
	observers []PassObserver

	passMu  sync.Mutex
	trigger chan struct{}

	// Configuration
	periodicInterval time.Duration
}

// NewOrchestrator creates a new reconciliation orchestrator.
func NewOrchestrator(source Source, periodicInterval time.Duration, observers ...PassObserver) *Orchestrator {
	if periodicInterval == 0 {
		periodicInterval = 15 * time.Minute
	}

	return &Orchestrator{
		source:           source,
		observers:        observers,
		trigger:          make(chan struct{}, 1),
		periodicInterval: periodicInterval,
	}
}

// Trigger signals that a pass should run.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
		// Already triggered
	}
}

// Run runs a pass immediately, then on every tick or trigger, until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().Dur("periodic_interval", o.periodicInterval).Msg("Orchestrator started")

	ticker := time.NewTicker(o.periodicInterval)
	defer ticker.Stop()

	o.RunPass(ctx, false)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Orchestrator stopping")
			return nil
		case <-o.trigger:
			o.RunPass(ctx, false)
		case <-ticker.C:
			o.RunPass(ctx, false)
		}
	}
}

// RunPass reconciles every resource once. With dryRun, resources are loaded
// and compared but nothing is changed.
func (o *Orchestrator) RunPass(ctx context.Context, dryRun bool) PassReport {
	o.passMu.Lock()
	defer o.passMu.Unlock()

	report := PassReport{
		ID:      uuid.NewString(),
		DryRun:  dryRun,
		Started: time.Now(),
	}
	ctx = WithPassID(ctx, report.ID)
	logger := log.With().Str("pass", report.ID).Logger()
	logger.Info().Bool("dry_run", dryRun).Msg("Reconciliation pass started")

	resources, invalid, err := o.source(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load declarations")
		report.Results = append(report.Results, Result{Key: "declarations", Status: StatusFailed, Err: err})
	}

	for _, verr := range invalid {
		key := "declarations"
		var v *declare.ValidationError
		if errors.As(verr, &v) {
			key = v.Key
		}
		logger.Error().Err(verr).Str("resource", key).Msg("Invalid declaration")
		report.Results = append(report.Results, Result{Key: key, Status: StatusInvalid, Err: verr})
	}

	for _, r := range resources {
		if ctx.Err() != nil {
			break
		}
		res := o.reconcileOne(ctx, r, dryRun)

		event := logger.Info()
		if res.Err != nil {
			event = logger.Error().Err(res.Err)
		}
		event.
			Str("resource", res.Key).
			Str("status", string(res.Status)).
			Strs("actions", res.Actions).
			Dur("elapsed", res.Duration).
			Msg("Resource reconciled")

		report.Results = append(report.Results, res)
	}

	report.Finished = time.Now()
	logger.Info().
		Int("changed", report.Count(StatusChanged)).
		Int("unchanged", report.Count(StatusUnchanged)).
		Int("planned", report.Count(StatusPlanned)).
		Int("failed", report.Count(StatusFailed)).
		Int("invalid", report.Count(StatusInvalid)).
		Dur("elapsed", report.Finished.Sub(report.Started)).
		Msg("Reconciliation pass completed")

	for _, obs := range o.observers {
		obs.ObservePass(ctx, report)
	}

	return report
}

func (o *Orchestrator) reconcileOne(ctx context.Context, r Resource, dryRun bool) Result {
	start := time.Now()
	res := Result{Key: r.Key().String(), Kind: r.Key().Kind, Status: StatusUnchanged}

	fail := func(err error) Result {
		res.Status = StatusFailed
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}

	for step := 0; ; step++ {
		if step >= maxSteps {
			return fail(fmt.Errorf("%w after %d steps", ErrTooManySteps, maxSteps))
		}

		if err := r.Load(ctx); err != nil {
			return fail(err)
		}

		if !r.NeedsReconcile() {
			break
		}

		res.Actions = append(res.Actions, r.Action())
		if dryRun {
			res.Status = StatusPlanned
			break
		}

		done, err := r.ReconcileStep(ctx)
		if err != nil {
			return fail(err)
		}
		res.Status = StatusChanged
		if done {
			break
		}
	}

	res.Duration = time.Since(start)
	return res
}
