package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/config"
	"github.com/dokzlo13/lmsync/internal/ledger"
	"github.com/dokzlo13/lmsync/internal/reconcile"
)

// ledgerCleanupInterval is how often old ledger entries are removed.
const ledgerCleanupInterval = 24 * time.Hour

// ReconcileService runs the orchestrator loop and related periodic tasks.
type ReconcileService struct {
	cfg          *config.Config
	Orchestrator *reconcile.Orchestrator
	ledger       *ledger.Ledger
}

// NewReconcileService creates a new ReconcileService.
func NewReconcileService(cfg *config.Config, source reconcile.Source, l *ledger.Ledger, observers ...reconcile.PassObserver) *ReconcileService {
	return &ReconcileService{
		cfg: cfg,
		Orchestrator: reconcile.NewOrchestrator(
			source,
			cfg.Reconciler.PeriodicInterval.Duration(),
			observers...,
		),
		ledger: l,
	}
}

// CleanupLedger removes ledger entries past retention.
func (s *ReconcileService) CleanupLedger() {
	retention := s.cfg.Ledger.Retention()
	if retention <= 0 {
		return
	}
	deleted, err := s.ledger.DeleteOlderThan(retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
	}
}

// RunOnce runs a single pass.
func (s *ReconcileService) RunOnce(ctx context.Context, dryRun bool) reconcile.PassReport {
	s.CleanupLedger()
	return s.Orchestrator.RunPass(ctx, dryRun)
}

// Start begins the periodic reconciliation loop and ledger cleanup.
func (s *ReconcileService) Start(ctx context.Context) {
	s.CleanupLedger()

	go func() {
		if err := s.Orchestrator.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Orchestrator error")
		}
	}()

	go s.runLedgerCleanup(ctx)
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *ReconcileService) runLedgerCleanup(ctx context.Context) {
	ticker := time.NewTicker(ledgerCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CleanupLedger()
		}
	}
}
