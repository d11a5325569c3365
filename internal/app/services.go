package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/config"
	"github.com/dokzlo13/lmsync/internal/db"
	"github.com/dokzlo13/lmsync/internal/ledger"
	"github.com/dokzlo13/lmsync/internal/logicmonitor"
	"github.com/dokzlo13/lmsync/internal/metrics"
	"github.com/dokzlo13/lmsync/internal/reconcile"
	"github.com/dokzlo13/lmsync/internal/reconcile/collector"
	"github.com/dokzlo13/lmsync/internal/reconcile/group"
	"github.com/dokzlo13/lmsync/internal/storage"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB      *db.DB
	Ledger  *ledger.Ledger
	Store   *storage.Store
	Metrics *metrics.Metrics

	// Remote API
	Client     *logicmonitor.Client
	Collectors *collector.Reconciler
	Groups     *group.Reconciler

	// High-level services
	Declarations *DeclarationService
	Reconcile    *ReconcileService
	Health       *HealthService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Ledger = ledger.New(database.DB)
	s.Store = storage.NewStore(database.DB)
	s.Metrics = metrics.New()

	// Initialize API client
	s.Client, err = logicmonitor.NewClient(logicmonitor.Options{
		Account:  cfg.API.Account,
		User:     cfg.API.User,
		Password: cfg.API.Password,
		BaseURL:  cfg.API.BaseURL,
		Timeout:  cfg.API.Timeout.Duration(),
		Observer: s.Metrics,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	// Alerts go to the log, the ledger and the alert counter
	opts := reconcile.Options{
		Alerts:    reconcile.MultiAlertSink{reconcile.LogAlertSink{}, s.Ledger, s.Metrics},
		Ambiguous: reconcile.AmbiguousWarn,
	}
	if cfg.Reconciler.AmbiguousMatch == config.AmbiguousFail {
		opts.Ambiguous = reconcile.AmbiguousFail
	}

	api := reconcile.NewRateLimitedAPI(s.Client, cfg.Reconciler.RateLimitRPS)
	s.Collectors = collector.NewReconciler(api, opts)
	s.Groups = group.NewReconciler(api, opts)

	s.Declarations = NewDeclarationService(cfg.Declarations, s.Collectors, s.Groups)
	s.Declarations.onDeclared = func(keys map[string]bool) {
		if n, err := s.Store.Prune(keys); err != nil {
			log.Error().Err(err).Msg("Failed to prune stored outcomes")
		} else if n > 0 {
			log.Debug().Int("pruned", n).Msg("Pruned outcomes of undeclared resources")
		}
	}

	s.Health = NewHealthService(cfg, s.Store, s.Ledger, s.Metrics.Handler(), nil)
	s.Reconcile = NewReconcileService(cfg, s.Declarations.Resources, s.Ledger,
		s.Ledger, s.Store, s.Metrics, s.Health)
	s.Health.trigger = s.Reconcile.Orchestrator.Trigger

	return s, nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Client != nil {
		s.Client.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
