package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/config"
	"github.com/dokzlo13/lmsync/internal/ledger"
	"github.com/dokzlo13/lmsync/internal/reconcile"
	"github.com/dokzlo13/lmsync/internal/storage"
)

// HealthService provides HTTP health, readiness, status and metrics endpoints.
type HealthService struct {
	cfg     *config.Config
	server  *http.Server
	metrics http.Handler
	store   *storage.Store
	ledger  *ledger.Ledger
	trigger func()

	lastPass atomic.Pointer[reconcile.PassReport]
}

// NewHealthService creates a new HealthService. metrics and trigger may be nil.
func NewHealthService(cfg *config.Config, store *storage.Store, l *ledger.Ledger, metrics http.Handler, trigger func()) *HealthService {
	return &HealthService{
		cfg:     cfg,
		metrics: metrics,
		store:   store,
		ledger:  l,
		trigger: trigger,
	}
}

// ObservePass marks the service ready after the first completed pass.
func (s *HealthService) ObservePass(_ context.Context, report reconcile.PassReport) {
	s.lastPass.Store(&report)
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

// Handler returns the HTTP routes.
func (s *HealthService) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
	})

	// Ready once a pass has completed
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		last := s.lastPass.Load()
		if last == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "waiting for first pass"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ready",
			"last_pass": last.ID,
			"finished":  last.Finished.UTC().Format(time.RFC3339),
			"failed":    last.Failed(),
		})
	})

	// Last outcome per declared resource
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "state store disabled"})
			return
		}
		outcomes, err := s.store.Outcomes()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, outcomes)
	})

	// Ledger entries by pass, event type or time range
	mux.HandleFunc("/history", s.handleHistory)

	// Request an immediate pass
	mux.HandleFunc("/reconcile", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "POST required"})
			return
		}
		if s.trigger == nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "reconciliation loop not running"})
			return
		}
		s.trigger()
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "triggered"})
	})

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	return mux
}

const defaultHistoryLimit = 100

// handleHistory serves ledger entries:
//
//	/history?pass=<id>
//	/history?type=<event_type>&limit=N
//	/history?since=<RFC3339>&until=<RFC3339>&limit=N
func (s *HealthService) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "ledger disabled"})
		return
	}

	q := r.URL.Query()
	limit := defaultHistoryLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	var entries []*ledger.Entry
	var err error
	switch {
	case q.Get("pass") != "":
		entries, err = s.ledger.GetByPass(q.Get("pass"))
	case q.Get("type") != "":
		entries, err = s.ledger.GetByType(ledger.EventType(q.Get("type")), limit)
	default:
		until := time.Now()
		since := until.Add(-24 * time.Hour)
		if v := q.Get("since"); v != "" {
			if since, err = time.Parse(time.RFC3339, v); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "since: " + err.Error()})
				return
			}
		}
		if v := q.Get("until"); v != "" {
			if until, err = time.Parse(time.RFC3339, v); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "until: " + err.Error()})
				return
			}
		}
		entries, err = s.ledger.GetByTimeRange(since, until, limit)
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *HealthService) run(ctx context.Context) {
	addr := s.cfg.Healthcheck.Addr()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
