// Package storage keeps the last observed reconciliation outcome of every
// declared resource.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/reconcile"
)

// Store provides generic versioned state storage with JSON payloads.
// State is keyed by (kind, id) and stored as JSON blobs with version tracking.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore creates a new generic state store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get retrieves payload and version for a resource.
// Returns empty payload and version 0 if not found.
func (s *Store) Get(kind, id string) (payload []byte, version int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payloadStr string
	err = s.db.QueryRow(`
		SELECT payload, version FROM resource_state
		WHERE kind = ? AND id = ?
	`, kind, id).Scan(&payloadStr, &version)

	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	return []byte(payloadStr), version, nil
}

// Set stores payload, incrementing version automatically.
func (s *Store) Set(kind, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO resource_state (kind, id, payload, version, updated_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			payload = excluded.payload,
			version = version + 1,
			updated_at = excluded.updated_at
	`, kind, id, string(payload), time.Now().UTC().Unix())

	return err
}

// Delete removes a resource state entry.
func (s *Store) Delete(kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM resource_state WHERE kind = ? AND id = ?`, kind, id)
	return err
}

// GetAll returns all entries for a kind with their versions.
func (s *Store) GetAll(kind string) (map[string][]byte, map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, payload, version FROM resource_state WHERE kind = ?
	`, kind)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	payloads := make(map[string][]byte)
	versions := make(map[string]int64)

	for rows.Next() {
		var id, payloadStr string
		var version int64

		if err := rows.Scan(&id, &payloadStr, &version); err != nil {
			return nil, nil, err
		}

		payloads[id] = []byte(payloadStr)
		versions[id] = version
	}

	return payloads, versions, rows.Err()
}

// Outcome is the stored result of the last non-dry-run pass for a resource.
type Outcome struct {
	PassID  string           `json:"pass_id"`
	Status  reconcile.Status `json:"status"`
	Actions []string         `json:"actions,omitempty"`
	Error   string           `json:"error,omitempty"`
	At      time.Time        `json:"at"`
}

// outcomeKind is the resource_state kind for outcomes; declaration keys
// already carry the resource kind.
const outcomeKind = "outcome"

// ObservePass stores the outcome of every resource in the pass. Dry runs
// change nothing and are not recorded.
func (s *Store) ObservePass(_ context.Context, report reconcile.PassReport) {
	if report.DryRun {
		return
	}
	for _, r := range report.Results {
		o := Outcome{
			PassID:  report.ID,
			Status:  r.Status,
			Actions: r.Actions,
			At:      report.Finished.UTC(),
		}
		if r.Err != nil {
			o.Error = r.Err.Error()
		}

		payload, err := json.Marshal(o)
		if err != nil {
			log.Error().Err(err).Str("resource", r.Key).Msg("Failed to encode outcome")
			continue
		}
		if err := s.Set(outcomeKind, r.Key, payload); err != nil {
			log.Error().Err(err).Str("resource", r.Key).Msg("Failed to store outcome")
		}
	}
}

// Outcome returns the last stored outcome for a resource key.
func (s *Store) Outcome(key string) (*Outcome, error) {
	payload, _, err := s.Get(outcomeKind, key)
	if err != nil || payload == nil {
		return nil, err
	}
	var o Outcome
	if err := json.Unmarshal(payload, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Outcomes returns the last stored outcome of every resource, keyed by
// resource key. Entries that fail to decode are skipped.
func (s *Store) Outcomes() (map[string]Outcome, error) {
	payloads, _, err := s.GetAll(outcomeKind)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Outcome, len(payloads))
	for key, payload := range payloads {
		var o Outcome
		if err := json.Unmarshal(payload, &o); err != nil {
			log.Warn().Err(err).Str("resource", key).Msg("Skipping undecodable outcome")
			continue
		}
		out[key] = o
	}
	return out, nil
}

// Prune removes outcomes of resources no longer declared.
func (s *Store) Prune(declared map[string]bool) (int, error) {
	payloads, _, err := s.GetAll(outcomeKind)
	if err != nil {
		return 0, err
	}

	n := 0
	for key := range payloads {
		if declared[key] {
			continue
		}
		if err := s.Delete(outcomeKind, key); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
