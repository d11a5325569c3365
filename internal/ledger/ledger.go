// Package ledger provides an append-only history of reconciliation passes:
// what changed, what failed and which alerts were raised.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/reconcile"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventPassCompleted   EventType = "pass_completed"
	EventResourceChanged EventType = "resource_changed"
	EventResourcePlanned EventType = "resource_planned"
	EventResourceFailed  EventType = "resource_failed"
	EventResourceInvalid EventType = "resource_invalid"
	EventAlert           EventType = "alert"
)

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64          `json:"id"`
	EventType EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	PassID    string         `json:"pass_id,omitempty"`
	Resource  string         `json:"resource,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Ledger provides append-only event logging
type Ledger struct {
	db *sql.DB
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(eventType EventType, passID, resource string, payload map[string]any) error {
	var payloadJSON []byte
	var err error

	if payload != nil {
		payloadJSON, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
	}

	_, err = l.db.Exec(
		`INSERT INTO event_ledger (event_type, timestamp, pass_id, resource, payload) VALUES (?, ?, ?, ?, ?)`,
		string(eventType), time.Now().UTC().Unix(), passID, resource, string(payloadJSON),
	)
	return err
}

// ObservePass records the pass summary and one event per resource that
// changed, was planned, failed or was rejected. Unchanged resources only
// count toward the summary.
func (l *Ledger) ObservePass(_ context.Context, report reconcile.PassReport) {
	for _, r := range report.Results {
		var eventType EventType
		switch r.Status {
		case reconcile.StatusChanged:
			eventType = EventResourceChanged
		case reconcile.StatusPlanned:
			eventType = EventResourcePlanned
		case reconcile.StatusFailed:
			eventType = EventResourceFailed
		case reconcile.StatusInvalid:
			eventType = EventResourceInvalid
		default:
			continue
		}

		payload := map[string]any{
			"actions":     r.Actions,
			"duration_ms": r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			payload["error"] = r.Err.Error()
		}
		if err := l.Append(eventType, report.ID, r.Key, payload); err != nil {
			log.Error().Err(err).Str("resource", r.Key).Msg("Failed to write ledger entry")
		}
	}

	err := l.Append(EventPassCompleted, report.ID, "", map[string]any{
		"dry_run":     report.DryRun,
		"duration_ms": report.Finished.Sub(report.Started).Milliseconds(),
		"changed":     report.Count(reconcile.StatusChanged),
		"unchanged":   report.Count(reconcile.StatusUnchanged),
		"planned":     report.Count(reconcile.StatusPlanned),
		"failed":      report.Count(reconcile.StatusFailed),
		"invalid":     report.Count(reconcile.StatusInvalid),
	})
	if err != nil {
		log.Error().Err(err).Str("pass", report.ID).Msg("Failed to write ledger entry")
	}
}

// Alert records an alert raised during a pass.
func (l *Ledger) Alert(ctx context.Context, a reconcile.Alert) {
	payload := map[string]any{"message": a.Message}
	if a.Raw != "" {
		payload["response"] = a.Raw
	}
	if err := l.Append(EventAlert, reconcile.PassID(ctx), a.Resource.String(), payload); err != nil {
		log.Error().Err(err).Str("resource", a.Resource.String()).Msg("Failed to write ledger entry")
	}
}

// GetByType returns entries filtered by event type, newest first
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, pass_id, resource, payload
		FROM event_ledger
		WHERE event_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByPass returns all entries of one pass in insertion order
func (l *Ledger) GetByPass(passID string) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, pass_id, resource, payload
		FROM event_ledger
		WHERE pass_id = ?
		ORDER BY id
	`, passID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByTimeRange returns entries within a time range
func (l *Ledger) GetByTimeRange(start, end time.Time, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, event_type, timestamp, pass_id, resource, payload
		FROM event_ledger
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, start.Unix(), end.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).Unix()
	result, err := l.db.Exec(`
		DELETE FROM event_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var passID, resource, payloadStr sql.NullString
		var timestamp int64

		if err := rows.Scan(&entry.ID, &entry.EventType, &timestamp, &passID, &resource, &payloadStr); err != nil {
			return nil, err
		}

		entry.Timestamp = time.Unix(timestamp, 0).UTC()
		entry.PassID = passID.String
		entry.Resource = resource.String

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
