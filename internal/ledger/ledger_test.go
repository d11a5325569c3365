package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/lmsync/internal/db"
	"github.com/dokzlo13/lmsync/internal/declare"
	"github.com/dokzlo13/lmsync/internal/reconcile"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return New(d.DB)
}

func TestObservePass(t *testing.T) {
	l := newLedger(t)
	now := time.Now()

	report := reconcile.PassReport{
		ID:       "pass-1",
		Started:  now,
		Finished: now.Add(time.Second),
		Results: []reconcile.Result{
			{Key: "collector/a", Status: reconcile.StatusUnchanged},
			{Key: "collector/b", Status: reconcile.StatusChanged, Actions: []string{"create"}},
			{Key: "device_group//x", Status: reconcile.StatusFailed, Err: errors.New("boom")},
		},
	}
	l.ObservePass(context.Background(), report)

	entries, err := l.GetByPass("pass-1")
	if err != nil {
		t.Fatalf("GetByPass: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	if entries[0].EventType != EventResourceChanged || entries[0].Resource != "collector/b" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].EventType != EventResourceFailed || entries[1].Payload["error"] != "boom" {
		t.Errorf("entries[1] = %+v", entries[1])
	}
	summary := entries[2]
	if summary.EventType != EventPassCompleted || summary.Payload["unchanged"] != float64(1) {
		t.Errorf("summary = %+v", summary)
	}
}

func TestAlertUsesPassFromContext(t *testing.T) {
	l := newLedger(t)
	ctx := reconcile.WithPassID(context.Background(), "pass-2")

	l.Alert(ctx, reconcile.Alert{
		Resource: reconcile.ResourceKey{Kind: declare.KindCollector, ID: "gone"},
		Message:  "collector not found, nothing to delete",
		Raw:      `{"status":200}`,
	})

	entries, err := l.GetByType(EventAlert, 10)
	if err != nil {
		t.Fatalf("GetByType: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.PassID != "pass-2" || e.Resource != "collector/gone" || e.Payload["response"] != `{"status":200}` {
		t.Errorf("entry = %+v", e)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	l := newLedger(t)

	old := time.Now().Add(-48 * time.Hour).Unix()
	if _, err := l.db.Exec(`INSERT INTO event_ledger (event_type, timestamp) VALUES (?, ?)`, string(EventAlert), old); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(EventAlert, "", "collector/x", nil); err != nil {
		t.Fatal(err)
	}

	n, err := l.DeleteOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	entries, _ := l.GetByTimeRange(time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 10)
	if len(entries) != 1 || entries[0].Payload != nil {
		t.Errorf("remaining = %+v", entries)
	}
}
