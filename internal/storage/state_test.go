package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dokzlo13/lmsync/internal/db"
	"github.com/dokzlo13/lmsync/internal/reconcile"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "state.sqlite"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewStore(d.DB)
}

func TestSetIncrementsVersion(t *testing.T) {
	s := newStore(t)

	for i := 1; i <= 3; i++ {
		if err := s.Set("k", "id", []byte(`{}`)); err != nil {
			t.Fatalf("Set: %v", err)
		}
		_, version, err := s.Get("k", "id")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if version != int64(i) {
			t.Errorf("version = %d, want %d", version, i)
		}
	}

	payload, version, err := s.Get("k", "missing")
	if err != nil || payload != nil || version != 0 {
		t.Errorf("Get(missing) = %s, %d, %v", payload, version, err)
	}
}

func TestObservePass(t *testing.T) {
	s := newStore(t)
	report := reconcile.PassReport{
		ID:       "pass-1",
		Finished: time.Now(),
		Results: []reconcile.Result{
			{Key: "collector/a", Status: reconcile.StatusChanged, Actions: []string{"create"}},
			{Key: "collector/b", Status: reconcile.StatusFailed, Err: errors.New("boom")},
		},
	}
	s.ObservePass(context.Background(), report)

	o, err := s.Outcome("collector/b")
	if err != nil || o == nil {
		t.Fatalf("Outcome = %v, %v", o, err)
	}
	if o.Status != reconcile.StatusFailed || o.Error != "boom" || o.PassID != "pass-1" {
		t.Errorf("outcome = %+v", o)
	}

	// Dry runs leave stored outcomes alone.
	s.ObservePass(context.Background(), reconcile.PassReport{
		ID:      "dry",
		DryRun:  true,
		Results: []reconcile.Result{{Key: "collector/b", Status: reconcile.StatusPlanned}},
	})
	if o, _ := s.Outcome("collector/b"); o.PassID != "pass-1" {
		t.Errorf("dry run overwrote outcome: %+v", o)
	}

	n, err := s.Prune(map[string]bool{"collector/a": true})
	if err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v", n, err)
	}
	all, err := s.Outcomes()
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(all) != 1 || all["collector/a"].Status != reconcile.StatusChanged {
		t.Errorf("outcomes = %+v", all)
	}
}
