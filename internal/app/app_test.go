package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/dokzlo13/lmsync/internal/config"
	"github.com/dokzlo13/lmsync/internal/ledger"
	"github.com/dokzlo13/lmsync/internal/logicmonitor/lmtest"
	"github.com/dokzlo13/lmsync/internal/reconcile"
	"github.com/dokzlo13/lmsync/internal/storage"
)

const declarations = `
collectors:
  - description: host1.example.com
    osfam: debian
  - description: retired.example.com
    ensure: absent
device_groups:
  - fullpath: /puppetlabs/puppet
    properties:
      mysql.port: 1234
  - fullpath: relative/path
`

func newTestApp(t *testing.T, decls string) (*App, *lmtest.Fake) {
	t.Helper()

	fake := lmtest.New()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	declPath := filepath.Join(dir, "resources.yaml")
	if err := os.WriteFile(declPath, []byte(decls), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Parse([]byte(`
api:
  base_url: ` + server.URL + `
  user: puppet
  password: secret
reconciler:
  rate_limit_rps: 1000
`))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	cfg.Declarations = declPath
	cfg.Database.Path = filepath.Join(dir, "lmsync.sqlite")

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Stop() })
	return a, fake
}

func TestRunOnce(t *testing.T) {
	a, fake := newTestApp(t, declarations)
	ctx := context.Background()

	report := a.RunOnce(ctx, false)

	statuses := make(map[string]reconcile.Status)
	for _, r := range report.Results {
		statuses[r.Key] = r.Status
	}
	want := map[string]reconcile.Status{
		"collector/host1.example.com":     reconcile.StatusChanged,
		"collector/retired.example.com":   reconcile.StatusUnchanged,
		"device_group//puppetlabs/puppet": reconcile.StatusChanged,
		"device_group/relative/path":      reconcile.StatusInvalid,
	}
	for key, status := range want {
		if statuses[key] != status {
			t.Errorf("%s: status = %s, want %s", key, statuses[key], status)
		}
	}
	if !report.Failed() {
		t.Error("pass with an invalid declaration should report failure")
	}

	if n := len(fake.Collectors()); n != 1 {
		t.Errorf("collectors = %d, want 1", n)
	}
	groups := fake.Groups()
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want root + 2", len(groups))
	}
	if got := groups[2].PropertyMap()["mysql.port"]; got != "1234" {
		t.Errorf("mysql.port = %q", got)
	}

	// Second pass converges without writes.
	fake.ResetCalls()
	report = a.RunOnce(ctx, false)
	if report.Count(reconcile.StatusChanged) != 0 {
		t.Errorf("second pass changed %d resources", report.Count(reconcile.StatusChanged))
	}
	for _, c := range fake.Calls() {
		if c.Method != http.MethodGet {
			t.Errorf("unexpected %s %s on second pass", c.Method, c.Endpoint)
		}
	}

	// Ledger and state store saw both passes.
	passes, err := a.services.Ledger.GetByType(ledger.EventPassCompleted, 10)
	if err != nil || len(passes) != 2 {
		t.Errorf("ledger passes = %d, %v", len(passes), err)
	}
	invalid, err := a.services.Ledger.GetByType(ledger.EventResourceInvalid, 10)
	if err != nil || len(invalid) != 2 {
		t.Errorf("ledger invalid entries = %d, %v", len(invalid), err)
	}
	if o, err := a.services.Store.Outcome("collector/host1.example.com"); err != nil || o == nil || o.Status != reconcile.StatusUnchanged {
		t.Errorf("stored outcome = %+v, %v", o, err)
	}
}

func TestRunOnceDryRun(t *testing.T) {
	a, fake := newTestApp(t, declarations)

	report := a.RunOnce(context.Background(), true)
	if report.Count(reconcile.StatusPlanned) != 2 {
		t.Errorf("planned = %d, want 2", report.Count(reconcile.StatusPlanned))
	}
	for _, c := range fake.Calls() {
		if c.Method != http.MethodGet {
			t.Errorf("dry run made %s %s", c.Method, c.Endpoint)
		}
	}
}

func TestLuaDeclarations(t *testing.T) {
	a, fake := newTestApp(t, "")

	path := filepath.Join(t.TempDir(), "resources.lua")
	script := `
local lm = require("lm")
lm.collector({ description = "lua.example.com" })
lm.device_group({ fullpath = "/lua" }):property("owner", "ops")
`
	if err := os.WriteFile(path, []byte(script), 0o600); err != nil {
		t.Fatal(err)
	}
	a.services.Declarations.path = path

	report := a.RunOnce(context.Background(), false)
	if report.Failed() || report.Count(reconcile.StatusChanged) != 2 {
		t.Fatalf("results = %+v", report.Results)
	}
	if c := fake.Collectors(); len(c) != 1 || c[0].Description != "lua.example.com" {
		t.Errorf("collectors = %+v", c)
	}
}

func TestHealthHandler(t *testing.T) {
	a, _ := newTestApp(t, declarations)
	h := a.services.Health.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	if rec := get("/health"); rec.Code != http.StatusOK {
		t.Errorf("/health = %d", rec.Code)
	}
	if rec := get("/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready before first pass = %d", rec.Code)
	}

	a.RunOnce(context.Background(), false)

	if rec := get("/ready"); rec.Code != http.StatusOK {
		t.Errorf("/ready after pass = %d", rec.Code)
	}

	rec := get("/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("/status = %d", rec.Code)
	}
	var outcomes map[string]storage.Outcome
	if err := json.NewDecoder(rec.Body).Decode(&outcomes); err != nil {
		t.Fatalf("decode /status: %v", err)
	}
	if outcomes["collector/host1.example.com"].Status != reconcile.StatusChanged {
		t.Errorf("outcomes = %+v", outcomes)
	}

	if rec := get("/metrics"); rec.Code != http.StatusOK {
		t.Errorf("/metrics = %d", rec.Code)
	}

	if rec := get("/reconcile"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /reconcile = %d", rec.Code)
	}
	post := httptest.NewRecorder()
	h.ServeHTTP(post, httptest.NewRequest(http.MethodPost, "/reconcile", nil))
	if post.Code != http.StatusAccepted {
		t.Errorf("POST /reconcile = %d", post.Code)
	}
}

func TestHistoryHandler(t *testing.T) {
	a, _ := newTestApp(t, declarations)
	h := a.services.Health.Handler()
	report := a.RunOnce(context.Background(), false)

	history := func(query string) (int, []ledger.Entry) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history"+query, nil))
		var entries []ledger.Entry
		if rec.Code == http.StatusOK {
			if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
				t.Fatalf("decode /history%s: %v", query, err)
			}
		}
		return rec.Code, entries
	}

	code, entries := history("?pass=" + report.ID)
	if code != http.StatusOK || len(entries) == 0 {
		t.Fatalf("/history?pass = %d, %d entries", code, len(entries))
	}
	last := entries[len(entries)-1]
	if last.EventType != ledger.EventPassCompleted || last.PassID != report.ID {
		t.Errorf("last entry = %+v", last)
	}
	for _, e := range entries {
		if e.PassID != report.ID {
			t.Errorf("entry from pass %q", e.PassID)
		}
	}

	if code, entries := history("?type=resource_invalid"); code != http.StatusOK || len(entries) != 1 || entries[0].Resource != "device_group/relative/path" {
		t.Errorf("/history?type = %d, %+v", code, entries)
	}
	if code, entries := history(""); code != http.StatusOK || len(entries) == 0 {
		t.Errorf("/history = %d, %d entries", code, len(entries))
	}
	if code, entries := history("?since=2000-01-01T00:00:00Z&until=2000-01-02T00:00:00Z"); code != http.StatusOK || len(entries) != 0 {
		t.Errorf("/history old range = %d, %d entries", code, len(entries))
	}
	if code, _ := history("?limit=zero"); code != http.StatusBadRequest {
		t.Errorf("/history?limit=zero = %d", code)
	}
	if code, _ := history("?since=yesterday"); code != http.StatusBadRequest {
		t.Errorf("/history?since=yesterday = %d", code)
	}
}

func TestNewRejectsMissingAccount(t *testing.T) {
	cfg, err := config.Parse([]byte(`database: {path: ` + filepath.Join(t.TempDir(), "x.sqlite") + `}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(cfg); err == nil {
		t.Error("expected error without account or base_url")
	}
}
