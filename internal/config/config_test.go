package config

import (
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("api:\n  account: acme\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.API.Timeout.Duration() != 30*time.Second {
		t.Errorf("API.Timeout = %v", cfg.API.Timeout.Duration())
	}
	if cfg.Reconciler.AmbiguousMatch != AmbiguousWarn {
		t.Errorf("AmbiguousMatch = %q, want %q", cfg.Reconciler.AmbiguousMatch, AmbiguousWarn)
	}
	if cfg.Healthcheck.Addr() != "0.0.0.0:9090" {
		t.Errorf("Healthcheck.Addr() = %q", cfg.Healthcheck.Addr())
	}
	if cfg.Ledger.Retention() != 30*24*time.Hour {
		t.Errorf("Ledger.Retention() = %v", cfg.Ledger.Retention())
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("LM_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(`
api:
  account: acme
  user: ${LM_USER:puppet}
  password: ${LM_PASSWORD}
reconciler:
  periodic_interval: 1m
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.API.User != "puppet" {
		t.Errorf("User = %q, want default", cfg.API.User)
	}
	if cfg.API.Password != "s3cret" {
		t.Errorf("Password = %q, want from env", cfg.API.Password)
	}
	if cfg.Reconciler.PeriodicInterval.Duration() != time.Minute {
		t.Errorf("PeriodicInterval = %v", cfg.Reconciler.PeriodicInterval.Duration())
	}
}

func TestParse_RejectsUnknownAmbiguousPolicy(t *testing.T) {
	if _, err := Parse([]byte("reconciler:\n  ambiguous_match: random\n")); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestExpandEnvString(t *testing.T) {
	t.Setenv("LM_ACCOUNT", "acme")
	if got := ExpandEnvString("${LM_ACCOUNT}"); got != "acme" {
		t.Errorf("got %q", got)
	}
	if got := ExpandEnvString("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
}
