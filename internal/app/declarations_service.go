package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/declare"
	luart "github.com/dokzlo13/lmsync/internal/lua"
	"github.com/dokzlo13/lmsync/internal/reconcile"
	"github.com/dokzlo13/lmsync/internal/reconcile/collector"
	"github.com/dokzlo13/lmsync/internal/reconcile/group"
)

// DeclarationService reads the declaration file on every pass and turns
// it into reconcilable resources.
type DeclarationService struct {
	path       string
	collectors *collector.Reconciler
	groups     *group.Reconciler

	// onDeclared receives the keys of the valid declarations of each load.
	onDeclared func(keys map[string]bool)
}

// NewDeclarationService creates a new DeclarationService.
func NewDeclarationService(path string, collectors *collector.Reconciler, groups *group.Reconciler) *DeclarationService {
	return &DeclarationService{
		path:       path,
		collectors: collectors,
		groups:     groups,
	}
}

// Load reads the declarations. Files ending in .lua are evaluated as Lua
// scripts; anything else is parsed as YAML.
func (s *DeclarationService) Load(ctx context.Context) (declare.Set, error) {
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".lua":
		return luart.Evaluate(ctx, s.path)
	default:
		return declare.LoadFile(s.path)
	}
}

// Resources implements reconcile.Source.
func (s *DeclarationService) Resources(ctx context.Context) ([]reconcile.Resource, []error, error) {
	set, err := s.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load declarations from %s: %w", s.path, err)
	}

	valid, invalid := declare.Check(set)
	log.Debug().
		Str("path", s.path).
		Int("valid", len(valid)).
		Int("invalid", len(invalid)).
		Msg("Declarations loaded")

	keys := make(map[string]bool, len(valid))
	resources := make([]reconcile.Resource, 0, len(valid))
	for _, d := range valid {
		keys[d.Key()] = true
		switch d.Kind {
		case declare.KindCollector:
			resources = append(resources, collector.NewResource(*d.Collector, s.collectors))
		case declare.KindDeviceGroup:
			resources = append(resources, group.NewResource(*d.DeviceGroup, s.groups))
		}
	}

	if s.onDeclared != nil {
		s.onDeclared(keys)
	}

	return resources, invalid, nil
}
