// Package group reconciles device groups: path resolution, creation of
// missing ancestors, attribute drift and property purge.
package group

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/declare"
	"github.com/dokzlo13/lmsync/internal/logicmonitor"
	"github.com/dokzlo13/lmsync/internal/reconcile"
)

// ErrPathCycle is returned when walking a path revisits a group or the API
// returns a child that does not belong to the expected parent.
var ErrPathCycle = errors.New("group path cycle")

const groupFields = "id,parentId,name,fullPath,description,disableAlerting,customProperties"

// Attributes are the declared settings applied when creating the terminal group.
type Attributes struct {
	Description string
	Properties  map[string]string
	AlertEnable *bool
}

// Resolution is the result of resolving a path.
type Resolution struct {
	ID      int
	Group   logicmonitor.DeviceGroup // live state of the terminal group
	Created []int                    // ids created by this call, root-most first
}

// Resolver maps slash-delimited paths to group ids.
//
// Lookup-then-create is not atomic on the remote side: two concurrent
// resolutions of the same missing segment can both create it. Passes are
// serialized by the Orchestrator to avoid that.
type Resolver struct {
	api  reconcile.ResourceAPI
	opts reconcile.Options
}

// NewResolver creates a path resolver.
func NewResolver(api reconcile.ResourceAPI, opts reconcile.Options) *Resolver {
	return &Resolver{api: api, opts: opts}
}

// Key returns the resource key for a group path.
func Key(fullpath string) reconcile.ResourceKey {
	return reconcile.ResourceKey{Kind: declare.KindDeviceGroup, ID: fullpath}
}

// SplitPath splits a validated path into segments. "/" has none.
func SplitPath(fullpath string) ([]string, error) {
	if err := declare.ValidatePath(fullpath); err != nil {
		return nil, err
	}
	if fullpath == "/" {
		return nil, nil
	}
	return strings.Split(fullpath[1:], "/"), nil
}

// Lookup walks the path without creating anything. It returns nil when any
// segment is missing.
func (r *Resolver) Lookup(ctx context.Context, fullpath string) (*logicmonitor.DeviceGroup, error) {
	segments, err := SplitPath(fullpath)
	if err != nil {
		return nil, err
	}
	key := Key(fullpath)

	current, err := r.fetchRoot(ctx, key)
	if err != nil {
		return nil, err
	}

	visited := map[int]bool{current.ID: true}
	for _, name := range segments {
		child, err := r.findChild(ctx, key, current.ID, name)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, nil
		}
		if err := checkStep(visited, current.ID, child); err != nil {
			return nil, fmt.Errorf("%s: %w", fullpath, err)
		}
		current = child
	}

	return current, nil
}

// Resolve walks the path from the root, creating missing groups. The
// terminal group is created with attrs; intermediate groups get defaults.
// A creation failure aborts without removing groups already created, since
// ancestors may be shared with other paths.
func (r *Resolver) Resolve(ctx context.Context, fullpath string, attrs Attributes) (Resolution, error) {
	segments, err := SplitPath(fullpath)
	if err != nil {
		return Resolution{}, err
	}
	key := Key(fullpath)

	current, err := r.fetchRoot(ctx, key)
	if err != nil {
		return Resolution{}, err
	}

	var res Resolution
	visited := map[int]bool{current.ID: true}
	for i, name := range segments {
		child, err := r.findChild(ctx, key, current.ID, name)
		if err != nil {
			return res, err
		}

		if child == nil {
			spec := logicmonitor.DeviceGroup{ParentID: current.ID, Name: name, CustomProperties: []logicmonitor.Property{}}
			if i == len(segments)-1 {
				spec = newGroupSpec(current.ID, name, attrs)
			}
			child, err = r.create(ctx, key, spec)
			if err != nil {
				return res, err
			}
			res.Created = append(res.Created, child.ID)
			log.Info().
				Str("path", "/"+strings.Join(segments[:i+1], "/")).
				Int("id", child.ID).
				Int("parent_id", current.ID).
				Msg("Created device group")
		}

		if err := checkStep(visited, current.ID, child); err != nil {
			return res, fmt.Errorf("%s: %w", fullpath, err)
		}
		current = child
	}

	res.ID = current.ID
	res.Group = *current
	return res, nil
}

func checkStep(visited map[int]bool, parentID int, child *logicmonitor.DeviceGroup) error {
	if child.ParentID != parentID {
		return fmt.Errorf("%w: group %d has parent %d, expected %d", ErrPathCycle, child.ID, child.ParentID, parentID)
	}
	if visited[child.ID] {
		return fmt.Errorf("%w: group %d visited twice", ErrPathCycle, child.ID)
	}
	visited[child.ID] = true
	return nil
}

func (r *Resolver) fetchRoot(ctx context.Context, key reconcile.ResourceKey) (*logicmonitor.DeviceGroup, error) {
	g, err := r.queryOne(ctx, key, logicmonitor.Filter(logicmonitor.Eq("id", logicmonitor.RootGroupID)))
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("root device group %d not found", logicmonitor.RootGroupID)
	}
	return g, nil
}

func (r *Resolver) findChild(ctx context.Context, key reconcile.ResourceKey, parentID int, name string) (*logicmonitor.DeviceGroup, error) {
	return r.queryOne(ctx, key, logicmonitor.Filter(logicmonitor.Eq("parentId", parentID), logicmonitor.Eq("name", name)))
}

func (r *Resolver) queryOne(ctx context.Context, key reconcile.ResourceKey, filter string) (*logicmonitor.DeviceGroup, error) {
	env, err := r.api.Query(ctx, logicmonitor.DeviceGroupsEndpoint, logicmonitor.Query{
		Filter: filter,
		Fields: groupFields,
		Size:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("query device group (%s): %w", filter, err)
	}

	switch reconcile.Classify(env, reconcile.ClassifyOptions{ExpectSingleItem: true}) {
	case reconcile.OutcomeSuccessEmpty:
		return nil, nil
	case reconcile.OutcomeFailure:
		return nil, reconcile.NewAPIError("query", key, env)
	}

	page, err := logicmonitor.DecodePage[logicmonitor.DeviceGroup](env)
	if err != nil {
		return nil, fmt.Errorf("query device group (%s): %w", filter, err)
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	if err := r.opts.CheckMatches(ctx, key, filter, page.Total); err != nil {
		return nil, err
	}
	return &page.Items[0], nil
}

func (r *Resolver) create(ctx context.Context, key reconcile.ResourceKey, spec logicmonitor.DeviceGroup) (*logicmonitor.DeviceGroup, error) {
	env, err := r.api.Create(ctx, logicmonitor.DeviceGroupsEndpoint, spec)
	if err != nil {
		return nil, fmt.Errorf("create device group %q: %w", spec.Name, err)
	}
	if reconcile.Classify(env, reconcile.ClassifyOptions{}) != reconcile.OutcomeSuccess {
		return nil, reconcile.NewAPIError("create", key, env)
	}

	created, err := logicmonitor.DecodeItem[logicmonitor.DeviceGroup](env)
	if err != nil {
		return nil, fmt.Errorf("create device group %q: %w", spec.Name, err)
	}
	return &created, nil
}

func newGroupSpec(parentID int, name string, attrs Attributes) logicmonitor.DeviceGroup {
	return logicmonitor.DeviceGroup{
		ParentID:         parentID,
		Name:             name,
		Description:      attrs.Description,
		DisableAlerting:  attrs.AlertEnable != nil && !*attrs.AlertEnable,
		CustomProperties: propertyList(attrs.Properties),
	}
}

// propertyList converts a property map to the wire list, sorted by name.
func propertyList(props map[string]string) []logicmonitor.Property {
	list := make([]logicmonitor.Property, 0, len(props))
	for k, v := range props {
		list = append(list, logicmonitor.Property{Name: k, Value: v})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
