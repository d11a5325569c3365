package group

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lmsync/internal/logicmonitor"
	"github.com/dokzlo13/lmsync/internal/reconcile"
)

// PropertyDiff is the change needed to make live properties equal the declared set.
type PropertyDiff struct {
	Delete []string          // live keys not declared, sorted
	Upsert map[string]string // declared entries missing or different in live
}

// Empty reports whether no change is needed.
func (d PropertyDiff) Empty() bool {
	return len(d.Delete) == 0 && len(d.Upsert) == 0
}

// DiffProperties computes live - declared (to delete) and the declared
// entries whose live value is missing or different (to upsert). Matching
// entries appear in neither.
func DiffProperties(declared, live map[string]string) PropertyDiff {
	diff := PropertyDiff{Upsert: make(map[string]string)}
	for k := range live {
		if _, ok := declared[k]; !ok {
			diff.Delete = append(diff.Delete, k)
		}
	}
	sort.Strings(diff.Delete)

	for k, v := range declared {
		if lv, ok := live[k]; !ok || lv != v {
			diff.Upsert[k] = v
		}
	}
	return diff
}

// Purger removes undeclared properties from a group. It never deletes groups.
type Purger struct {
	api reconcile.ResourceAPI
}

// NewPurger creates a purge engine.
func NewPurger(api reconcile.ResourceAPI) *Purger {
	return &Purger{api: api}
}

// ReconcileProperties makes the group's properties equal declared. No call is
// made when nothing differs; otherwise one update replaces the property list
// with the declared set, which removes diff.Delete and applies diff.Upsert.
func (p *Purger) ReconcileProperties(ctx context.Context, key reconcile.ResourceKey, groupID int, declared, live map[string]string) (PropertyDiff, error) {
	diff := DiffProperties(declared, live)
	if diff.Empty() {
		return diff, nil
	}

	log.Info().
		Str("group", key.ID).
		Int("id", groupID).
		Strs("delete", diff.Delete).
		Int("upsert", len(diff.Upsert)).
		Msg("Purging device group properties")

	endpoint := fmt.Sprintf(logicmonitor.DeviceGroupEndpoint, groupID) + "?patchFields=customProperties&opType=replace"
	env, err := p.api.Update(ctx, endpoint, logicmonitor.DeviceGroup{
		CustomProperties: propertyList(declared),
	})
	if err != nil {
		return diff, fmt.Errorf("update properties of %s: %w", key, err)
	}
	if reconcile.Classify(env, reconcile.ClassifyOptions{}) != reconcile.OutcomeSuccess {
		return diff, reconcile.NewAPIError("update", key, env)
	}
	return diff, nil
}
