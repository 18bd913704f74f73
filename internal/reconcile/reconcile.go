// package reconcile computes the playlist mutations that realise an import policy.
//
// A plan is derived once from one snapshot of the remote playlist and is never recomputed
// while it is being applied.
package reconcile

import (
	"github.com/desertthunder/spotlist/internal/models"
)

// Plan builds the [models.Plan] for entries against state under policy.
//
// Only matched entries contribute identifiers, in input order with duplicates kept.
func Plan(entries []models.ResolvedEntry, state models.PlaylistState, policy models.Policy) models.Plan {
	matched := models.MatchedIDs(entries)

	plan := models.Plan{
		Policy:         policy,
		CreatePlaylist: !state.Exists(),
		ToAdd:          []string{},
		ToRemove:       []string{},
	}

	if !state.Exists() {
		plan.ToAdd = append(plan.ToAdd, matched...)
		return plan
	}

	switch policy {
	case models.Overwrite:
		plan.ToRemove = distinct(state.TrackIDs)
		plan.ToAdd = append(plan.ToAdd, matched...)
	default:
		present := make(map[string]struct{}, len(state.TrackIDs))
		for _, id := range state.TrackIDs {
			present[id] = struct{}{}
		}
		for _, id := range matched {
			if _, ok := present[id]; ok {
				plan.AlreadyPresent++
				continue
			}
			plan.ToAdd = append(plan.ToAdd, id)
		}
	}
	return plan
}

// distinct returns ids without repeats, in order of first appearance.
func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Simulate returns the playlist contents that result from applying plan to state, assuming every
// mutation succeeds. Removal drops every occurrence of an identifier, as the remote does.
func Simulate(state models.PlaylistState, plan models.Plan) []string {
	remove := make(map[string]struct{}, len(plan.ToRemove))
	for _, id := range plan.ToRemove {
		remove[id] = struct{}{}
	}

	out := make([]string, 0, len(state.TrackIDs)+len(plan.ToAdd))
	for _, id := range state.TrackIDs {
		if _, ok := remove[id]; !ok {
			out = append(out, id)
		}
	}
	return append(out, plan.ToAdd...)
}
