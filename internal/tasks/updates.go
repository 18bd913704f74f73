package tasks

import (
	"fmt"

	"github.com/desertthunder/spotlist/internal/executor"
	"github.com/desertthunder/spotlist/internal/models"
)

// ProgressUpdate represents a progress event during an import run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	SearchTracks Phase = iota
	FetchPlaylist
	PlanChanges
	CreatePlaylist
	RemoveTracks
	AddTracks
	Complete
)

func (p Phase) String() string {
	switch p {
	case SearchTracks:
		return "search_tracks"
	case FetchPlaylist:
		return "fetch_playlist"
	case PlanChanges:
		return "plan_changes"
	case CreatePlaylist:
		return "create_playlist"
	case RemoveTracks:
		return "remove_tracks"
	case AddTracks:
		return "add_tracks"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func searchStartUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SearchTracks,
		Total:   total,
		Message: fmt.Sprintf("Searching Spotify for %d tracks...", total),
	}
}

// searchTracksUpdate carries the [models.ResolvedEntry] that just finished.
func searchTracksUpdate(step, total int, entry models.ResolvedEntry) ProgressUpdate {
	mark := "✓"
	if !entry.IsMatched() {
		mark = "✗"
	}
	return ProgressUpdate{
		Phase:   SearchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s", step, total, mark, entry.Query.String()),
		Data:    entry,
	}
}

func fetchPlaylistUpdate(name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Looking up playlist %q...", name),
	}
}

// planUpdate carries the computed [models.Plan].
func planUpdate(plan models.Plan, dryRun bool) ProgressUpdate {
	prefix := "Plan"
	if dryRun {
		prefix = "Dry run plan"
	}
	msg := fmt.Sprintf("%s: add %d, remove %d, already present %d", prefix, len(plan.ToAdd), len(plan.ToRemove), plan.AlreadyPresent)
	if plan.CreatePlaylist {
		msg += " (new playlist)"
	}
	return ProgressUpdate{
		Phase:   PlanChanges,
		Step:    1,
		Total:   1,
		Message: msg,
		Data:    plan,
	}
}

func createPlaylistUpdate(name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CreatePlaylist,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Creating playlist %q...", name),
	}
}

// batchUpdate carries the finished [executor.Batch].
func batchUpdate(b executor.Batch) ProgressUpdate {
	phase, verb := AddTracks, "Added"
	if b.Op == models.OpRemove {
		phase, verb = RemoveTracks, "Removed"
	}

	msg := fmt.Sprintf("[%d/%d] %s %d tracks", b.Number, b.Total, verb, len(b.TrackIDs))
	if b.State == executor.Failed {
		msg = fmt.Sprintf("[%d/%d] ✗ %s batch failed after %d attempts: %v", b.Number, b.Total, b.Op, b.Attempts, b.Err)
	}
	return ProgressUpdate{
		Phase:   phase,
		Step:    b.Number,
		Total:   b.Total,
		Message: msg,
		Data:    b,
	}
}

// completeUpdate carries the final [models.RunReport].
func completeUpdate(report *models.RunReport) ProgressUpdate {
	return ProgressUpdate{
		Phase: Complete,
		Step:  1,
		Total: 1,
		Message: fmt.Sprintf("Done: %d added, %d already present, %d removed, %d unmatched, %d failed batches",
			report.Added, report.AlreadyPresent, report.Removed, len(report.Unmatched), len(report.FailedMutations)),
		Data: report,
	}
}
