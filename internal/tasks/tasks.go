// package tasks implements the import run: resolve, snapshot, plan, apply, report.
package tasks

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlist/internal/executor"
	"github.com/desertthunder/spotlist/internal/matcher"
	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/reconcile"
	"github.com/desertthunder/spotlist/internal/shared"
)

// ImportRequest describes one run.
type ImportRequest struct {
	Playlist string              // Target playlist name
	Queries  []models.TrackQuery // Parsed input lines, in order
	Policy   models.Policy
	DryRun   bool // Resolve and plan only
}

// RunRecorder persists finished runs, e.g. [repositories.RunRepository].
type RunRecorder interface {
	Save(report *models.RunReport) (int, error)
}

// ImportEngine wires the resolver, the playlist store and the executor into a single run.
type ImportEngine struct {
	resolver *matcher.Resolver
	store    executor.PlaylistStore
	executor *executor.Executor
	backoff  shared.Backoff
	recorder RunRecorder
	logger   *log.Logger
}

// NewImportEngine creates an ImportEngine. backoff governs the playlist lookup; a nil logger discards output.
func NewImportEngine(resolver *matcher.Resolver, store executor.PlaylistStore, exec *executor.Executor, backoff shared.Backoff, logger *log.Logger) *ImportEngine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &ImportEngine{
		resolver: resolver,
		store:    store,
		executor: exec,
		backoff:  backoff,
		logger:   logger,
	}
}

// WithRecorder sets the recorder used to store finished runs.
func (e *ImportEngine) WithRecorder(r RunRecorder) *ImportEngine {
	e.recorder = r
	return e
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *ImportEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full, skip this update
	}
}

// Run performs one import.
//
// A completed run returns its report and a nil error, whatever the number of unmatched lines or
// failed batches. A fatal error returns the partial report alongside it.
func (e *ImportEngine) Run(ctx context.Context, req ImportRequest, progress chan<- ProgressUpdate) (*models.RunReport, error) {
	if e.resolver == nil || e.store == nil || e.executor == nil {
		return nil, fmt.Errorf("%w: import engine not initialized", shared.ErrServiceUnavailable)
	}
	if req.Playlist == "" {
		return nil, fmt.Errorf("%w: playlist name", shared.ErrMissingArgument)
	}

	report := models.NewRunReport(shared.GenerateID(), req.Playlist, req.Policy)
	report.DryRun = req.DryRun
	report.StartedAt = time.Now()

	logger := shared.WithLogger(e.logger, "run", report.RunID, "playlist", req.Playlist)
	logger.Info("starting import", "lines", len(req.Queries), "policy", req.Policy, "dry_run", req.DryRun)

	total := len(req.Queries)
	e.sendProgress(progress, searchStartUpdate(total))
	entries, err := e.resolver.ResolveAll(ctx, req.Queries, func(done, total int, entry models.ResolvedEntry) {
		e.sendProgress(progress, searchTracksUpdate(done, total, entry))
	})
	report.SetEntries(entries)
	if err != nil {
		return e.abort(report), fmt.Errorf("track resolution interrupted: %w", err)
	}

	if report.MatchedCount() == 0 {
		logger.Warn("no tracks matched, leaving playlist untouched")
		return e.finish(logger, report, progress), nil
	}

	e.sendProgress(progress, fetchPlaylistUpdate(req.Playlist))
	state, err := e.fetch(ctx, logger, req.Playlist)
	if err != nil {
		return e.abort(report), err
	}
	report.PlaylistID = state.ID

	plan := reconcile.Plan(entries, state, req.Policy)
	report.AlreadyPresent = plan.AlreadyPresent
	e.sendProgress(progress, planUpdate(plan, req.DryRun))
	logger.Info("planned changes", "create", plan.CreatePlaylist, "add", len(plan.ToAdd), "remove", len(plan.ToRemove), "already_present", plan.AlreadyPresent)

	if req.DryRun {
		report.Created = plan.CreatePlaylist
		report.Added = len(plan.ToAdd)
		report.Removed = len(plan.ToRemove)
		return e.finish(logger, report, progress), nil
	}

	if plan.CreatePlaylist {
		e.sendProgress(progress, createPlaylistUpdate(req.Playlist))
	}
	result, err := e.executor.Apply(ctx, req.Playlist, state.ID, plan, func(b executor.Batch) {
		e.sendProgress(progress, batchUpdate(b))
	})
	if err != nil {
		return e.abort(report), err
	}

	report.PlaylistID = result.PlaylistID
	report.Created = result.Created
	report.Added = result.Added
	report.Removed = result.Removed
	for _, f := range result.Failures {
		report.RecordFailure(f)
	}
	return e.finish(logger, report, progress), nil
}

// fetch takes the playlist snapshot, retrying transient failures.
func (e *ImportEngine) fetch(ctx context.Context, logger *log.Logger, name string) (models.PlaylistState, error) {
	var state models.PlaylistState
	_, err := e.backoff.Do(ctx, func(ctx context.Context) error {
		var err error
		state, err = e.store.Fetch(ctx, name)
		return err
	}, func(a shared.Attempt) {
		logger.Warn("playlist lookup failed", "attempt", a.Number, "retry_in", a.Next, "error", a.Err)
	})
	if err != nil {
		return state, fmt.Errorf("%w: failed to look up playlist %q: %w", shared.ErrAPIRequest, name, err)
	}
	return state, nil
}

func (e *ImportEngine) abort(report *models.RunReport) *models.RunReport {
	report.FinishedAt = time.Now()
	return report
}

// finish stamps the report, stores it and announces completion. A storage failure is logged, not returned.
func (e *ImportEngine) finish(logger *log.Logger, report *models.RunReport, progress chan<- ProgressUpdate) *models.RunReport {
	report.FinishedAt = time.Now()

	if e.recorder != nil {
		if seq, err := e.recorder.Save(report); err != nil {
			logger.Warn("failed to record run", "error", err)
		} else {
			logger.Debug("recorded run", "sequence", seq)
		}
	}

	logger.Info("import finished",
		"matched", report.MatchedCount(),
		"unmatched", len(report.Unmatched),
		"added", report.Added,
		"removed", report.Removed,
		"failed_batches", len(report.FailedMutations),
		"duration", report.Duration(),
	)
	e.sendProgress(progress, completeUpdate(report))
	return report
}
