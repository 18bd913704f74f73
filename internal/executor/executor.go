// package executor applies a reconciliation plan to the remote playlist.
//
// Mutations run strictly in sequence: playlist creation, then every removal batch, then every
// addition batch. Each batch is retried on transient failures and recorded as a failure otherwise;
// a failed batch never stops the batches after it.
package executor

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/shared"
)

// MaxBatchSize is the largest number of identifiers the remote accepts per add or remove call.
const MaxBatchSize = 100

// PlaylistStore is the playlist capability the executor mutates.
type PlaylistStore interface {
	// Fetch returns a snapshot of the playlist called name, with an empty ID when none exists.
	Fetch(ctx context.Context, name string) (models.PlaylistState, error)
	Create(ctx context.Context, name string) (string, error)
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) error
	// RemoveTracks removes every occurrence of each identifier.
	RemoveTracks(ctx context.Context, playlistID string, trackIDs []string) error
}

// BatchState is a step in the lifecycle of one mutation batch.
type BatchState int

const (
	Pending BatchState = iota
	Sent
	Retrying
	Succeeded
	Failed
)

func (s BatchState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Sent:
		return "sent"
	case Retrying:
		return "retrying"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Batch is one add or remove call and the states it went through.
type Batch struct {
	Op       models.MutationOp
	Number   int // 1-based within Op
	Total    int // batches for Op
	TrackIDs []string
	State    BatchState
	History  []BatchState
	Attempts int
	Err      error
}

func (b *Batch) moveTo(s BatchState) {
	b.State = s
	b.History = append(b.History, s)
}

// Result summarises what an [Executor.Apply] call did.
type Result struct {
	PlaylistID string
	Created    bool
	Added      int
	Removed    int
	Failures   []models.MutationFailure
	Batches    []Batch
}

// Observer is notified when a batch reaches a terminal state.
type Observer func(b Batch)

// Executor applies plans through a [PlaylistStore].
type Executor struct {
	store     PlaylistStore
	batchSize int
	backoff   shared.Backoff
	logger    *log.Logger
}

// New creates an Executor. batchSize is clamped to [1, MaxBatchSize]; a nil logger discards output.
func New(store PlaylistStore, batchSize int, backoff shared.Backoff, logger *log.Logger) *Executor {
	if batchSize < 1 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Executor{store: store, batchSize: batchSize, backoff: backoff, logger: logger}
}

// Chunk splits ids into consecutive batches of at most size identifiers.
func Chunk(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end:end])
	}
	return batches
}

// Apply realises plan against the playlist called name. playlistID is the snapshot's ID and may be
// empty when the plan creates the playlist.
//
// The returned error is non-nil only for fatal failures, currently a failed creation, which wraps
// [shared.ErrPlaylistCreate].
func (e *Executor) Apply(ctx context.Context, name, playlistID string, plan models.Plan, observe Observer) (*Result, error) {
	result := &Result{PlaylistID: playlistID, Failures: []models.MutationFailure{}}

	if plan.CreatePlaylist {
		id, err := e.create(ctx, name)
		if err != nil {
			return result, fmt.Errorf("%w: %q: %w", shared.ErrPlaylistCreate, name, err)
		}
		result.PlaylistID = id
		result.Created = true
		e.logger.Info("created playlist", "name", name, "id", id)
	}

	if result.PlaylistID == "" && (len(plan.ToRemove) > 0 || len(plan.ToAdd) > 0) {
		return result, fmt.Errorf("%w: no playlist id for %q", shared.ErrPlaylistNotFound, name)
	}

	result.Removed = e.run(ctx, models.OpRemove, result, plan.ToRemove, e.store.RemoveTracks, observe)
	result.Added = e.run(ctx, models.OpAdd, result, plan.ToAdd, e.store.AddTracks, observe)
	return result, nil
}

// create makes the playlist. Before a retry it looks the name up again, since a create whose response
// was lost may still have gone through.
func (e *Executor) create(ctx context.Context, name string) (string, error) {
	var id string
	tries := 0
	_, err := e.backoff.Do(ctx, func(ctx context.Context) error {
		tries++
		if tries > 1 {
			state, err := e.store.Fetch(ctx, name)
			if err != nil {
				return err
			}
			if state.Exists() {
				id = state.ID
				e.logger.Info("playlist from an earlier attempt found", "name", name, "id", id)
				return nil
			}
		}

		var err error
		id, err = e.store.Create(context.WithoutCancel(ctx), name)
		return err
	}, func(a shared.Attempt) {
		e.logger.Warn("create playlist failed", "name", name, "attempt", a.Number, "retry_in", a.Next, "error", a.Err)
	})
	return id, err
}

type mutation func(ctx context.Context, playlistID string, trackIDs []string) error

// run sends every batch for op and returns the number of identifiers in successful batches.
func (e *Executor) run(ctx context.Context, op models.MutationOp, result *Result, ids []string, call mutation, observe Observer) int {
	chunks := Chunk(ids, e.batchSize)
	applied := 0

	for i, chunk := range chunks {
		b := Batch{Op: op, Number: i + 1, Total: len(chunks), TrackIDs: chunk}
		b.moveTo(Pending)

		if err := ctx.Err(); err != nil {
			b.Err = err
			b.moveTo(Failed)
		} else {
			e.send(ctx, result.PlaylistID, &b, call)
		}

		if b.State == Succeeded {
			applied += len(chunk)
		} else {
			result.Failures = append(result.Failures, models.MutationFailure{
				Op:       op,
				Batch:    b.Number,
				TrackIDs: chunk,
				Reason:   b.Err.Error(),
			})
		}
		result.Batches = append(result.Batches, b)
		if observe != nil {
			observe(b)
		}
	}
	return applied
}

// send drives one batch to Succeeded or Failed. A call that has been sent is awaited even if ctx is
// cancelled meanwhile; cancellation only stops further retries.
func (e *Executor) send(ctx context.Context, playlistID string, b *Batch, call mutation) {
	logger := shared.WithLogger(e.logger, "op", b.Op, "batch", b.Number, "size", len(b.TrackIDs))

	attempts, err := e.backoff.Do(ctx, func(ctx context.Context) error {
		b.moveTo(Sent)
		return call(context.WithoutCancel(ctx), playlistID, b.TrackIDs)
	}, func(a shared.Attempt) {
		if a.Retry {
			b.moveTo(Retrying)
			logger.Warn("batch failed, retrying", "attempt", a.Number, "retry_in", a.Next, "error", a.Err)
		}
	})
	b.Attempts = attempts

	if err != nil {
		b.Err = err
		b.moveTo(Failed)
		if shared.IsTransient(err) {
			logger.Error("batch failed after retries", "attempts", attempts, "error", err)
		} else {
			logger.Error("batch failed", "error", err)
		}
		return
	}
	b.moveTo(Succeeded)
	logger.Debug("batch applied", "attempts", attempts)
}
