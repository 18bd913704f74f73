package executor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/reconcile"
	"github.com/desertthunder/spotlist/internal/shared"
	tu "github.com/desertthunder/spotlist/internal/testing"
)

func testBackoff() shared.Backoff {
	return shared.Backoff{MaxAttempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2}
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return out
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name string
		n    int
		size int
		want []int
	}{
		{name: "empty", n: 0, size: 100, want: []int{}},
		{name: "exact", n: 200, size: 100, want: []int{100, 100}},
		{name: "remainder", n: 250, size: 100, want: []int{100, 100, 50}},
		{name: "single", n: 3, size: 100, want: []int{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunk(ids("t", tt.n), tt.size)
			sizes := make([]int, len(got))
			for i, b := range got {
				sizes[i] = len(b)
			}
			if !slices.Equal(sizes, tt.want) {
				t.Errorf("batch sizes = %v, want %v", sizes, tt.want)
			}
		})
	}
}

func TestBatchState(t *testing.T) {
	for s, want := range map[BatchState]string{Pending: "pending", Sent: "sent", Retrying: "retrying", Succeeded: "succeeded", Failed: "failed"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestApply(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates Then Adds", func(t *testing.T) {
		store := tu.NewFakeStore()
		exec := New(store, 100, testBackoff(), nil)
		plan := models.Plan{CreatePlaylist: true, ToAdd: []string{"a", "b"}}

		result, err := exec.Apply(ctx, "Mix", "", plan, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Created || result.PlaylistID == "" {
			t.Fatalf("expected a created playlist, got %+v", result)
		}
		if result.Added != 2 {
			t.Errorf("expected 2 added, got %d", result.Added)
		}
		if got := store.Tracks(result.PlaylistID); !slices.Equal(got, []string{"a", "b"}) {
			t.Errorf("unexpected playlist contents %v", got)
		}

		calls := store.Calls()
		if calls[0].Op != models.OpCreate {
			t.Errorf("expected create first, got %v", calls[0].Op)
		}
	})

	t.Run("Create Failure Is Fatal", func(t *testing.T) {
		store := tu.NewFakeStore()
		store.CreateErr = shared.Permanent("create_playlist", 403, errors.New("forbidden"))
		exec := New(store, 100, testBackoff(), nil)

		_, err := exec.Apply(ctx, "Mix", "", models.Plan{CreatePlaylist: true, ToAdd: []string{"a"}}, nil)
		if !errors.Is(err, shared.ErrPlaylistCreate) {
			t.Fatalf("expected ErrPlaylistCreate, got %v", err)
		}
		if len(store.CallsFor(models.OpAdd)) != 0 {
			t.Error("no additions should follow a failed create")
		}
	})

	t.Run("Lost Create Response Reuses Playlist", func(t *testing.T) {
		store := tu.NewFakeStore()
		store.CreateLost = shared.Transient("create_playlist", 0, context.DeadlineExceeded)
		exec := New(store, 100, testBackoff(), nil)

		result, err := exec.Apply(ctx, "Mix", "", models.Plan{CreatePlaylist: true, ToAdd: []string{"a"}}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if creates := store.CallsFor(models.OpCreate); len(creates) != 1 {
			t.Fatalf("expected a single create call, got %+v", creates)
		}
		state, _ := store.Fetch(ctx, "Mix")
		if !result.Created || result.PlaylistID != state.ID {
			t.Errorf("expected the existing playlist %s, got %+v", state.ID, result)
		}
		if got := store.Tracks(state.ID); !slices.Equal(got, []string{"a"}) {
			t.Errorf("unexpected playlist contents %v", got)
		}
	})

	t.Run("Transient Create Failure Retries", func(t *testing.T) {
		store := tu.NewFakeStore()
		store.CreateErr = shared.Transient("create_playlist", 503, errors.New("unavailable"))
		exec := New(store, 100, testBackoff(), nil)

		_, err := exec.Apply(ctx, "Mix", "", models.Plan{CreatePlaylist: true, ToAdd: []string{"a"}}, nil)
		if !errors.Is(err, shared.ErrPlaylistCreate) {
			t.Fatalf("expected ErrPlaylistCreate, got %v", err)
		}
		if creates := store.CallsFor(models.OpCreate); len(creates) != 3 {
			t.Errorf("expected 3 create attempts, got %d", len(creates))
		}
	})

	t.Run("Removals Precede Additions", func(t *testing.T) {
		store := tu.NewFakeStore()
		id := store.Seed("Mix", ids("old", 150)...)
		state, _ := store.Fetch(ctx, "Mix")

		entries := make([]models.ResolvedEntry, 0)
		for _, tid := range ids("new", 120) {
			entries = append(entries, models.ResolvedEntry{MatchedID: tid, Status: models.Matched})
		}
		plan := reconcile.Plan(entries, state, models.Overwrite)

		exec := New(store, 100, testBackoff(), nil)
		var observed []Batch
		result, err := exec.Apply(ctx, "Mix", id, plan, func(b Batch) { observed = append(observed, b) })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var ops []models.MutationOp
		for _, c := range store.Calls() {
			ops = append(ops, c.Op)
		}
		want := []models.MutationOp{models.OpRemove, models.OpRemove, models.OpAdd, models.OpAdd}
		if !slices.Equal(ops, want) {
			t.Errorf("call order = %v, want %v", ops, want)
		}
		if result.Removed != 150 || result.Added != 120 {
			t.Errorf("expected 150 removed and 120 added, got %d and %d", result.Removed, result.Added)
		}
		if !slices.Equal(store.Tracks(id), ids("new", 120)) {
			t.Error("final playlist should equal the input order")
		}
		if len(observed) != 4 {
			t.Errorf("expected 4 observed batches, got %d", len(observed))
		}
	})

	t.Run("Transient Batch Failure Is Isolated", func(t *testing.T) {
		store := tu.NewFakeStore()
		id := store.Seed("Mix")
		transient := shared.Transient("add_tracks", 503, errors.New("unavailable"))
		// First batch succeeds, second fails on every attempt, third succeeds.
		store.FailCalls(models.OpAdd, nil, transient, transient, transient, nil)

		exec := New(store, 2, testBackoff(), nil)
		result, err := exec.Apply(ctx, "Mix", id, models.Plan{ToAdd: []string{"a", "b", "c", "d", "e"}}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(result.Failures) != 1 {
			t.Fatalf("expected exactly one failure, got %+v", result.Failures)
		}
		f := result.Failures[0]
		if f.Op != models.OpAdd || f.Batch != 2 || !slices.Equal(f.TrackIDs, []string{"c", "d"}) {
			t.Errorf("unexpected failure %+v", f)
		}
		if result.Added != 3 {
			t.Errorf("expected 3 added, got %d", result.Added)
		}
		if got := store.Tracks(id); !slices.Equal(got, []string{"a", "b", "e"}) {
			t.Errorf("unexpected playlist %v", got)
		}

		failed := result.Batches[1]
		wantHistory := []BatchState{Pending, Sent, Retrying, Sent, Retrying, Sent, Failed}
		if !slices.Equal(failed.History, wantHistory) {
			t.Errorf("history = %v, want %v", failed.History, wantHistory)
		}
		if failed.Attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", failed.Attempts)
		}
	})

	t.Run("Transient Then Success", func(t *testing.T) {
		store := tu.NewFakeStore()
		id := store.Seed("Mix")
		store.FailCalls(models.OpAdd, shared.Transient("add_tracks", 429, errors.New("slow down")))

		exec := New(store, 100, testBackoff(), nil)
		result, err := exec.Apply(ctx, "Mix", id, models.Plan{ToAdd: []string{"a"}}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Failures) != 0 || result.Added != 1 {
			t.Errorf("expected recovery, got %+v", result)
		}
		wantHistory := []BatchState{Pending, Sent, Retrying, Sent, Succeeded}
		if !slices.Equal(result.Batches[0].History, wantHistory) {
			t.Errorf("history = %v, want %v", result.Batches[0].History, wantHistory)
		}
	})

	t.Run("Zero Backoff Still Records Retrying", func(t *testing.T) {
		store := tu.NewFakeStore()
		id := store.Seed("Mix")
		store.FailCalls(models.OpAdd, shared.Transient("add_tracks", 503, errors.New("unavailable")))

		exec := New(store, 100, shared.Backoff{MaxAttempts: 3}, nil)
		result, err := exec.Apply(ctx, "Mix", id, models.Plan{ToAdd: []string{"a"}}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		wantHistory := []BatchState{Pending, Sent, Retrying, Sent, Succeeded}
		if !slices.Equal(result.Batches[0].History, wantHistory) {
			t.Errorf("history = %v, want %v", result.Batches[0].History, wantHistory)
		}
	})

	t.Run("Permanent Failure Not Retried", func(t *testing.T) {
		store := tu.NewFakeStore()
		id := store.Seed("Mix")
		store.FailCalls(models.OpRemove, shared.Permanent("remove_tracks", 400, errors.New("invalid id")))

		exec := New(store, 100, testBackoff(), nil)
		result, err := exec.Apply(ctx, "Mix", id, models.Plan{ToRemove: []string{"x"}, ToAdd: []string{"a"}}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(store.CallsFor(models.OpRemove)) != 1 {
			t.Errorf("expected a single remove call, got %d", len(store.CallsFor(models.OpRemove)))
		}
		if len(result.Failures) != 1 || result.Failures[0].Op != models.OpRemove {
			t.Errorf("unexpected failures %+v", result.Failures)
		}
		if result.Added != 1 {
			t.Error("additions should still run after a failed removal")
		}
	})

	t.Run("Cancelled Before Batches", func(t *testing.T) {
		store := tu.NewFakeStore()
		id := store.Seed("Mix")
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		exec := New(store, 1, testBackoff(), nil)
		result, err := exec.Apply(cctx, "Mix", id, models.Plan{ToAdd: []string{"a", "b"}}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Failures) != 2 {
			t.Errorf("expected every batch recorded as failed, got %+v", result.Failures)
		}
		if len(store.Calls()) != 0 {
			t.Error("no call should be sent after cancellation")
		}
	})
}
