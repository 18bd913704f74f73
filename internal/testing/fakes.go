package testing

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/shared"
)

// QueryKey identifies a search stage by its populated fields.
func QueryKey(q models.TrackQuery) string {
	return q.Track + "|" + q.Artist + "|" + q.Album
}

// FakeCatalog is an in-memory catalog search double, keyed by [QueryKey].
//
// Queries with no registered result return no candidates. Queued errors are returned, one per call,
// before the registered result.
type FakeCatalog struct {
	mu      sync.Mutex
	results map[string][]models.CandidateTrack
	errs    map[string][]error
	calls   []models.TrackQuery
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		results: make(map[string][]models.CandidateTrack),
		errs:    make(map[string][]error),
	}
}

// On registers candidates for q, assigning ranks in argument order.
func (f *FakeCatalog) On(q models.TrackQuery, candidates ...models.CandidateTrack) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	ranked := make([]models.CandidateTrack, len(candidates))
	for i, c := range candidates {
		c.Rank = i
		ranked[i] = c
	}
	f.results[QueryKey(q)] = ranked
	return f
}

// Fail queues errs to be returned by the next searches for q.
func (f *FakeCatalog) Fail(q models.TrackQuery, errs ...error) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := QueryKey(q)
	f.errs[key] = append(f.errs[key], errs...)
	return f
}

func (f *FakeCatalog) Search(ctx context.Context, q models.TrackQuery) ([]models.CandidateTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)

	key := QueryKey(q)
	if queued := f.errs[key]; len(queued) > 0 {
		f.errs[key] = queued[1:]
		return nil, queued[0]
	}
	return slices.Clone(f.results[key]), nil
}

// Calls returns the searches made so far, in call order.
func (f *FakeCatalog) Calls() []models.TrackQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// StoreCall records one mutation made against a [FakeStore].
type StoreCall struct {
	Op         models.MutationOp
	PlaylistID string
	TrackIDs   []string
	Err        error
}

// FakeStore is an in-memory playlist store double.
//
// RemoveTracks removes every occurrence of each identifier, matching the remote's behaviour.
type FakeStore struct {
	mu        sync.Mutex
	playlists map[string][]string
	names     map[string]string
	nextID    int
	failures  map[models.MutationOp][]error
	calls     []StoreCall

	FetchErr  error
	CreateErr error
	// CreateLost is returned once by Create after the playlist has been made, like a response lost to a timeout.
	CreateLost error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		playlists: make(map[string][]string),
		names:     make(map[string]string),
		failures:  make(map[models.MutationOp][]error),
	}
}

// Seed adds an existing playlist and returns its ID.
func (s *FakeStore) Seed(name string, trackIDs ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(name, slices.Clone(trackIDs))
}

func (s *FakeStore) create(name string, trackIDs []string) string {
	s.nextID++
	id := fmt.Sprintf("pl-%d", s.nextID)
	if trackIDs == nil {
		trackIDs = []string{}
	}
	s.playlists[id] = trackIDs
	s.names[shared.NormalizeName(name)] = id
	return id
}

// FailCalls queues per-call results for op. A nil entry lets that call succeed.
func (s *FakeStore) FailCalls(op models.MutationOp, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], errs...)
}

// Tracks returns the current contents of the playlist.
func (s *FakeStore) Tracks(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.playlists[id])
}

// Calls returns every mutation attempt, failed ones included.
func (s *FakeStore) Calls() []StoreCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallsFor returns the attempts for a single op.
func (s *FakeStore) CallsFor(op models.MutationOp) []StoreCall {
	var out []StoreCall
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (s *FakeStore) Fetch(ctx context.Context, name string) (models.PlaylistState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return models.PlaylistState{}, s.FetchErr
	}
	state := models.PlaylistState{Name: name, TrackIDs: []string{}}
	if id, ok := s.names[shared.NormalizeName(name)]; ok {
		state.ID = id
		state.TrackIDs = slices.Clone(s.playlists[id])
	}
	return state, nil
}

func (s *FakeStore) Create(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		s.calls = append(s.calls, StoreCall{Op: models.OpCreate, Err: s.CreateErr})
		return "", s.CreateErr
	}
	id := s.create(name, nil)
	if err := s.CreateLost; err != nil {
		s.CreateLost = nil
		s.calls = append(s.calls, StoreCall{Op: models.OpCreate, PlaylistID: id, Err: err})
		return "", err
	}
	s.calls = append(s.calls, StoreCall{Op: models.OpCreate, PlaylistID: id})
	return id, nil
}

func (s *FakeStore) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.next(models.OpAdd, playlistID, trackIDs); err != nil {
		return err
	}
	s.playlists[playlistID] = append(s.playlists[playlistID], trackIDs...)
	return nil
}

func (s *FakeStore) RemoveTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.next(models.OpRemove, playlistID, trackIDs); err != nil {
		return err
	}
	s.playlists[playlistID] = slices.DeleteFunc(s.playlists[playlistID], func(id string) bool {
		return slices.Contains(trackIDs, id)
	})
	return nil
}

// next records the call and pops its queued outcome.
func (s *FakeStore) next(op models.MutationOp, playlistID string, trackIDs []string) error {
	var err error
	if queued := s.failures[op]; len(queued) > 0 {
		err = queued[0]
		s.failures[op] = queued[1:]
	}
	if err == nil {
		if _, ok := s.playlists[playlistID]; !ok {
			err = shared.Permanent(string(op), 404, fmt.Errorf("playlist %s not found", playlistID))
		}
	}
	s.calls = append(s.calls, StoreCall{Op: op, PlaylistID: playlistID, TrackIDs: slices.Clone(trackIDs), Err: err})
	return err
}
