// package matcher resolves parsed track queries to catalog identifiers.
//
// Each query is searched in up to three relaxation stages (full, without album, without artist),
// candidates are scored against the full query, and the best one is accepted only when it clears
// the acceptance threshold and is not tied with a runner-up that is a different recording.
package matcher

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/shared"
)

// CatalogSearcher is the catalog capability the resolver consumes.
//
// Implementations return candidates in the catalog's relevance order and classify failures with
// [shared.Transient] or [shared.Permanent].
type CatalogSearcher interface {
	Search(ctx context.Context, q models.TrackQuery) ([]models.CandidateTrack, error)
}

// Options tunes resolution.
type Options struct {
	AcceptThreshold float64
	TieMargin       float64
	Weights         Weights
	Concurrency     int
	Backoff         shared.Backoff
}

// OptionsFromConfig maps the matching and remote config sections onto [Options].
func OptionsFromConfig(m shared.MatchingConfig, r shared.RemoteConfig) Options {
	return Options{
		AcceptThreshold: m.AcceptThreshold,
		TieMargin:       m.TieMargin,
		Weights:         Weights{Track: m.TrackWeight, Artist: m.ArtistWeight, Album: m.AlbumWeight},
		Concurrency:     m.Concurrency,
		Backoff:         r.Backoff(),
	}
}

// ProgressFunc observes each resolved entry. done counts entries finished so far; calls are serialised.
type ProgressFunc func(done, total int, entry models.ResolvedEntry)

// Resolver implements the match policy over a [CatalogSearcher].
type Resolver struct {
	searcher CatalogSearcher
	scorer   *Scorer
	opts     Options
	logger   *log.Logger
}

// NewResolver creates a Resolver. A nil logger discards output.
func NewResolver(searcher CatalogSearcher, opts Options, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Resolver{
		searcher: searcher,
		scorer:   NewScorer(opts.Weights),
		opts:     opts,
		logger:   logger,
	}
}

// Stages returns the relaxation sequence for q: the full query, then without album, then without artist.
//
// Stages identical to an earlier one, or left with no fields, are omitted.
func Stages(q models.TrackQuery) []models.TrackQuery {
	candidates := []models.TrackQuery{q, q.WithoutAlbum(), q.WithoutAlbum().WithoutArtist()}
	stages := make([]models.TrackQuery, 0, len(candidates))
	for _, s := range candidates {
		if s.IsEmpty() {
			continue
		}
		dup := false
		for _, prev := range stages {
			if prev.Track == s.Track && prev.Artist == s.Artist && prev.Album == s.Album {
				dup = true
				break
			}
		}
		if !dup {
			stages = append(stages, s)
		}
	}
	return stages
}

// Resolve matches a single query. It never returns an error: search failures become a NotFound entry
// carrying the reason.
func (r *Resolver) Resolve(ctx context.Context, q models.TrackQuery) models.ResolvedEntry {
	entry := models.ResolvedEntry{Query: q, Status: models.NotFound}
	if q.IsEmpty() {
		entry.Reason = "empty query"
		return entry
	}

	logger := shared.WithLogger(r.logger, "line", q.Line)

	var candidates []models.CandidateTrack
	for i, stage := range Stages(q) {
		found, err := r.search(ctx, logger, stage)
		if err != nil {
			entry.Reason = fmt.Sprintf("search failed: %v", err)
			logger.Warn("search failed", "query", stage.String(), "stage", i+1, "error", err)
			return entry
		}
		if len(found) > 0 {
			candidates = found
			logger.Debug("candidates found", "query", stage.String(), "stage", i+1, "count", len(found))
			break
		}
	}

	if len(candidates) == 0 {
		entry.Reason = "no candidates at any search stage"
		return entry
	}
	return r.decide(entry, candidates)
}

func (r *Resolver) search(ctx context.Context, logger *log.Logger, q models.TrackQuery) ([]models.CandidateTrack, error) {
	var found []models.CandidateTrack
	_, err := r.opts.Backoff.Do(ctx, func(ctx context.Context) error {
		var err error
		found, err = r.searcher.Search(ctx, q)
		return err
	}, func(a shared.Attempt) {
		if a.Retry {
			logger.Debug("retrying search", "attempt", a.Number, "wait", a.Next, "error", a.Err)
		}
	})
	return found, err
}

type scored struct {
	candidate models.CandidateTrack
	score     float64
}

// decide applies the acceptance threshold and tie margin to the scored candidates.
func (r *Resolver) decide(entry models.ResolvedEntry, candidates []models.CandidateTrack) models.ResolvedEntry {
	ranked := make([]scored, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		ranked = append(ranked, scored{candidate: c, score: r.scorer.Score(entry.Query, c)})
	}
	if len(ranked) == 0 {
		entry.Reason = "no usable candidates"
		return entry
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].candidate.Rank < ranked[j].candidate.Rank
	})

	top := ranked[0]
	best := top.candidate
	entry.Candidate = &best
	entry.Confidence = top.score

	if top.score < r.opts.AcceptThreshold {
		entry.Reason = fmt.Sprintf("best score %.2f below threshold %.2f", top.score, r.opts.AcceptThreshold)
		return entry
	}

	if rival, ok := runnerUp(ranked); ok && top.score-rival.score <= r.opts.TieMargin {
		entry.Status = models.Ambiguous
		entry.Reason = fmt.Sprintf("top candidates %s (%.2f) and %s (%.2f) within tie margin",
			top.candidate.ID, top.score, rival.candidate.ID, rival.score)
		return entry
	}

	entry.Status = models.Matched
	entry.MatchedID = top.candidate.ID
	return entry
}

// runnerUp returns the best candidate that is a different recording from ranked[0]. The same song released
// on a single and an album shares its title and artists, and is never a rival to itself.
func runnerUp(ranked []scored) (scored, bool) {
	key := recordingKey(ranked[0].candidate)
	for _, s := range ranked[1:] {
		if recordingKey(s.candidate) != key {
			return s, true
		}
	}
	return scored{}, false
}

func recordingKey(c models.CandidateTrack) string {
	artists := make([]string, len(c.Artists))
	for i, a := range c.Artists {
		artists[i] = shared.Normalize(a)
	}
	slices.Sort(artists)
	return shared.Normalize(c.Name) + "\x00" + strings.Join(artists, "\x00")
}

// ResolveAll resolves queries with bounded concurrency. The result has one entry per query, in input order.
//
// The only error is cancellation of ctx; per-line failures are recorded in their entries. On cancellation the
// entries resolved so far are returned with the error, and lines never searched are NotFound with reason "cancelled".
func (r *Resolver) ResolveAll(ctx context.Context, queries []models.TrackQuery, progress ProgressFunc) ([]models.ResolvedEntry, error) {
	entries := make([]models.ResolvedEntry, len(queries))
	finished := make([]bool, len(queries))

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for i, q := range queries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entry := r.Resolve(gctx, q)
			entries[i] = entry
			finished[i] = true

			mu.Lock()
			done++
			if progress != nil {
				progress(done, len(queries), entry)
			}
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		for i, ok := range finished {
			if !ok {
				entries[i] = models.ResolvedEntry{Query: queries[i], Status: models.NotFound, Reason: "cancelled"}
			}
		}
		r.logger.Warn("resolution interrupted", "lines", len(queries), "resolved", done, "error", err)
		return entries, err
	}

	r.logger.Info("resolution finished", "lines", len(queries), "matched", len(models.MatchedIDs(entries)))
	return entries, nil
}
