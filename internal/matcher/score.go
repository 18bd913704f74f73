package matcher

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/shared"
)

// containmentFloor is the minimum similarity for a field whose normalised value contains the other,
// e.g. a shortened artist credit or an album title carrying a year prefix.
const containmentFloor = 0.8

// Weights are the per-field weights of the combined score. Track >= Artist >= Album.
type Weights struct {
	Track  float64
	Artist float64
	Album  float64
}

// Scorer compares a query against catalog candidates.
type Scorer struct {
	weights Weights
	metric  strutil.StringMetric
}

// NewScorer builds a [Scorer] using Levenshtein similarity over normalised text.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w, metric: metrics.NewLevenshtein()}
}

// Score returns the weighted similarity of c to q in [0,1].
//
// A field contributes only when both the query and the candidate carry it, so a candidate missing a
// queried field is neither rewarded nor penalised for it.
func (s *Scorer) Score(q models.TrackQuery, c models.CandidateTrack) float64 {
	var sum, total float64

	if q.Track != "" && c.Name != "" {
		sum += s.weights.Track * s.titleSimilarity(q.Track, c.Name)
		total += s.weights.Track
	}
	if q.Artist != "" && len(c.Artists) > 0 {
		sum += s.weights.Artist * s.artistSimilarity(q.Artist, c.Artists)
		total += s.weights.Artist
	}
	if q.Album != "" && c.Album != "" {
		sum += s.weights.Album * s.albumSimilarity(q.Album, q.Artist, c.Album)
		total += s.weights.Album
	}

	if total == 0 {
		return 0
	}
	return sum / total
}

func (s *Scorer) titleSimilarity(query, name string) float64 {
	a, b := shared.NormalizeTitle(query), shared.NormalizeTitle(name)
	if a == b {
		return 1
	}
	return s.similarity(a, b, false)
}

// artistSimilarity is the best match against any credited artist, or against the full credit line
// for queries naming several artists.
func (s *Scorer) artistSimilarity(query string, artists []string) float64 {
	a := shared.Normalize(query)
	names := make([]string, 0, len(artists))
	best := 0.0
	for _, artist := range artists {
		b := shared.Normalize(artist)
		if b == "" {
			continue
		}
		names = append(names, b)
		best = max(best, s.similarity(a, b, true))
	}
	if len(names) > 1 {
		best = max(best, s.similarity(a, strings.Join(names, " and "), false))
	}
	return best
}

// albumSimilarity drops a leading "artist - " from library-style album names before comparing.
func (s *Scorer) albumSimilarity(query, artist, album string) float64 {
	a := shared.Normalize(query)
	if prefix := shared.Normalize(artist); prefix != "" {
		if rest, ok := strings.CutPrefix(a, prefix+" "); ok && rest != "" {
			a = rest
		}
	}
	return s.similarity(a, shared.Normalize(album), true)
}

func (s *Scorer) similarity(a, b string, containment bool) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	sim := strutil.Similarity(a, b, s.metric)
	if containment && (containsWords(a, b) || containsWords(b, a)) {
		sim = max(sim, containmentFloor)
	}
	return sim
}

// containsWords reports whether needle appears in haystack on word boundaries.
func containsWords(haystack, needle string) bool {
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}
