// package models defines the data model for a text-to-playlist import
package models

import (
	"fmt"
	"strings"
	"time"
)

// TrackQuery is the structured form of one input line.
//
// At least one of Track, Artist or Album is non-empty. Raw keeps the line verbatim for diagnostics.
type TrackQuery struct {
	Track  string `json:"track,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
	Raw    string `json:"raw"`
	Line   int    `json:"line"` // 1-based line number in the source, 0 when unknown
}

// IsEmpty reports whether no name field is set.
func (q TrackQuery) IsEmpty() bool {
	return q.Track == "" && q.Artist == "" && q.Album == ""
}

// WithoutAlbum returns a copy with the album dropped.
func (q TrackQuery) WithoutAlbum() TrackQuery {
	q.Album = ""
	return q
}

// WithoutArtist returns a copy with the artist dropped.
func (q TrackQuery) WithoutArtist() TrackQuery {
	q.Artist = ""
	return q
}

// String renders the query as "artist - track (album)" for logs and reports.
func (q TrackQuery) String() string {
	var b strings.Builder
	if q.Artist != "" {
		b.WriteString(q.Artist)
		b.WriteString(" - ")
	}
	b.WriteString(q.Track)
	if q.Album != "" {
		fmt.Fprintf(&b, " (%s)", q.Album)
	}
	return b.String()
}

// CandidateTrack is one search hit returned by the catalog.
//
// Empty Name/Album and nil Artists mean the field was absent in the response.
type CandidateTrack struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Artists []string `json:"artists,omitempty"`
	Album   string   `json:"album,omitempty"`
	Rank    int      `json:"rank"` // 0-based position in the catalog's relevance order
}

// Status is the outcome of resolving one line.
type Status int

const (
	NotFound Status = iota
	Matched
	Ambiguous
)

func (s Status) String() string {
	switch s {
	case Matched:
		return "matched"
	case Ambiguous:
		return "ambiguous"
	case NotFound:
		return "not_found"
	default:
		return ""
	}
}

// ParseStatus is the inverse of [Status.String].
func ParseStatus(s string) (Status, error) {
	switch s {
	case "matched":
		return Matched, nil
	case "ambiguous":
		return Ambiguous, nil
	case "not_found":
		return NotFound, nil
	default:
		return NotFound, fmt.Errorf("unknown status %q", s)
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ResolvedEntry is the resolver's verdict on one line. Status is Matched iff MatchedID is set.
type ResolvedEntry struct {
	Query      TrackQuery      `json:"query"`
	MatchedID  string          `json:"matched_id,omitempty"`
	Confidence float64         `json:"confidence"`
	Status     Status          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Candidate  *CandidateTrack `json:"candidate,omitempty"` // Best scoring candidate, set even when not accepted
}

// IsMatched reports whether the entry contributes an identifier.
func (e ResolvedEntry) IsMatched() bool {
	return e.Status == Matched && e.MatchedID != ""
}

// MatchedIDs returns the identifiers of matched entries in input order, duplicates included.
func MatchedIDs(entries []ResolvedEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsMatched() {
			ids = append(ids, e.MatchedID)
		}
	}
	return ids
}

// PlaylistState is a snapshot of the remote playlist. An empty ID means it does not exist yet.
type PlaylistState struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name"`
	TrackIDs []string `json:"track_ids"`
}

// Exists reports whether the playlist is already on the remote.
func (p PlaylistState) Exists() bool {
	return p.ID != ""
}

// Policy selects how matched tracks are merged into the playlist.
type Policy int

const (
	Append Policy = iota
	Overwrite
)

func (p Policy) String() string {
	switch p {
	case Append:
		return "append"
	case Overwrite:
		return "overwrite"
	default:
		return ""
	}
}

func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// ParsePolicy is the inverse of [Policy.String].
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "append", "":
		return Append, nil
	case "overwrite":
		return Overwrite, nil
	default:
		return Append, fmt.Errorf("unknown policy %q", s)
	}
}

// Plan is the mutation set realizing a policy against one snapshot.
//
// ToRemove is a set; its order is first appearance in the snapshot.
type Plan struct {
	Policy         Policy   `json:"policy"`
	CreatePlaylist bool     `json:"create_playlist"`
	ToAdd          []string `json:"to_add"`
	ToRemove       []string `json:"to_remove"`
	AlreadyPresent int      `json:"already_present"`
}

// IsEmpty reports whether applying the plan would change nothing.
func (p Plan) IsEmpty() bool {
	return !p.CreatePlaylist && len(p.ToAdd) == 0 && len(p.ToRemove) == 0
}

// MutationOp names a kind of playlist mutation.
type MutationOp string

const (
	OpCreate MutationOp = "create"
	OpRemove MutationOp = "remove"
	OpAdd    MutationOp = "add"
)

// MutationFailure records one batch that could not be applied.
type MutationFailure struct {
	Op       MutationOp `json:"op"`
	Batch    int        `json:"batch"` // 1-based batch number within its op
	TrackIDs []string   `json:"track_ids"`
	Reason   string     `json:"reason"`
}

// RunReport is the outcome of a whole run.
type RunReport struct {
	RunID           string            `json:"run_id"`
	Playlist        string            `json:"playlist"`
	PlaylistID      string            `json:"playlist_id,omitempty"`
	Policy          Policy            `json:"policy"`
	DryRun          bool              `json:"dry_run"`
	Created         bool              `json:"created"`
	Added           int               `json:"added"`
	AlreadyPresent  int               `json:"already_present"`
	Removed         int               `json:"removed"`
	Entries         []ResolvedEntry   `json:"entries"`
	Unmatched       []ResolvedEntry   `json:"unmatched"`
	FailedMutations []MutationFailure `json:"failed_mutations"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
}

// NewRunReport starts an empty report.
func NewRunReport(runID, playlist string, policy Policy) *RunReport {
	return &RunReport{
		RunID:           runID,
		Playlist:        playlist,
		Policy:          policy,
		Unmatched:       []ResolvedEntry{},
		FailedMutations: []MutationFailure{},
	}
}

// SetEntries stores the resolved entries and derives the unmatched list from them.
func (r *RunReport) SetEntries(entries []ResolvedEntry) {
	r.Entries = entries
	r.Unmatched = r.Unmatched[:0]
	for _, e := range entries {
		if !e.IsMatched() {
			r.Unmatched = append(r.Unmatched, e)
		}
	}
}

// MatchedCount is the number of entries that resolved to an identifier.
func (r *RunReport) MatchedCount() int {
	return len(r.Entries) - len(r.Unmatched)
}

// RecordFailure appends a failed batch.
func (r *RunReport) RecordFailure(f MutationFailure) {
	r.FailedMutations = append(r.FailedMutations, f)
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunSummary is the stored headline of a past run.
type RunSummary struct {
	RunID           string    `json:"run_id"`
	Sequence        int       `json:"sequence"`
	Playlist        string    `json:"playlist"`
	PlaylistID      string    `json:"playlist_id,omitempty"`
	Policy          Policy    `json:"policy"`
	DryRun          bool      `json:"dry_run"`
	Added           int       `json:"added"`
	AlreadyPresent  int       `json:"already_present"`
	Removed         int       `json:"removed"`
	Unmatched       int       `json:"unmatched"`
	FailedMutations int       `json:"failed_mutations"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}
