package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/shared"
)

// ErrRunNotFound is returned when no stored run matches an ID.
var ErrRunNotFound = errors.New("run not found")

// RunRepository persists [models.RunReport] values.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save stores report with its entries and failures in one transaction and returns its sequence number.
//
// A report without a RunID gets a generated one.
func (r *RunRepository) Save(report *models.RunReport) (int, error) {
	if report.RunID == "" {
		report.RunID = shared.GenerateID()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := NextSequence(tx, "runs")
	if err != nil {
		return 0, fmt.Errorf("failed to generate sequence: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO runs (id, sequence, playlist_name, playlist_id, policy, dry_run, added, already_present, removed, unmatched, failed_mutations, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		sequence,
		report.Playlist,
		report.PlaylistID,
		report.Policy.String(),
		report.DryRun,
		report.Added,
		report.AlreadyPresent,
		report.Removed,
		len(report.Unmatched),
		len(report.FailedMutations),
		report.StartedAt,
		report.FinishedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	entryStmt, err := tx.Prepare(`
		INSERT INTO run_entries (run_id, position, line, raw_line, track, artist, album, status, matched_id, confidence, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer entryStmt.Close()

	for i, e := range report.Entries {
		_, err := entryStmt.Exec(
			report.RunID, i, e.Query.Line, e.Query.Raw,
			e.Query.Track, e.Query.Artist, e.Query.Album,
			e.Status.String(), e.MatchedID, e.Confidence, e.Reason,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert entry %d: %w", i, err)
		}
	}

	for i, f := range report.FailedMutations {
		_, err := tx.Exec(`
			INSERT INTO run_failures (run_id, position, op, batch, track_ids, reason)
			VALUES (?, ?, ?, ?, ?, ?)
		`, report.RunID, i, string(f.Op), f.Batch, strings.Join(f.TrackIDs, ","), f.Reason)
		if err != nil {
			return 0, fmt.Errorf("failed to insert failure %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}
	return sequence, nil
}

const summaryColumns = `id, sequence, playlist_name, playlist_id, policy, dry_run, added, already_present, removed, unmatched, failed_mutations, started_at, finished_at`

// List returns up to limit runs, newest first. A limit below 1 returns every run.
func (r *RunRepository) List(limit int) ([]models.RunSummary, error) {
	query := `SELECT ` + summaryColumns + ` FROM runs ORDER BY sequence DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	summaries := []models.RunSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return summaries, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSummary(row scanner) (*models.RunSummary, error) {
	var (
		s          models.RunSummary
		playlistID sql.NullString
		policy     string
	)
	err := row.Scan(
		&s.RunID, &s.Sequence, &s.Playlist, &playlistID, &policy, &s.DryRun,
		&s.Added, &s.AlreadyPresent, &s.Removed, &s.Unmatched, &s.FailedMutations,
		&s.StartedAt, &s.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	s.PlaylistID = playlistID.String
	if s.Policy, err = models.ParsePolicy(policy); err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", s.RunID, err)
	}
	return &s, nil
}

// Resolve expands a full or unambiguous prefix of a run ID.
func (r *RunRepository) Resolve(idOrPrefix string) (string, error) {
	if idOrPrefix == "" {
		return "", fmt.Errorf("%w: empty run id", shared.ErrInvalidArgument)
	}

	rows, err := r.db.Query(`SELECT id FROM runs WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2`,
		idOrPrefix, escapeLike(idOrPrefix)+"%", idOrPrefix)
	if err != nil {
		return "", fmt.Errorf("failed to look up run: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to look up run: %w", err)
	}

	switch {
	case len(ids) == 0:
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, idOrPrefix)
	case ids[0] == idOrPrefix || len(ids) == 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: run id prefix %q is ambiguous", shared.ErrInvalidArgument, idOrPrefix)
	}
}

// escapeLike drops LIKE wildcards, which never occur in run IDs.
func escapeLike(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}

// Get loads a full report by ID or unambiguous prefix.
func (r *RunRepository) Get(idOrPrefix string) (*models.RunReport, error) {
	id, err := r.Resolve(idOrPrefix)
	if err != nil {
		return nil, err
	}

	summary, err := scanSummary(r.db.QueryRow(`SELECT `+summaryColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	report := models.NewRunReport(summary.RunID, summary.Playlist, summary.Policy)
	report.PlaylistID = summary.PlaylistID
	report.DryRun = summary.DryRun
	report.Added = summary.Added
	report.AlreadyPresent = summary.AlreadyPresent
	report.Removed = summary.Removed
	report.StartedAt = summary.StartedAt
	report.FinishedAt = summary.FinishedAt

	entries, err := r.entries(id)
	if err != nil {
		return nil, err
	}
	report.SetEntries(entries)

	if report.FailedMutations, err = r.failures(id); err != nil {
		return nil, err
	}
	return report, nil
}

func (r *RunRepository) entries(runID string) ([]models.ResolvedEntry, error) {
	rows, err := r.db.Query(`
		SELECT line, raw_line, track, artist, album, status, matched_id, confidence, reason
		FROM run_entries WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []models.ResolvedEntry{}
	for rows.Next() {
		var (
			e                 models.ResolvedEntry
			status            string
			matchedID, reason sql.NullString
		)
		err := rows.Scan(&e.Query.Line, &e.Query.Raw, &e.Query.Track, &e.Query.Artist, &e.Query.Album,
			&status, &matchedID, &e.Confidence, &reason)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if e.Status, err = models.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("failed to read entry: %w", err)
		}
		e.MatchedID = matchedID.String
		e.Reason = reason.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

func (r *RunRepository) failures(runID string) ([]models.MutationFailure, error) {
	rows, err := r.db.Query(`
		SELECT op, batch, track_ids, reason FROM run_failures WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	failures := []models.MutationFailure{}
	for rows.Next() {
		var (
			f        models.MutationFailure
			op, ids string
		)
		if err := rows.Scan(&op, &f.Batch, &ids, &f.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.Op = models.MutationOp(op)
		if ids != "" {
			f.TrackIDs = strings.Split(ids, ",")
		}
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate failures: %w", err)
	}
	return failures, nil
}

// Delete removes a run and its rows.
func (r *RunRepository) Delete(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"run_entries", "run_failures"} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", table), id); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	result, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return tx.Commit()
}
