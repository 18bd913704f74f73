package repositories

import (
	"database/sql"
	"fmt"
)

// Queryer is the part of [sql.DB] and [sql.Tx] sequence generation needs.
type Queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// NextSequence increments and returns the next sequence number for the given table.
//
// Pass a [sql.Tx] to make the increment part of the insert it numbers.
func NextSequence(q Queryer, table string) (int, error) {
	sequenceTable := table + "_sequence"

	if _, err := q.Exec(fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable)); err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int
	if err := q.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}
	return sequence, nil
}
