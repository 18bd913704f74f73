// Package repositories implements SQLite persistence for import run history.
//
// [RunRepository] stores every finished run with its per-line outcomes and failed mutation batches,
// so `spotlist history` can list past runs and show the unmatched lines of any of them.
//
// Sequence numbers provide stable, human-readable ordering (run #42) independent of UUIDs and
// timestamps. [NextSequence] increments a per-table counter in a dedicated sequence table and can
// run inside the caller's transaction.
package repositories
