// Package tasks runs a text-to-playlist import from start to finish with real-time progress reporting.
//
// # Flow
//
// [ImportEngine.Run] performs one import:
//
//  1. Resolves every parsed line through the [matcher.Resolver] (bounded concurrency, input order kept)
//  2. Fetches a single snapshot of the target playlist from the [executor.PlaylistStore]
//  3. Plans the mutations with [reconcile.Plan] under the requested policy
//  4. Applies the plan through the [executor.Executor], unless the run is a dry run or nothing matched
//  5. Stores the [models.RunReport] through the optional [RunRecorder]
//
// Fatal errors (playlist lookup or creation) abort the run. Everything else ends in the report:
// unresolved lines in Unmatched and failed batches in FailedMutations.
//
// # Progress Reporting
//
// Runs use a non-blocking channel for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
