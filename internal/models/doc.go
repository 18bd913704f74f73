// Package models defines the value types that flow through a spotlist import run.
//
// A run moves through three stages, each with its own types:
//
// 1. Matching: text lines become [TrackQuery] values, the catalog answers with [CandidateTrack] values,
// and the resolver settles each line into one [ResolvedEntry].
//
// 2. Reconciliation: the resolved identifiers and a [PlaylistState] snapshot produce a [Plan] under a [Policy].
//
// 3. Execution: applying the plan fills a [RunReport], including any [MutationFailure] records.
//
// All types are plain values; nothing here talks to the network or the database.
package models
