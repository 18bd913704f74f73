// Package services implements the remote catalog and playlist store on the Spotify Web API.
//
// # Spotify
//
// [SpotifyService] wraps a [spotify.Client] created from a stored OAuth token. The [oauth2] transport
// refreshes expired tokens with the refresh token; [SpotifyService.Token] returns the current one so
// callers can persist it.
//
// It satisfies both capabilities the import engine consumes:
//   - [matcher.CatalogSearcher]: field-filtered track search (see [SearchExpression])
//   - [executor.PlaylistStore]: lookup by name among the user's own playlists, creation, and batched
//     add/remove calls
//
// # Pacing
//
// Every request waits on one shared [rate.Limiter] and runs under its own timeout. Retrying is left to
// the callers, which know whether a failure is worth another attempt.
//
// # Error Handling
//
// Failures are classified by [Classify]:
//   - [shared.ErrTransient] : HTTP 429, 5xx, timeouts, network errors
//   - [shared.ErrPermanent] : other API errors, e.g. a malformed ID
//   - [shared.ErrNotAuthenticated] : Authenticate() not called
//   - [shared.ErrAuthFailed] : the token was rejected or the code exchange failed
package services
