package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/shared"
)

const (
	// DefaultRedirectURI matches the redirect registered for the local callback server.
	DefaultRedirectURI = "http://127.0.0.1:8888/callback"

	// PlaylistDescription is set on playlists created by an import.
	PlaylistDescription = "Imported from local playlist"

	playlistPageSize = 50
	maxSearchLimit   = 50
)

// Scopes are the OAuth scopes an import needs: reading the user's playlists and modifying them.
var Scopes = []string{
	spotifyauth.ScopeUserReadPrivate,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopePlaylistReadCollaborative,
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
}

// SpotifyOptions tunes how the service talks to the Web API.
type SpotifyOptions struct {
	BaseURL           string        // API root ending in "/", empty for the public API
	RequestsPerSecond float64       // Shared pacing across every call, <= 0 disables pacing
	CallTimeout       time.Duration // Deadline for a single request, zero for none
	SearchLimit       int           // Candidates requested per search, capped at 50
}

// OptionsFromConfig maps the matching and remote config sections onto [SpotifyOptions].
func OptionsFromConfig(cfg *shared.Config) SpotifyOptions {
	return SpotifyOptions{
		RequestsPerSecond: cfg.Remote.RequestsPerSecond,
		CallTimeout:       cfg.Remote.CallTimeout(),
		SearchLimit:       cfg.Matching.SearchLimit,
	}
}

// SpotifyService is the catalog and playlist store backed by the Spotify Web API.
//
// One authenticated client is created by [SpotifyService.Authenticate] and shared by every call of a run.
type SpotifyService struct {
	auth    *spotifyauth.Authenticator
	client  *spotify.Client
	limiter *rate.Limiter
	opts    SpotifyOptions
	userID  string
	logger  *log.Logger
}

// NewSpotifyService creates a service for the app credentials in cfg. It must be authenticated before use.
func NewSpotifyService(cfg shared.SpotifyConfig, opts SpotifyOptions, logger *log.Logger) (*SpotifyService, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing spotify client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing spotify client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = DefaultRedirectURI
	}
	if opts.SearchLimit < 1 || opts.SearchLimit > maxSearchLimit {
		opts.SearchLimit = 20
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(redirectURI),
		spotifyauth.WithScopes(Scopes...),
	)

	return &SpotifyService{auth: auth, limiter: limiter, opts: opts, logger: logger}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// Authenticator exposes the OAuth configuration for the callback server.
func (s *SpotifyService) Authenticator() *spotifyauth.Authenticator {
	return s.auth
}

// AuthURL returns the consent page URL for state, always showing the approval dialog.
func (s *SpotifyService) AuthURL(state string) string {
	return s.auth.AuthURL(state, spotifyauth.ShowDialog)
}

// Exchange trades an authorization code for a token.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.auth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// Authenticate builds the API client for token and resolves the current user.
//
// The token is refreshed transparently when it expires; use [SpotifyService.Token] to persist it.
func (s *SpotifyService) Authenticate(ctx context.Context, token *oauth2.Token) error {
	if token == nil || (token.AccessToken == "" && token.RefreshToken == "") {
		return fmt.Errorf("%w: no stored token, run `spotlist auth`", shared.ErrNotAuthenticated)
	}

	var clientOpts []spotify.ClientOption
	if s.opts.BaseURL != "" {
		clientOpts = append(clientOpts, spotify.WithBaseURL(s.opts.BaseURL))
	}
	httpClient := s.auth.Client(ctx, token)
	httpClient.Transport = &statusTransport{base: httpClient.Transport}
	s.client = spotify.New(httpClient, clientOpts...)

	var user *spotify.PrivateUser
	err := s.call(ctx, "current_user", func(ctx context.Context) error {
		var err error
		user, err = s.client.CurrentUser(ctx)
		return err
	})
	if err != nil {
		s.client = nil
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	s.userID = user.ID
	s.logger.Debug("authenticated", "user", user.ID)
	return nil
}

// UserID is the authenticated account, empty before [SpotifyService.Authenticate].
func (s *SpotifyService) UserID() string {
	return s.userID
}

// Token returns the client's current token, which may have been refreshed since authentication.
func (s *SpotifyService) Token() (*oauth2.Token, error) {
	if s.client == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return s.client.Token()
}

// Search implements the catalog capability: one track search for q in relevance order.
func (s *SpotifyService) Search(ctx context.Context, q models.TrackQuery) ([]models.CandidateTrack, error) {
	if s.client == nil {
		return nil, shared.ErrNotAuthenticated
	}

	expr := SearchExpression(q)
	if expr == "" {
		return nil, shared.Permanent("search", 0, fmt.Errorf("%w: empty query", shared.ErrInvalidInput))
	}

	var result *spotify.SearchResult
	err := s.call(ctx, "search", func(ctx context.Context) error {
		var err error
		result, err = s.client.Search(ctx, expr, spotify.SearchTypeTrack, spotify.Limit(s.opts.SearchLimit))
		return err
	})
	if err != nil {
		return nil, err
	}
	if result == nil || result.Tracks == nil {
		return []models.CandidateTrack{}, nil
	}

	candidates := make([]models.CandidateTrack, 0, len(result.Tracks.Tracks))
	for i, t := range result.Tracks.Tracks {
		if t.ID == "" {
			continue
		}
		candidates = append(candidates, toCandidate(t, i))
	}
	return candidates, nil
}

func toCandidate(t spotify.FullTrack, rank int) models.CandidateTrack {
	var artists []string
	for _, a := range t.Artists {
		if a.Name != "" {
			artists = append(artists, a.Name)
		}
	}
	return models.CandidateTrack{
		ID:      string(t.ID),
		Name:    t.Name,
		Artists: artists,
		Album:   t.Album.Name,
		Rank:    rank,
	}
}

// SearchExpression renders q as a field-filtered search: track first, then artist, then album.
func SearchExpression(q models.TrackQuery) string {
	var parts []string
	for _, f := range []struct{ key, value string }{
		{"track", q.Track},
		{"artist", q.Artist},
		{"album", q.Album},
	} {
		v := strings.Join(strings.Fields(strings.ReplaceAll(f.value, `"`, " ")), " ")
		if v == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`%s:"%s"`, f.key, v))
	}
	return strings.Join(parts, " ")
}

// Fetch finds the user's own playlist called name (case and spacing insensitive) and lists its tracks.
//
// Playlists followed but owned by someone else are ignored. Local files and episodes are skipped.
func (s *SpotifyService) Fetch(ctx context.Context, name string) (models.PlaylistState, error) {
	state := models.PlaylistState{Name: name, TrackIDs: []string{}}
	if s.client == nil {
		return state, shared.ErrNotAuthenticated
	}

	id, err := s.findPlaylist(ctx, name)
	if err != nil || id == "" {
		return state, err
	}
	state.ID = id

	var page *spotify.PlaylistItemPage
	err = s.call(ctx, "playlist_items", func(ctx context.Context) error {
		var err error
		page, err = s.client.GetPlaylistItems(ctx, spotify.ID(id))
		return err
	})
	if err != nil {
		return state, err
	}

	for {
		for _, item := range page.Items {
			if item.IsLocal || item.Track.Track == nil || item.Track.Track.ID == "" {
				continue
			}
			state.TrackIDs = append(state.TrackIDs, string(item.Track.Track.ID))
		}

		done, err := s.nextPage(ctx, "playlist_items", page)
		if err != nil {
			return state, err
		}
		if done {
			break
		}
	}

	s.logger.Debug("fetched playlist", "name", name, "id", id, "tracks", len(state.TrackIDs))
	return state, nil
}

func (s *SpotifyService) findPlaylist(ctx context.Context, name string) (string, error) {
	target := shared.NormalizeName(name)

	var page *spotify.SimplePlaylistPage
	err := s.call(ctx, "user_playlists", func(ctx context.Context) error {
		var err error
		page, err = s.client.CurrentUsersPlaylists(ctx, spotify.Limit(playlistPageSize))
		return err
	})
	if err != nil {
		return "", err
	}

	for {
		for _, p := range page.Playlists {
			if p.Owner.ID == s.userID && shared.NormalizeName(p.Name) == target {
				return string(p.ID), nil
			}
		}

		done, err := s.nextPage(ctx, "user_playlists", page)
		if err != nil {
			return "", err
		}
		if done {
			return "", nil
		}
	}
}

// nextPage advances page in place, reporting true once there are no more pages.
func (s *SpotifyService) nextPage(ctx context.Context, op string, page any) (bool, error) {
	var done bool
	err := s.call(ctx, op, func(ctx context.Context) error {
		var err error
		switch p := page.(type) {
		case *spotify.PlaylistItemPage:
			err = s.client.NextPage(ctx, p)
		case *spotify.SimplePlaylistPage:
			err = s.client.NextPage(ctx, p)
		default:
			return fmt.Errorf("%w: unsupported page type %T", shared.ErrInvalidArgument, page)
		}
		if errors.Is(err, spotify.ErrNoMorePages) {
			done = true
			return nil
		}
		return err
	})
	return done, err
}

// Create makes a private playlist called name and returns its ID.
func (s *SpotifyService) Create(ctx context.Context, name string) (string, error) {
	if s.client == nil {
		return "", shared.ErrNotAuthenticated
	}

	var created *spotify.FullPlaylist
	err := s.call(ctx, "create_playlist", func(ctx context.Context) error {
		var err error
		created, err = s.client.CreatePlaylistForUser(ctx, s.userID, name, PlaylistDescription, false, false)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(created.ID), nil
}

// AddTracks appends one batch to the playlist.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if s.client == nil {
		return shared.ErrNotAuthenticated
	}
	ids := toIDs(trackIDs)
	return s.call(ctx, "add_tracks", func(ctx context.Context) error {
		_, err := s.client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids...)
		return err
	})
}

// RemoveTracks removes every occurrence of each track in one batch.
func (s *SpotifyService) RemoveTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if s.client == nil {
		return shared.ErrNotAuthenticated
	}
	ids := toIDs(trackIDs)
	return s.call(ctx, "remove_tracks", func(ctx context.Context) error {
		_, err := s.client.RemoveTracksFromPlaylist(ctx, spotify.ID(playlistID), ids...)
		return err
	})
}

func toIDs(trackIDs []string) []spotify.ID {
	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}
	return ids
}

// call paces, bounds and classifies a single request.
func (s *SpotifyService) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if s.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}
	return Classify(op, fn(ctx))
}
