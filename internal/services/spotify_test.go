package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/shared"
)

// fakeAPI serves the subset of the Web API the service uses.
type fakeAPI struct {
	t   *testing.T
	srv *httptest.Server

	mu           sync.Mutex
	meStatus     int
	searchStatus []int
	errorBody    *string // Raw body for searchStatus responses instead of a JSON error
	retryAfter   string
	searches     []string
	created      map[string]any
	added        [][]string
	removed      [][]string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{t: t}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /me", api.me)
	mux.HandleFunc("GET /me/playlists", api.playlists)
	mux.HandleFunc("GET /search", api.search)
	mux.HandleFunc("GET /playlists/{id}/tracks", api.items)
	mux.HandleFunc("POST /users/{user}/playlists", api.create)
	mux.HandleFunc("POST /playlists/{id}/tracks", api.add)
	mux.HandleFunc("DELETE /playlists/{id}/tracks", api.remove)

	api.srv = httptest.NewServer(mux)
	t.Cleanup(api.srv.Close)
	return api
}

func (a *fakeAPI) apiError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"status":%d,"message":"%s"}}`, status, http.StatusText(status))
}

func (a *fakeAPI) json(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func (a *fakeAPI) me(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	status := a.meStatus
	a.mu.Unlock()
	if status != 0 {
		a.apiError(w, status)
		return
	}
	a.json(w, http.StatusOK, `{"id":"me","display_name":"Me"}`)
}

func (a *fakeAPI) playlists(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("offset") == "" {
		a.json(w, http.StatusOK, fmt.Sprintf(`{
			"items":[
				{"id":"followed","name":"Road Trip","owner":{"id":"someone"}},
				{"id":"other","name":"Other","owner":{"id":"me"}}
			],
			"limit":2,"offset":0,"total":3,
			"next":"%s/me/playlists?offset=2&limit=2"}`, a.srv.URL))
		return
	}
	a.json(w, http.StatusOK, `{
		"items":[{"id":"pl1","name":"  road   TRIP ","owner":{"id":"me"}}],
		"limit":2,"offset":2,"total":3,"next":null}`)
}

func (a *fakeAPI) search(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.searches = append(a.searches, r.URL.Query().Get("q"))
	var status int
	if len(a.searchStatus) > 0 {
		status, a.searchStatus = a.searchStatus[0], a.searchStatus[1:]
	}
	a.mu.Unlock()

	if status != 0 && a.errorBody != nil {
		if a.retryAfter != "" {
			w.Header().Set("Retry-After", a.retryAfter)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, *a.errorBody)
		return
	}
	if status != 0 {
		a.apiError(w, status)
		return
	}
	a.json(w, http.StatusOK, `{"tracks":{"items":[
		{"id":"t1","name":"In the Cage","artists":[{"name":"Genesis"}],"album":{"name":"The Lamb Lies Down on Broadway"},"uri":"spotify:track:t1"},
		{"id":"t2","name":"In the Cage - Live","artists":[{"name":"Genesis"},{"name":""}],"album":{"name":"Three Sides Live"},"uri":"spotify:track:t2"}
	],"total":2,"next":null}}`)
}

func (a *fakeAPI) items(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") != "pl1" {
		a.apiError(w, http.StatusNotFound)
		return
	}
	a.json(w, http.StatusOK, `{"items":[
		{"is_local":false,"track":{"type":"track","id":"t1","name":"In the Cage","artists":[{"name":"Genesis"}],"album":{"name":"The Lamb"}}},
		{"is_local":true,"track":{"type":"track","id":"","name":"Home Recording","artists":[],"album":{"name":""}}},
		{"is_local":false,"track":{"type":"track","id":"t9","name":"Back in N.Y.C.","artists":[{"name":"Genesis"}],"album":{"name":"The Lamb"}}}
	],"total":3,"next":null}`)
}

func (a *fakeAPI) create(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.t.Errorf("invalid create body: %v", err)
	}
	a.mu.Lock()
	a.created = body
	a.mu.Unlock()
	a.json(w, http.StatusCreated, fmt.Sprintf(`{"id":"new1","name":%q}`, body["name"]))
}

func trackIDsFromURIs(uris []string) []string {
	ids := make([]string, len(uris))
	for i, u := range uris {
		ids[i] = strings.TrimPrefix(u, "spotify:track:")
	}
	return ids
}

func (a *fakeAPI) add(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URIs []string `json:"uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.t.Errorf("invalid add body: %v", err)
	}
	a.mu.Lock()
	a.added = append(a.added, trackIDsFromURIs(body.URIs))
	a.mu.Unlock()
	a.json(w, http.StatusCreated, `{"snapshot_id":"snap"}`)
}

func (a *fakeAPI) remove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tracks []struct {
			URI string `json:"uri"`
		} `json:"tracks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.t.Errorf("invalid remove body: %v", err)
	}
	uris := make([]string, len(body.Tracks))
	for i, t := range body.Tracks {
		uris[i] = t.URI
	}
	a.mu.Lock()
	a.removed = append(a.removed, trackIDsFromURIs(uris))
	a.mu.Unlock()
	a.json(w, http.StatusOK, `{"snapshot_id":"snap"}`)
}

func testCredentials() shared.SpotifyConfig {
	return shared.SpotifyConfig{ClientID: "test_client_id", ClientSecret: "test_client_secret"}
}

func newAuthenticated(t *testing.T, api *fakeAPI) *SpotifyService {
	t.Helper()
	srv, err := NewSpotifyService(testCredentials(), SpotifyOptions{BaseURL: api.srv.URL + "/", SearchLimit: 10}, nil)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if err := srv.Authenticate(context.Background(), &oauth2.Token{AccessToken: "access", TokenType: "Bearer"}); err != nil {
		t.Fatalf("failed to authenticate: %v", err)
	}
	return srv
}

func TestSpotifyService(t *testing.T) {
	ctx := context.Background()

	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewSpotifyService(shared.SpotifyConfig{ClientSecret: "secret"}, SpotifyOptions{}, nil)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			_, err := NewSpotifyService(shared.SpotifyConfig{ClientID: "id"}, SpotifyOptions{}, nil)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Name", func(t *testing.T) {
			srv, err := NewSpotifyService(testCredentials(), SpotifyOptions{}, nil)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.Name() != "Spotify" {
				t.Errorf("expected service name 'Spotify', got %s", srv.Name())
			}
		})
	})

	t.Run("AuthURL", func(t *testing.T) {
		srv, _ := NewSpotifyService(testCredentials(), SpotifyOptions{}, nil)
		authURL := srv.AuthURL("test_state")

		for _, want := range []string{"client_id=test_client_id", "state=test_state", "show_dialog=true", "playlist-modify-private"} {
			if !strings.Contains(authURL, want) {
				t.Errorf("auth URL %q should contain %q", authURL, want)
			}
		}
		if !strings.Contains(authURL, "redirect_uri=http%3A%2F%2F127.0.0.1%3A8888%2Fcallback") {
			t.Errorf("expected default redirect uri in %q", authURL)
		}
	})

	t.Run("Authenticate", func(t *testing.T) {
		t.Run("Resolves User", func(t *testing.T) {
			api := newFakeAPI(t)
			srv := newAuthenticated(t, api)
			if srv.UserID() != "me" {
				t.Errorf("expected user me, got %q", srv.UserID())
			}
			tok, err := srv.Token()
			if err != nil || tok.AccessToken != "access" {
				t.Errorf("expected current token, got %+v, %v", tok, err)
			}
		})

		t.Run("No Token", func(t *testing.T) {
			srv, _ := NewSpotifyService(testCredentials(), SpotifyOptions{}, nil)
			if err := srv.Authenticate(ctx, nil); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})

		t.Run("Rejected Token", func(t *testing.T) {
			api := newFakeAPI(t)
			api.meStatus = http.StatusUnauthorized
			srv, _ := NewSpotifyService(testCredentials(), SpotifyOptions{BaseURL: api.srv.URL + "/"}, nil)

			err := srv.Authenticate(ctx, &oauth2.Token{AccessToken: "expired"})
			if !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
			if _, err := srv.Search(ctx, models.TrackQuery{Track: "x"}); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("client should not be usable after a failed authentication, got %v", err)
			}
		})
	})

	t.Run("Search", func(t *testing.T) {
		t.Run("Maps Candidates", func(t *testing.T) {
			api := newFakeAPI(t)
			srv := newAuthenticated(t, api)

			got, err := srv.Search(ctx, models.TrackQuery{Track: "In the Cage", Artist: "Genesis"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 candidates, got %d", len(got))
			}
			if got[0].ID != "t1" || got[0].Rank != 0 || got[1].Rank != 1 {
				t.Errorf("unexpected ranking %+v", got)
			}
			if got[0].Album != "The Lamb Lies Down on Broadway" || !slices.Equal(got[0].Artists, []string{"Genesis"}) {
				t.Errorf("unexpected candidate %+v", got[0])
			}
			if !slices.Equal(got[1].Artists, []string{"Genesis"}) {
				t.Errorf("empty artist names should be dropped, got %v", got[1].Artists)
			}
			if api.searches[0] != `track:"In the Cage" artist:"Genesis"` {
				t.Errorf("unexpected search expression %q", api.searches[0])
			}
		})

		t.Run("Rate Limit Is Transient", func(t *testing.T) {
			api := newFakeAPI(t)
			api.searchStatus = []int{http.StatusTooManyRequests}
			srv := newAuthenticated(t, api)

			_, err := srv.Search(ctx, models.TrackQuery{Track: "x"})
			if !errors.Is(err, shared.ErrTransient) {
				t.Errorf("expected transient error, got %v", err)
			}
		})

		t.Run("Server Error Is Transient", func(t *testing.T) {
			api := newFakeAPI(t)
			api.searchStatus = []int{http.StatusBadGateway}
			srv := newAuthenticated(t, api)

			if _, err := srv.Search(ctx, models.TrackQuery{Track: "x"}); !shared.IsTransient(err) {
				t.Errorf("expected transient error, got %v", err)
			}
		})

		t.Run("Error Responses Without JSON", func(t *testing.T) {
			tests := []struct {
				name   string
				status int
				body   string
			}{
				{"empty rate limit", http.StatusTooManyRequests, ""},
				{"html outage", http.StatusServiceUnavailable, "<html>Service Unavailable</html>"},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					api := newFakeAPI(t)
					srv := newAuthenticated(t, api)
					api.searchStatus = []int{tt.status}
					api.errorBody = &tt.body
					api.retryAfter = "3"

					_, err := srv.Search(ctx, models.TrackQuery{Track: "x"})
					if !shared.IsTransient(err) {
						t.Fatalf("expected transient error, got %v", err)
					}
					if got := shared.RetryAfter(err); got != 3*time.Second {
						t.Errorf("expected retry hint 3s, got %v", got)
					}
					var re *shared.RemoteError
					if !errors.As(err, &re) || re.Status != tt.status {
						t.Errorf("expected status %d on %v", tt.status, err)
					}
				})
			}
		})

		t.Run("Bad Request Is Permanent", func(t *testing.T) {
			api := newFakeAPI(t)
			api.searchStatus = []int{http.StatusBadRequest}
			srv := newAuthenticated(t, api)

			_, err := srv.Search(ctx, models.TrackQuery{Track: "x"})
			if !errors.Is(err, shared.ErrPermanent) {
				t.Errorf("expected permanent error, got %v", err)
			}
		})

		t.Run("Not Authenticated", func(t *testing.T) {
			srv, _ := NewSpotifyService(testCredentials(), SpotifyOptions{}, nil)
			if _, err := srv.Search(ctx, models.TrackQuery{Track: "x"}); !errors.Is(err, shared.ErrNotAuthenticated) {
				t.Errorf("expected ErrNotAuthenticated, got %v", err)
			}
		})
	})

	t.Run("Fetch", func(t *testing.T) {
		t.Run("Owned Playlist Across Pages", func(t *testing.T) {
			api := newFakeAPI(t)
			srv := newAuthenticated(t, api)

			state, err := srv.Fetch(ctx, "Road Trip")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if state.ID != "pl1" {
				t.Fatalf("expected owned playlist pl1, got %q", state.ID)
			}
			if !slices.Equal(state.TrackIDs, []string{"t1", "t9"}) {
				t.Errorf("expected local files skipped, got %v", state.TrackIDs)
			}
		})

		t.Run("Missing Playlist", func(t *testing.T) {
			api := newFakeAPI(t)
			srv := newAuthenticated(t, api)

			state, err := srv.Fetch(ctx, "Nope")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if state.Exists() || len(state.TrackIDs) != 0 || state.Name != "Nope" {
				t.Errorf("expected empty state, got %+v", state)
			}
		})
	})

	t.Run("Mutations", func(t *testing.T) {
		api := newFakeAPI(t)
		srv := newAuthenticated(t, api)

		id, err := srv.Create(ctx, "Road Trip 2")
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if id != "new1" {
			t.Errorf("expected new1, got %q", id)
		}
		if api.created["name"] != "Road Trip 2" || api.created["public"] != false || api.created["description"] != PlaylistDescription {
			t.Errorf("unexpected create body %v", api.created)
		}

		if err := srv.AddTracks(ctx, id, []string{"a", "b"}); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if err := srv.RemoveTracks(ctx, id, []string{"c"}); err != nil {
			t.Fatalf("remove failed: %v", err)
		}

		if len(api.added) != 1 || !slices.Equal(api.added[0], []string{"a", "b"}) {
			t.Errorf("unexpected additions %v", api.added)
		}
		if len(api.removed) != 1 || !slices.Equal(api.removed[0], []string{"c"}) {
			t.Errorf("unexpected removals %v", api.removed)
		}
	})
}

func TestSearchExpression(t *testing.T) {
	tests := []struct {
		name  string
		query models.TrackQuery
		want  string
	}{
		{
			name:  "all fields in priority order",
			query: models.TrackQuery{Album: "C", Artist: "B", Track: "A"},
			want:  `track:"A" artist:"B" album:"C"`,
		},
		{name: "track only", query: models.TrackQuery{Track: "A"}, want: `track:"A"`},
		{name: "quotes stripped", query: models.TrackQuery{Track: `Say "Hi"`}, want: `track:"Say Hi"`},
		{name: "empty", query: models.TrackQuery{Raw: "x"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SearchExpression(tt.query); got != tt.want {
				t.Errorf("SearchExpression() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		if Classify("search", nil) != nil {
			t.Error("expected nil")
		}
	})

	t.Run("Deadline Is Transient", func(t *testing.T) {
		err := Classify("search", fmt.Errorf("get: %w", context.DeadlineExceeded))
		if !errors.Is(err, shared.ErrTransient) {
			t.Errorf("expected transient, got %v", err)
		}
	})

	t.Run("Cancellation Passes Through", func(t *testing.T) {
		err := Classify("search", context.Canceled)
		if errors.Is(err, shared.ErrTransient) || errors.Is(err, shared.ErrPermanent) {
			t.Errorf("cancellation should not be classified, got %v", err)
		}
	})

	t.Run("Unknown Is Permanent", func(t *testing.T) {
		if err := Classify("search", errors.New("decode failed")); !errors.Is(err, shared.ErrPermanent) {
			t.Errorf("expected permanent, got %v", err)
		}
	})

	t.Run("Status Error Keeps Hint", func(t *testing.T) {
		err := Classify("add_tracks", fmt.Errorf("post: %w", &StatusError{Status: 503, RetryAfter: time.Second}))
		var re *shared.RemoteError
		if !errors.As(err, &re) || !re.Transient || re.Status != 503 || re.RetryAfter != time.Second {
			t.Errorf("expected transient 503 with 1s hint, got %#v", err)
		}
	})

	t.Run("Already Classified", func(t *testing.T) {
		orig := shared.Transient("search", 429, errors.New("slow"))
		if got := Classify("other", orig); got != orig {
			t.Errorf("expected the original error back, got %v", got)
		}
	})
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"absent", "", 0},
		{"seconds", "120", 2 * time.Minute},
		{"negative", "-5", 0},
		{"http date", now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{"past date", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value, now); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
