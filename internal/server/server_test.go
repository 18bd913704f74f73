package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/spotlist/internal/shared"
)

type fakeExchanger struct {
	token *oauth2.Token
	err   error
	codes []string
}

func (f *fakeExchanger) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	f.codes = append(f.codes, code)
	return f.token, f.err
}

func callback(t *testing.T, h http.Handler, query string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+query, nil))
	return rec
}

func TestOAuthHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("Exchanges Code", func(t *testing.T) {
		ex := &fakeExchanger{token: &oauth2.Token{AccessToken: "access"}}
		h := NewOAuthHandler(ex, "s1", "")

		rec := callback(t, h, "state=s1&code=abc")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Spotify account connected") {
			t.Error("expected success page")
		}

		token, err := h.Wait(ctx, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token.AccessToken != "access" || len(ex.codes) != 1 || ex.codes[0] != "abc" {
			t.Errorf("unexpected exchange %v / %v", token, ex.codes)
		}
	})

	t.Run("Rejects Wrong State", func(t *testing.T) {
		ex := &fakeExchanger{token: &oauth2.Token{AccessToken: "access"}}
		h := NewOAuthHandler(ex, "s1", "")

		if rec := callback(t, h, "state=other&code=abc"); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if _, err := h.Wait(ctx, nil); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
		if len(ex.codes) != 0 {
			t.Error("no exchange should happen with a bad state")
		}
	})

	t.Run("Reports Denied Authorization", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{}, "s1", "")
		callback(t, h, "state=s1&error=access_denied")

		_, err := h.Wait(ctx, nil)
		if !errors.Is(err, shared.ErrAuthFailed) || !strings.Contains(err.Error(), "access_denied") {
			t.Errorf("expected denial error, got %v", err)
		}
	})

	t.Run("Exchange Failure", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{err: errors.New("invalid_grant")}, "s1", "")
		if rec := callback(t, h, "state=s1&code=abc"); rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if _, err := h.Wait(ctx, nil); !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("Only First Callback Counts", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{token: &oauth2.Token{AccessToken: "a"}}, "s1", "")
		callback(t, h, "state=s1&code=abc")
		if rec := callback(t, h, "state=s1&code=def"); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 on replay, got %d", rec.Code)
		}
	})

	t.Run("Wait Times Out", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{}, "s1", "")
		tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		if _, err := h.Wait(tctx, nil); !errors.Is(err, shared.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})

	t.Run("Wait Reports Server Error", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{}, "s1", "")
		errs := make(chan error, 1)
		errs <- errors.New("address in use")

		if _, err := h.Wait(ctx, errs); err == nil || !strings.Contains(err.Error(), "address in use") {
			t.Errorf("expected server error, got %v", err)
		}
	})

	t.Run("Custom Path", func(t *testing.T) {
		h := NewOAuthHandler(&fakeExchanger{}, "s1", "/auth/spotify")
		if routes := h.Routes(); len(routes) != 1 || routes[0] != "/auth/spotify" {
			t.Errorf("unexpected routes %v", routes)
		}
	})
}

func TestBasicRouter(t *testing.T) {
	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mark("first"), mark("second"))
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		want := []string{"first", "second", "handler"}
		if strings.Join(order, ",") != strings.Join(want, ",") {
			t.Errorf("order = %v, want %v", order, want)
		}
	})

	t.Run("Method Mismatch", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("Recovers Panics", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(RecoverMiddleware(log.New(io.Discard)))
		router.Handle(http.MethodGet, "/boom", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})
}

func TestCallbackAddress(t *testing.T) {
	tests := []struct {
		uri      string
		addr     string
		path     string
		hasError bool
	}{
		{uri: "http://127.0.0.1:8888/callback", addr: "127.0.0.1:8888", path: "/callback"},
		{uri: "http://localhost", addr: "localhost:80", path: "/"},
		{uri: "https://example.com/cb", addr: "example.com:443", path: "/cb"},
		{uri: "/callback", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			addr, path, err := CallbackAddress(tt.uri)
			if tt.hasError {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if addr != tt.addr || path != tt.path {
				t.Errorf("got %s %s, want %s %s", addr, path, tt.addr, tt.path)
			}
		})
	}
}

func TestCallbackServer(t *testing.T) {
	ex := &fakeExchanger{token: &oauth2.Token{AccessToken: "live"}}
	h := NewOAuthHandler(ex, "s1", "/callback")
	router := NewBasicRouter()
	router.Handler(h)

	srv, err := StartCallbackServer("127.0.0.1:0", router)
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer srv.Shutdown(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/callback?state=s1&code=xyz")
	if err != nil {
		t.Fatalf("callback request failed: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	token, err := h.Wait(ctx, srv.Errors())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.AccessToken != "live" {
		t.Errorf("unexpected token %v", token)
	}
}
