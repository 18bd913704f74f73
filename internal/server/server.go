// package server contains middleware & handlers for the local OAuth callback server
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, recovery, CORS, etc.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers served by the callback server.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// LoggingMiddleware logs each request at debug level.
func LoggingMiddleware(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("callback request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}

// CallbackAddress splits a redirect URI into the local listen address and the callback path.
func CallbackAddress(redirectURI string) (addr, path string, err error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", "", fmt.Errorf("invalid redirect URI %q: %w", redirectURI, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("invalid redirect URI %q: missing host", redirectURI)
	}

	addr = u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		addr = net.JoinHostPort(u.Hostname(), port)
	}

	path = u.Path
	if path == "" {
		path = "/"
	}
	return addr, path, nil
}

// CallbackServer serves a [Router] on a local address until shut down.
type CallbackServer struct {
	srv  *http.Server
	ln   net.Listener
	errs chan error
}

// StartCallbackServer listens on addr and serves handler in the background.
//
// Listen failures are returned immediately; later serve failures arrive on [CallbackServer.Errors].
func StartCallbackServer(addr string, handler http.Handler) (*CallbackServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := &CallbackServer{
		srv:  &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		ln:   ln,
		errs: make(chan error, 1),
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
	}()
	return s, nil
}

// Addr is the address actually listened on.
func (s *CallbackServer) Addr() string {
	return s.ln.Addr().String()
}

// Errors reports serve failures.
func (s *CallbackServer) Errors() <-chan error {
	return s.errs
}

// Shutdown stops the server gracefully.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
