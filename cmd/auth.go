package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/spotlist/internal/server"
	"github.com/desertthunder/spotlist/internal/services"
	"github.com/desertthunder/spotlist/internal/shared"
)

// Auth performs the OAuth2 authorization flow for Spotify and stores the tokens in the config file.
//
// Starts a local HTTP server, opens the browser (or prints the URL when headless) and exchanges the
// auth code for tokens.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	spotify, err := r.spotifyService(config, r.logger)
	if err != nil {
		return err
	}

	token, err := r.doOAuth(ctx, config, spotify, cmd.Bool("no-browser"), cmd.Duration("timeout"))
	if err != nil {
		return err
	}

	if err := spotify.Authenticate(ctx, token); err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful (user %s)", spotify.UserID())
	r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	r.writePlain("You can now use: spotlist import <file>\n")
	return nil
}

func (r *Runner) spotifyService(config *shared.Config, logger *log.Logger) (*services.SpotifyService, error) {
	spotify, err := services.NewSpotifyService(config.Credentials.Spotify, services.OptionsFromConfig(config), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify service: %w (set client_id and client_secret in config.toml or SPOTIFY_ID/SPOTIFY_SECRET)", err)
	}
	return spotify, nil
}

// authenticate builds the session for a run from the stored token, authorizing first when there is none.
func (r *Runner) authenticate(ctx context.Context, cmd *cli.Command, config *shared.Config, spotify *services.SpotifyService) error {
	token := config.Credentials.Spotify.Token()
	if token == nil {
		r.writePlain("→ No stored Spotify token, starting authorization...\n")

		var err error
		if token, err = r.doOAuth(ctx, config, spotify, cmd.Bool("no-browser"), cmd.Duration("timeout")); err != nil {
			return err
		}
		if err := r.saveTokens(token); err != nil {
			return err
		}
	}
	return spotify.Authenticate(ctx, token)
}

// persistToken writes back a token the client refreshed during the run.
func (r *Runner) persistToken(spotify *services.SpotifyService) {
	token, err := spotify.Token()
	if err != nil {
		r.logger.Debug("no token to persist", "error", err)
		return
	}
	if token.AccessToken == r.config.Credentials.Spotify.AccessToken {
		return
	}
	if err := r.saveTokens(token); err != nil {
		r.logger.Warn("failed to persist refreshed token", "error", err)
	}
}

// callbackListenAddress is the [server] section's host and port, falling back to the redirect URI's own address.
func callbackListenAddress(config *shared.Config, redirectAddr string) string {
	if config.Server.Host == "" || config.Server.Port == 0 {
		return redirectAddr
	}
	return net.JoinHostPort(config.Server.Host, strconv.Itoa(config.Server.Port))
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server.
//
// Waiting is bounded by timeout; expiry fails with [shared.ErrTimeout].
func (r *Runner) doOAuth(ctx context.Context, config *shared.Config, spotify *services.SpotifyService, noBrowser bool, timeout time.Duration) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	redirectURI := config.Credentials.Spotify.RedirectURI
	if redirectURI == "" {
		redirectURI = services.DefaultRedirectURI
	}
	redirectAddr, path, err := server.CallbackAddress(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	oauthHandler := server.NewOAuthHandler(spotify.Authenticator(), state, path)
	router := server.NewBasicRouter()
	router.Use(server.RecoverMiddleware(r.logger), server.LoggingMiddleware(r.logger))
	router.Handler(oauthHandler)

	addr := callbackListenAddress(config, redirectAddr)
	r.logger.Info("starting OAuth callback server", "addr", addr, "path", path)
	srv, err := server.StartCallbackServer(addr, router)
	if err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := spotify.AuthURL(state)
	if noBrowser || !r.interactive() {
		r.writePlain("→ Open this URL in a browser to authorize spotlist:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for Spotify authorization...\n")
		if err := r.openBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser automatically", "error", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}

	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token, err := oauthHandler.Wait(waitCtx, srv.Errors())
	if errors.Is(err, shared.ErrTimeout) {
		return nil, fmt.Errorf("%w: no authorization received after %s", shared.ErrTimeout, timeout)
	}
	return token, err
}
