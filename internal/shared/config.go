package shared

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Matching    MatchingConfig    `toml:"matching"`
	Remote      RemoteConfig      `toml:"remote"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and the persisted OAuth token.
type SpotifyConfig struct {
	ClientID     string    `toml:"client_id"`
	ClientSecret string    `toml:"client_secret"`
	RedirectURI  string    `toml:"redirect_uri" validate:"omitempty,url"`
	AccessToken  string    `toml:"access_token"`
	RefreshToken string    `toml:"refresh_token"`
	TokenType    string    `toml:"token_type"`
	TokenExpiry  time.Time `toml:"token_expiry"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `toml:"max_idle_conns" validate:"gte=0"`
}

// ServerConfig contains settings for the local OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host" validate:"required"`
	Port int    `toml:"port" validate:"min=1,max=65535"`
}

// MatchingConfig tunes the match resolver.
type MatchingConfig struct {
	AcceptThreshold float64 `toml:"accept_threshold" validate:"gte=0,lte=1"`
	TieMargin       float64 `toml:"tie_margin" validate:"gte=0,lte=1"`
	TrackWeight     float64 `toml:"track_weight" validate:"gt=0"`
	ArtistWeight    float64 `toml:"artist_weight" validate:"gte=0,ltefield=TrackWeight"`
	AlbumWeight     float64 `toml:"album_weight" validate:"gte=0,ltefield=ArtistWeight"`
	SearchLimit     int     `toml:"search_limit" validate:"min=1,max=50"`
	Concurrency     int     `toml:"concurrency" validate:"min=1,max=32"`
}

// RemoteConfig controls batching, pacing and retries against the remote service.
type RemoteConfig struct {
	BatchSize         int     `toml:"batch_size" validate:"min=1,max=100"`
	MaxAttempts       int     `toml:"max_attempts" validate:"min=1,max=10"`
	InitialBackoffMS  int     `toml:"initial_backoff_ms" validate:"gte=0"`
	MaxBackoffMS      int     `toml:"max_backoff_ms" validate:"gtefield=InitialBackoffMS"`
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gt=0"`
	CallTimeoutMS     int     `toml:"call_timeout_ms" validate:"min=1"`
}

// LogConfig selects the log level.
type LogConfig struct {
	Level string `toml:"level" validate:"omitempty,oneof=debug info warn error fatal"`
}

// Backoff builds the retry policy described by the remote section.
func (r RemoteConfig) Backoff() Backoff {
	return Backoff{
		MaxAttempts: r.MaxAttempts,
		Initial:     time.Duration(r.InitialBackoffMS) * time.Millisecond,
		Max:         time.Duration(r.MaxBackoffMS) * time.Millisecond,
		Multiplier:  2,
	}
}

// CallTimeout is the per-call deadline applied to every remote request.
func (r RemoteConfig) CallTimeout() time.Duration {
	return time.Duration(r.CallTimeoutMS) * time.Millisecond
}

// Token returns the stored OAuth token, or nil when the account has not been authorized.
func (s SpotifyConfig) Token() *oauth2.Token {
	if s.AccessToken == "" && s.RefreshToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		Expiry:       s.TokenExpiry,
	}
}

// Update stores token in the config.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("%w: nil token", ErrInvalidArgument)
	}
	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	s.TokenType = token.TokenType
	s.TokenExpiry = token.Expiry
	return nil
}

// Validate checks structural constraints on the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Sections missing from the file keep their defaults from the embedded example config.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveToken writes token into the [credentials.spotify] table of the config file at path.
//
// Only the token keys change; everything else stays as the file has it, so values that came from
// the environment or from defaults are never written. A missing file is created holding just the token.
func SaveToken(path string, token *oauth2.Token) error {
	if token == nil {
		return fmt.Errorf("%w: nil token", ErrInvalidArgument)
	}

	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("failed to read config file: %w", err)
	}

	spotify := table(table(doc, "credentials"), "spotify")
	spotify["access_token"] = token.AccessToken
	if token.RefreshToken != "" {
		spotify["refresh_token"] = token.RefreshToken
	}
	spotify["token_type"] = token.TokenType
	spotify["token_expiry"] = token.Expiry

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// table returns the sub-table key of doc, replacing a missing or non-table value.
func table(doc map[string]any, key string) map[string]any {
	if t, ok := doc[key].(map[string]any); ok {
		return t
	}
	t := map[string]any{}
	doc[key] = t
	return t
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnv reads a .env file (if present) and applies SPOTIFY_ID, SPOTIFY_SECRET and
// SPOTIFY_REDIRECT_URI over the file based credentials.
func LoadEnv(config *Config, files ...string) {
	_ = godotenv.Load(files...)

	if v := os.Getenv("SPOTIFY_ID"); v != "" {
		config.Credentials.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_SECRET"); v != "" {
		config.Credentials.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REDIRECT_URI"); v != "" {
		config.Credentials.Spotify.RedirectURI = v
	}
}
