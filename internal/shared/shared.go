// package shared defines shared helpers
package shared

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gosimple/unidecode"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// NewFileLogger creates a [log.Logger] that appends to the file at path, creating parent directories as needed.
//
// Used while the TUI owns the terminal.
func NewFileLogger(path string) (*log.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return NewLogger(f), nil
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// ParseLogLevel converts a config string ("debug", "info", ...) to a [log.Level], defaulting to info.
func ParseLogLevel(s string) log.Level {
	if s == "" {
		return log.InfoLevel
	}
	lvl, err := log.ParseLevel(s)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// GenerateState returns a random token for the OAuth state parameter.
func GenerateState() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// MarshalJSON marshals data, indenting when pretty is set.
func MarshalJSON(data any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

var (
	punctuation = regexp.MustCompile(`[./\-_,!?'"’:;()\[\]]`)
	spaces      = regexp.MustCompile(`\s+`)
	versionTail = regexp.MustCompile(`\s+-\s+(\d{4}\s+)?(live|remaster(ed)?|mono|stereo|radio edit)\b.*$`)
)

// Normalize folds text for comparison: transliterated to ASCII, lowercased, "&" spelled out,
// punctuation removed and whitespace collapsed.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(unidecode.Unidecode(s))
	s = strings.ReplaceAll(s, "&", " and ")
	s = punctuation.ReplaceAllString(s, " ")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeTitle is [Normalize] for track titles, additionally dropping version suffixes
// such as "- Live at ..." or "- 2011 Remaster" that catalogs encode inconsistently.
func NormalizeTitle(s string) string {
	folded := strings.ToLower(unidecode.Unidecode(strings.TrimSpace(s)))
	if stripped := versionTail.ReplaceAllString(folded, ""); strings.TrimSpace(stripped) != "" {
		folded = stripped
	}
	return Normalize(folded)
}

// NormalizeName collapses whitespace and lowercases a playlist name for lookups.
func NormalizeName(s string) string {
	return spaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}
