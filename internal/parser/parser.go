// package parser turns lines of a text track listing into [models.TrackQuery] values.
//
// Two line shapes are recognised:
//
//	track:In the Cage artist:Genesis album:The Lamb Lies Down On Broadway
//	artist=Genesis | album=The Lamb Lies Down On Broadway | track=In the Cage
//
// Anything else becomes a track-only query built from the whole line.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/shared"
)

// maxLineSize bounds a single input line for the scanner.
const maxLineSize = 1024 * 1024

var keyToken = regexp.MustCompile(`(?i)(?:^|\s)(track|artist|album):`)

// ParseLine parses one raw line. The boolean is false for blank and comment lines, which produce no query.
//
// Parsing never fails: a line without a usable key falls back to a track-only query.
func ParseLine(line string, lineNo int) (models.TrackQuery, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return models.TrackQuery{}, false
	}

	var fields map[string]string
	if strings.Contains(trimmed, "|") && strings.Contains(trimmed, "=") {
		fields = parsePipeFields(trimmed)
	} else {
		fields = parseKeyTokens(trimmed)
	}

	q := models.TrackQuery{
		Track:  fields["track"],
		Artist: fields["artist"],
		Album:  fields["album"],
		Raw:    line,
		Line:   lineNo,
	}
	if q.IsEmpty() {
		q = models.TrackQuery{Track: trimmed, Raw: line, Line: lineNo}
	}
	return q, true
}

// parseKeyTokens reads `key:value` tokens; each value runs up to the next key token. A repeated key keeps its last value.
func parseKeyTokens(line string) map[string]string {
	fields := make(map[string]string, 3)
	matches := keyToken.FindAllStringSubmatchIndex(line, -1)
	for i, m := range matches {
		key := strings.ToLower(line[m[2]:m[3]])
		end := len(line)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		fields[key] = collapseSpace(line[m[1]:end])
	}
	return fields
}

// parsePipeFields reads `key=value` segments separated by pipes. Unknown keys are ignored.
func parsePipeFields(line string) map[string]string {
	fields := make(map[string]string, 3)
	for segment := range strings.SplitSeq(line, "|") {
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		switch k := strings.ToLower(strings.TrimSpace(key)); k {
		case "track", "artist", "album":
			fields[k] = collapseSpace(value)
		}
	}
	return fields
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ParseReader parses every line from r, numbering lines from 1. Duplicate lines are kept.
func ParseReader(r io.Reader) ([]models.TrackQuery, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	queries := []models.TrackQuery{}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		if lineNo == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		if q, ok := ParseLine(text, lineNo); ok {
			queries = append(queries, q)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read track list at line %d: %v", shared.ErrInvalidInput, lineNo+1, err)
	}
	return queries, nil
}

// ParseFile opens and parses the track list at path.
func ParseFile(path string) ([]models.TrackQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open track list: %v", shared.ErrInvalidInput, err)
	}
	defer f.Close()
	return ParseReader(f)
}

// PlaylistName derives a playlist name from a track list path: the base name without its extension.
func PlaylistName(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return strings.TrimSpace(base)
}
