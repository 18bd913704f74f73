// package m3u converts M3U playlists of local music files into text track listings.
//
// Artist, album and title are recovered from the folder layout of each path. Two library layouts are
// understood:
//
//	Music\Artist\Artist - (1994) Album [FLAC]\01 - Title.flac   one folder per artist
//	Music\Artist - (1994) Album [FLAC]\01 - Title.flac          album folders carrying the artist
//
// Compilation folders ("VA", "Various Artists") take the artist from an "Artist - Title" file name.
package m3u

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

var (
	albumWithArtist = regexp.MustCompile(`^(.+?)\s*-\s*\(\d{4}\)\s*(.+)$`)
	yearTag         = regexp.MustCompile(`\(\d{4}\)`)
	formatTag       = regexp.MustCompile(`\[.*?\]`)
	trackNumber     = regexp.MustCompile(`^\d+\s*-\s*`)
	versionSuffix   = regexp.MustCompile(`(?i)\s*-\s*(live|remaster(ed)?|mono|stereo)\b.*$`)
	trailingThe     = regexp.MustCompile(`(?i)^(.+),\s*the$`)
)

var (
	// placeholderArtists mean the path does not follow a known layout.
	placeholderArtists = map[string]bool{"music": true, "unknown": true}
	// compilationArtists mark albums whose file names carry the artist.
	compilationArtists = map[string]bool{"va": true, "various": true, "various artists": true}
)

// ReadPaths returns the file entries of an M3U playlist, skipping blank lines, directives and comments.
func ReadPaths(r io.Reader) ([]string, error) {
	var paths []string
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(strings.ToValidUTF8(scanner.Text(), ""))
		line = strings.TrimPrefix(line, "\ufeff")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if path := strings.Trim(line, `"'`); path != "" {
			paths = append(paths, path)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: error reading M3U content: %v", shared.ErrInvalidInput, err)
	}
	return paths, nil
}

// splitPath splits on both separators so Windows playlists convert on any OS.
func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' })
}

// QueryFromPath derives a query from one local file path.
func QueryFromPath(path string) (models.TrackQuery, error) {
	parts := splitPath(path)
	if len(parts) < 2 {
		return models.TrackQuery{}, fmt.Errorf("%w: %q has no album folder", shared.ErrInvalidInput, path)
	}

	title := TrackTitle(parts[len(parts)-1])
	folder := parts[len(parts)-2]

	var artist, album string
	if m := albumWithArtist.FindStringSubmatch(strings.TrimSpace(formatTag.ReplaceAllString(folder, ""))); m != nil {
		artist, album = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	} else {
		if len(parts) < 3 {
			return models.TrackQuery{}, fmt.Errorf("%w: %q has no artist folder", shared.ErrInvalidInput, path)
		}
		artist = parts[len(parts)-3]
		album = AlbumName(folder, artist)
	}

	if placeholderArtists[strings.ToLower(strings.TrimSpace(artist))] {
		return models.TrackQuery{}, fmt.Errorf("%w: no artist in path %q", shared.ErrInvalidInput, path)
	}

	artist = ArtistName(artist)
	if compilationArtists[strings.ToLower(artist)] {
		artist = ""
		if a, t, ok := strings.Cut(title, " - "); ok {
			artist, title = strings.TrimSpace(a), strings.TrimSpace(t)
		}
	}

	return models.TrackQuery{Track: title, Artist: artist, Album: album, Raw: path}, nil
}

// TrackTitle strips the extension, the leading track number and version suffixes from a file name.
//
//	"01 - Let Me Drown.flac" -> "Let Me Drown"
func TrackTitle(filename string) string {
	name := filename
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	name = trackNumber.ReplaceAllString(strings.TrimSpace(name), "")
	if stripped := strings.TrimSpace(versionSuffix.ReplaceAllString(name, "")); stripped != "" {
		name = stripped
	}
	return strings.TrimSpace(name)
}

// AlbumName cleans an album folder name of year, format tag and a leading "Artist - ".
//
//	"Soundgarden - (1994) Superunknown [FLAC]" -> "Superunknown"
func AlbumName(folder, artist string) string {
	name := yearTag.ReplaceAllString(folder, "")
	name = formatTag.ReplaceAllString(name, "")
	name = strings.Trim(name, " -_")
	name = strings.TrimPrefix(name, artist+" - ")
	return strings.TrimSpace(name)
}

// ArtistName turns library sort names into display names.
//
//	"Rolling Stones, The" -> "The Rolling Stones"
func ArtistName(artist string) string {
	artist = strings.TrimSpace(artist)
	if m := trailingThe.FindStringSubmatch(artist); m != nil {
		return "The " + strings.TrimSpace(m[1])
	}
	return artist
}

// FormatQuery renders q as a key:value line, omitting empty fields.
func FormatQuery(q models.TrackQuery) string {
	var fields []string
	if q.Track != "" {
		fields = append(fields, "track:"+q.Track)
	}
	if q.Artist != "" {
		fields = append(fields, "artist:"+q.Artist)
	}
	if q.Album != "" {
		fields = append(fields, "album:"+q.Album)
	}
	return strings.Join(fields, " ")
}

// Convert reads an M3U playlist and derives one query per file entry, numbered from 1.
//
// Any path that does not fit a known layout fails the whole conversion.
func Convert(r io.Reader) ([]models.TrackQuery, error) {
	paths, err := ReadPaths(r)
	if err != nil {
		return nil, err
	}

	queries := make([]models.TrackQuery, 0, len(paths))
	for i, path := range paths {
		q, err := QueryFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		q.Line = i + 1
		queries = append(queries, q)
	}
	return queries, nil
}

// WriteQueries writes one FormatQuery line per query.
func WriteQueries(w io.Writer, queries []models.TrackQuery) error {
	bw := bufio.NewWriter(w)
	for _, q := range queries {
		if _, err := fmt.Fprintln(bw, FormatQuery(q)); err != nil {
			return fmt.Errorf("failed to write query: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write query: %w", err)
	}
	return nil
}

// ConvertFile converts the playlist at src and writes the track listing to dst.
func ConvertFile(src, dst string) ([]models.TrackQuery, error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open playlist: %v", shared.ErrInvalidInput, err)
	}
	defer in.Close()

	queries, err := Convert(in)
	if err != nil {
		return nil, err
	}

	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if err := WriteQueries(out, queries); err != nil {
		out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s: %w", dst, err)
	}
	return queries, nil
}
