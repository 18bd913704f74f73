package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlist/internal/m3u"
	"github.com/desertthunder/spotlist/internal/shared"
)

// Convert writes a track list for an M3U playlist, one line per file entry.
//
// The output is ready for import; its name becomes the playlist name.
func (r *Runner) Convert(ctx context.Context, cmd *cli.Command) error {
	src := cmd.StringArg("file")
	if src == "" {
		return fmt.Errorf("%w: M3U file", shared.ErrMissingArgument)
	}

	dst := cmd.String("output")
	if dst == "" {
		dst = strings.TrimSuffix(src, filepath.Ext(src)) + ".txt"
	}
	if dst == src {
		return fmt.Errorf("%w: output would overwrite %s", shared.ErrInvalidArgument, src)
	}

	queries, err := m3u.ConvertFile(src, dst)
	if err != nil {
		return err
	}

	r.logger.Info("converted playlist", "source", src, "output", dst, "tracks", len(queries))
	return r.writePlain("✓ Converted %d tracks to %s\n", len(queries), dst)
}
