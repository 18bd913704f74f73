// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

// commonFlags returns fresh --config and --verbose flags followed by extra.
func commonFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log at debug level",
		},
	}
	return append(flags, extra...)
}

// authFlags control the OAuth flow, used by auth and by import when no token is stored.
func authFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "no-browser",
			Usage: "Print the authorization URL instead of opening a browser",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "How long to wait for the authorization callback",
			Value: 2 * time.Minute,
		},
	}
}

// importCommand runs a track list against a playlist.
func importCommand(r *Runner) *cli.Command {
	flags := commonFlags(
		&cli.BoolFlag{
			Name:  "overwrite",
			Usage: "Make the playlist contain exactly the matched tracks, removing the rest",
		},
		&cli.StringFlag{
			Name:    "name",
			Aliases: []string{"n"},
			Usage:   "Playlist name (default: the file name without extension)",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Resolve and plan without changing the playlist",
		},
		&cli.StringFlag{
			Name:    "report",
			Aliases: []string{"r"},
			Usage:   "Write the run report to a file (.txt, .json, .csv or .md)",
		},
		&cli.BoolFlag{
			Name:  "tui",
			Usage: "Show progress in an interactive terminal UI",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the report as JSON",
		},
	)

	return &cli.Command{
		Name:      "import",
		Usage:     "Match the lines of a track list and add them to a Spotify playlist",
		ArgsUsage: "<file>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Flags:  append(flags, authFlags()...),
		Action: r.Import,
	}
}

// authCommand authorizes the Spotify account and stores its token.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "auth",
		Usage:  "Authenticate with Spotify using OAuth2",
		Flags:  commonFlags(authFlags()...),
		Action: r.Auth,
	}
}

// convertCommand turns an M3U playlist into a track list.
func convertCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert an M3U playlist of local files into a track list",
		ArgsUsage: "<file.m3u>",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output path (default: the input path with a .txt extension)",
			},
		},
		Action: r.Convert,
	}
}

// historyCommand browses stored runs.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect past import runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs, newest first",
				Flags: commonFlags(
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to show",
						Value: 20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				),
				Action: r.HistoryList,
			},
			{
				Name:      "show",
				Usage:     "Show the full report of a run",
				ArgsUsage: "<run-id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: commonFlags(
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.StringFlag{
						Name:    "report",
						Aliases: []string{"r"},
						Usage:   "Write the report to a file (.txt, .json, .csv or .md)",
					},
				),
				Action: r.HistoryShow,
			},
			{
				Name:      "delete",
				Usage:     "Delete a stored run",
				ArgsUsage: "<run-id>",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  commonFlags(),
				Action: r.HistoryDelete,
			},
		},
	}
}

// setupCommand writes a config file and prepares the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml and initialize the run history database",
		Flags: commonFlags(
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Roll back the most recent database migration",
			},
		),
		Action: r.Setup,
	}
}
