package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlist/internal/executor"
	"github.com/desertthunder/spotlist/internal/formatter"
	"github.com/desertthunder/spotlist/internal/matcher"
	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/parser"
	"github.com/desertthunder/spotlist/internal/shared"
	"github.com/desertthunder/spotlist/internal/tasks"
	"github.com/desertthunder/spotlist/internal/ui"
)

const tuiLogPath = "./tmp/spotlist-tui.log"

// Import resolves every line of a track list and reconciles the target playlist with the matches.
//
// A completed run exits cleanly even with unmatched lines or failed batches; only fatal errors are returned.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("file")
	if path == "" {
		return fmt.Errorf("%w: track list file", shared.ErrMissingArgument)
	}

	reportPath := cmd.String("report")
	if reportPath != "" {
		if _, err := formatter.FormatFromPath(reportPath); err != nil {
			return err
		}
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	queries, err := parser.ParseFile(path)
	if err != nil {
		return err
	}

	req := tasks.ImportRequest{
		Playlist: cmd.String("name"),
		Queries:  queries,
		Policy:   models.Append,
		DryRun:   cmd.Bool("dry-run"),
	}
	if req.Playlist == "" {
		req.Playlist = parser.PlaylistName(path)
	}
	if cmd.Bool("overwrite") {
		req.Policy = models.Overwrite
	}

	useTUI := cmd.Bool("tui")
	logger := r.logger
	if useTUI {
		fileLogger, err := shared.NewFileLogger(tuiLogPath)
		if err != nil {
			return fmt.Errorf("failed to create log file: %w", err)
		}
		fileLogger.SetLevel(r.logger.GetLevel())
		logger = fileLogger
	}

	spotify, err := r.spotifyService(config, logger)
	if err != nil {
		return err
	}
	if err := r.authenticate(ctx, cmd, config, spotify); err != nil {
		return err
	}
	defer r.persistToken(spotify)

	backoff := config.Remote.Backoff()
	resolver := matcher.NewResolver(spotify, matcher.OptionsFromConfig(config.Matching, config.Remote), logger)
	engine := tasks.NewImportEngine(resolver, spotify, executor.New(spotify, config.Remote.BatchSize, backoff, logger), backoff, logger)

	if repo, closeDB, err := r.openRepository(config); err != nil {
		r.logger.Warn("run history unavailable, this run will not be recorded", "error", err)
	} else {
		defer closeDB()
		engine.WithRecorder(repo)
	}

	var report *models.RunReport
	var runErr error
	if useTUI {
		summary := ui.Summary{Playlist: req.Playlist, Lines: len(queries), Policy: req.Policy, DryRun: req.DryRun, Source: path}
		model := ui.NewImportModel(ctx, summary, func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*models.RunReport, error) {
			return engine.Run(ctx, req, progress)
		})
		if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
			return fmt.Errorf("failed to run TUI: %w", err)
		}

		report, runErr = model.Result()
		if report == nil && runErr == nil {
			return r.writePlain("Import cancelled\n")
		}
	} else {
		report, runErr = r.runWithProgress(ctx, engine, req, !cmd.Bool("json"))
	}

	if err := r.writeReport(report, cmd.Bool("json"), reportPath); err != nil {
		return err
	}
	return runErr
}

// runWithProgress runs the engine, printing progress messages as they arrive when show is set.
func (r *Runner) runWithProgress(ctx context.Context, engine *tasks.ImportEngine, req tasks.ImportRequest, show bool) (*models.RunReport, error) {
	progress := make(chan tasks.ProgressUpdate, 100)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for update := range progress {
			if show && update.Message != "" && update.Phase != tasks.Complete {
				r.writePlain("%s\n", update.Message)
			}
		}
	}()

	report, err := engine.Run(ctx, req, progress)
	close(progress)
	<-done
	return report, err
}

// writeReport prints report and writes it to reportPath when one is given. A nil report is skipped.
func (r *Runner) writeReport(report *models.RunReport, asJSON bool, reportPath string) error {
	if report == nil {
		return nil
	}

	if asJSON {
		if err := r.writeJSON(report, true); err != nil {
			return err
		}
	} else {
		text, err := formatter.ReportToText(report)
		if err != nil {
			return err
		}
		r.writePlain("\n")
		if err := r.writeBytes(text); err != nil {
			return err
		}
	}

	if reportPath == "" {
		return nil
	}
	written, err := formatter.WriteReport(report, reportPath)
	if err != nil {
		return err
	}
	r.logger.Info("report written", "path", written)
	if !asJSON {
		r.writePlain("Report written to %s\n", written)
	}
	return nil
}
