package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotlist/internal/formatter"
	"github.com/desertthunder/spotlist/internal/shared"
)

// HistoryList prints the most recent runs.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	repo, closeDB, err := r.openRepository(config)
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := repo.List(cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(runs, true)
	}
	return r.writeBytes(formatter.HistoryToText(runs))
}

// HistoryShow prints the full report of one run, found by ID or unambiguous ID prefix.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
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

	repo, closeDB, err := r.openRepository(config)
	if err != nil {
		return err
	}
	defer closeDB()

	report, err := repo.Get(id)
	if err != nil {
		return err
	}
	return r.writeReport(report, cmd.Bool("json"), reportPath)
}

// HistoryDelete removes one stored run.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	repo, closeDB, err := r.openRepository(config)
	if err != nil {
		return err
	}
	defer closeDB()

	fullID, err := repo.Resolve(id)
	if err != nil {
		return err
	}
	if err := repo.Delete(fullID); err != nil {
		return err
	}

	r.logger.Info("run deleted", "id", fullID)
	return r.writePlain("✓ Deleted run %s\n", fullID)
}
