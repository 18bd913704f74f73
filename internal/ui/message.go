package ui

import (
	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/tasks"
)

// progressUpdateMsg forwards one [tasks.ProgressUpdate] into the update loop.
type progressUpdateMsg tasks.ProgressUpdate

// importCompleteMsg is delivered once the run returns.
type importCompleteMsg struct {
	report *models.RunReport
	err    error
}
