// Package ui implements an interactive terminal interface for an import run using bubbletea's Elm architecture.
//
// The TUI walks through three views:
//  1. [ConfirmView] : Show the target playlist, line count and policy, and wait for confirmation
//  2. [ImportView] : Monitor real-time progress updates with a spinner and progress bar
//  3. [ResultView] : Display the run summary and a browsable list of unmatched lines
//
// [ImportModel] implements bubbletea/Elm's standard Init/Update/View pattern.
// Progress updates flow through a channel from the [tasks.ImportEngine], providing non-blocking status reporting during runs.
//
// Quitting during a run cancels it: no further searches or batches are started, but a batch already sent is awaited.
// Contextual help is displayed via charmbracelet/bubbles/help.
package ui
