package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/spotlist/internal/models"
	"github.com/desertthunder/spotlist/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ConfirmView ViewState = iota
	ImportView
	ResultView
)

// maxLogLines is how many recent progress messages the import view keeps.
const maxLogLines = 6

// ImportFunc runs one import, reporting on progress. Usually [tasks.ImportEngine.Run] bound to a request.
type ImportFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*models.RunReport, error)

// Summary describes the pending run on the confirmation screen.
type Summary struct {
	Playlist string
	Lines    int
	Policy   models.Policy
	DryRun   bool
	Source   string
}

// ImportModel represents the TUI state of a single import run.
type ImportModel struct {
	ctx          context.Context
	cancel       context.CancelFunc
	view         ViewState
	summary      Summary
	run          ImportFunc
	progressChan chan tasks.ProgressUpdate
	done         chan importCompleteMsg
	progress     tasks.ProgressUpdate
	lines        []string
	cancelling   bool
	report       *models.RunReport
	err          error
	unmatched    list.Model
	spinner      spinner.Model
	bar          progress.Model
	help         help.Model
	keys         keyMap
	width        int
	height       int
}

// NewImportModel creates a model that asks for confirmation before calling run.
func NewImportModel(ctx context.Context, summary Summary, run ImportFunc) *ImportModel {
	ctx, cancel := context.WithCancel(ctx)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.UnsetMarginBottom()

	return &ImportModel{
		ctx:     ctx,
		cancel:  cancel,
		view:    ConfirmView,
		summary: summary,
		run:     run,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Result returns the report and error of the finished run; both are nil if the run never started.
func (m *ImportModel) Result() (*models.RunReport, error) {
	return m.report, m.err
}

// Init starts the spinner; the run waits for confirmation.
func (m *ImportModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles incoming messages and updates the model state.
func (m *ImportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(max(msg.Width-8, 10), 60)
		if m.view == ResultView {
			m.unmatched.SetSize(msg.Width-4, m.listHeight())
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ImportView:
			return m.handleImportKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		if m.progress.Message != "" {
			m.lines = append(m.lines, m.progress.Message)
			if len(m.lines) > maxLogLines {
				m.lines = m.lines[len(m.lines)-maxLogLines:]
			}
		}
		return m, m.waitForProgress()

	case importCompleteMsg:
		m.report = msg.report
		m.err = msg.err
		m.progressChan = nil
		m.view = ResultView
		m.buildUnmatchedList()
		return m, nil
	}

	return m, nil
}

func (m *ImportModel) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.start):
		m.view = ImportView
		return m, tea.Batch(m.start(), m.spinner.Tick)
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.cancel()
		return m, tea.Quit
	}
	return m, nil
}

// handleImportKeys cancels the run on quit. In-flight mutations finish; the result arrives as usual.
func (m *ImportModel) handleImportKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.cancel) && !m.cancelling {
		m.cancelling = true
		m.cancel()
	}
	return m, nil
}

func (m *ImportModel) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) && m.unmatched.FilterState() != list.Filtering {
		m.cancel()
		return m, tea.Quit
	}
	if len(m.unmatched.Items()) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.unmatched, cmd = m.unmatched.Update(msg)
	return m, cmd
}

// start launches the run. The result is buffered before the progress channel closes so the waiter
// always finds it.
func (m *ImportModel) start() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 100)
	m.done = make(chan importCompleteMsg, 1)

	progressChan, done := m.progressChan, m.done
	go func() {
		report, err := m.run(m.ctx, progressChan)
		done <- importCompleteMsg{report: report, err: err}
		close(progressChan)
	}()

	return m.waitForProgress()
}

func (m *ImportModel) waitForProgress() tea.Cmd {
	progressChan, done := m.progressChan, m.done
	return func() tea.Msg {
		if progressChan == nil {
			return <-done
		}
		update, ok := <-progressChan
		if !ok {
			return <-done
		}
		return progressUpdateMsg(update)
	}
}

func (m *ImportModel) listHeight() int {
	return max(m.height-14, 5)
}

func (m *ImportModel) buildUnmatchedList() {
	var entries []models.ResolvedEntry
	if m.report != nil {
		entries = m.report.Unmatched
	}
	width := m.width - 4
	if width <= 0 {
		width = 80
	}
	m.unmatched = list.New(unmatchedItems(entries), list.NewDefaultDelegate(), width, m.listHeight())
	m.unmatched.Title = fmt.Sprintf("Unmatched lines (%d)", len(entries))
	m.unmatched.SetShowHelp(false)
}

// View renders the UI based on the current view state.
func (m *ImportModel) View() string {
	switch m.view {
	case ConfirmView:
		return m.renderConfirm()
	case ImportView:
		return m.renderImport()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *ImportModel) renderConfirm() string {
	verb := "Import"
	if m.summary.DryRun {
		verb = "Dry run"
	}
	title := styles.title.Render(fmt.Sprintf("%s into '%s'?", verb, m.summary.Playlist))

	var info strings.Builder
	if m.summary.Source != "" {
		fmt.Fprintf(&info, "Source: %s\n", m.summary.Source)
	}
	fmt.Fprintf(&info, "Lines: %d\n", m.summary.Lines)
	fmt.Fprintf(&info, "Policy: %s", m.summary.Policy)
	if m.summary.Policy == models.Overwrite && !m.summary.DryRun {
		info.WriteString("\n" + styles.warn.Render("Tracks not in the file will be removed from the playlist."))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.start, m.keys.back})
	return fmt.Sprintf("%s\n%s\n\n%s\n", title, styles.box.Render(info.String()), helpView)
}

func (m *ImportModel) phaseLabel() string {
	p := m.progress
	switch p.Phase {
	case tasks.SearchTracks:
		return fmt.Sprintf("Searching tracks (%d/%d)", p.Step, p.Total)
	case tasks.FetchPlaylist:
		return "Looking up playlist..."
	case tasks.PlanChanges:
		return "Planning changes..."
	case tasks.CreatePlaylist:
		return "Creating playlist..."
	case tasks.RemoveTracks:
		return fmt.Sprintf("Removing tracks (batch %d/%d)", p.Step, p.Total)
	case tasks.AddTracks:
		return fmt.Sprintf("Adding tracks (batch %d/%d)", p.Step, p.Total)
	case tasks.Complete:
		return "Finishing..."
	default:
		return "Starting..."
	}
}

func (m *ImportModel) renderImport() string {
	title := styles.title.Render(fmt.Sprintf("Importing into '%s'", m.summary.Playlist))

	percent := 0.0
	if m.progress.Total > 0 {
		percent = float64(m.progress.Step) / float64(m.progress.Total)
	}

	status := fmt.Sprintf("%s %s", m.spinner.View(), m.phaseLabel())
	if m.cancelling {
		status = styles.warn.Render("Cancelling, waiting for in-flight requests...")
	}

	logView := styles.help.Render(strings.Join(m.lines, "\n"))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.cancel})
	return fmt.Sprintf("%s\n%s\n%s\n\n%s\n\n%s\n", title, status, m.bar.ViewAs(percent), logView, helpView)
}

func (m *ImportModel) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s\n", styles.err.Render(fmt.Sprintf("✗ Import failed: %v", m.err)), helpView)
	}
	if m.report == nil {
		return fmt.Sprintf("%s\n\n%s\n", styles.err.Render("No result available"), helpView)
	}

	r := m.report
	heading := "✓ Import complete"
	added, removed := "Added", "Removed"
	if r.DryRun {
		heading = "✓ Dry run complete (no changes made)"
		added, removed = "Would add", "Would remove"
	}
	title := styles.ok.Render(heading)

	var info strings.Builder
	fmt.Fprintf(&info, "Playlist: %s", r.Playlist)
	if r.Created {
		info.WriteString(" (new)")
	}
	fmt.Fprintf(&info, "\nMatched: %d/%d", r.MatchedCount(), len(r.Entries))
	fmt.Fprintf(&info, "\n%s: %d   Already present: %d   %s: %d", added, r.Added, r.AlreadyPresent, removed, r.Removed)

	var failures string
	if n := len(r.FailedMutations); n > 0 {
		failures = "\n" + styles.warn.Render(fmt.Sprintf("%d batches failed; see the report for track IDs", n))
	}

	var unmatched string
	if len(r.Unmatched) > 0 {
		unmatched = "\n\n" + m.unmatched.View()
	}

	return fmt.Sprintf("%s\n%s%s%s\n\n%s\n", title, styles.box.Render(info.String()), failures, unmatched, helpView)
}
