// Package ui provides a terminal dashboard for watching taskrota.
// Uses Bubbletea for the interactive display of the schedule, today's tasks
// and recent batches.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/taskrota/internal/scheduler"
	"github.com/marcus/taskrota/internal/state"
	"github.com/marcus/taskrota/internal/tasks"
)

// Panel represents which panel is currently focused.
type Panel int

const (
	PanelStatus Panel = iota
	PanelTasks
	PanelRuns
)

const panelCount = 3

// DaemonStatus represents the daemon's current state.
type DaemonStatus int

const (
	StatusStopped DaemonStatus = iota
	StatusRunning
)

func (s DaemonStatus) String() string {
	switch s {
	case StatusStopped:
		return "Stopped"
	case StatusRunning:
		return "Running"
	default:
		return "Unknown"
	}
}

// TaskItem is one row of the task panel.
type TaskItem struct {
	ID       string
	Title    string
	Assignee string // display name, empty when unassigned
	Category tasks.Category
	Status   tasks.Status
	Overdue  bool
}

// Snapshot is everything the dashboard shows, loaded in one refresh.
type Snapshot struct {
	Daemon    DaemonStatus
	DaemonPID int
	Schedule  scheduler.ScheduleConfig
	NextRun   time.Time // zero when the schedule is disabled
	Strategy  string
	Timezone  string
	Today     state.TodaySummary
	Tasks     []TaskItem
	Runs      []state.RunRecord
	LoadedAt  time.Time
}

// Loader produces a fresh Snapshot.
type Loader func(ctx context.Context) (Snapshot, error)

// DefaultRefresh is how often the dashboard reloads its data.
const DefaultRefresh = 5 * time.Second

// Model holds the TUI state.
type Model struct {
	// Display state
	width       int
	height      int
	activePanel Panel
	quitting    bool

	// Data
	load    Loader
	refresh time.Duration
	snap    Snapshot
	err     error
	loading bool

	// Task list
	taskScroll   int
	selectedTask int

	// Batch list
	runScroll int

	// Spinner
	progressTick int

	// Styles
	styles *Styles
}

// Styles holds lipgloss styles for the UI.
type Styles struct {
	// Panel borders
	ActiveBorder   lipgloss.Style
	InactiveBorder lipgloss.Style

	// Text styles
	Title     lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Highlight lipgloss.Style
	Muted     lipgloss.Style

	// Status indicators
	StatusOK      lipgloss.Style
	StatusWarn    lipgloss.Style
	StatusError   lipgloss.Style
	StatusRunning lipgloss.Style

	// Task list
	TaskSelected lipgloss.Style

	// Help bar
	HelpKey  lipgloss.Style
	HelpText lipgloss.Style
}

// newStyles creates the default style set.
func newStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green := lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#b08800", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}
	blue := lipgloss.AdaptiveColor{Light: "#0366d6", Dark: "#58a6ff"}

	return &Styles{
		ActiveBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight),

		InactiveBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			MarginBottom(1),

		Label: lipgloss.NewStyle().
			Foreground(subtle),

		Value: lipgloss.NewStyle().
			Bold(true),

		Highlight: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(subtle),

		StatusOK: lipgloss.NewStyle().
			Foreground(green).
			Bold(true),

		StatusWarn: lipgloss.NewStyle().
			Foreground(yellow).
			Bold(true),

		StatusError: lipgloss.NewStyle().
			Foreground(red).
			Bold(true),

		StatusRunning: lipgloss.NewStyle().
			Foreground(blue).
			Bold(true),

		TaskSelected: lipgloss.NewStyle().
			Background(highlight).
			Foreground(lipgloss.Color("#fff")).
			Bold(true),

		HelpKey: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		HelpText: lipgloss.NewStyle().
			Foreground(subtle),
	}
}

// tickMsg is sent every second to animate and schedule refreshes.
type tickMsg time.Time

// snapshotMsg carries the result of a Loader call.
type snapshotMsg struct {
	snap Snapshot
	err  error
}

// New creates a dashboard model. refresh <= 0 uses DefaultRefresh.
func New(load Loader, refresh time.Duration) *Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return &Model{
		width:       80,
		height:      24,
		activePanel: PanelStatus,
		load:        load,
		refresh:     refresh,
		loading:     true,
		styles:      newStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.loadCmd())
}

// tickCmd returns a command that ticks every second.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// loadCmd runs the loader off the update loop.
func (m Model) loadCmd() tea.Cmd {
	load := m.load
	if load == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		snap, err := load(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.progressTick++
		cmds := []tea.Cmd{tickCmd()}
		if !m.loading && m.progressTick%m.refreshTicks() == 0 {
			m.loading = true
			cmds = append(cmds, m.loadCmd())
		}
		return m, tea.Batch(cmds...)

	case snapshotMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
			m.clampSelection()
		}
		return m, nil
	}

	return m, nil
}

// refreshTicks is the refresh interval in whole ticks.
func (m Model) refreshTicks() int {
	n := int(m.refresh / time.Second)
	if n < 1 {
		n = 1
	}
	return n
}

// clampSelection keeps cursors inside the current data.
func (m *Model) clampSelection() {
	if m.selectedTask >= len(m.snap.Tasks) {
		m.selectedTask = max(len(m.snap.Tasks)-1, 0)
	}
	if m.runScroll >= len(m.snap.Runs) {
		m.runScroll = max(len(m.snap.Runs)-1, 0)
	}
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "right", "l":
		m.activePanel = (m.activePanel + 1) % panelCount
		return m, nil

	case "shift+tab", "left", "h":
		m.activePanel = (m.activePanel + panelCount - 1) % panelCount
		return m, nil

	case "r":
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.loadCmd()

	case "up", "k":
		return m.handleUp(), nil

	case "down", "j":
		return m.handleDown(), nil

	case "home", "g":
		return m.handleHome(), nil

	case "end", "G":
		return m.handleEnd(), nil
	}

	return m, nil
}

// handleUp handles up arrow / k key.
func (m Model) handleUp() Model {
	switch m.activePanel {
	case PanelTasks:
		if m.selectedTask > 0 {
			m.selectedTask--
		}
	case PanelRuns:
		if m.runScroll > 0 {
			m.runScroll--
		}
	}
	return m
}

// handleDown handles down arrow / j key.
func (m Model) handleDown() Model {
	switch m.activePanel {
	case PanelTasks:
		if m.selectedTask < len(m.snap.Tasks)-1 {
			m.selectedTask++
		}
	case PanelRuns:
		if m.runScroll < len(m.snap.Runs)-1 {
			m.runScroll++
		}
	}
	return m
}

// handleHome handles home / g key.
func (m Model) handleHome() Model {
	switch m.activePanel {
	case PanelTasks:
		m.selectedTask = 0
	case PanelRuns:
		m.runScroll = 0
	}
	return m
}

// handleEnd handles end / G key.
func (m Model) handleEnd() Model {
	switch m.activePanel {
	case PanelTasks:
		if len(m.snap.Tasks) > 0 {
			m.selectedTask = len(m.snap.Tasks) - 1
		}
	case PanelRuns:
		if len(m.snap.Runs) > 0 {
			m.runScroll = len(m.snap.Runs) - 1
		}
	}
	return m
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	// Calculate panel dimensions
	topHeight := m.height / 2
	bottomHeight := m.height - topHeight - 3 // -3 for help bar and padding
	leftWidth := m.width / 2
	rightWidth := m.width - leftWidth

	statusPanel := m.renderStatusPanel(leftWidth-2, topHeight-2)
	taskPanel := m.renderTaskPanel(rightWidth-2, topHeight-2)
	runPanel := m.renderRunPanel(m.width-2, bottomHeight-2)

	statusBorder := m.getBorder(PanelStatus).Width(leftWidth - 2).Height(topHeight - 2)
	taskBorder := m.getBorder(PanelTasks).Width(rightWidth - 2).Height(topHeight - 2)
	runBorder := m.getBorder(PanelRuns).Width(m.width - 2).Height(bottomHeight - 2)

	topRow := lipgloss.JoinHorizontal(
		lipgloss.Top,
		statusBorder.Render(statusPanel),
		taskBorder.Render(taskPanel),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		topRow,
		runBorder.Render(runPanel),
		m.renderHelpBar(),
	)
}

// getBorder returns the appropriate border style for a panel.
func (m Model) getBorder(panel Panel) lipgloss.Style {
	if m.activePanel == panel {
		return m.styles.ActiveBorder
	}
	return m.styles.InactiveBorder
}

// renderStatusPanel renders the daemon, schedule and today's counts.
func (m Model) renderStatusPanel(width, height int) string {
	var b strings.Builder
	s := m.snap

	b.WriteString(m.styles.Title.Render("Taskrota Status"))
	b.WriteString("\n\n")

	b.WriteString(m.styles.Label.Render("Daemon: "))
	if s.Daemon == StatusRunning {
		b.WriteString(m.styles.StatusOK.Render(fmt.Sprintf("Running (pid %d)", s.DaemonPID)))
	} else {
		b.WriteString(m.styles.StatusError.Render("Stopped"))
	}
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Schedule: "))
	if s.Schedule.Enabled {
		b.WriteString(m.styles.Value.Render(fmt.Sprintf("daily at %s %s", s.Schedule.TimeOfDay, s.Timezone)))
	} else {
		b.WriteString(m.styles.Muted.Render("disabled"))
	}
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Next run: "))
	if !s.NextRun.IsZero() && !s.LoadedAt.IsZero() {
		until := s.NextRun.Sub(s.LoadedAt)
		if until <= 0 {
			b.WriteString(m.styles.StatusRunning.Render(m.spinner() + " due now"))
		} else {
			b.WriteString(m.styles.Value.Render("in " + formatDuration(until)))
		}
	} else {
		b.WriteString(m.styles.Muted.Render("-"))
	}
	b.WriteString("\n")

	b.WriteString(m.styles.Label.Render("Last scheduled: "))
	if s.Schedule.LastRunDate != "" {
		b.WriteString(m.styles.Value.Render(s.Schedule.LastRunDate))
	} else {
		b.WriteString(m.styles.Muted.Render("Never"))
	}
	b.WriteString("\n")

	if s.Strategy != "" {
		b.WriteString(m.styles.Label.Render("Strategy: "))
		b.WriteString(m.styles.Value.Render(s.Strategy))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	t := s.Today
	b.WriteString(m.styles.Label.Render("Batches today: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d (%d scheduled)", t.TotalRuns, t.ScheduledRuns)))
	b.WriteString("\n")
	if t.PartialRuns+t.FailedRuns > 0 {
		b.WriteString(m.styles.StatusWarn.Render(fmt.Sprintf("  %d partial, %d failed", t.PartialRuns, t.FailedRuns)))
		b.WriteString("\n")
	}
	b.WriteString(m.styles.Label.Render("Created today: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d tasks, %d assigned", t.TasksCreated, t.TasksAssigned)))
	b.WriteString("\n\n")

	b.WriteString(m.renderProgressBar(completedPct(s.Tasks), width-4))

	if m.err != nil {
		b.WriteString("\n\n")
		b.WriteString(m.styles.StatusError.Render("refresh failed: " + m.err.Error()))
	}

	return b.String()
}

// completedPct is the share of items that are completed.
func completedPct(items []TaskItem) int {
	if len(items) == 0 {
		return 0
	}
	done := 0
	for _, it := range items {
		if it.Status == tasks.StatusCompleted {
			done++
		}
	}
	return done * 100 / len(items)
}

// renderProgressBar renders today's completion bar.
func (m Model) renderProgressBar(pct, width int) string {
	if width < 10 {
		width = 10
	}

	filled := width * pct / 100
	if filled > width {
		filled = width
	}

	bar := strings.Repeat("=", filled) + strings.Repeat("-", width-filled)

	// low completion late in the day is the thing to notice
	style := m.styles.StatusOK
	if pct < 50 {
		style = m.styles.StatusWarn
	}

	return "[" + style.Render(bar) + "]"
}

// renderTaskPanel renders today's tasks.
func (m Model) renderTaskPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Due Today"))
	b.WriteString("\n\n")

	items := m.snap.Tasks
	if len(items) == 0 {
		if m.loading {
			b.WriteString(m.styles.Muted.Render("Loading..."))
		} else {
			b.WriteString(m.styles.Muted.Render("No tasks due today"))
		}
		return b.String()
	}

	visibleTasks := height - 4 // Account for title and padding
	if visibleTasks < 1 {
		visibleTasks = 1
	}

	// Adjust scroll if selected task is out of view
	if m.selectedTask < m.taskScroll {
		m.taskScroll = m.selectedTask
	} else if m.selectedTask >= m.taskScroll+visibleTasks {
		m.taskScroll = m.selectedTask - visibleTasks + 1
	}

	for i := m.taskScroll; i < len(items) && i < m.taskScroll+visibleTasks; i++ {
		task := items[i]

		var statusIcon string
		var statusStyle lipgloss.Style
		switch {
		case task.Status == tasks.StatusCompleted:
			statusIcon = "*"
			statusStyle = m.styles.StatusOK
		case task.Overdue:
			statusIcon = "!"
			statusStyle = m.styles.StatusError
		case task.Status == tasks.StatusInProgress:
			statusIcon = m.spinner()
			statusStyle = m.styles.StatusRunning
		default:
			statusIcon = "o"
			statusStyle = m.styles.Muted
		}

		assignee := task.Assignee
		if assignee == "" {
			assignee = "unassigned"
		}
		name := truncate(task.Title, width-len(assignee)-8)
		line := fmt.Sprintf(" %s %s", statusStyle.Render(statusIcon), name)

		if i == m.selectedTask && m.activePanel == PanelTasks {
			line = m.styles.TaskSelected.Render(line)
		}
		line += m.styles.Muted.Render(" (" + assignee + ")")

		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(items) > visibleTasks {
		scrollInfo := fmt.Sprintf(" [%d/%d]", m.selectedTask+1, len(items))
		b.WriteString(m.styles.Muted.Render(scrollInfo))
	}

	return b.String()
}

// spinner returns a spinner character based on the current tick.
func (m Model) spinner() string {
	frames := []string{"|", "/", "-", "\\"}
	return frames[m.progressTick%len(frames)]
}

// renderRunPanel renders recent batches, most recent first.
func (m Model) renderRunPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Recent Batches"))
	b.WriteString("\n\n")

	runs := m.snap.Runs
	if len(runs) == 0 {
		b.WriteString(m.styles.Muted.Render("No batches yet"))
		return b.String()
	}

	visibleRuns := height - 4
	if visibleRuns < 1 {
		visibleRuns = 1
	}

	start := m.runScroll
	if start+visibleRuns > len(runs) {
		start = len(runs) - visibleRuns
		if start < 0 {
			start = 0
		}
	}

	loc := m.snap.LoadedAt.Location()
	for i := start; i < len(runs) && i < start+visibleRuns; i++ {
		run := runs[i]

		var statusStyle lipgloss.Style
		switch run.Status {
		case state.StatusSuccess:
			statusStyle = m.styles.StatusOK
		case state.StatusPartial:
			statusStyle = m.styles.StatusWarn
		case state.StatusFailed:
			statusStyle = m.styles.StatusError
		default:
			statusStyle = m.styles.Muted
		}

		msg := fmt.Sprintf("%-9s %-13s %d created, %d assigned",
			run.Source, run.Strategy, run.TasksCreated, run.TasksAssigned)
		if run.Error != "" {
			msg += ": " + run.Error
		}
		msg = truncate(msg, width-30)

		line := fmt.Sprintf("%s %s %s",
			m.styles.Muted.Render(run.StartTime.In(loc).Format("Jan 02 15:04")),
			statusStyle.Render(fmt.Sprintf("[%-7s]", run.Status)),
			msg,
		)

		b.WriteString(line)
		b.WriteString("\n")
	}

	if len(runs) > visibleRuns {
		scrollInfo := fmt.Sprintf(" [%d/%d]", m.runScroll+1, len(runs))
		b.WriteString(m.styles.Muted.Render(scrollInfo))
	}

	return b.String()
}

// renderHelpBar renders the help bar at the bottom.
func (m Model) renderHelpBar() string {
	helpItems := []struct {
		key  string
		desc string
	}{
		{"tab", "switch panel"},
		{"j/k", "up/down"},
		{"r", "refresh"},
		{"q", "quit"},
	}

	var parts []string
	for _, item := range helpItems {
		parts = append(parts, fmt.Sprintf("%s %s",
			m.styles.HelpKey.Render(item.key),
			m.styles.HelpText.Render(item.desc),
		))
	}

	return "  " + strings.Join(parts, "  |  ")
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// Run starts the dashboard and blocks until the user quits or ctx ends.
func (m *Model) Run(ctx context.Context) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
