package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/taskrota/internal/assign"
	"github.com/marcus/taskrota/internal/tasks"
)

// styles holds lipgloss styles for colored command output.
type styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Warn    lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Accent  lipgloss.Style
}

func newStyles() styles {
	return styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Success: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		Accent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
	}
}

func (s styles) kv(w io.Writer, label string, value any) {
	_, _ = fmt.Fprintf(w, "  %s %s\n", s.Label.Render(fmt.Sprintf("%-16s", label+":")), s.Value.Render(fmt.Sprint(value)))
}

// liveRenderer prints engine events as they happen. Events arrive
// synchronously from the batch goroutine.
type liveRenderer struct {
	w      io.Writer
	styles styles
	names  map[string]string
}

func newLiveRenderer(w io.Writer, names map[string]string) *liveRenderer {
	return &liveRenderer{w: w, styles: newStyles(), names: names}
}

// HandleEvent implements assign.EventHandler.
func (r *liveRenderer) HandleEvent(ev assign.Event) {
	switch ev.Type {
	case assign.EventBatchStart:
		_, _ = fmt.Fprintf(r.w, "%s %d task(s) planned\n", r.styles.Accent.Render("▶"), ev.Planned)
	case assign.EventTaskCreated:
		_, _ = fmt.Fprintf(r.w, "  %s %s %s\n", r.styles.Success.Render("+"), ev.Title, r.styles.Muted.Render("→ "+r.assignee(ev.UserID)))
	case assign.EventWriteFailed:
		_, _ = fmt.Fprintf(r.w, "  %s %s %s\n", r.styles.Error.Render("✗"), ev.Title, r.styles.Error.Render(ev.Err.Error()))
	case assign.EventBatchEnd:
		_, _ = fmt.Fprintln(r.w)
	}
}

func (r *liveRenderer) assignee(userID string) string {
	if userID == "" {
		return "unassigned"
	}
	if name, ok := r.names[userID]; ok && name != "" {
		return name
	}
	return userID
}

// printResult renders the summary of a finished batch.
func printResult(w io.Writer, res assign.Result, reportPath string) {
	s := newStyles()
	_, _ = fmt.Fprintln(w, s.Title.Render("Daily assignment"))
	s.kv(w, "Strategy", res.Strategy)
	s.kv(w, "Tasks created", res.TasksCreated)
	s.kv(w, "Tasks assigned", res.TasksAssigned)
	s.kv(w, "Unassigned", res.TasksCreated-res.TasksAssigned)
	if res.ExistingToday > 0 {
		s.kv(w, "Existing today", res.ExistingToday)
	}
	s.kv(w, "Duration", res.Duration().Round(time.Millisecond))
	if len(res.Failures) > 0 {
		_, _ = fmt.Fprintln(w, s.Warn.Render(fmt.Sprintf("  %d task(s) could not be stored:", len(res.Failures))))
		for _, f := range res.Failures {
			_, _ = fmt.Fprintf(w, "    %s\n", s.Error.Render(f.Error()))
		}
	}
	if reportPath != "" {
		s.kv(w, "Report", reportPath)
	}
}

// printPlan renders a dry run.
func printPlan(w io.Writer, plan assign.Plan, names map[string]string) {
	s := newStyles()
	_, _ = fmt.Fprintln(w, s.Title.Render("Assignment preview ("+plan.Date+")"))
	s.kv(w, "Strategy", plan.Config.Strategy)
	s.kv(w, "Eligible users", plan.Users)
	s.kv(w, "Daily templates", plan.Templates)
	s.kv(w, "Existing today", plan.ExistingToday)
	s.kv(w, "Would create", len(plan.Instances))
	s.kv(w, "Would assign", plan.Assigned())
	if len(plan.Instances) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w)
	r := newLiveRenderer(w, names)
	for _, inst := range plan.Instances {
		_, _ = fmt.Fprintf(w, "  %s %s\n", inst.Title, s.Muted.Render("→ "+r.assignee(inst.AssignedTo)))
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatDue renders a due date relative to now, in loc.
func formatDue(due, now time.Time, loc *time.Location) string {
	due = due.In(loc)
	label := due.Format("2006-01-02 15:04")
	switch {
	case due.Before(now):
		return label + " (overdue)"
	case tasks.DateString(due) == tasks.DateString(now.In(loc)):
		return label + " (today)"
	}
	return label
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-1]) + "…"
}
