// Package reporting writes per-batch assignment reports as markdown and JSON
// and summarizes the reports written for a day.
package reporting

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/marcus/taskrota/internal/logging"
)

// Writer saves batch reports into a directory.
type Writer struct {
	dir     string
	logPath string
	logger  *logging.Logger
}

// NewWriter creates a writer for dir. An empty dir uses DefaultReportsDir.
// logPath is referenced from every markdown report when set.
func NewWriter(dir, logPath string) *Writer {
	if dir == "" {
		dir = DefaultReportsDir()
	}
	return &Writer{
		dir:     expandPath(dir),
		logPath: logPath,
		logger:  logging.Component("reporting"),
	}
}

// Dir returns the report directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write saves results as JSON and markdown and returns the markdown path.
func (w *Writer) Write(results *RunResults) (string, error) {
	if results == nil {
		return "", fmt.Errorf("results cannot be nil")
	}
	ts := results.StartTime
	if ts.IsZero() {
		ts = time.Now()
	}
	if err := SaveRunResults(results, RunResultsPath(w.dir, ts)); err != nil {
		return "", err
	}
	mdPath := RunReportPath(w.dir, ts)
	if err := SaveRunReport(results, mdPath, w.logPath); err != nil {
		return "", err
	}
	w.logger.InfoCtx("report saved", map[string]any{"path": mdPath})
	return mdPath, nil
}

// LoadDay reads every JSON result saved for date (YYYY-MM-DD), oldest first.
// Unreadable files are skipped with a warning.
func (w *Writer) LoadDay(date string) ([]*RunResults, error) {
	matches, err := filepath.Glob(filepath.Join(w.dir, "assign-"+date+"-*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	sort.Strings(matches)

	var out []*RunResults
	for _, path := range matches {
		res, err := LoadRunResults(path)
		if err != nil {
			w.logger.Warnf("skipping report %s: %v", path, err)
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// Summary aggregates the batches of one day.
type Summary struct {
	Date          string
	Batches       int
	TasksCreated  int
	TasksAssigned int
	Failed        int
	PerAssignee   map[string]int // display name (or ID) -> tasks assigned
	Content       string         // markdown
}

// Summarize aggregates results for date and renders them as markdown.
func Summarize(date string, results []*RunResults) *Summary {
	s := &Summary{Date: date, PerAssignee: make(map[string]int)}
	for _, r := range results {
		s.Batches++
		s.TasksCreated += r.TasksCreated
		s.TasksAssigned += r.TasksAssigned
		for _, task := range r.Tasks {
			if task.Status == TaskFailed {
				s.Failed++
				continue
			}
			if task.AssignedTo == "" {
				continue
			}
			who := task.Assignee
			if who == "" {
				who = task.AssignedTo
			}
			s.PerAssignee[who]++
		}
	}
	s.Content = renderSummary(s, results)
	return s
}

func renderSummary(s *Summary, results []*RunResults) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Assignment Summary - %s\n\n", s.Date)

	if s.Batches == 0 {
		buf.WriteString("No assignment batches ran.\n")
		return buf.String()
	}

	buf.WriteString("## Totals\n")
	fmt.Fprintf(&buf, "- Batches: %d\n", s.Batches)
	fmt.Fprintf(&buf, "- Tasks: %d created, %d assigned, %d failed\n\n", s.TasksCreated, s.TasksAssigned, s.Failed)

	if len(s.PerAssignee) > 0 {
		buf.WriteString("## By Assignee\n")
		names := make([]string, 0, len(s.PerAssignee))
		for name := range s.PerAssignee {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&buf, "- %s: %d\n", name, s.PerAssignee[name])
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Batches\n")
	for _, r := range results {
		line := fmt.Sprintf("- %s %s (%s): %d created, %d assigned",
			r.StartTime.Format("15:04"), r.Source, r.Strategy, r.TasksCreated, r.TasksAssigned)
		if r.Error != "" {
			line += ", error: " + r.Error
		}
		buf.WriteString(line + "\n")
	}
	return buf.String()
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
