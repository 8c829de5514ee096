package reporting

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunReportPath returns the markdown report path for a batch started at ts.
func RunReportPath(dir string, ts time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("assign-%s.md", ts.Format("2006-01-02-150405")))
}

// RenderRunReport renders a markdown report for a single batch.
func RenderRunReport(results *RunResults, logPath string) (string, error) {
	if results == nil {
		return "", fmt.Errorf("results cannot be nil")
	}

	var assigned, unassigned, failed []TaskResult
	for _, task := range results.Tasks {
		switch {
		case task.Status == TaskFailed:
			failed = append(failed, task)
		case task.AssignedTo != "":
			assigned = append(assigned, task)
		default:
			unassigned = append(unassigned, task)
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Daily Assignment - %s\n\n", results.StartTime.Format("2006-01-02 15:04"))

	buf.WriteString("## Summary\n")
	fmt.Fprintf(&buf, "- Trigger: %s\n", results.Source)
	fmt.Fprintf(&buf, "- Strategy: %s\n", results.Strategy)
	fmt.Fprintf(&buf, "- Duration: %s\n", formatDuration(results.EndTime.Sub(results.StartTime)))
	fmt.Fprintf(&buf, "- Tasks: %d created, %d assigned, %d failed\n",
		results.TasksCreated, results.TasksAssigned, len(failed))
	if results.ExistingToday > 0 {
		fmt.Fprintf(&buf, "- Already existing today: %d\n", results.ExistingToday)
	}
	if results.Error != "" {
		fmt.Fprintf(&buf, "- Error: %s\n", results.Error)
	}
	if logPath != "" {
		fmt.Fprintf(&buf, "- Logs: %s\n", logPath)
	}
	buf.WriteString("\n")

	writeTaskSection(&buf, "Assigned", assigned)
	writeTaskSection(&buf, "Unassigned", unassigned)
	writeTaskSection(&buf, "Failed", failed)

	return buf.String(), nil
}

// SaveRunReport writes a batch report to disk.
func SaveRunReport(results *RunResults, path string, logPath string) error {
	content, err := RenderRunReport(results, logPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating report dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func writeTaskSection(buf *bytes.Buffer, title string, tasks []TaskResult) {
	if len(tasks) == 0 {
		return
	}
	buf.WriteString("## " + title + "\n")
	for _, task := range tasks {
		line := "- " + task.Title
		if who := task.Assignee; who != "" {
			line += " -> " + who
		} else if task.AssignedTo != "" {
			line += " -> " + task.AssignedTo
		}
		if task.Error != "" {
			line += ": " + task.Error
		}
		buf.WriteString(line + "\n")
	}
	buf.WriteString("\n")
}
