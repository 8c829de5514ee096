package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marcus/taskrota/internal/assign"
)

// Task statuses within a batch report.
const (
	TaskCreated = "created"
	TaskFailed  = "failed"
)

// TaskResult is one instance the batch created or failed to create.
type TaskResult struct {
	TaskID     string `json:"task_id,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	Title      string `json:"title"`
	AssignedTo string `json:"assigned_to,omitempty"`
	Assignee   string `json:"assignee,omitempty"` // display name
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// RunResults holds everything known about one assignment batch.
type RunResults struct {
	Source            string       `json:"source"` // manual, scheduled
	Strategy          string       `json:"strategy"`
	Date              string       `json:"date"`
	StartTime         time.Time    `json:"start_time"`
	EndTime           time.Time    `json:"end_time"`
	TasksCreated      int          `json:"tasks_created"`
	TasksAssigned     int          `json:"tasks_assigned"`
	ExistingToday     int          `json:"existing_today"`
	NeedsConfirmation bool         `json:"needs_confirmation"`
	Error             string       `json:"error,omitempty"`
	Tasks             []TaskResult `json:"tasks"`
}

// FromResult converts an engine result. names maps user IDs to display names
// and may be nil.
func FromResult(source string, res assign.Result, runErr error, names map[string]string) *RunResults {
	out := &RunResults{
		Source:            source,
		Strategy:          string(res.Strategy),
		Date:              res.StartedAt.Format("2006-01-02"),
		StartTime:         res.StartedAt,
		EndTime:           res.FinishedAt,
		TasksCreated:      res.TasksCreated,
		TasksAssigned:     res.TasksAssigned,
		ExistingToday:     res.ExistingToday,
		NeedsConfirmation: res.NeedsConfirmation,
		Tasks:             make([]TaskResult, 0, len(res.Created)+len(res.Failures)),
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}
	for _, inst := range res.Created {
		out.Tasks = append(out.Tasks, TaskResult{
			TaskID:     inst.ID,
			TemplateID: inst.TemplateID,
			Title:      inst.Title,
			AssignedTo: inst.AssignedTo,
			Assignee:   names[inst.AssignedTo],
			Status:     TaskCreated,
		})
	}
	for _, f := range res.Failures {
		out.Tasks = append(out.Tasks, TaskResult{
			TemplateID: f.TemplateID,
			Title:      f.Title,
			AssignedTo: f.UserID,
			Assignee:   names[f.UserID],
			Status:     TaskFailed,
			Error:      f.Err.Error(),
		})
	}
	return out
}

// DefaultReportsDir returns the default directory for batch reports.
func DefaultReportsDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "taskrota", "reports")
}

// RunResultsPath returns the JSON results path for a batch started at ts.
func RunResultsPath(dir string, ts time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("assign-%s.json", ts.Format("2006-01-02-150405")))
}

// SaveRunResults writes structured batch results to disk as JSON.
func SaveRunResults(results *RunResults, path string) error {
	if results == nil {
		return fmt.Errorf("results cannot be nil")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}
	payload, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	if err := os.WriteFile(path, payload, 0644); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}
	return nil
}

// LoadRunResults reads structured batch results from disk.
func LoadRunResults(path string) (*RunResults, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	var results RunResults
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	return &results, nil
}
