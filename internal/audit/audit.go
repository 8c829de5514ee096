// Package audit keeps an append-only log of every change taskrota makes to
// tasks, users and settings. Entries are JSON lines in one file per day.
package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/taskrota/internal/assign"
	"github.com/marcus/taskrota/internal/roster"
	"github.com/marcus/taskrota/internal/scheduler"
	"github.com/marcus/taskrota/internal/tasks"
)

// EventType categorizes audit events.
type EventType string

const (
	EventBatchRun         EventType = "batch_run"
	EventTaskCreate       EventType = "task_create"
	EventTaskAssign       EventType = "task_assign"
	EventTaskStatus       EventType = "task_status"
	EventUserAdd          EventType = "user_add"
	EventUserRemove       EventType = "user_remove"
	EventScheduleChange   EventType = "schedule_change"
	EventAutoAssignChange EventType = "auto_assign_change"
)

// Event is a single audit log entry.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"event_type"`
	Actor     string            `json:"actor,omitempty"`
	TaskID    string            `json:"task_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Action    string            `json:"action,omitempty"`
	Result    string            `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	RequestID string            `json:"request_id"`
	SessionID string            `json:"session_id"`
}

// Logger appends events to the current day's file.
type Logger struct {
	dir       string
	actor     string
	sessionID string
	now       func() time.Time

	mu   sync.Mutex
	file *os.File
	day  string
}

// DefaultDir returns the default audit directory.
func DefaultDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "taskrota", "audit")
}

// NewLogger opens the audit log in dir. An empty dir uses DefaultDir.
func NewLogger(dir string) (*Logger, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	// restricted: entries name users and their work
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit log dir: %w", err)
	}

	l := &Logger{
		dir:       dir,
		actor:     currentActor(),
		sessionID: "sess-" + uuid.NewString(),
		now:       time.Now,
	}
	if err := l.rotate(); err != nil {
		return nil, err
	}
	return l, nil
}

func currentActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

func fileName(day string) string {
	return "audit-" + day + ".jsonl"
}

// rotate switches to today's file when the day has changed. Callers hold mu
// or own l exclusively.
func (l *Logger) rotate() error {
	day := l.now().Format("2006-01-02")
	if l.file != nil && l.day == day {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(l.dir, fileName(day)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	if l.file != nil {
		_ = l.file.Close()
	}
	l.file = f
	l.day = day
	return nil
}

// Log writes ev. A nil Logger discards it.
func (l *Logger) Log(ev Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotate(); err != nil {
		return err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	if ev.Actor == "" {
		ev.Actor = l.actor
	}
	if ev.RequestID == "" {
		ev.RequestID = uuid.NewString()
	}
	ev.SessionID = l.sessionID

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	data = append(data, '\n')
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("syncing audit log: %w", err)
	}
	return nil
}

// LogBatch records one assignment batch.
func (l *Logger) LogBatch(source string, res assign.Result, runErr error) error {
	ev := Event{
		Type:   EventBatchRun,
		Action: source,
		Result: "success",
		Metadata: map[string]string{
			"strategy":       string(res.Strategy),
			"tasks_created":  fmt.Sprint(res.TasksCreated),
			"tasks_assigned": fmt.Sprint(res.TasksAssigned),
			"existing_today": fmt.Sprint(res.ExistingToday),
		},
	}
	switch {
	case runErr != nil:
		ev.Result = "failed"
		ev.Error = runErr.Error()
	case len(res.Failures) > 0:
		ev.Result = "partial"
		ev.Error = res.Err().Error()
	}
	return l.Log(ev)
}

// LogTaskCreate records a task created outside a batch.
func (l *Logger) LogTaskCreate(inst tasks.Instance) error {
	meta := map[string]string{"title": inst.Title, "category": string(inst.Category)}
	if inst.TemplateID != "" {
		meta["template_id"] = inst.TemplateID
	}
	return l.Log(Event{Type: EventTaskCreate, TaskID: inst.ID, UserID: inst.AssignedTo, Action: "create", Metadata: meta})
}

// LogTaskAssign records an assignment change. An empty userID means unassigned.
func (l *Logger) LogTaskAssign(taskID, userID string) error {
	action := "assign"
	if userID == "" {
		action = "unassign"
	}
	return l.Log(Event{Type: EventTaskAssign, TaskID: taskID, UserID: userID, Action: action})
}

// LogTaskStatus records a status change.
func (l *Logger) LogTaskStatus(taskID string, status tasks.Status) error {
	return l.Log(Event{Type: EventTaskStatus, TaskID: taskID, Action: string(status)})
}

// LogUserAdd records a new roster member.
func (l *Logger) LogUserAdd(u roster.User) error {
	return l.Log(Event{Type: EventUserAdd, UserID: u.ID, Action: "add", Metadata: map[string]string{"name": u.Name, "role": string(u.Role)}})
}

// LogUserRemove records a removed roster member.
func (l *Logger) LogUserRemove(userID string) error {
	return l.Log(Event{Type: EventUserRemove, UserID: userID, Action: "remove"})
}

// LogScheduleChange records a new schedule.
func (l *Logger) LogScheduleChange(cfg scheduler.ScheduleConfig) error {
	return l.Log(Event{Type: EventScheduleChange, Action: "set", Metadata: map[string]string{
		"enabled": fmt.Sprint(cfg.Enabled),
		"time":    cfg.TimeOfDay,
	}})
}

// LogAutoAssignChange records new auto-assign settings.
func (l *Logger) LogAutoAssignChange(cfg assign.Config) error {
	return l.Log(Event{Type: EventAutoAssignChange, Action: "set", Metadata: map[string]string{
		"strategy":            string(cfg.Strategy),
		"include_unassigned":  fmt.Sprint(cfg.IncludeUnassigned),
		"assign_to_all_users": fmt.Sprint(cfg.AssignToAllUsers),
		"skip_existing":       fmt.Sprint(cfg.SkipExisting),
	}})
}

// Close closes the current file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Files returns every audit file in dir, oldest first.
func Files(dir string) ([]string, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	matches, err := filepath.Glob(filepath.Join(dir, "audit-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("listing audit logs: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// ReadDay reads the events logged on day (YYYY-MM-DD). A day without a file
// has no events.
func ReadDay(dir, day string) ([]Event, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	events, err := ReadEvents(filepath.Join(dir, fileName(day)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	return events, err
}

// ReadEvents reads every event in one audit file. Malformed lines are skipped.
func ReadEvents(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("reading audit log: %w", err)
	}
	return events, nil
}
