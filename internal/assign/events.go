package assign

import "time"

// EventType classifies batch progress events.
type EventType int

const (
	EventBatchStart  EventType = iota // planning done, creates begin
	EventTaskCreated                  // one instance stored
	EventWriteFailed                  // the store refused one instance
	EventBatchEnd                     // all creates attempted
)

// Event carries batch progress. Fields not relevant to Type are zero.
type Event struct {
	Type     EventType
	Time     time.Time
	TaskID   string
	Title    string
	UserID   string // empty for unassigned instances
	Err      error
	Planned  int // EventBatchStart
	Created  int // EventBatchEnd
	Assigned int // EventBatchEnd
	Failed   int // EventBatchEnd
}

// EventHandler receives batch progress events synchronously.
type EventHandler func(Event)
