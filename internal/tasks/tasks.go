// Package tasks defines task templates, task instances, the template catalog
// and the SQLite-backed task store.
package tasks

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category groups templates by how often they recur.
type Category string

const (
	CategoryDaily   Category = "daily"
	CategoryWeekly  Category = "weekly"
	CategoryMonthly Category = "monthly"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryDaily, CategoryWeekly, CategoryMonthly}

// Status is the lifecycle state of a task instance.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

var (
	// ErrNotFound is returned when a task or template does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidCategory is returned for an unknown category name.
	ErrInvalidCategory = errors.New("invalid category")
	// ErrInvalidStatus is returned for an unknown status name.
	ErrInvalidStatus = errors.New("invalid status")
)

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryDaily, CategoryWeekly, CategoryMonthly:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q (use daily, weekly, monthly)", ErrInvalidCategory, s)
}

// ParseStatus validates a status name. "in_progress" is accepted as an alias.
func ParseStatus(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "in_progress" {
		v = string(StatusInProgress)
	}
	switch st := Status(v); st {
	case StatusPending, StatusInProgress, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q (use pending, in-progress, completed)", ErrInvalidStatus, s)
}

// TaskDefinition is a reusable template for a recurring task.
type TaskDefinition struct {
	ID               string   `yaml:"id" json:"id"`
	Title            string   `yaml:"title" json:"title"`
	Description      string   `yaml:"description" json:"description"`
	Category         Category `yaml:"category" json:"category"`
	EstimatedMinutes int      `yaml:"estimated_minutes" json:"estimated_minutes"`
}

// Instance is a concrete, assignable unit of work.
// AssignedTo is empty for unassigned instances.
type Instance struct {
	ID               string     `json:"id"`
	TemplateID       string     `json:"template_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Category         Category   `json:"category"`
	EstimatedMinutes int        `json:"estimated_minutes"`
	DueDate          time.Time  `json:"due_date"`
	Status           Status     `json:"status"`
	AssignedTo       string     `json:"assigned_to,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ActualMinutes    *int       `json:"actual_minutes,omitempty"`
}

// IsAssigned reports whether the instance has an assignee.
func (i Instance) IsAssigned() bool {
	return i.AssignedTo != ""
}

// FromDefinition builds a pending instance from a template. ID and CreatedAt
// are filled in by the store.
func FromDefinition(def TaskDefinition, due time.Time, assignee string) Instance {
	return Instance{
		TemplateID:       def.ID,
		Title:            def.Title,
		Description:      def.Description,
		Category:         def.Category,
		EstimatedMinutes: def.EstimatedMinutes,
		DueDate:          due,
		Status:           StatusPending,
		AssignedTo:       assignee,
	}
}
