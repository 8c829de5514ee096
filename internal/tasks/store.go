package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marcus/taskrota/internal/db"
)

// Store persists task instances in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// InLocation makes due-date filters ("today", "overdue") use loc's calendar.
func InLocation(loc *time.Location) StoreOption {
	return func(s *Store) {
		if loc != nil {
			s.now = func() time.Time { return time.Now().In(loc) }
		}
	}
}

// NewStore creates a store over an open database.
func NewStore(database *db.DB, opts ...StoreOption) (*Store, error) {
	if database == nil || database.SQL() == nil {
		return nil, errors.New("tasks: db is nil")
	}
	s := &Store{db: database.SQL(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

const instanceColumns = `id, template_id, title, description, category, estimated_minutes,
	due_date, status, assigned_to, created_at, completed_at, actual_minutes`

// Create inserts a new instance, assigning its ID and creation time.
// Every call is its own write; there is no batch transaction.
func (s *Store) Create(ctx context.Context, inst Instance) (Instance, error) {
	if strings.TrimSpace(inst.Title) == "" {
		return Instance{}, errors.New("create task: title is required")
	}
	if _, err := ParseCategory(string(inst.Category)); err != nil {
		return Instance{}, fmt.Errorf("create task: %w", err)
	}
	if inst.Status == "" {
		inst.Status = StatusPending
	}
	if _, err := ParseStatus(string(inst.Status)); err != nil {
		return Instance{}, fmt.Errorf("create task: %w", err)
	}

	inst.ID = uuid.NewString()
	inst.CreatedAt = s.now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+instanceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID,
		inst.TemplateID,
		inst.Title,
		inst.Description,
		string(inst.Category),
		inst.EstimatedMinutes,
		db.FormatTime(inst.DueDate),
		string(inst.Status),
		nullString(inst.AssignedTo),
		db.FormatTime(inst.CreatedAt),
		nullTime(inst.CompletedAt),
		nullInt(inst.ActualMinutes),
	)
	if err != nil {
		return Instance{}, fmt.Errorf("insert task: %w", err)
	}
	return inst, nil
}

// QueryByCategoryAndDate returns instances of the category whose due date falls
// on day's calendar date (in day's location), oldest first.
func (s *Store) QueryByCategoryAndDate(ctx context.Context, category Category, day time.Time) ([]Instance, error) {
	start, end := DayBounds(day)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM tasks
		 WHERE category = ? AND due_date >= ? AND due_date < ?
		 ORDER BY created_at, id`,
		string(category), db.FormatTime(start), db.FormatTime(end))
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	return scanInstances(rows)
}

// Get returns one instance by ID.
func (s *Store) Get(ctx context.Context, id string) (Instance, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+instanceColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil {
		return Instance{}, fmt.Errorf("query task: %w", err)
	}
	list, err := scanInstances(rows)
	if err != nil {
		return Instance{}, err
	}
	if len(list) == 0 {
		return Instance{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return list[0], nil
}

// List returns instances matching f, newest due date first.
func (s *Store) List(ctx context.Context, f Filter) ([]Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM tasks`
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY due_date DESC, created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	all, err := scanInstances(rows)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := all[:0]
	for _, inst := range all {
		if f.Match(inst, now) {
			out = append(out, inst)
		}
	}
	return out, nil
}

// Assign sets the assignee of an existing instance. An empty userID unassigns it.
func (s *Store) Assign(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET assigned_to = ? WHERE id = ?`, nullString(userID), id)
	if err != nil {
		return fmt.Errorf("assign task: %w", err)
	}
	return requireOneRow(res, id)
}

// SetStatus moves an instance to status. Completing records the completion
// time and, when given, the actual minutes spent; leaving completed clears both.
func (s *Store) SetStatus(ctx context.Context, id string, status Status, actualMinutes *int) error {
	if _, err := ParseStatus(string(status)); err != nil {
		return err
	}

	var (
		res sql.Result
		err error
	)
	if status == StatusCompleted {
		res, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, completed_at = ?, actual_minutes = COALESCE(?, actual_minutes) WHERE id = ?`,
			string(status), db.FormatTime(s.now()), nullInt(actualMinutes), id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, completed_at = NULL, actual_minutes = NULL WHERE id = ?`,
			string(status), id)
	}
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return requireOneRow(res, id)
}

func requireOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func scanInstances(rows *sql.Rows) ([]Instance, error) {
	defer func() { _ = rows.Close() }()

	var out []Instance
	for rows.Next() {
		var (
			inst               Instance
			category, status   string
			dueDate, createdAt string
			assignedTo         sql.NullString
			completedAt        sql.NullString
			actualMinutes      sql.NullInt64
		)
		if err := rows.Scan(
			&inst.ID, &inst.TemplateID, &inst.Title, &inst.Description, &category,
			&inst.EstimatedMinutes, &dueDate, &status, &assignedTo, &createdAt,
			&completedAt, &actualMinutes,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		inst.Category = Category(category)
		inst.Status = Status(status)
		inst.AssignedTo = assignedTo.String

		var err error
		if inst.DueDate, err = db.ParseTime(dueDate); err != nil {
			return nil, err
		}
		if inst.CreatedAt, err = db.ParseTime(createdAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t, err := db.ParseTime(completedAt.String)
			if err != nil {
				return nil, err
			}
			inst.CompletedAt = &t
		}
		if actualMinutes.Valid {
			m := int(actualMinutes.Int64)
			inst.ActualMinutes = &m
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: db.FormatTime(*t), Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
