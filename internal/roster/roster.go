// Package roster stores users and answers which of them are eligible for
// automatic task assignment.
package roster

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

// Role decides whether a user can receive auto-assigned tasks.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user" // regular assignee
)

var (
	// ErrNotFound is returned when a user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrInvalidRole is returned for an unknown role name.
	ErrInvalidRole = errors.New("invalid role")
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleUser:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q (use admin, user)", ErrInvalidRole, s)
}

// User is a member of the roster.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Title     string    `json:"title,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Roster is the SQLite-backed user list.
type Roster struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a roster over an open database.
func New(database *db.DB) (*Roster, error) {
	if database == nil || database.SQL() == nil {
		return nil, errors.New("roster: db is nil")
	}
	return &Roster{db: database.SQL(), now: time.Now}, nil
}

// Add inserts a user and returns it with ID and creation time set.
// Title defaults to "Staff".
func (r *Roster) Add(ctx context.Context, u User) (User, error) {
	u.Name = strings.TrimSpace(u.Name)
	if u.Name == "" {
		return User{}, errors.New("add user: name is required")
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	role, err := ParseRole(string(u.Role))
	if err != nil {
		return User{}, fmt.Errorf("add user: %w", err)
	}
	u.Role = role
	if u.Title == "" {
		u.Title = "Staff"
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.CreatedAt = r.now()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, role, title, email, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, string(u.Role), u.Title, u.Email, db.FormatTime(u.CreatedAt))
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Eligible returns the users who may receive auto-assigned tasks, in a stable
// order (creation time, then ID). The result is read fresh on every call.
func (r *Roster) Eligible(ctx context.Context) ([]User, error) {
	return r.query(ctx, `WHERE role = ?`, string(RoleUser))
}

// List returns every user in roster order.
func (r *Roster) List(ctx context.Context) ([]User, error) {
	return r.query(ctx, "")
}

// Get returns one user by ID.
func (r *Roster) Get(ctx context.Context, id string) (User, error) {
	users, err := r.query(ctx, `WHERE id = ?`, id)
	if err != nil {
		return User{}, err
	}
	if len(users) == 0 {
		return User{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return users[0], nil
}

// Remove deletes a user. Existing task assignments are left untouched.
func (r *Roster) Remove(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (r *Roster) query(ctx context.Context, where string, args ...any) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, role, title, email, created_at FROM users `+where+` ORDER BY created_at, id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var (
			u         User
			role      string
			createdAt string
		)
		if err := rows.Scan(&u.ID, &u.Name, &role, &u.Title, &u.Email, &createdAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = Role(role)
		if u.CreatedAt, err = db.ParseTime(createdAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}
