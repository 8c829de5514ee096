package assign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marcus/taskrota/internal/roster"
	"github.com/marcus/taskrota/internal/tasks"
)

type fakeCatalog []tasks.TaskDefinition

func (c fakeCatalog) ByCategory(category tasks.Category) []tasks.TaskDefinition {
	var out []tasks.TaskDefinition
	for _, d := range c {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

type fakeRoster struct {
	users []roster.User
	err   error
}

func (r *fakeRoster) Eligible(context.Context) ([]roster.User, error) {
	return r.users, r.err
}

type fakeStore struct {
	mu        sync.Mutex
	instances []tasks.Instance
	creates   int
	queries   int
	failTitle string
	failErr   error
	// block, when set, is received from before every create.
	block   chan struct{}
	entered chan struct{}
}

func (s *fakeStore) Create(_ context.Context, inst tasks.Instance) (tasks.Instance, error) {
	if s.block != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.failTitle != "" && inst.Title == s.failTitle {
		return tasks.Instance{}, s.failErr
	}
	inst.ID = fmt.Sprintf("task-%d", len(s.instances)+1)
	s.instances = append(s.instances, inst)
	return inst, nil
}

func (s *fakeStore) QueryByCategoryAndDate(_ context.Context, category tasks.Category, day time.Time) ([]tasks.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	start, next := tasks.DayBounds(day)
	var out []tasks.Instance
	for _, inst := range s.instances {
		if inst.Category != category {
			continue
		}
		if inst.DueDate.Before(start) || !inst.DueDate.Before(next) {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

func daily(titles ...string) fakeCatalog {
	var c fakeCatalog
	for _, t := range titles {
		c = append(c, tasks.TaskDefinition{ID: t, Title: t, Category: tasks.CategoryDaily, EstimatedMinutes: 10})
	}
	return c
}

func users(ids ...string) *fakeRoster {
	r := &fakeRoster{}
	for _, id := range ids {
		r.users = append(r.users, roster.User{ID: id, Name: id, Role: roster.RoleUser})
	}
	return r
}
