package assign

import (
	"github.com/marcus/taskrota/internal/roster"
	"github.com/marcus/taskrota/internal/tasks"
)

// Index is a read-only snapshot of the daily instances that already existed
// when a batch started. Instances created during the batch are not added.
type Index struct {
	total    int
	assigned map[pairKey]struct{}
	titles   map[string]struct{}
	loads    map[string]int
}

type pairKey struct {
	title  string
	userID string
}

// NewIndex builds an index over today's existing instances.
func NewIndex(existing []tasks.Instance) *Index {
	idx := &Index{
		total:    len(existing),
		assigned: make(map[pairKey]struct{}, len(existing)),
		titles:   make(map[string]struct{}, len(existing)),
		loads:    make(map[string]int),
	}
	for _, inst := range existing {
		idx.titles[inst.Title] = struct{}{}
		if inst.IsAssigned() {
			idx.assigned[pairKey{inst.Title, inst.AssignedTo}] = struct{}{}
			idx.loads[inst.AssignedTo]++
		}
	}
	return idx
}

// Len is the number of instances in the snapshot.
func (i *Index) Len() int {
	return i.total
}

// HasAssigned reports whether a task with this title is already assigned to
// the user today.
func (i *Index) HasAssigned(title, userID string) bool {
	_, ok := i.assigned[pairKey{title, userID}]
	return ok
}

// HasTitle reports whether any task with this title exists today, assigned
// or not.
func (i *Index) HasTitle(title string) bool {
	_, ok := i.titles[title]
	return ok
}

// Load is the number of today's tasks assigned to the user.
func (i *Index) Load(userID string) int {
	return i.loads[userID]
}

// MinLoad is the smallest Load over users, or 0 for an empty list.
func (i *Index) MinLoad(users []roster.User) int {
	if len(users) == 0 {
		return 0
	}
	lowest := i.Load(users[0].ID)
	for _, u := range users[1:] {
		if l := i.Load(u.ID); l < lowest {
			lowest = l
		}
	}
	return lowest
}
