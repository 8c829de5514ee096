package assign

import (
	"testing"

	"github.com/marcus/taskrota/internal/roster"
	"github.com/marcus/taskrota/internal/tasks"
)

func TestIndex(t *testing.T) {
	idx := NewIndex([]tasks.Instance{
		{Title: "A", AssignedTo: "u1"},
		{Title: "B", AssignedTo: "u1"},
		{Title: "A", AssignedTo: "u2"},
		{Title: "C"},
	})

	if idx.Len() != 4 {
		t.Errorf("Len() = %d, want 4", idx.Len())
	}
	if !idx.HasAssigned("A", "u2") || idx.HasAssigned("B", "u2") {
		t.Error("HasAssigned mismatch")
	}
	if !idx.HasTitle("C") || idx.HasTitle("D") {
		t.Error("HasTitle mismatch")
	}
	if idx.Load("u1") != 2 || idx.Load("u3") != 0 {
		t.Errorf("Load(u1)=%d Load(u3)=%d", idx.Load("u1"), idx.Load("u3"))
	}

	us := []roster.User{{ID: "u1"}, {ID: "u2"}}
	if got := idx.MinLoad(us); got != 1 {
		t.Errorf("MinLoad = %d, want 1", got)
	}
	if got := idx.MinLoad(append(us, roster.User{ID: "u3"})); got != 0 {
		t.Errorf("MinLoad with idle user = %d, want 0", got)
	}
	if got := idx.MinLoad(nil); got != 0 {
		t.Errorf("MinLoad(nil) = %d, want 0", got)
	}
}
