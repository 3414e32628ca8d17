package strategy

import (
	"time"

	"taskline/internal/domain"
)

// Filter is a predicate over a single task. Active filters compose by
// conjunction. Filters always run on flat rows before any tree
// reconstruction; a task whose parent is filtered out simply becomes a root
// of the rendered forest.
type Filter func(domain.Task) bool

// And combines filters into their conjunction. And() accepts everything.
func And(filters ...Filter) Filter {
	return func(t domain.Task) bool {
		for _, f := range filters {
			if !f(t) {
				return false
			}
		}
		return true
	}
}

// Apply returns the tasks matching f, preserving input order.
func Apply(tasks []domain.Task, f Filter) []domain.Task {
	if f == nil {
		return tasks
	}
	var out []domain.Task
	for _, t := range tasks {
		if f(t) {
			out = append(out, t)
		}
	}
	return out
}

// ByStatus keeps tasks with the given status.
func ByStatus(status string) Filter {
	return func(t domain.Task) bool { return t.Status == status }
}

// ByProject keeps tasks assigned to the given project.
func ByProject(projectID int64) Filter {
	return func(t domain.Task) bool {
		return t.ProjectID != nil && *t.ProjectID == projectID
	}
}

// ByPriority keeps tasks with the given priority.
func ByPriority(priority string) Filter {
	return func(t domain.Task) bool { return t.Priority == priority }
}

// ByDueRange keeps tasks whose due date falls in [from, to]. Either bound
// may be zero for an open end. Tasks without a due date never match.
func ByDueRange(from, to time.Time) Filter {
	return func(t domain.Task) bool {
		due, ok := dueTime(t)
		if !ok {
			return false
		}
		if !from.IsZero() && due.Before(from) {
			return false
		}
		if !to.IsZero() && due.After(to) {
			return false
		}
		return true
	}
}

// Overdue keeps tasks due before now that are still open (not done or
// cancelled).
func Overdue(now time.Time) Filter {
	return func(t domain.Task) bool {
		if t.Status == domain.StatusDone || t.Status == domain.StatusCancelled {
			return false
		}
		due, ok := dueTime(t)
		return ok && due.Before(now)
	}
}

func dueTime(t domain.Task) (time.Time, bool) {
	if t.DueDate == nil {
		return time.Time{}, false
	}
	due, err := time.Parse(domain.DateLayout, *t.DueDate)
	if err != nil {
		return time.Time{}, false
	}
	return due, true
}
