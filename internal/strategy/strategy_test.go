package strategy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/domain"
	"taskline/internal/strategy"
)

func ids(tasks []domain.Task) []int64 {
	out := make([]int64, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func sptr(s string) *string { return &s }
func iptr(v int64) *int64   { return &v }

func sample() []domain.Task {
	return []domain.Task{
		{ID: 1, Title: "ship release", Status: domain.StatusInProgress, Priority: domain.PriorityUrgent, DueDate: sptr("2026-02-01"), CreatedAt: "2026-01-03T00:00:00Z"},
		{ID: 2, Title: "write docs", Status: domain.StatusPending, Priority: domain.PriorityLow, ProjectID: iptr(7), CreatedAt: "2026-01-01T00:00:00Z"},
		{ID: 3, Title: "fix flake", Status: domain.StatusDone, Priority: domain.PriorityHigh, DueDate: sptr("2026-01-10"), CreatedAt: "2026-01-02T00:00:00Z"},
		{ID: 4, Title: "plan q2", Status: domain.StatusPending, Priority: domain.PriorityMedium, ProjectID: iptr(7), DueDate: sptr("2026-01-05"), CreatedAt: "2026-01-04T00:00:00Z"},
	}
}

func TestFilters(t *testing.T) {
	tasks := sample()

	assert.Equal(t, []int64{2, 4}, ids(strategy.Apply(tasks, strategy.ByStatus(domain.StatusPending))))
	assert.Equal(t, []int64{2, 4}, ids(strategy.Apply(tasks, strategy.ByProject(7))))
	assert.Equal(t, []int64{1}, ids(strategy.Apply(tasks, strategy.ByPriority(domain.PriorityUrgent))))

	both := strategy.And(strategy.ByStatus(domain.StatusPending), strategy.ByProject(7))
	assert.Equal(t, []int64{2, 4}, ids(strategy.Apply(tasks, both)))

	none := strategy.And(strategy.ByStatus(domain.StatusDone), strategy.ByProject(7))
	assert.Empty(t, strategy.Apply(tasks, none))

	// And() with no filters accepts everything
	assert.Len(t, strategy.Apply(tasks, strategy.And()), 4)
}

func TestOverdue(t *testing.T) {
	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	tasks := sample()
	// task 3 is past due but done, task 4 is past due and open,
	// task 1 is due in the future, task 2 has no due date
	assert.Equal(t, []int64{4}, ids(strategy.Apply(tasks, strategy.Overdue(now))))
}

func TestByDueRange(t *testing.T) {
	tasks := sample()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []int64{3, 4}, ids(strategy.Apply(tasks, strategy.ByDueRange(from, to))))
	// open upper bound
	assert.Equal(t, []int64{1, 3, 4}, ids(strategy.Apply(tasks, strategy.ByDueRange(from, time.Time{}))))
}

func TestPriorityOrder(t *testing.T) {
	tasks := sample()
	strategy.Sort(tasks, strategy.PriorityOrder())
	assert.Equal(t, []int64{1, 3, 4, 2}, ids(tasks))
}

func TestDueDateOrderNullsLast(t *testing.T) {
	tasks := sample()
	strategy.Sort(tasks, strategy.DueDateOrder())
	assert.Equal(t, []int64{4, 3, 1, 2}, ids(tasks))
}

func TestCreatedOrder(t *testing.T) {
	tasks := sample()
	strategy.Sort(tasks, strategy.CreatedOrder())
	assert.Equal(t, []int64{2, 3, 1, 4}, ids(tasks))
}

func TestWeightedScoreOrder(t *testing.T) {
	now := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	w := strategy.ScoreWeights{Priority: 1, Due: 1, HorizonDays: 14}
	tasks := sample()
	strategy.Sort(tasks, strategy.WeightedScoreOrder(w, now))
	// overdue tasks cap due proximity at 1, so they outrank the urgent task
	// still twelve days out; the low task with no due date comes last
	require.Equal(t, []int64{3, 4, 1, 2}, ids(tasks))
}

func TestSortFor(t *testing.T) {
	now := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	for _, name := range []string{"", "created", "priority", "due", "score"} {
		less, err := strategy.SortFor(name, nil, now)
		require.NoError(t, err, name)
		require.NotNil(t, less, name)
	}
	_, err := strategy.SortFor("alphabetical", nil, now)
	require.ErrorIs(t, err, domain.ErrValidation)

	tasks := sample()
	less, err := strategy.SortFor("priority", nil, now)
	require.NoError(t, err)
	strategy.Sort(tasks, less)
	assert.Equal(t, []int64{1, 3, 4, 2}, ids(tasks))

	// without a config the score sort runs on the default weights
	tasks = sample()
	less, err = strategy.SortFor("score", nil, now)
	require.NoError(t, err)
	strategy.Sort(tasks, less)
	assert.Equal(t, []int64{3, 4, 1, 2}, ids(tasks))
}

func TestWeightedScoreStableTies(t *testing.T) {
	now := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	w := strategy.ScoreWeights{Priority: 1, Due: 1, HorizonDays: 14}
	tasks := []domain.Task{
		{ID: 9, Priority: domain.PriorityMedium, Status: domain.StatusPending},
		{ID: 4, Priority: domain.PriorityMedium, Status: domain.StatusPending},
	}
	strategy.Sort(tasks, strategy.WeightedScoreOrder(w, now))
	assert.Equal(t, []int64{4, 9}, ids(tasks))
}
