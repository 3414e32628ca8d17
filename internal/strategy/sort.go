package strategy

import (
	"sort"
	"time"

	"taskline/internal/config"
	"taskline/internal/domain"
)

// Less orders two tasks. Sort strategies are plain comparison functions so
// they can be swapped at call time and tested in isolation.
type Less func(a, b domain.Task) bool

// Sort orders tasks in place, stably, by less.
func Sort(tasks []domain.Task, less Less) {
	if less == nil {
		return
	}
	sort.SliceStable(tasks, func(i, j int) bool { return less(tasks[i], tasks[j]) })
}

// PriorityOrder orders urgent first, low last, ties broken by ascending id.
func PriorityOrder() Less {
	return func(a, b domain.Task) bool {
		ra, rb := domain.PriorityRank(a.Priority), domain.PriorityRank(b.Priority)
		if ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	}
}

// DueDateOrder orders by due date ascending; tasks without a due date sort
// last. Ties fall back to ascending id.
func DueDateOrder() Less {
	return func(a, b domain.Task) bool {
		da, oka := dueTime(a)
		db, okb := dueTime(b)
		switch {
		case oka && !okb:
			return true
		case !oka && okb:
			return false
		case oka && okb && !da.Equal(db):
			return da.Before(db)
		}
		return a.ID < b.ID
	}
}

// CreatedOrder orders by creation time ascending, ties by ascending id.
func CreatedOrder() Less {
	return func(a, b domain.Task) bool {
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	}
}

// ScoreWeights parameterize the weighted-score sort. The weights are a
// configuration concern; the combination itself is fixed: priority rank
// normalized to [0,1] plus due-date proximity normalized against the
// horizon, higher score first.
type ScoreWeights struct {
	Priority    float64
	Due         float64
	HorizonDays int
}

// SortFor resolves a sort strategy by name: priority, due, created (also the
// default for an empty name) or score. Score weights come from cfg when
// present. Both the CLI and the API resolve sorts through here.
func SortFor(name string, cfg *config.Config, now time.Time) (Less, error) {
	switch name {
	case "priority":
		return PriorityOrder(), nil
	case "due":
		return DueDateOrder(), nil
	case "", "created":
		return CreatedOrder(), nil
	case "score":
		w := ScoreWeights{Priority: 1, Due: 1, HorizonDays: 14}
		if cfg != nil {
			w = ScoreWeights{
				Priority:    cfg.Score.PriorityWeight,
				Due:         cfg.Score.DueWeight,
				HorizonDays: cfg.Score.HorizonDays,
			}
		}
		return WeightedScoreOrder(w, now), nil
	}
	return nil, domain.Validation("unknown sort " + name)
}

// WeightedScoreOrder orders by descending score, ties by ascending id.
func WeightedScoreOrder(w ScoreWeights, now time.Time) Less {
	return func(a, b domain.Task) bool {
		sa, sb := score(a, w, now), score(b, w, now)
		if sa != sb {
			return sa > sb
		}
		return a.ID < b.ID
	}
}

func score(t domain.Task, w ScoreWeights, now time.Time) float64 {
	// urgent=1.0 .. low=0.0
	p := float64(3-domain.PriorityRank(t.Priority)) / 3.0
	s := w.Priority * p
	if due, ok := dueTime(t); ok && w.HorizonDays > 0 {
		days := due.Sub(now).Hours() / 24
		proximity := 1.0 - days/float64(w.HorizonDays)
		if proximity > 1 {
			proximity = 1 // overdue caps at 1
		}
		if proximity < 0 {
			proximity = 0
		}
		s += w.Due * proximity
	}
	return s
}
