package engine

import (
	"context"
	"database/sql"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
	"taskline/internal/tree"
)

// Complete sets status=done on the target. With recursive, every descendant
// transitions to done in the same transaction regardless of current status.
// Returns the ids that changed. Without recursive, the optional
// require_children_done policy blocks completion while children are
// unfinished.
func (e Engine) Complete(ctx context.Context, id int64, recursive bool, actorID string) ([]int64, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetTaskTx(ctx, tx, id); err != nil {
		return nil, err
	}
	targets := []int64{id}
	if recursive {
		subtree, err := e.collectSubtree(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		targets = targets[:0]
		for _, t := range subtree {
			targets = append(targets, t.ID)
		}
	} else if e.Config != nil && e.Config.Complete.RequireChildrenDone {
		children, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{ParentID: &id})
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if c.Status != domain.StatusDone {
				return nil, domain.Conflict("task", id, "has unfinished children")
			}
		}
	}
	now := e.nowString()
	done := domain.StatusDone
	for _, target := range targets {
		if err := e.Repo.UpdateTask(ctx, tx, target, repo.TaskPatch{Status: &done}, now); err != nil {
			return nil, err
		}
		if err := e.LogEvent(ctx, tx, "task.completed", "task", target, actorID, events.Payload{"recursive": recursive}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return targets, nil
}

// Delete removes the target. Without recursive it fails with a conflict when
// children exist; with recursive it deletes the whole subtree deepest-first
// inside one transaction. Returns the deleted ids.
func (e Engine) Delete(ctx context.Context, id int64, recursive bool, actorID string) ([]int64, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetTaskTx(ctx, tx, id); err != nil {
		return nil, err
	}
	if !recursive {
		n, err := e.Repo.CountChildren(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, domain.Conflict("task", id, "has child tasks; pass recursive to delete them")
		}
		if err := e.Repo.DeleteTask(ctx, tx, id); err != nil {
			return nil, err
		}
		if err := e.LogEvent(ctx, tx, "task.deleted", "task", id, actorID, events.Payload{}); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return []int64{id}, nil
	}
	subtree, err := e.collectSubtree(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	deleted := make([]int64, 0, len(subtree))
	// subtree is breadth-first, so reverse order is deepest-first
	for i := len(subtree) - 1; i >= 0; i-- {
		target := subtree[i].ID
		if err := e.Repo.DeleteTask(ctx, tx, target); err != nil {
			return nil, err
		}
		if err := e.LogEvent(ctx, tx, "task.deleted", "task", target, actorID, events.Payload{"cascade_root": id}); err != nil {
			return nil, err
		}
		deleted = append(deleted, target)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return deleted, nil
}

// Progress returns the completion ratio of the subtree rooted at id.
func (e Engine) Progress(ctx context.Context, id int64) (float64, error) {
	subtree, err := e.collectSubtree(ctx, nil, id)
	if err != nil {
		return 0, err
	}
	f := tree.Build(subtree)
	n := f.Node(id)
	if n == nil {
		return 0, domain.NotFound("task", id)
	}
	return tree.Progress(n)
}

// Subtree returns the task rows of the subtree rooted at id, breadth-first.
func (e Engine) Subtree(ctx context.Context, id int64) ([]domain.Task, error) {
	return e.collectSubtree(ctx, nil, id)
}

// collectSubtree gathers the root and every descendant breadth-first. The
// level counter doubles as a cycle guard: the repository keeps the hierarchy
// acyclic, so running past the depth cap means corrupt rows.
func (e Engine) collectSubtree(ctx context.Context, tx *sql.Tx, rootID int64) ([]domain.Task, error) {
	root, err := e.Repo.GetTaskTx(ctx, tx, rootID)
	if err != nil {
		return nil, err
	}
	result := []domain.Task{root}
	frontier := []int64{rootID}
	seen := map[int64]bool{rootID: true}
	for level := 0; len(frontier) > 0; level++ {
		if level > tree.MaxDepth {
			return nil, domain.CorruptHierarchy(rootID)
		}
		var next []int64
		for _, id := range frontier {
			pid := id
			children, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{ParentID: &pid})
			if err != nil {
				return nil, err
			}
			for _, c := range children {
				if seen[c.ID] {
					return nil, domain.CorruptHierarchy(c.ID)
				}
				seen[c.ID] = true
				result = append(result, c)
				next = append(next, c.ID)
			}
		}
		frontier = next
	}
	return result, nil
}
