package engine_test

import (
	"errors"
	"testing"

	"taskline/internal/domain"
	"taskline/internal/engine"
)

// buildFamily creates root -> (childA -> grandchild, childB).
func buildFamily(t *testing.T, env testEnv) (root, childA, childB, grandchild domain.Task) {
	t.Helper()
	root = mustTask(t, env, engine.TaskCreateOptions{Title: "root"})
	childA = mustTask(t, env, engine.TaskCreateOptions{Title: "child a", ParentID: &root.ID})
	childB = mustTask(t, env, engine.TaskCreateOptions{Title: "child b", ParentID: &root.ID})
	grandchild = mustTask(t, env, engine.TaskCreateOptions{Title: "grandchild", ParentID: &childA.ID})
	return
}

func TestCompleteSingle(t *testing.T) {
	env := newTestEnv(t)
	root, childA, _, _ := buildFamily(t, env)

	done, err := env.Engine.Complete(env.Ctx, root.ID, false, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(done) != 1 || done[0] != root.ID {
		t.Fatalf("completed %v, want just root", done)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, childA.ID)
	if got.Status == domain.StatusDone {
		t.Fatal("child must stay untouched without recursive")
	}
}

func TestCompleteRecursive(t *testing.T) {
	env := newTestEnv(t)
	root, childA, childB, grandchild := buildFamily(t, env)

	done, err := env.Engine.Complete(env.Ctx, root.ID, true, "tester")
	if err != nil {
		t.Fatalf("complete recursive: %v", err)
	}
	if len(done) != 4 {
		t.Fatalf("completed %d tasks, want 4", len(done))
	}
	for _, id := range []int64{root.ID, childA.ID, childB.ID, grandchild.ID} {
		got, err := env.Engine.Repo.GetTask(env.Ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != domain.StatusDone {
			t.Fatalf("task %d status = %q, want done", id, got.Status)
		}
	}
}

func TestCompleteIdempotent(t *testing.T) {
	env := newTestEnv(t)
	task := mustTask(t, env, engine.TaskCreateOptions{Title: "once"})
	if _, err := env.Engine.Complete(env.Ctx, task.ID, false, "tester"); err != nil {
		t.Fatal(err)
	}
	// completing an already-done task is not an error
	if _, err := env.Engine.Complete(env.Ctx, task.ID, false, "tester"); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	got, _ := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if got.Status != domain.StatusDone {
		t.Fatalf("status = %q, want done", got.Status)
	}
}

func TestCompleteChildGating(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Complete.RequireChildrenDone = true
	root, childA, childB, grandchild := buildFamily(t, env)

	_, err := env.Engine.Complete(env.Ctx, root.ID, false, "tester")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("gated complete: err = %v, want ErrConflict", err)
	}
	// recursive completion is never gated
	if _, err := env.Engine.Complete(env.Ctx, childA.ID, true, "tester"); err != nil {
		t.Fatalf("recursive under gating: %v", err)
	}
	_ = grandchild
	if _, err := env.Engine.Complete(env.Ctx, childB.ID, false, "tester"); err != nil {
		t.Fatalf("leaf complete: %v", err)
	}
	// all direct children are done now
	if _, err := env.Engine.Complete(env.Ctx, root.ID, false, "tester"); err != nil {
		t.Fatalf("complete after children done: %v", err)
	}
}

func TestDeleteConflictWithoutRecursive(t *testing.T) {
	env := newTestEnv(t)
	root, _, _, _ := buildFamily(t, env)

	_, err := env.Engine.Delete(env.Ctx, root.ID, false, "tester")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, root.ID); err != nil {
		t.Fatalf("root must survive the rejected delete: %v", err)
	}
}

func TestDeleteRecursive(t *testing.T) {
	env := newTestEnv(t)
	root, childA, childB, grandchild := buildFamily(t, env)
	outsider := mustTask(t, env, engine.TaskCreateOptions{Title: "outsider"})

	deleted, err := env.Engine.Delete(env.Ctx, root.ID, true, "tester")
	if err != nil {
		t.Fatalf("delete recursive: %v", err)
	}
	if len(deleted) != 4 {
		t.Fatalf("deleted %d tasks, want 4", len(deleted))
	}
	for _, id := range []int64{root.ID, childA.ID, childB.ID, grandchild.ID} {
		if _, err := env.Engine.Repo.GetTask(env.Ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("task %d: err = %v, want ErrNotFound", id, err)
		}
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, outsider.ID); err != nil {
		t.Fatalf("outsider must survive: %v", err)
	}
}

func TestDeleteLeafWithoutRecursive(t *testing.T) {
	env := newTestEnv(t)
	_, _, _, grandchild := buildFamily(t, env)
	deleted, err := env.Engine.Delete(env.Ctx, grandchild.ID, false, "tester")
	if err != nil {
		t.Fatalf("delete leaf: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != grandchild.ID {
		t.Fatalf("deleted %v, want just the leaf", deleted)
	}
}

func TestProgress(t *testing.T) {
	env := newTestEnv(t)
	root, childA, childB, grandchild := buildFamily(t, env)

	p, err := env.Engine.Progress(env.Ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p != 0 {
		t.Fatalf("fresh tree progress = %v, want 0", p)
	}

	if _, err := env.Engine.Complete(env.Ctx, grandchild.ID, false, "tester"); err != nil {
		t.Fatal(err)
	}
	// childA averages its single child: 1.0; root averages {1.0, 0} = 0.5
	p, err = env.Engine.Progress(env.Ctx, childA.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p != 1.0 {
		t.Fatalf("childA progress = %v, want 1.0", p)
	}
	p, err = env.Engine.Progress(env.Ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p != 0.5 {
		t.Fatalf("root progress = %v, want 0.5", p)
	}

	if _, err := env.Engine.Complete(env.Ctx, childB.ID, false, "tester"); err != nil {
		t.Fatal(err)
	}
	p, err = env.Engine.Progress(env.Ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p != 1.0 {
		t.Fatalf("root progress after all leaves done = %v, want 1.0", p)
	}
}

func TestSubtreeBreadthFirst(t *testing.T) {
	env := newTestEnv(t)
	root, childA, childB, grandchild := buildFamily(t, env)
	rows, err := env.Engine.Subtree(env.Ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{root.ID, childA.ID, childB.ID, grandchild.ID}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, id := range want {
		if rows[i].ID != id {
			t.Fatalf("rows[%d].ID = %d, want %d", i, rows[i].ID, id)
		}
	}
}
