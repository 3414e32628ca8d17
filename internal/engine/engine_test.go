package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func mustTask(t *testing.T, env testEnv, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.ActorID == "" {
		opts.ActorID = "tester"
	}
	task, err := env.Engine.CreateTask(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create task %q: %v", opts.Title, err)
	}
	return task
}

func TestCreateTaskDefaults(t *testing.T) {
	env := newTestEnv(t)
	task := mustTask(t, env, engine.TaskCreateOptions{Title: "write docs"})
	if task.Status != domain.StatusPending {
		t.Fatalf("status = %q, want pending", task.Status)
	}
	if task.Priority != domain.PriorityMedium {
		t.Fatalf("priority = %q, want medium", task.Priority)
	}
	if task.ID == 0 {
		t.Fatal("expected assigned id")
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Title != "write docs" || got.CreatedAt != "2026-01-01T00:00:00Z" {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []engine.TaskCreateOptions{
		{Title: "   "},
		{Title: "x", Status: "blocked"},
		{Title: "x", Priority: "asap"},
		{Title: "x", DueDate: "not-a-date"},
		{Title: "x", DueDate: "14-03-2026"},
	}
	for _, opts := range cases {
		if _, err := env.Engine.CreateTask(env.Ctx, opts); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("opts %+v: err = %v, want ErrValidation", opts, err)
		}
	}
}

func TestCreateTaskDanglingReferences(t *testing.T) {
	env := newTestEnv(t)
	missing := int64(999)
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", ProjectID: &missing}); !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("dangling project: err = %v, want ErrInvalidReference", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", ParentID: &missing}); !errors.Is(err, domain.ErrInvalidReference) {
		t.Fatalf("dangling parent: err = %v, want ErrInvalidReference", err)
	}
}

func TestUpdateTaskParentMoveAndClear(t *testing.T) {
	env := newTestEnv(t)
	a := mustTask(t, env, engine.TaskCreateOptions{Title: "a"})
	b := mustTask(t, env, engine.TaskCreateOptions{Title: "b"})

	parent := &a.ID
	moved, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: b.ID, SetParent: &parent, ActorID: "tester"})
	if err != nil {
		t.Fatalf("set parent: %v", err)
	}
	if moved.ParentID == nil || *moved.ParentID != a.ID {
		t.Fatalf("parent = %v, want %d", moved.ParentID, a.ID)
	}

	var null *int64
	cleared, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: b.ID, SetParent: &null, ActorID: "tester"})
	if err != nil {
		t.Fatalf("clear parent: %v", err)
	}
	if cleared.ParentID != nil {
		t.Fatalf("parent = %v, want nil", cleared.ParentID)
	}
}

func TestCycleDetection(t *testing.T) {
	env := newTestEnv(t)
	root := mustTask(t, env, engine.TaskCreateOptions{Title: "root"})
	mid := mustTask(t, env, engine.TaskCreateOptions{Title: "mid", ParentID: &root.ID})
	leaf := mustTask(t, env, engine.TaskCreateOptions{Title: "leaf", ParentID: &mid.ID})

	// a task cannot become its own parent
	self := &root.ID
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: root.ID, SetParent: &self, ActorID: "tester"}); !errors.Is(err, domain.ErrCycleDetected) {
		t.Fatalf("self parent: err = %v, want ErrCycleDetected", err)
	}
	// nor a descendant of itself
	under := &leaf.ID
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: root.ID, SetParent: &under, ActorID: "tester"}); !errors.Is(err, domain.ErrCycleDetected) {
		t.Fatalf("descendant parent: err = %v, want ErrCycleDetected", err)
	}
	// the rejected moves must not have been persisted
	got, err := env.Engine.Repo.GetTask(env.Ctx, root.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ParentID != nil {
		t.Fatalf("root parent = %v after rejected moves, want nil", got.ParentID)
	}
	// moving a subtree under a sibling stays legal
	sib := mustTask(t, env, engine.TaskCreateOptions{Title: "sibling"})
	dest := &sib.ID
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: mid.ID, SetParent: &dest, ActorID: "tester"}); err != nil {
		t.Fatalf("legal move: %v", err)
	}
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, "  renovation ", "tester")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if p.Name != "renovation" || p.Status != domain.ProjectActive {
		t.Fatalf("unexpected project: %+v", p)
	}
	if _, err := env.Engine.CreateProject(env.Ctx, "   ", "tester"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank name: err = %v, want ErrValidation", err)
	}

	mustTask(t, env, engine.TaskCreateOptions{Title: "inside", ProjectID: &p.ID})

	// delete without force is blocked while tasks exist
	err = env.Engine.DeleteProject(env.Ctx, p.ID, false, "tester")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("delete with tasks: err = %v, want ErrConflict", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, p.ID, true, "tester"); err != nil {
		t.Fatalf("forced delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetProject(env.Ctx, p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("after delete: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteProjectForceReparentedChild(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, "cleanup", "tester")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	// the child is created first, so after the move it carries the lower id
	child := mustTask(t, env, engine.TaskCreateOptions{Title: "child", ProjectID: &p.ID})
	parent := mustTask(t, env, engine.TaskCreateOptions{Title: "parent", ProjectID: &p.ID})
	under := &parent.ID
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: child.ID, SetParent: &under, ActorID: "tester"}); err != nil {
		t.Fatalf("reparent: %v", err)
	}
	if err := env.Engine.DeleteProject(env.Ctx, p.ID, true, "tester"); err != nil {
		t.Fatalf("forced delete: %v", err)
	}
	for _, id := range []int64{child.ID, parent.ID} {
		if _, err := env.Engine.Repo.GetTask(env.Ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("task %d: err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestDeleteProjectForceKeepsOutsideChildren(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.CreateProject(env.Ctx, "doomed", "tester")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	root := mustTask(t, env, engine.TaskCreateOptions{Title: "inside", ProjectID: &p.ID})
	outside := mustTask(t, env, engine.TaskCreateOptions{Title: "outside", ParentID: &root.ID})
	if err := env.Engine.DeleteProject(env.Ctx, p.ID, true, "tester"); err != nil {
		t.Fatalf("forced delete: %v", err)
	}
	got, err := env.Engine.Repo.GetTask(env.Ctx, outside.ID)
	if err != nil {
		t.Fatalf("outside child: %v", err)
	}
	if got.ParentID != nil {
		t.Fatalf("outside child parent = %v, want nil", got.ParentID)
	}
}

func TestDeleteMissingTask(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Delete(env.Ctx, 42, false, "tester"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEventLogRecordsMutations(t *testing.T) {
	env := newTestEnv(t)
	task := mustTask(t, env, engine.TaskCreateOptions{Title: "tracked"})
	done := "done"
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.TaskUpdateOptions{ID: task.ID, Status: &done, ActorID: "tester"}); err != nil {
		t.Fatal(err)
	}
	evts, err := env.Engine.Events.Latest(env.Ctx, 10, "", "task")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("got %d events, want 2", len(evts))
	}
	// newest first
	if evts[0].Type != "task.updated" || evts[1].Type != "task.created" {
		t.Fatalf("unexpected event types: %s, %s", evts[0].Type, evts[1].Type)
	}
}

func TestEventTimestampsFollowEngineClock(t *testing.T) {
	env := newTestEnv(t)
	mustTask(t, env, engine.TaskCreateOptions{Title: "clocked"})
	evts, err := env.Engine.Events.Latest(env.Ctx, 1, "task.created", "")
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("got %d events, want 1", len(evts))
	}
	if evts[0].TS != "2026-01-01T00:00:00Z" {
		t.Fatalf("event ts = %s, want the injected clock", evts[0].TS)
	}
}
