package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"taskline/internal/config"
	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/repo"
	"taskline/internal/tree"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowString() string {
	return e.now().UTC().Format(time.RFC3339)
}

// LogEvent appends to the event log. The writer inherits the engine clock so
// event timestamps and row timestamps come from the same source.
func (e Engine) LogEvent(ctx context.Context, tx *sql.Tx, evtType, entityKind string, entityID int64, actorID string, payload events.Payload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.Now
	}
	return w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload)
}

// CreateProject validates and inserts a project.
func (e Engine) CreateProject(ctx context.Context, name, actorID string) (domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Project{}, domain.Validation("project name is required")
	}
	now := e.nowString()
	p := domain.Project{
		Name:      name,
		Status:    domain.ProjectActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertProject(ctx, tx, p)
	if err != nil {
		return domain.Project{}, err
	}
	p.ID = id
	if err := e.LogEvent(ctx, tx, "project.created", "project", p.ID, actorID, events.Payload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// UpdateProject applies a partial patch and refreshes updated_at.
func (e Engine) UpdateProject(ctx context.Context, id int64, patch repo.ProjectPatch, actorID string) (domain.Project, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return domain.Project{}, domain.Validation("project name is required")
	}
	if patch.Status != nil && *patch.Status != domain.ProjectActive && *patch.Status != domain.ProjectArchived {
		return domain.Project{}, domain.Validation("project status must be active or archived")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateProject(ctx, tx, id, patch, e.nowString()); err != nil {
		return domain.Project{}, err
	}
	if err := e.LogEvent(ctx, tx, "project.updated", "project", id, actorID, events.Payload{}); err != nil {
		return domain.Project{}, err
	}
	p, err := e.Repo.GetProjectTx(ctx, tx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// DeleteProject removes a project. With force it removes the project's tasks
// in the same transaction; without force it fails with a conflict when
// dependent tasks exist.
func (e Engine) DeleteProject(ctx context.Context, id int64, force bool, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, id); err != nil {
		return err
	}
	n, err := e.Repo.CountProjectTasks(ctx, tx, id)
	if err != nil {
		return err
	}
	if n > 0 && !force {
		return domain.Conflict("project", id, "has tasks; pass force to delete them")
	}
	if n > 0 {
		tasks, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{ProjectID: &id})
		if err != nil {
			return err
		}
		doomed := make(map[int64]bool, len(tasks))
		for _, t := range tasks {
			doomed[t.ID] = true
		}
		// children in other projects survive the cascade; their parent link
		// is cleared so it never points at a deleted row
		now := e.nowString()
		for _, t := range tasks {
			tid := t.ID
			children, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{ParentID: &tid})
			if err != nil {
				return err
			}
			for _, c := range children {
				if doomed[c.ID] {
					continue
				}
				var cleared *int64
				if err := e.Repo.UpdateTask(ctx, tx, c.ID, repo.TaskPatch{SetParent: &cleared}, now); err != nil {
					return err
				}
			}
		}
		// reparenting means ids do not encode depth, so delete by hierarchy,
		// children before parents
		rows, err := tree.Build(tasks).Flatten()
		if err != nil {
			return err
		}
		for i := len(rows) - 1; i >= 0; i-- {
			if err := e.Repo.DeleteTask(ctx, tx, rows[i].Node.Task.ID); err != nil {
				return err
			}
		}
	}
	if err := e.Repo.DeleteProject(ctx, tx, id); err != nil {
		return err
	}
	if err := e.LogEvent(ctx, tx, "project.deleted", "project", id, actorID, events.Payload{"forced": force, "tasks_removed": n}); err != nil {
		return err
	}
	return tx.Commit()
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title       string
	Description string
	ProjectID   *int64
	ParentID    *int64
	Status      string
	Priority    string
	DueDate     string
	ActorID     string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.Task{}, domain.Validation("title is required")
	}
	if opts.Status == "" {
		opts.Status = domain.StatusPending
	}
	if !domain.ValidStatus(opts.Status) {
		return domain.Task{}, domain.Validation("unknown status " + opts.Status)
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.Task{}, domain.Validation("unknown priority " + opts.Priority)
	}
	due, err := normalizeDueDate(opts.DueDate)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.ProjectID != nil {
		if _, err := e.Repo.GetProject(ctx, *opts.ProjectID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Task{}, domain.InvalidReference("project", *opts.ProjectID)
			}
			return domain.Task{}, err
		}
	}
	if opts.ParentID != nil {
		if _, err := e.Repo.GetTask(ctx, *opts.ParentID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Task{}, domain.InvalidReference("task", *opts.ParentID)
			}
			return domain.Task{}, err
		}
		// a fresh id cannot be its own ancestor, but the walk still guards
		// against an already-corrupt parent chain
		if err := e.CycleCheck(ctx, *opts.ParentID, 0); err != nil {
			return domain.Task{}, err
		}
	}
	now := e.nowString()
	t := domain.Task{
		Title:       opts.Title,
		Description: optionalString(opts.Description),
		ProjectID:   opts.ProjectID,
		ParentID:    opts.ParentID,
		Status:      opts.Status,
		Priority:    opts.Priority,
		DueDate:     due,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertTask(ctx, tx, t)
	if err != nil {
		return domain.Task{}, err
	}
	t.ID = id
	if err := e.LogEvent(ctx, tx, "task.created", "task", t.ID, opts.ActorID, events.Payload{"title": t.Title, "status": t.Status}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// TaskUpdateOptions encapsulates allowed updates. Double pointers
// distinguish clearing a field from leaving it alone.
type TaskUpdateOptions struct {
	ID          int64
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	SetProject  **int64
	SetParent   **int64
	SetDueDate  **string
	ActorID     string
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return t, err
	}
	patch := repo.TaskPatch{
		Title:       opts.Title,
		Description: opts.Description,
		Status:      opts.Status,
		Priority:    opts.Priority,
		SetProject:  opts.SetProject,
		SetParent:   opts.SetParent,
	}
	if opts.Title != nil && strings.TrimSpace(*opts.Title) == "" {
		return t, domain.Validation("title is required")
	}
	if opts.Status != nil && !domain.ValidStatus(*opts.Status) {
		return t, domain.Validation("unknown status " + *opts.Status)
	}
	if opts.Priority != nil && !domain.ValidPriority(*opts.Priority) {
		return t, domain.Validation("unknown priority " + *opts.Priority)
	}
	if opts.SetDueDate != nil {
		if *opts.SetDueDate == nil {
			patch.SetDueDate = opts.SetDueDate
		} else {
			due, err := normalizeDueDate(**opts.SetDueDate)
			if err != nil {
				return t, err
			}
			patch.SetDueDate = &due
		}
	}
	if opts.SetProject != nil && *opts.SetProject != nil {
		if _, err := e.Repo.GetProject(ctx, **opts.SetProject); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return t, domain.InvalidReference("project", **opts.SetProject)
			}
			return t, err
		}
	}
	if opts.SetParent != nil && *opts.SetParent != nil {
		parentID := **opts.SetParent
		if _, err := e.Repo.GetTask(ctx, parentID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return t, domain.InvalidReference("task", parentID)
			}
			return t, err
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()

	// the ancestor walk reads through the open transaction so a concurrent
	// reparent cannot commit between the check and the write
	if opts.SetParent != nil && *opts.SetParent != nil {
		if err := e.cycleCheck(ctx, tx, **opts.SetParent, t.ID); err != nil {
			return t, err
		}
	}
	if err := e.Repo.UpdateTask(ctx, tx, t.ID, patch, e.nowString()); err != nil {
		return t, err
	}
	updated, err := e.Repo.GetTaskTx(ctx, tx, t.ID)
	if err != nil {
		return t, err
	}
	if err := e.LogEvent(ctx, tx, "task.updated", "task", t.ID, opts.ActorID, events.Payload{
		"from_status": t.Status,
		"to_status":   updated.Status,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return updated, nil
}

// CycleCheck walks the ancestors of candidateParentID and fails when
// movingTaskID appears among them or equals the candidate. Runs before any
// parent assignment is persisted.
func (e Engine) CycleCheck(ctx context.Context, candidateParentID, movingTaskID int64) error {
	return e.cycleCheck(ctx, nil, candidateParentID, movingTaskID)
}

// cycleCheck is CycleCheck reading through tx when one is open, so the walk
// sees uncommitted reparents in the same transaction.
func (e Engine) cycleCheck(ctx context.Context, tx *sql.Tx, candidateParentID, movingTaskID int64) error {
	if movingTaskID != 0 && candidateParentID == movingTaskID {
		return domain.CycleDetected(movingTaskID)
	}
	cur := candidateParentID
	for depth := 0; ; depth++ {
		if depth > tree.MaxDepth {
			return domain.CorruptHierarchy(cur)
		}
		t, err := e.Repo.GetTaskTx(ctx, tx, cur)
		if err != nil {
			return err
		}
		if t.ParentID == nil {
			return nil
		}
		if movingTaskID != 0 && *t.ParentID == movingTaskID {
			return domain.CycleDetected(movingTaskID)
		}
		cur = *t.ParentID
	}
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func normalizeDueDate(s string) (*string, error) {
	if s == "" {
		return nil, nil
	}
	if _, err := time.Parse(domain.DateLayout, s); err != nil {
		return nil, domain.Validation("due date must be YYYY-MM-DD: " + s)
	}
	return &s, nil
}
