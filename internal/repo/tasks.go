package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskline/internal/domain"
)

const taskColumns = `id,title,description,project_id,parent_id,status,priority,due_date,created_at,updated_at`

func scanTask(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var description, dueDate sql.NullString
	var projectID, parentID sql.NullInt64
	err := scan(&t.ID, &t.Title, &description, &projectID, &parentID, &t.Status, &t.Priority, &dueDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = &description.String
	}
	if projectID.Valid {
		t.ProjectID = &projectID.Int64
	}
	if parentID.Valid {
		t.ParentID = &parentID.Int64
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	return t, nil
}

// InsertTask inserts t and returns the assigned id. Referenced project and
// parent rows must already be validated by the caller.
func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) (int64, error) {
	res, err := r.on(tx).ExecContext(ctx, `INSERT INTO tasks(title,description,project_id,parent_id,status,priority,due_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		t.Title, nullable(t.Description), nullableID(t.ProjectID), nullableID(t.ParentID),
		t.Status, t.Priority, nullable(t.DueDate), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertTaskWithID inserts t preserving its id (replace-mode import).
func (r Repo) InsertTaskWithID(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO tasks(id,title,description,project_id,parent_id,status,priority,due_date,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), nullableID(t.ProjectID), nullableID(t.ParentID),
		t.Status, t.Priority, nullable(t.DueDate), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return r.GetTaskTx(ctx, nil, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	row := r.on(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return t, domain.NotFound("task", id)
	}
	return t, err
}

// TaskFilters narrows ListTasks. Zero values mean "no filter".
type TaskFilters struct {
	ProjectID *int64
	ParentID  *int64
	Status    string
	Priority  string
}

// ListTasks returns tasks matching f, id ascending. Sibling order in the
// rebuilt tree follows this iteration order.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	return r.ListTasksTx(ctx, nil, f)
}

func (r Repo) ListTasksTx(ctx context.Context, tx *sql.Tx, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.ProjectID != nil {
		clauses = append(clauses, "project_id=?")
		args = append(args, *f.ProjectID)
	}
	if f.ParentID != nil {
		clauses = append(clauses, "parent_id=?")
		args = append(args, *f.ParentID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.on(tx).QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks `+where+` ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// TaskPatch is a partial update; nil fields are left unchanged. SetParent,
// SetProject and SetDueDate distinguish "clear" (pointer to nil) from
// "leave alone" (nil).
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	SetProject  **int64
	SetParent   **int64
	SetDueDate  **string
}

// UpdateTask applies the patch and refreshes updated_at.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, id int64, patch TaskPatch, updatedAt string) error {
	fields := []string{"updated_at=?"}
	args := []any{updatedAt}
	if patch.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(patch.Description))
	}
	if patch.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *patch.Status)
	}
	if patch.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, *patch.Priority)
	}
	if patch.SetProject != nil {
		fields = append(fields, "project_id=?")
		args = append(args, nullableID(*patch.SetProject))
	}
	if patch.SetParent != nil {
		fields = append(fields, "parent_id=?")
		args = append(args, nullableID(*patch.SetParent))
	}
	if patch.SetDueDate != nil {
		fields = append(fields, "due_date=?")
		args = append(args, nullable(*patch.SetDueDate))
	}
	args = append(args, id)
	res, err := r.on(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("task", id)
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("task", id)
	}
	return nil
}

// ListChildIDs returns the direct children of taskID, id ascending.
func (r Repo) ListChildIDs(ctx context.Context, tx *sql.Tx, taskID int64) ([]int64, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT id FROM tasks WHERE parent_id=? ORDER BY id ASC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountChildren returns the number of direct children of taskID.
func (r Repo) CountChildren(ctx context.Context, tx *sql.Tx, taskID int64) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE parent_id=?`, taskID).Scan(&n)
	return n, err
}

// CountTasksByStatus returns per-status task counts, optionally scoped to a
// project.
func (r Repo) CountTasksByStatus(ctx context.Context, projectID *int64) (map[string]int, error) {
	query := `SELECT status, count(*) FROM tasks GROUP BY status`
	var args []any
	if projectID != nil {
		query = `SELECT status, count(*) FROM tasks WHERE project_id=? GROUP BY status`
		args = append(args, *projectID)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
