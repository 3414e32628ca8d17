package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"taskline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r Repo) on(tx *sql.Tx) execer {
	if tx != nil {
		return tx
	}
	return r.DB
}

func nullable(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableID(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// InsertProject inserts p and returns the assigned id.
func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) (int64, error) {
	res, err := r.on(tx).ExecContext(ctx, `INSERT INTO projects(name,status,created_at,updated_at) VALUES (?,?,?,?)`,
		p.Name, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertProjectWithID inserts p preserving its id (replace-mode import).
func (r Repo) InsertProjectWithID(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT INTO projects(id,name,status,created_at,updated_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func scanProject(row *sql.Row, id int64) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, domain.NotFound("project", id)
	}
	return p, err
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	return r.GetProjectTx(ctx, nil, id)
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Project, error) {
	return scanProject(r.on(tx).QueryRowContext(ctx, `SELECT id,name,status,created_at,updated_at FROM projects WHERE id=?`, id), id)
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,status,created_at,updated_at FROM projects ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ProjectPatch is a partial update; nil fields are left unchanged.
type ProjectPatch struct {
	Name   *string
	Status *string
}

// UpdateProject applies the patch and refreshes updated_at.
func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id int64, patch ProjectPatch, updatedAt string) error {
	fields := []string{"updated_at=?"}
	args := []any{updatedAt}
	if patch.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *patch.Name)
	}
	if patch.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *patch.Status)
	}
	args = append(args, id)
	res, err := r.on(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("project", id)
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("project", id)
	}
	return nil
}

// CountProjectTasks returns how many tasks reference the project.
func (r Repo) CountProjectTasks(ctx context.Context, tx *sql.Tx, projectID int64) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT count(*) FROM tasks WHERE project_id=?`, projectID).Scan(&n)
	return n, err
}

// ClearAll removes every task and project (replace-mode import).
func (r Repo) ClearAll(ctx context.Context, tx *sql.Tx) error {
	if _, err := r.on(tx).ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return err
	}
	_, err := r.on(tx).ExecContext(ctx, `DELETE FROM projects`)
	return err
}
