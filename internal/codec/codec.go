// Package codec serializes a whole workspace to a portable JSON document
// and loads such documents back, either merging into or replacing the
// current database.
package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/repo"
	"taskline/internal/tree"
)

// FormatVersion is bumped on incompatible document changes.
const FormatVersion = 1

// Document is the interchange envelope.
type Document struct {
	FormatVersion int              `json:"format_version"`
	ExportID      string           `json:"export_id"`
	ExportedAt    string           `json:"exported_at"`
	Projects      []domain.Project `json:"projects"`
	Tasks         []domain.Task    `json:"tasks"`
}

// ImportMode selects how a document is applied.
type ImportMode string

const (
	ModeMerge   ImportMode = "merge"
	ModeReplace ImportMode = "replace"
)

// ParseMode validates an import mode name.
func ParseMode(name string) (ImportMode, error) {
	switch ImportMode(name) {
	case ModeMerge, ModeReplace:
		return ImportMode(name), nil
	}
	return "", domain.Validation("unknown import mode " + name)
}

// Summary reports what an import applied.
type Summary struct {
	Mode     ImportMode `json:"mode"`
	Projects int        `json:"projects"`
	Tasks    int        `json:"tasks"`
}

// Codec reads and writes documents against an engine's database.
type Codec struct {
	Engine engine.Engine
}

// Export snapshots every project and task into a document.
func (c Codec) Export(ctx context.Context) (*Document, error) {
	projects, err := c.Engine.Repo.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := c.Engine.Repo.ListTasks(ctx, repo.TaskFilters{})
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return &Document{
		FormatVersion: FormatVersion,
		ExportID:      uuid.NewString(),
		ExportedAt:    c.Engine.Now().UTC().Format(time.RFC3339),
		Projects:      projects,
		Tasks:         tasks,
	}, nil
}

// Decode parses and structurally validates a document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, domain.InvalidImport("malformed document: " + err.Error())
	}
	if doc.FormatVersion != FormatVersion {
		return nil, domain.InvalidImport(fmt.Sprintf("unsupported format_version %d", doc.FormatVersion))
	}
	return &doc, nil
}

// Validate checks that the document is internally consistent: unique ids,
// known statuses and priorities, references resolving within the document
// and an acyclic parent graph.
func Validate(doc *Document) error {
	projectIDs := make(map[int64]bool, len(doc.Projects))
	for _, p := range doc.Projects {
		if p.Name == "" {
			return domain.InvalidImport(fmt.Sprintf("project %d has empty name", p.ID))
		}
		if projectIDs[p.ID] {
			return domain.InvalidImport(fmt.Sprintf("duplicate project id %d", p.ID))
		}
		projectIDs[p.ID] = true
	}
	taskIDs := make(map[int64]bool, len(doc.Tasks))
	for _, t := range doc.Tasks {
		if taskIDs[t.ID] {
			return domain.InvalidImport(fmt.Sprintf("duplicate task id %d", t.ID))
		}
		taskIDs[t.ID] = true
	}
	for _, t := range doc.Tasks {
		if t.Title == "" {
			return domain.InvalidImport(fmt.Sprintf("task %d has empty title", t.ID))
		}
		if !domain.ValidStatus(t.Status) {
			return domain.InvalidImport(fmt.Sprintf("task %d has unknown status %q", t.ID, t.Status))
		}
		if !domain.ValidPriority(t.Priority) {
			return domain.InvalidImport(fmt.Sprintf("task %d has unknown priority %q", t.ID, t.Priority))
		}
		if t.DueDate != nil {
			if _, err := time.Parse(domain.DateLayout, *t.DueDate); err != nil {
				return domain.InvalidImport(fmt.Sprintf("task %d has invalid due_date %q", t.ID, *t.DueDate))
			}
		}
		if t.ProjectID != nil && !projectIDs[*t.ProjectID] {
			return domain.InvalidImport(fmt.Sprintf("task %d references missing project %d", t.ID, *t.ProjectID))
		}
		if t.ParentID != nil {
			if *t.ParentID == t.ID {
				return domain.InvalidImport(fmt.Sprintf("task %d is its own parent", t.ID))
			}
			if !taskIDs[*t.ParentID] {
				return domain.InvalidImport(fmt.Sprintf("task %d references missing parent %d", t.ID, *t.ParentID))
			}
		}
	}
	if err := tree.Build(doc.Tasks).Validate(); err != nil {
		return domain.InvalidImport("cyclic parent chain: " + err.Error())
	}
	return nil
}

// Import applies a document atomically. Merge assigns fresh ids and remaps
// references; replace wipes the database and restores the document's ids.
func (c Codec) Import(ctx context.Context, doc *Document, mode ImportMode, actorID string) (Summary, error) {
	if err := Validate(doc); err != nil {
		return Summary{}, err
	}
	ordered, err := parentsFirst(doc.Tasks)
	if err != nil {
		return Summary{}, err
	}
	tx, err := c.Engine.DB.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, err
	}
	defer tx.Rollback()

	sum := Summary{Mode: mode, Projects: len(doc.Projects), Tasks: len(doc.Tasks)}
	switch mode {
	case ModeReplace:
		if err := c.Engine.Repo.ClearAll(ctx, tx); err != nil {
			return Summary{}, err
		}
		for _, p := range doc.Projects {
			if err := c.Engine.Repo.InsertProjectWithID(ctx, tx, p); err != nil {
				return Summary{}, err
			}
		}
		for _, t := range ordered {
			if err := c.Engine.Repo.InsertTaskWithID(ctx, tx, t); err != nil {
				return Summary{}, err
			}
		}
	case ModeMerge:
		projectMap := make(map[int64]int64, len(doc.Projects))
		for _, p := range doc.Projects {
			oldID := p.ID
			newID, err := c.Engine.Repo.InsertProject(ctx, tx, p)
			if err != nil {
				return Summary{}, err
			}
			projectMap[oldID] = newID
		}
		taskMap := make(map[int64]int64, len(doc.Tasks))
		for _, t := range ordered {
			oldID := t.ID
			if t.ProjectID != nil {
				mapped := projectMap[*t.ProjectID]
				t.ProjectID = &mapped
			}
			if t.ParentID != nil {
				mapped := taskMap[*t.ParentID]
				t.ParentID = &mapped
			}
			newID, err := c.Engine.Repo.InsertTask(ctx, tx, t)
			if err != nil {
				return Summary{}, err
			}
			taskMap[oldID] = newID
		}
	default:
		return Summary{}, domain.Validation("unknown import mode " + string(mode))
	}

	payload := map[string]any{
		"mode":      string(mode),
		"projects":  sum.Projects,
		"tasks":     sum.Tasks,
		"export_id": doc.ExportID,
	}
	if err := c.Engine.LogEvent(ctx, tx, "import.applied", "workspace", 0, actorID, payload); err != nil {
		return Summary{}, err
	}
	if err := tx.Commit(); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// parentsFirst orders tasks so every parent precedes its children. Validate
// has already rejected cycles, so the loop always drains.
func parentsFirst(tasks []domain.Task) ([]domain.Task, error) {
	placed := make(map[int64]bool, len(tasks))
	ordered := make([]domain.Task, 0, len(tasks))
	pending := append([]domain.Task(nil), tasks...)
	for len(pending) > 0 {
		progressed := false
		rest := pending[:0]
		for _, t := range pending {
			if t.ParentID == nil || placed[*t.ParentID] {
				placed[t.ID] = true
				ordered = append(ordered, t)
				progressed = true
			} else {
				rest = append(rest, t)
			}
		}
		pending = rest
		if !progressed {
			return nil, domain.InvalidImport("unresolvable parent ordering")
		}
	}
	return ordered, nil
}
