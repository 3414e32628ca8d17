package server

import (
	"taskline/internal/codec"
	"taskline/internal/domain"
)

type CreateProjectRequest struct {
	Name string `json:"name" example:"home-renovation"`
}

type UpdateProjectRequest struct {
	Name   *string `json:"name,omitempty"`
	Status *string `json:"status,omitempty" enum:"active,archived"`
}

type ProjectResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	ProjectID   *int64  `json:"project_id,omitempty"`
	ParentID    *int64  `json:"parent_id,omitempty"`
	Status      *string `json:"status,omitempty" enum:"pending,in_progress,done,cancelled"`
	Priority    *string `json:"priority,omitempty" enum:"low,medium,high,urgent"`
	DueDate     *string `json:"due_date,omitempty" example:"2026-03-14"`
}

// UpdateTaskRequest distinguishes field-absent from field-null; the raw body
// map from the request context decides which fields were provided.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	ProjectID   *int64  `json:"project_id,omitempty"`
	ParentID    *int64  `json:"parent_id,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

type TaskResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	ProjectID   *int64  `json:"project_id"`
	ParentID    *int64  `json:"parent_id"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"due_date"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		ProjectID:   t.ProjectID,
		ParentID:    t.ParentID,
		Status:      t.Status,
		Priority:    t.Priority,
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

type CompleteResponse struct {
	Completed []int64 `json:"completed"`
}

type DeleteTasksResponse struct {
	Deleted []int64 `json:"deleted"`
}

type ProgressResponse struct {
	TaskID   int64   `json:"task_id"`
	Progress float64 `json:"progress"`
}

type TreeNode struct {
	Task     TaskResponse `json:"task"`
	Progress float64      `json:"progress"`
	Children []TreeNode   `json:"children"`
}

type ImportRequest struct {
	Mode     string         `json:"mode" enum:"merge,replace"`
	Document codec.Document `json:"document"`
}

type ImportResponse struct {
	Mode     string `json:"mode"`
	Projects int    `json:"projects"`
	Tasks    int    `json:"tasks"`
}
