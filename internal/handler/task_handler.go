package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/calplanner/internal/model"
	"github.com/hitoshi/calplanner/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	List(ctx context.Context, userID int64, source string) ([]*model.Task, error)
	Create(ctx context.Context, in task.CreateInput) (*model.Task, error)
	Update(ctx context.Context, id int64, in task.UpdateInput) (*model.Task, error)
	Delete(ctx context.Context, id int64) (*model.Task, error)
	// DeleteMany は指定IDのタスクを一括削除し、削除件数を返す。
	DeleteMany(ctx context.Context, ids []int64) (int64, error)
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{service: service}
}

// createTaskRequest はタスク作成リクエストのボディ。
type createTaskRequest struct {
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Priority    string `json:"priority"`
	Color       string `json:"color"`
	Source      string `json:"source"`
}

// updateTaskRequest はタスク更新リクエストのボディ。省略したフィールドは変更しない。
type updateTaskRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	StartTime   *string `json:"start_time"`
	EndTime     *string `json:"end_time"`
	Priority    *string `json:"priority"`
	Color       *string `json:"color"`
}

// cleanupDuplicatesRequest は一括削除リクエストのボディ。
type cleanupDuplicatesRequest struct {
	TaskIDs []int64 `json:"taskIds"`
}

type taskListResponse struct {
	Tasks []taskResponse `json:"tasks"`
}

type taskDeletedResponse struct {
	Message string       `json:"message"`
	Task    taskResponse `json:"task"`
}

type cleanupDuplicatesResponse struct {
	Message      string `json:"message"`
	DeletedCount int64  `json:"deletedCount"`
}

// List はユーザーのタスク一覧を返す。
// GET /api/tasks?userId=&source=
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.List(r.Context(), queryID(r, "userId"), r.URL.Query().Get("source"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskListResponse{Tasks: toTaskResponses(tasks)})
}

// Create はタスクを作成する。
// POST /api/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	t, err := h.service.Create(r.Context(), task.CreateInput{
		UserID:      req.UserID,
		Name:        req.Name,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Priority:    req.Priority,
		Color:       req.Color,
		Source:      req.Source,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskResponse(t))
}

// Update はタスクを部分更新する。
// PUT /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	t, err := h.service.Update(r.Context(), pathID(r, "id"), task.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Priority:    req.Priority,
		Color:       req.Color,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

// Delete はタスクを削除し、削除したタスクを返す。
// DELETE /api/tasks/{id}
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Delete(r.Context(), pathID(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, taskDeletedResponse{Message: "Task deleted", Task: toTaskResponse(t)})
}

// CleanupDuplicates は指定IDのタスクを一括削除する。
// POST /api/tasks/cleanup-duplicates
func (h *TaskHandler) CleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	var req cleanupDuplicatesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	n, err := h.service.DeleteMany(r.Context(), req.TaskIDs)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cleanupDuplicatesResponse{
		Message:      fmt.Sprintf("Deleted %d duplicate task(s)", n),
		DeletedCount: n,
	})
}
