// Package task はカレンダータスクのCRUDを提供する。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/calplanner/internal/model"
)

// localLayouts はタイムゾーンを持たない入力として受け付ける書式。
var localLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// Store はタスクの永続化操作。
type Store interface {
	FindByID(ctx context.Context, id int64) (*model.Task, error)
	ListByUser(ctx context.Context, userID int64, source model.TaskSource) ([]*model.Task, error)
	Create(ctx context.Context, task *model.Task) error
	Update(ctx context.Context, task *model.Task) (*model.Task, error)
	DeleteByID(ctx context.Context, id int64) (*model.Task, error)
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}

// UserFinder はタスク所有者の存在確認に使う。
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// CreateInput はタスク作成の入力。日時は文字列のまま受け取り、サービス内で解釈する。
type CreateInput struct {
	UserID      int64
	Name        string
	Description string
	StartTime   string
	EndTime     string
	Priority    string
	Color       string
	Source      string
}

// UpdateInput はタスク更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Name        *string
	Description *string
	StartTime   *string
	EndTime     *string
	Priority    *string
	Color       *string
}

// Service はタスク管理のサービス層。
type Service struct {
	tasks  Store
	users  UserFinder
	loc    *time.Location
	logger *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// locはタイムゾーンなしの日時入力を解釈する場所。
func NewService(tasks Store, users UserFinder, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tasks: tasks, users: users, loc: loc, logger: logger}
}

// List はユーザーのタスクを開始時刻の昇順で返す。sourceが空なら全件。
// 未知のsourceに一致するタスクは存在しないため空の一覧を返す。
func (s *Service) List(ctx context.Context, userID int64, source string) ([]*model.Task, error) {
	if userID <= 0 {
		return nil, model.NewInvalidRequestError("Valid userId is required")
	}
	src := model.TaskSource(source)
	if source != "" && !src.Valid() {
		return []*model.Task{}, nil
	}

	tasks, err := s.tasks.ListByUser(ctx, userID, src)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	return tasks, nil
}

// Create はタスクを作成する。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Task, error) {
	name := strings.TrimSpace(in.Name)
	if in.UserID <= 0 || name == "" || in.StartTime == "" || in.EndTime == "" {
		return nil, model.NewValidationError("user_id, name, start_time and end_time are required")
	}

	start, err := ParseTime(in.StartTime, s.loc)
	if err != nil {
		return nil, model.NewValidationError("Invalid start_time: " + in.StartTime)
	}
	end, err := ParseTime(in.EndTime, s.loc)
	if err != nil {
		return nil, model.NewValidationError("Invalid end_time: " + in.EndTime)
	}
	if end.Before(start) {
		return nil, model.NewValidationError("end_time must not be before start_time")
	}
	if !model.ValidPriority(in.Priority) {
		return nil, model.NewValidationError("priority must be low, medium or high")
	}

	source := model.TaskSource(in.Source)
	switch {
	case source == model.TaskSourceCanvas:
		// canvasのタスクは同期処理だけが作成する
		return nil, model.NewValidationError("source canvas is reserved for Canvas sync")
	case !source.Valid():
		source = model.TaskSourceManual
	}

	user, err := s.users.FindByID(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	t := &model.Task{
		UserID:      in.UserID,
		Name:        name,
		Description: in.Description,
		StartTime:   start,
		EndTime:     end,
		Priority:    in.Priority,
		Color:       in.Color,
		Source:      source,
	}
	if err := s.tasks.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return t, nil
}

// Update はタスクを部分更新する。
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*model.Task, error) {
	t, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, model.NewValidationError("name must not be empty")
		}
		t.Name = name
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.StartTime != nil {
		start, err := ParseTime(*in.StartTime, s.loc)
		if err != nil {
			return nil, model.NewValidationError("Invalid start_time: " + *in.StartTime)
		}
		t.StartTime = start
	}
	if in.EndTime != nil {
		end, err := ParseTime(*in.EndTime, s.loc)
		if err != nil {
			return nil, model.NewValidationError("Invalid end_time: " + *in.EndTime)
		}
		t.EndTime = end
	}
	if t.EndTime.Before(t.StartTime) {
		return nil, model.NewValidationError("end_time must not be before start_time")
	}
	if in.Priority != nil {
		if !model.ValidPriority(*in.Priority) {
			return nil, model.NewValidationError("priority must be low, medium or high")
		}
		t.Priority = *in.Priority
	}
	if in.Color != nil {
		t.Color = *in.Color
	}

	updated, err := s.tasks.Update(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewTaskNotFoundError()
	}
	return updated, nil
}

// Delete はタスクを削除し、削除したタスクを返す。
func (s *Service) Delete(ctx context.Context, id int64) (*model.Task, error) {
	if id <= 0 {
		return nil, model.NewTaskNotFoundError()
	}
	deleted, err := s.tasks.DeleteByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	if deleted == nil {
		return nil, model.NewTaskNotFoundError()
	}
	return deleted, nil
}

// DeleteMany は指定IDのタスクを一括削除し、削除件数を返す。
// 存在しないIDは無視される。
func (s *Service) DeleteMany(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, model.NewInvalidRequestError("taskIds must be a non-empty array")
	}
	for _, id := range ids {
		if id <= 0 {
			return 0, model.NewValidationError(fmt.Sprintf("Invalid task id: %d", id))
		}
	}

	n, err := s.tasks.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("タスクの一括削除に失敗しました: %w", err)
	}
	s.logger.Info("タスクを一括削除しました",
		slog.Int("requested", len(ids)),
		slog.Int64("deleted", n),
	)
	return n, nil
}

func (s *Service) find(ctx context.Context, id int64) (*model.Task, error) {
	if id <= 0 {
		return nil, model.NewTaskNotFoundError()
	}
	t, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if t == nil {
		return nil, model.NewTaskNotFoundError()
	}
	return t, nil
}

// ParseTime はRFC 3339、またはタイムゾーンなしの "YYYY-MM-DDTHH:mm[:ss]" をlocで解釈する。
func ParseTime(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", raw)
}
