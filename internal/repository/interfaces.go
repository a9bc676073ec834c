// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/calplanner/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDとタイムスタンプをuserに設定する。
	// メールアドレスが重複している場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// Update は氏名・メールアドレス・パスワードを更新する。
	// 対象が存在しない場合はnilを返す。
	Update(ctx context.Context, user *model.User) (*model.User, error)

	// UpdatePassword はパスワードハッシュのみを更新する。
	UpdatePassword(ctx context.Context, id int64, hash string) error

	// ListAll は全ユーザーをID昇順で返す。
	ListAll(ctx context.Context) ([]*model.User, error)

	// UpdateGoogleToken はGoogle Calendarのトークンを保存する。
	UpdateGoogleToken(ctx context.Context, id int64, token model.GoogleToken) error

	// ClearGoogleToken はGoogle Calendarのトークンを削除する。
	ClearGoogleToken(ctx context.Context, id int64) error

	// UpdateCanvasURL はCanvasのICSフィードURLを保存する。
	UpdateCanvasURL(ctx context.Context, id int64, icsURL string) error

	// UpdateCanvasLastSync は最終同期日時を更新する。
	UpdateCanvasLastSync(ctx context.Context, id int64, at time.Time) error

	// ClearCanvas はCanvasのフィードURLと最終同期日時を削除する。
	ClearCanvas(ctx context.Context, id int64) error

	// ListCanvasSubscribers はCanvasとGoogle Calendarの両方を設定済みのユーザーを返す。
	ListCanvasSubscribers(ctx context.Context) ([]*model.User, error)
}

// TaskRepository はタスクデータの永続化インターフェース。
type TaskRepository interface {
	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Task, error)

	// ListByUser はユーザーのタスクを開始時刻の昇順で返す。
	// sourceが空の場合は全ソースを対象にする。
	ListByUser(ctx context.Context, userID int64, source model.TaskSource) ([]*model.Task, error)

	// ListRecentByUser はユーザーのタスクを開始時刻の降順で最大limit件返す。
	ListRecentByUser(ctx context.Context, userID int64, limit int) ([]*model.Task, error)

	// Create はタスクを作成し、採番されたIDとタイムスタンプをtaskに設定する。
	// Canvasの同一UIDが既に存在する場合はErrDuplicateを返す。
	Create(ctx context.Context, task *model.Task) error

	// Update はタスクを上書き更新する。対象が存在しない場合はnilを返す。
	Update(ctx context.Context, task *model.Task) (*model.Task, error)

	// DeleteByID は指定IDのタスクを削除し、削除した行を返す。
	// 対象が存在しない場合はnilを返す。
	DeleteByID(ctx context.Context, id int64) (*model.Task, error)

	// DeleteByIDs は指定IDのタスクを一括削除し、削除件数を返す。
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)

	// DeleteByUserAndSource はユーザーの指定ソースのタスクを一括削除し、削除件数を返す。
	DeleteByUserAndSource(ctx context.Context, userID int64, source model.TaskSource) (int64, error)
}
