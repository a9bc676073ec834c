package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/calplanner/internal/model"
)

const taskColumns = `id, user_id, name, description, start_time, end_time,
	priority, color, source, canvas_event_id, google_event_id, created_at, updated_at`

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

func scanTask(s rowScanner) (*model.Task, error) {
	var (
		task          model.Task
		description   sql.NullString
		priority      sql.NullString
		color         sql.NullString
		source        string
		canvasEventID sql.NullString
		googleEventID sql.NullString
	)
	err := s.Scan(
		&task.ID, &task.UserID, &task.Name, &description, &task.StartTime, &task.EndTime,
		&priority, &color, &source, &canvasEventID, &googleEventID,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Description = nullStringValue(description)
	task.Priority = nullStringValue(priority)
	task.Color = nullStringValue(color)
	task.Source = model.TaskSource(source)
	task.CanvasEventID = nullStringValue(canvasEventID)
	task.GoogleEventID = nullStringValue(googleEventID)

	return &task, nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id int64) (*model.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	return task, nil
}

// ListByUser はユーザーのタスクを開始時刻の昇順で返す。
func (r *PostgresTaskRepo) ListByUser(ctx context.Context, userID int64, source model.TaskSource) ([]*model.Task, error) {
	if source == "" {
		return r.list(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY start_time ASC, id ASC`,
			userID)
	}
	return r.list(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 AND source = $2 ORDER BY start_time ASC, id ASC`,
		userID, string(source))
}

// ListRecentByUser はユーザーのタスクを開始時刻の降順で最大limit件返す。
func (r *PostgresTaskRepo) ListRecentByUser(ctx context.Context, userID int64, limit int) ([]*model.Task, error) {
	return r.list(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY start_time DESC, id DESC LIMIT $2`,
		userID, limit)
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	source := task.Source
	if source == "" {
		source = model.TaskSourceDefault
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO tasks (user_id, name, description, start_time, end_time,
		                    priority, color, source, canvas_event_id, google_event_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, source, created_at, updated_at`,
		task.UserID, task.Name, nullString(task.Description), task.StartTime, task.EndTime,
		nullString(task.Priority), nullString(task.Color), string(source),
		nullString(task.CanvasEventID), nullString(task.GoogleEventID),
	).Scan(&task.ID, &source, &task.CreatedAt, &task.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	task.Source = source
	return nil
}

// Update はタスクを上書き更新する。対象が存在しない場合はnilを返す。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task) (*model.Task, error) {
	updated, err := scanTask(r.db.QueryRowContext(ctx,
		`UPDATE tasks
		 SET name = $2, description = $3, start_time = $4, end_time = $5,
		     priority = $6, color = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING `+taskColumns,
		task.ID, task.Name, nullString(task.Description), task.StartTime, task.EndTime,
		nullString(task.Priority), nullString(task.Color),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	return updated, nil
}

// DeleteByID は指定IDのタスクを削除し、削除した行を返す。
func (r *PostgresTaskRepo) DeleteByID(ctx context.Context, id int64) (*model.Task, error) {
	task, err := scanTask(r.db.QueryRowContext(ctx,
		`DELETE FROM tasks WHERE id = $1 RETURNING `+taskColumns, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	return task, nil
}

// DeleteByIDs は指定IDのタスクを一括削除し、削除件数を返す。
func (r *PostgresTaskRepo) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("タスクの一括削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// DeleteByUserAndSource はユーザーの指定ソースのタスクを一括削除し、削除件数を返す。
func (r *PostgresTaskRepo) DeleteByUserAndSource(ctx context.Context, userID int64, source model.TaskSource) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE user_id = $1 AND source = $2`, userID, string(source))
	if err != nil {
		return 0, fmt.Errorf("ソース別タスク削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

func (r *PostgresTaskRepo) list(ctx context.Context, query string, args ...any) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	tasks := make([]*model.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("タスク行のスキャンに失敗しました: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タスク一覧の走査に失敗しました: %w", err)
	}
	return tasks, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
