// Package cleanup は重複タスクの一括削除ジョブを提供する。
// 同一ユーザー・同一内容のタスクが複数ある場合、最小IDの1件だけを残して削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// duplicateCondition は2行が同一タスクとみなされる条件。
// canvas_event_idはNULL同士も一致として扱う。
const duplicateCondition = `a.id > b.id
	AND a.user_id = b.user_id
	AND a.name = b.name
	AND a.start_time = b.start_time
	AND a.end_time = b.end_time
	AND a.source = b.source
	AND a.canvas_event_id IS NOT DISTINCT FROM b.canvas_event_id`

// DuplicateCleanupJob は重複タスクを削除するジョブ。
// 何度実行しても結果が変わらない。
type DuplicateCleanupJob struct {
	db     Executor
	logger *slog.Logger
	UserID int64 // 0の場合は全ユーザーが対象
}

// NewDuplicateCleanupJob は新しいDuplicateCleanupJobを生成する。
func NewDuplicateCleanupJob(db Executor, logger *slog.Logger) *DuplicateCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DuplicateCleanupJob{
		db:     db,
		logger: logger,
	}
}

// Run は重複タスクを削除し、削除件数を返す。
func (j *DuplicateCleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	query := `DELETE FROM tasks a USING tasks b WHERE ` + duplicateCondition
	var args []any
	if j.UserID > 0 {
		query += ` AND a.user_id = $1`
		args = append(args, j.UserID)
	}

	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error("重複タスクの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int64("user_id", j.UserID),
		)
		return 0, fmt.Errorf("重複タスク削除の実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("重複タスクの削除が完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int64("user_id", j.UserID),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return deletedCount, nil
}
