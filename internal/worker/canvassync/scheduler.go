// Package canvassync はCanvasフィードの定期再同期ワーカーを提供する。
package canvassync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/calplanner/internal/canvas"
	"github.com/hitoshi/calplanner/internal/model"
)

// SubscriberLister はCanvas連携済みユーザーの一覧を返す。
type SubscriberLister interface {
	ListCanvasSubscribers(ctx context.Context) ([]*model.User, error)
}

// UserSyncer は1ユーザー分のCanvas同期を実行する。
type UserSyncer interface {
	SyncUser(ctx context.Context, user *model.User) (*canvas.SyncResult, error)
}

// Scheduler は一定間隔で全連携ユーザーのフィードを再同期する。
// ユーザーは1人ずつ順に処理し、前のサイクルが終わっていない場合は次をスキップする。
type Scheduler struct {
	users  SubscriberLister
	syncer UserSyncer
	logger *slog.Logger
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(users SubscriberLister, syncer UserSyncer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		users:  users,
		syncer: syncer,
		logger: logger,
	}
}

// Start は起動直後に1回同期し、その後intervalごとに同期する。
// コンテキストがキャンセルされるまでブロックし、実行中のサイクルの終了を待って戻る。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sync interval must be positive: %s", interval)
	}

	c := cron.New(cron.WithChain(
		cron.Recover(s.cronLogger()),
		cron.SkipIfStillRunning(s.cronLogger()),
	))
	if _, err := c.AddFunc("@every "+interval.String(), func() { s.runCycle(ctx) }); err != nil {
		return fmt.Errorf("同期ジョブの登録に失敗: %w", err)
	}

	s.logger.Info("Canvas同期スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	s.runCycle(ctx)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	s.logger.Info("Canvas同期スケジューラを停止しました")
	return nil
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Canvas同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は連携済みユーザー全員のフィードを順に同期する。
// 個別ユーザーの失敗はログに記録し、残りのユーザーの処理を続ける。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	users, err := s.users.ListCanvasSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("連携ユーザーの取得に失敗: %w", err)
	}
	if len(users) == 0 {
		s.logger.Info("同期対象のユーザーはいません")
		return nil
	}

	var added, failedUsers int
	for _, u := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := s.syncer.SyncUser(ctx, u)
		if err != nil {
			failedUsers++
			s.logger.Error("Canvas同期に失敗しました",
				slog.Int64("user_id", u.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		added += res.AddedEvents
		if len(res.FailedEvents) > 0 {
			s.logger.Warn("一部のイベントを同期できませんでした",
				slog.Int64("user_id", u.ID),
				slog.Int("failed_events", len(res.FailedEvents)),
			)
		}
	}

	s.logger.Info("Canvas同期サイクルが完了しました",
		slog.Int("user_count", len(users)),
		slog.Int("failed_users", failedUsers),
		slog.Int("added_events", added),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// cronLogger はcronの内部ログをslogに流す。
func (s *Scheduler) cronLogger() cron.Logger {
	return cron.PrintfLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn))
}
