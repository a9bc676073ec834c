package canvas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/calplanner/internal/gcal"
	"github.com/hitoshi/calplanner/internal/model"
	"github.com/hitoshi/calplanner/internal/repository"
)

// mirrorColor はCanvas由来タスクの表示色。
const mirrorColor = "red"

// UserStore はCanvas連携で使用するユーザー永続化操作。
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	UpdateCanvasURL(ctx context.Context, id int64, icsURL string) error
	UpdateCanvasLastSync(ctx context.Context, id int64, at time.Time) error
	ClearCanvas(ctx context.Context, id int64) error
	UpdateGoogleToken(ctx context.Context, id int64, token model.GoogleToken) error
}

// TaskStore はCanvas由来タスクの永続化操作。
type TaskStore interface {
	ListByUser(ctx context.Context, userID int64, source model.TaskSource) ([]*model.Task, error)
	Create(ctx context.Context, task *model.Task) error
	DeleteByUserAndSource(ctx context.Context, userID int64, source model.TaskSource) (int64, error)
}

// FeedFetcher はICS本文を取得する。
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]byte, error)
}

// FeedParser はICS本文をイベントに変換する。
type FeedParser interface {
	Parse(data []byte) ([]Event, error)
}

// URLValidator は登録されるフィードURLを検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// CalendarOpener は保存済みトークンからGoogle Calendarを開く。
type CalendarOpener interface {
	Open(ctx context.Context, token model.GoogleToken) (gcal.Calendar, error)
}

// SyncRecorder は同期結果のメトリクスを記録する。
type SyncRecorder interface {
	RecordSyncResult(added, failed int)
	RecordSyncFailure()
}

type nopRecorder struct{}

func (nopRecorder) RecordSyncResult(int, int) {}
func (nopRecorder) RecordSyncFailure()        {}

// ServiceConfig はServiceの追加設定。
type ServiceConfig struct {
	// EventColorID はGoogle Calendar上のイベント色。空の場合は色を変更しない。
	EventColorID string
	Recorder     SyncRecorder
	Now          func() time.Time
}

// FailedEvent は同期できなかったイベント。
type FailedEvent struct {
	UID     string
	Summary string
	Reason  string
}

// SyncResult は1回の同期結果。
// NewEventsは未同期だったイベントすべてで、失敗したものも含む。
type SyncResult struct {
	AddedEvents  int
	NewEvents    []Event
	FailedEvents []FailedEvent
}

// Status はCanvas連携の状態。
type Status struct {
	IsConnected bool
	ICSURL      string
	LastSync    *time.Time
}

// RemoveResult は連携解除の結果。
type RemoveResult struct {
	DeletedCount         int64
	RemoteDeleteFailures int
}

// Service はCanvas連携の登録・同期・解除を行う。
type Service struct {
	users     UserStore
	tasks     TaskStore
	fetcher   FeedFetcher
	parser    FeedParser
	validator URLValidator
	calendars CalendarOpener
	logger    *slog.Logger
	colorID   string
	recorder  SyncRecorder
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users UserStore,
	tasks TaskStore,
	fetcher FeedFetcher,
	parser FeedParser,
	validator URLValidator,
	calendars CalendarOpener,
	logger *slog.Logger,
	cfg ServiceConfig,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		users:     users,
		tasks:     tasks,
		fetcher:   fetcher,
		parser:    parser,
		validator: validator,
		calendars: calendars,
		logger:    logger,
		colorID:   cfg.EventColorID,
		recorder:  cfg.Recorder,
		now:       cfg.Now,
	}
}

// Setup はフィードURLを保存し、初回同期を行う。
// 同期に失敗してもURLは保存されたまま残る。
func (s *Service) Setup(ctx context.Context, userID int64, icsURL string) (*SyncResult, error) {
	if userID <= 0 || icsURL == "" {
		return nil, model.NewInvalidRequestError("userId and icsUrl are required")
	}
	if err := s.validator.ValidateURL(icsURL); err != nil {
		return nil, model.NewInvalidURLError()
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateCanvasURL(ctx, userID, icsURL); err != nil {
		return nil, fmt.Errorf("CanvasフィードURLの保存に失敗しました: %w", err)
	}
	user.CanvasICSURL = &icsURL

	s.logger.Info("Canvas連携を登録しました", slog.Int64("user_id", userID))
	return s.SyncUser(ctx, user)
}

// Sync は保存済みのフィードURLで同期する。
func (s *Service) Sync(ctx context.Context, userID int64) (*SyncResult, error) {
	if userID <= 0 {
		return nil, model.NewInvalidRequestError("userId is required")
	}
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.CanvasConfigured() {
		return nil, model.NewCanvasNotConfiguredError()
	}
	return s.SyncUser(ctx, user)
}

// SyncUser はユーザーのフィードを取得し、未同期のイベントをGoogle Calendarとタスクに反映する。
// 個別イベントの失敗は同期全体を止めず、FailedEventsに集約される。
func (s *Service) SyncUser(ctx context.Context, user *model.User) (*SyncResult, error) {
	result, err := s.syncUser(ctx, user)
	if err != nil {
		s.recorder.RecordSyncFailure()
		return nil, err
	}
	s.recorder.RecordSyncResult(result.AddedEvents, len(result.FailedEvents))
	return result, nil
}

func (s *Service) syncUser(ctx context.Context, user *model.User) (*SyncResult, error) {
	if !user.CanvasConfigured() {
		return nil, model.NewCanvasNotConfiguredError()
	}
	if !user.GoogleConnected() {
		return nil, model.NewGoogleNotConnectedError()
	}

	body, err := s.fetcher.Fetch(ctx, *user.CanvasICSURL)
	if err != nil {
		return nil, err
	}

	events, err := s.parser.Parse(body)
	if err != nil {
		s.logger.Error("Canvasフィードの解析に失敗しました",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFeedParseFailedError()
	}

	existing, err := s.tasks.ListByUser(ctx, user.ID, model.TaskSourceCanvas)
	if err != nil {
		return nil, fmt.Errorf("同期済みタスクの取得に失敗しました: %w", err)
	}
	mirrored := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		if t.CanvasEventID != "" {
			mirrored[t.CanvasEventID] = struct{}{}
		}
	}

	result := &SyncResult{NewEvents: []Event{}}
	for _, ev := range events {
		if _, ok := mirrored[ev.UID]; ok {
			continue
		}
		mirrored[ev.UID] = struct{}{}
		result.NewEvents = append(result.NewEvents, ev)
	}

	if len(result.NewEvents) > 0 {
		cal, err := s.calendars.Open(ctx, googleToken(user))
		if err != nil {
			return nil, fmt.Errorf("Google Calendarの初期化に失敗しました: %w", err)
		}

		for _, ev := range result.NewEvents {
			if err := s.mirrorEvent(ctx, cal, user.ID, ev); err != nil {
				s.logger.Error("Canvasイベントの追加に失敗しました",
					slog.Int64("user_id", user.ID),
					slog.String("uid", ev.UID),
					slog.String("summary", ev.Summary),
					slog.String("error", err.Error()),
				)
				result.FailedEvents = append(result.FailedEvents, FailedEvent{
					UID:     ev.UID,
					Summary: ev.Summary,
					Reason:  err.Error(),
				})
				continue
			}
			result.AddedEvents++
		}

		s.persistRefreshedToken(ctx, user.ID, cal)
	}

	if err := s.users.UpdateCanvasLastSync(ctx, user.ID, s.now()); err != nil {
		return nil, fmt.Errorf("最終同期日時の更新に失敗しました: %w", err)
	}

	s.logger.Info("Canvas同期が完了しました",
		slog.Int64("user_id", user.ID),
		slog.Int("feed_events", len(events)),
		slog.Int("new_events", len(result.NewEvents)),
		slog.Int("added_events", result.AddedEvents),
		slog.Int("failed_events", len(result.FailedEvents)),
	)
	return result, nil
}

// mirrorEvent は1件のイベントをGoogle Calendarに作成し、タスクとして保存する。
// タスク保存が重複で失敗した場合は作成したGoogleイベントを削除する。
func (s *Service) mirrorEvent(ctx context.Context, cal gcal.Calendar, userID int64, ev Event) error {
	googleID, err := cal.CreateEvent(ctx, gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       ev.Start,
		End:         ev.End,
	})
	if err != nil {
		return err
	}

	if googleID != "" && s.colorID != "" {
		if err := cal.SetEventColor(ctx, googleID, s.colorID); err != nil {
			s.logger.Warn("イベント色の設定に失敗しました",
				slog.Int64("user_id", userID),
				slog.String("google_event_id", googleID),
				slog.String("error", err.Error()),
			)
		}
	}

	task := &model.Task{
		UserID:        userID,
		Name:          ev.Summary,
		Description:   ev.Description,
		StartTime:     ev.Start,
		EndTime:       ev.End,
		Color:         mirrorColor,
		Source:        model.TaskSourceCanvas,
		CanvasEventID: ev.UID,
		GoogleEventID: googleID,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		if errors.Is(err, repository.ErrDuplicate) && googleID != "" {
			if delErr := cal.DeleteEvent(ctx, googleID); delErr != nil {
				s.logger.Warn("重複イベントの削除に失敗しました",
					slog.Int64("user_id", userID),
					slog.String("google_event_id", googleID),
					slog.String("error", delErr.Error()),
				)
			}
		}
		return fmt.Errorf("タスクの保存に失敗しました: %w", err)
	}
	return nil
}

// Status はフィードURLと最終同期日時を返す。
// ユーザーが存在しない場合は未接続として扱う。
func (s *Service) Status(ctx context.Context, userID int64) (*Status, error) {
	if userID <= 0 {
		return nil, model.NewInvalidRequestError("Valid userId is required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil || !user.CanvasConfigured() {
		return &Status{}, nil
	}
	return &Status{
		IsConnected: true,
		ICSURL:      *user.CanvasICSURL,
		LastSync:    user.CanvasLastSync,
	}, nil
}

// Remove はCanvas連携を解除する。
// Google Calendar上のイベント削除はベストエフォートで、失敗件数のみ返す。
func (s *Service) Remove(ctx context.Context, userID int64) (*RemoveResult, error) {
	if userID <= 0 {
		return nil, model.NewInvalidRequestError("userId is required")
	}
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	mirrors, err := s.tasks.ListByUser(ctx, userID, model.TaskSourceCanvas)
	if err != nil {
		return nil, fmt.Errorf("同期済みタスクの取得に失敗しました: %w", err)
	}

	result := &RemoveResult{}
	if user.GoogleConnected() {
		result.RemoteDeleteFailures = s.deleteRemoteEvents(ctx, user, mirrors)
	}

	deleted, err := s.tasks.DeleteByUserAndSource(ctx, userID, model.TaskSourceCanvas)
	if err != nil {
		return nil, fmt.Errorf("Canvasタスクの削除に失敗しました: %w", err)
	}
	result.DeletedCount = deleted

	if err := s.users.ClearCanvas(ctx, userID); err != nil {
		return nil, fmt.Errorf("Canvas設定の削除に失敗しました: %w", err)
	}

	s.logger.Info("Canvas連携を解除しました",
		slog.Int64("user_id", userID),
		slog.Int64("deleted_tasks", deleted),
		slog.Int("remote_delete_failures", result.RemoteDeleteFailures),
	)
	return result, nil
}

// deleteRemoteEvents はGoogleイベントを削除し、失敗件数を返す。
func (s *Service) deleteRemoteEvents(ctx context.Context, user *model.User, mirrors []*model.Task) int {
	var targets []*model.Task
	for _, t := range mirrors {
		if t.GoogleEventID != "" {
			targets = append(targets, t)
		}
	}
	if len(targets) == 0 {
		return 0
	}

	cal, err := s.calendars.Open(ctx, googleToken(user))
	if err != nil {
		s.logger.Warn("Google Calendarを開けないためリモート削除を省略します",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return len(targets)
	}

	failures := 0
	for _, t := range targets {
		if err := cal.DeleteEvent(ctx, t.GoogleEventID); err != nil {
			failures++
			s.logger.Warn("Googleイベントの削除に失敗しました",
				slog.Int64("user_id", user.ID),
				slog.String("google_event_id", t.GoogleEventID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.persistRefreshedToken(ctx, user.ID, cal)
	return failures
}

// persistRefreshedToken はリフレッシュされたアクセストークンを保存する。
func (s *Service) persistRefreshedToken(ctx context.Context, userID int64, cal gcal.Calendar) {
	token, refreshed, err := cal.Token()
	if err != nil || !refreshed {
		return
	}
	if err := s.users.UpdateGoogleToken(ctx, userID, token); err != nil {
		s.logger.Warn("更新されたGoogleトークンの保存に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) findUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func googleToken(user *model.User) model.GoogleToken {
	token := model.GoogleToken{
		AccessToken:  user.GoogleAccessToken,
		RefreshToken: user.GoogleRefreshToken,
	}
	if user.GoogleTokenExpiry != nil {
		token.Expiry = *user.GoogleTokenExpiry
	}
	return token
}
