package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/calplanner/internal/model"
	"github.com/hitoshi/calplanner/internal/schedule"
)

// UserFinder はユーザーの存在確認に必要なインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// TaskStore はタスク履歴の取得と登録に必要なインターフェース。
type TaskStore interface {
	ListRecentByUser(ctx context.Context, userID int64, limit int) ([]*model.Task, error)
	Create(ctx context.Context, task *model.Task) error
}

// Recorder はアシスタント処理のメトリクス記録インターフェース。
type Recorder interface {
	RecordCompletionLatency(duration time.Duration)
	RecordAssistantResult(created, conflicts int)
	RecordAssistantFailure()
}

type nopRecorder struct{}

func (nopRecorder) RecordCompletionLatency(time.Duration) {}
func (nopRecorder) RecordAssistantResult(int, int)        {}
func (nopRecorder) RecordAssistantFailure()               {}

// ServiceConfig はアシスタントサービスの設定。
type ServiceConfig struct {
	// HistoryLimit は傾向分析と重複判定に使う直近タスクの件数。
	HistoryLimit int
	// Location は日付・時刻を解釈するタイムゾーン。
	Location *time.Location
	// Recorder はメトリクスの記録先。nilの場合は記録しない。
	Recorder Recorder
	// Now は現在時刻の取得関数。nilの場合はtime.Nowを使う。
	Now func() time.Time
}

// Result は自然言語処理の結果。
type Result struct {
	Message      string
	Tasks        []Candidate
	TasksCreated int
	MissingInfo  []string
	Conflicts    []string
	FailedTasks  []string
}

// Service は自然言語の入力からタスクを抽出・登録するサービス。
type Service struct {
	users     UserFinder
	tasks     TaskStore
	completer Completer
	logger    *slog.Logger
	cfg       ServiceConfig
}

// NewService はServiceを生成する。
func NewService(users UserFinder, tasks TaskStore, completer Completer, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:     users,
		tasks:     tasks,
		completer: completer,
		logger:    logger,
		cfg:       cfg,
	}
}

// scheduledCandidate は検証済みの候補と解決済みの時刻。
type scheduledCandidate struct {
	Candidate
	start time.Time
	end   time.Time
}

// Process は自然言語の入力を解釈し、抽出したタスクを登録する。
//
// 処理順序:
//  1. 入力とユーザーの検証
//  2. 直近タスクの取得と傾向分析
//  3. チャット補完と応答の修復
//  4. 候補ごとの検証、終了時刻の補完、重複判定
//  5. 候補の逐次登録（個別の失敗はスキップ）
func (s *Service) Process(ctx context.Context, userID int64, input string) (*Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, model.NewInvalidRequestError("Invalid input. Please provide a task description.")
	}
	if userID <= 0 {
		return nil, model.NewInvalidRequestError("User ID is required.")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	history, err := s.tasks.ListRecentByUser(ctx, userID, s.cfg.HistoryLimit)
	if err != nil {
		s.logger.Error("タスク履歴の取得に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		s.cfg.Recorder.RecordAssistantFailure()
		return nil, model.NewAssistantFailedError()
	}

	now := s.cfg.Now().In(s.cfg.Location)
	patterns := schedule.AnalyzePatterns(history, s.cfg.Location)

	started := time.Now()
	reply, err := s.completer.Complete(ctx, BuildSystemPrompt(now, patterns), input)
	s.cfg.Recorder.RecordCompletionLatency(time.Since(started))
	if err != nil {
		s.logger.Error("チャット補完に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		s.cfg.Recorder.RecordAssistantFailure()
		return nil, model.NewAssistantFailedError()
	}

	candidates := ParseReply(reply)
	if len(candidates) == 0 {
		s.logger.Warn("応答からタスクを抽出できませんでした",
			slog.Int64("user_id", userID),
			slog.Int("reply_length", len(reply)),
		)
	}

	result := &Result{Tasks: []Candidate{}}
	valid := s.validate(candidates, now, patterns, history, result)

	for _, c := range valid {
		task := &model.Task{
			UserID:      userID,
			Name:        c.Name,
			Description: c.Description,
			StartTime:   c.start,
			EndTime:     c.end,
			Priority:    c.Priority,
			Source:      model.TaskSourceDefault,
		}
		if err := s.tasks.Create(ctx, task); err != nil {
			s.logger.Error("アシスタント経由のタスク作成に失敗しました",
				slog.Int64("user_id", userID),
				slog.String("task_name", c.Name),
				slog.String("error", err.Error()),
			)
			result.FailedTasks = append(result.FailedTasks, c.Name)
			continue
		}
		result.TasksCreated++
	}

	result.Message = summarize(result)
	s.cfg.Recorder.RecordAssistantResult(result.TasksCreated, len(result.Conflicts))

	s.logger.Info("アシスタントリクエストを処理しました",
		slog.Int64("user_id", userID),
		slog.Int("candidates", len(candidates)),
		slog.Int("tasks_created", result.TasksCreated),
		slog.Int("conflicts", len(result.Conflicts)),
		slog.Int("missing_info", len(result.MissingInfo)),
	)

	return result, nil
}

// validate は候補を順に検証し、登録可能な候補を返す。
// 欠落情報と重複はresultに追記する。
func (s *Service) validate(candidates []Candidate, now time.Time, patterns schedule.Patterns, history []*model.Task, result *Result) []scheduledCandidate {
	today := now.Format("2006-01-02")
	var valid []scheduledCandidate

	for _, c := range candidates {
		if c.Name == "" {
			result.MissingInfo = append(result.MissingInfo, "Task name is required")
			continue
		}
		if c.Date == "" {
			c.Date = today
		}
		if c.StartTime == "" {
			result.MissingInfo = append(result.MissingInfo, fmt.Sprintf("Start time missing for \"%s\"", c.Name))
			continue
		}
		if c.EndTime == "" {
			end, err := schedule.AddMinutes(c.StartTime, patterns.AverageDuration)
			if err != nil {
				result.MissingInfo = append(result.MissingInfo, fmt.Sprintf("Invalid date or time for \"%s\"", c.Name))
				continue
			}
			c.EndTime = end
		}
		c.Priority = normalizePriority(c.Priority)

		start, startErr := schedule.CombineDateTime(c.Date, c.StartTime, s.cfg.Location)
		end, endErr := schedule.CombineDateTime(c.Date, c.EndTime, s.cfg.Location)
		if startErr != nil || endErr != nil {
			result.MissingInfo = append(result.MissingInfo, fmt.Sprintf("Invalid date or time for \"%s\"", c.Name))
			continue
		}
		if end.Before(start) {
			// 日付をまたぐ予定（例: 23:00-01:00）は翌日終了とみなす
			end = end.AddDate(0, 0, 1)
		}

		if overlapping := schedule.FindConflicts(start, end, history); len(overlapping) > 0 {
			result.Conflicts = append(result.Conflicts,
				fmt.Sprintf("\"%s\" at %s overlaps with %d existing task(s)", c.Name, c.StartTime, len(overlapping)))
		}

		result.Tasks = append(result.Tasks, c)
		valid = append(valid, scheduledCandidate{Candidate: c, start: start, end: end})
	}

	return valid
}

func normalizePriority(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" || !model.ValidPriority(p) {
		return model.PriorityMedium
	}
	return p
}

// summarize は結果に応じた要約メッセージを生成する。
func summarize(r *Result) string {
	switch {
	case r.TasksCreated > 0:
		msg := fmt.Sprintf("Created %d %s successfully.", r.TasksCreated, plural(r.TasksCreated, "task"))
		if n := len(r.Conflicts); n > 0 {
			msg += fmt.Sprintf(" Warning: %d scheduling %s detected.", n, plural(n, "conflict"))
		}
		return msg
	case len(r.MissingInfo) > 0:
		return fmt.Sprintf("Cannot create task. Missing: %s.", strings.Join(r.MissingInfo, ", "))
	default:
		return "Could not understand the request. Please provide task details."
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
