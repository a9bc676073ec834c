package app

import (
	"database/sql"
	"log/slog"

	"github.com/hitoshi/calplanner/internal/assistant"
	"github.com/hitoshi/calplanner/internal/auth"
	"github.com/hitoshi/calplanner/internal/canvas"
	"github.com/hitoshi/calplanner/internal/config"
	"github.com/hitoshi/calplanner/internal/gcal"
	"github.com/hitoshi/calplanner/internal/metrics"
	"github.com/hitoshi/calplanner/internal/repository"
	"github.com/hitoshi/calplanner/internal/security"
	"github.com/hitoshi/calplanner/internal/task"
	"github.com/hitoshi/calplanner/internal/user"
)

// services はserve・worker・メンテナンスコマンドが共有するドメインサービス群。
type services struct {
	userRepo *repository.PostgresUserRepo

	tasks     *task.Service
	users     *user.Service
	assistant *assistant.Service
	canvas    *canvas.Service
	calendar  *auth.Service
}

// newServices はリポジトリと外部クライアントを組み立て、ドメインサービスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func newServices(cfg *config.Config, db *sql.DB, collector *metrics.Collector, logger *slog.Logger) *services {
	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)

	// 2. メトリクス記録先
	var (
		assistantRecorder assistant.Recorder
		syncRecorder      canvas.SyncRecorder
		fetchRecorder     canvas.FetchRecorder
	)
	if collector != nil {
		assistantRecorder = collector
		syncRecorder = collector
		fetchRecorder = collector
	}

	// 3. Google OAuth / Calendar
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	calendarClient := gcal.NewClient(oauthProvider.Config(), gcal.ClientOptions{})
	calendarService := auth.NewService(oauthProvider, userRepo, auth.NewStateSigner(cfg.OAuthStateSecret), logger)

	// 4. Canvas
	urlGuard := security.NewURLGuard()
	fetcher := canvas.NewFetcher(urlGuard, fetchRecorder, logger, canvas.FetcherConfig{
		Timeout:      cfg.CanvasFetchTimeout,
		MaxBodySize:  cfg.CanvasFetchMaxSize,
		MaxRedirects: cfg.CanvasMaxRedirects,
	})
	parser := canvas.NewParser(security.NewDescriptionSanitizer(), logger)
	canvasService := canvas.NewService(
		userRepo, taskRepo, fetcher, parser, urlGuard, calendarClient, logger,
		canvas.ServiceConfig{
			EventColorID: cfg.CanvasEventColorID,
			Recorder:     syncRecorder,
		},
	)

	// 5. チャット補完
	completer := assistant.NewOpenAICompleter(assistant.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		Temperature: cfg.OpenAITemperature,
		Timeout:     cfg.OpenAITimeout,
	})
	assistantService := assistant.NewService(userRepo, taskRepo, completer, logger, assistant.ServiceConfig{
		HistoryLimit: cfg.AssistantHistoryMax,
		Location:     cfg.Location,
		Recorder:     assistantRecorder,
	})

	return &services{
		userRepo:  userRepo,
		tasks:     task.NewService(taskRepo, userRepo, cfg.Location, logger),
		users:     user.NewService(userRepo, cfg.BcryptCost, logger),
		assistant: assistantService,
		canvas:    canvasService,
		calendar:  calendarService,
	}
}
