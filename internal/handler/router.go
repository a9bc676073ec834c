package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/calplanner/internal/middleware"
)

// HealthChecker はDB接続の疎通確認を行う。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	// TrustProxyHeaders がtrueの場合のみX-Forwarded-For等からクライアントIPを決める。
	// リバースプロキシの背後で動かすとき以外は有効にしない。
	TrustProxyHeaders bool

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメイン
	TaskService      TaskServiceInterface
	UserService      UserServiceInterface
	AssistantService AssistantServiceInterface
	CanvasService    CanvasServiceInterface

	// Google Calendar接続
	CalendarService CalendarConnectionServiceInterface
	CalendarConfig  CalendarHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	[RealIP] → Logging → Recovery → SecurityHeaders → CORS → (/api) RateLimit(General)
//
// RealIPはTrustProxyHeadersが有効な場合のみ挟む。
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	taskHandler := NewTaskHandler(deps.TaskService)
	userHandler := NewUserHandler(deps.UserService)
	assistantHandler := NewAssistantHandler(deps.AssistantService)
	canvasHandler := NewCanvasHandler(deps.CanvasService)
	calendarHandler := NewCalendarHandler(deps.CalendarService, deps.CalendarConfig)

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.List)
			r.Post("/", taskHandler.Create)
			r.Post("/cleanup-duplicates", taskHandler.CleanupDuplicates)
			r.Put("/{id}", taskHandler.Update)
			r.Delete("/{id}", taskHandler.Delete)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", userHandler.Signup)
			r.Post("/login", userHandler.Login)
			r.Get("/{id}", userHandler.Get)
			r.Put("/{id}", userHandler.Update)
		})

		// チャット補完を呼ぶため専用のレート制限を追加する
		r.Route("/assistant", func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.AssistantMiddleware())
			}
			r.Post("/process", assistantHandler.Process)
		})

		r.Route("/canvas", func(r chi.Router) {
			r.Post("/setup", canvasHandler.Setup)
			r.Post("/sync", canvasHandler.Sync)
			r.Get("/status", canvasHandler.Status)
			r.Delete("/remove", canvasHandler.Remove)
		})

		r.Route("/google-calendar", func(r chi.Router) {
			r.Get("/auth-url", calendarHandler.AuthURL)
			r.Get("/callback", calendarHandler.Callback)
			r.Get("/status", calendarHandler.Status)
			r.Delete("/disconnect", calendarHandler.Disconnect)
		})
	})

	return r
}

type healthResponse struct {
	Status string `json:"status"`
}

// healthHandler はDBへの疎通を確認し、失敗時は503を返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
