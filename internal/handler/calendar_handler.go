package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

// CalendarConnectionServiceInterface はGoogle Calendar接続ハンドラーが必要とするサービスインターフェース。
type CalendarConnectionServiceInterface interface {
	AuthURL(ctx context.Context, userID int64) (string, error)
	HandleCallback(ctx context.Context, code, state string) (int64, error)
	Status(ctx context.Context, userID int64) (bool, error)
	Disconnect(ctx context.Context, userID int64) error
}

// CalendarHandlerConfig はGoogle Calendar接続ハンドラーの設定。
type CalendarHandlerConfig struct {
	// FrontendURL はOAuthコールバック後のリダイレクト先の基点。
	FrontendURL string
}

// CalendarHandler はGoogle Calendar接続のHTTPハンドラー。
type CalendarHandler struct {
	service CalendarConnectionServiceInterface
	config  CalendarHandlerConfig
}

// NewCalendarHandler はCalendarHandlerを生成する。
func NewCalendarHandler(service CalendarConnectionServiceInterface, config CalendarHandlerConfig) *CalendarHandler {
	return &CalendarHandler{
		service: service,
		config:  config,
	}
}

type authURLResponse struct {
	AuthURL string `json:"authUrl"`
}

type calendarStatusResponse struct {
	IsConnected bool `json:"isConnected"`
}

// AuthURL はGoogleの同意画面URLを返す。
// GET /api/google-calendar/auth-url?userId=
func (h *CalendarHandler) AuthURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.AuthURL(r.Context(), queryID(r, "userId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, authURLResponse{AuthURL: u})
}

// Callback はOAuthコールバックを処理し、フロントエンドの設定画面にリダイレクトする。
// GET /api/google-calendar/callback?code=&state=
func (h *CalendarHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result := "connected"
	if oauthErr := q.Get("error"); oauthErr != "" {
		// 同意画面でユーザーが拒否した場合
		slog.Warn("oauth consent was not granted", slog.String("error", oauthErr))
		result = "error"
	} else if _, err := h.service.HandleCallback(r.Context(), q.Get("code"), q.Get("state")); err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		result = "error"
	}

	http.Redirect(w, r, h.settingsURL(result), http.StatusTemporaryRedirect)
}

// Status はGoogle Calendarの接続状態を返す。
// GET /api/google-calendar/status?userId=
func (h *CalendarHandler) Status(w http.ResponseWriter, r *http.Request) {
	connected, err := h.service.Status(r.Context(), queryID(r, "userId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calendarStatusResponse{IsConnected: connected})
}

// Disconnect は保存済みのトークンを削除する。
// DELETE /api/google-calendar/disconnect
func (h *CalendarHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.Disconnect(r.Context(), req.UserID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Google Calendar disconnected"})
}

func (h *CalendarHandler) settingsURL(result string) string {
	return h.config.FrontendURL + "/settings?" + url.Values{"google": {result}}.Encode()
}
