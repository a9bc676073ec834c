package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/calplanner/internal/canvas"
)

// CanvasServiceInterface はCanvasハンドラーが必要とするサービスインターフェース。
type CanvasServiceInterface interface {
	Setup(ctx context.Context, userID int64, icsURL string) (*canvas.SyncResult, error)
	Sync(ctx context.Context, userID int64) (*canvas.SyncResult, error)
	Status(ctx context.Context, userID int64) (*canvas.Status, error)
	Remove(ctx context.Context, userID int64) (*canvas.RemoveResult, error)
}

// CanvasHandler はCanvas連携のHTTPハンドラー。
type CanvasHandler struct {
	service CanvasServiceInterface
}

// NewCanvasHandler はCanvasHandlerを生成する。
func NewCanvasHandler(service CanvasServiceInterface) *CanvasHandler {
	return &CanvasHandler{service: service}
}

type canvasSetupRequest struct {
	UserID int64  `json:"userId"`
	ICSURL string `json:"icsUrl"`
}

type canvasRemoveResponse struct {
	Message              string `json:"message"`
	DeletedEventsCount   int64  `json:"deletedEventsCount"`
	RemoteDeleteFailures int    `json:"remoteDeleteFailures"`
}

// Setup はフィードURLを保存して初回同期を行う。
// POST /api/canvas/setup
func (h *CanvasHandler) Setup(w http.ResponseWriter, r *http.Request) {
	var req canvasSetupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.Setup(r.Context(), req.UserID, req.ICSURL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCanvasSyncResponse("Canvas integration set up successfully", res))
}

// Sync は保存済みのフィードURLで再同期する。
// POST /api/canvas/sync
func (h *CanvasHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.Sync(r.Context(), req.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCanvasSyncResponse("Canvas events synced successfully", res))
}

// Status は連携状態を返す。
// GET /api/canvas/status?userId=
func (h *CanvasHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Status(r.Context(), queryID(r, "userId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCanvasStatusResponse(st))
}

// Remove は連携を解除し、同期済みのイベントを削除する。
// DELETE /api/canvas/remove
func (h *CanvasHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.Remove(r.Context(), req.UserID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, canvasRemoveResponse{
		Message:              "Canvas integration removed successfully",
		DeletedEventsCount:   res.DeletedCount,
		RemoteDeleteFailures: res.RemoteDeleteFailures,
	})
}
