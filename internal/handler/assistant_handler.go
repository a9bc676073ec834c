package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/calplanner/internal/assistant"
)

// AssistantServiceInterface はアシスタントハンドラーが必要とするサービスインターフェース。
type AssistantServiceInterface interface {
	Process(ctx context.Context, userID int64, input string) (*assistant.Result, error)
}

// AssistantHandler は自然言語によるタスク作成のHTTPハンドラー。
type AssistantHandler struct {
	service AssistantServiceInterface
}

// NewAssistantHandler はAssistantHandlerを生成する。
func NewAssistantHandler(service AssistantServiceInterface) *AssistantHandler {
	return &AssistantHandler{service: service}
}

type processRequest struct {
	Input  string `json:"input"`
	UserID int64  `json:"userId"`
}

// Process は自然言語の入力からタスクを抽出して登録する。
// POST /api/assistant/process
func (h *AssistantHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.Process(r.Context(), req.UserID, req.Input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssistantResponse(res))
}
