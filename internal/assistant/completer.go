// Package assistant は自然言語の入力からタスクを抽出・登録する機能を提供する。
package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Completer はチャット補完APIのインターフェース。
// テスト時はモックに差し替える。
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userInput string) (string, error)
}

// OpenAIConfig はOpenAI互換エンドポイントの接続設定。
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAICompleter はgo-openaiを使ったCompleterの実装。
// BaseURLを差し替えることでAzure AI InferenceやGitHub Modelsなどの互換APIを利用できる。
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAICompleter はOpenAICompleterを生成する。
func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
	}
}

// Complete はシステムプロンプトとユーザー入力を送信し、最初の選択肢の本文を返す。
// 選択肢が空の場合は空文字列を返す。
func (c *OpenAICompleter) Complete(ctx context.Context, systemPrompt, userInput string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userInput},
		},
		Temperature: c.temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat completion rejected (status %d): %w", apiErr.HTTPStatusCode, err)
		}
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// compile-time interface check
var _ Completer = (*OpenAICompleter)(nil)
