// Package auth はGoogle Calendar連携のOAuthフローを提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/calplanner/internal/model"
)

// OAuthProvider はOAuth認可プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetConsentURL は同意画面のURLを生成する。
	GetConsentURL(state string) string
	// ExchangeCode は認可コードをトークンに交換する。
	ExchangeCode(ctx context.Context, code string) (model.GoogleToken, error)
}

// UserStore はGoogleトークンの保存に使うユーザー永続化操作。
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
	UpdateGoogleToken(ctx context.Context, id int64, token model.GoogleToken) error
	ClearGoogleToken(ctx context.Context, id int64) error
}

// Service はGoogle Calendar連携の接続・解除を行う。
type Service struct {
	oauth  OAuthProvider
	users  UserStore
	state  *StateSigner
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(oauth OAuthProvider, users UserStore, state *StateSigner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		oauth:  oauth,
		users:  users,
		state:  state,
		logger: logger,
	}
}

// AuthURL はユーザーの同意画面URLを返す。
func (s *Service) AuthURL(ctx context.Context, userID int64) (string, error) {
	if userID <= 0 {
		return "", model.NewInvalidRequestError("Valid userId is required")
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return "", err
	}
	return s.oauth.GetConsentURL(s.state.Sign(userID)), nil
}

// HandleCallback はstateを検証して認可コードを交換し、トークンを保存する。
// 接続したユーザーのIDを返す。
func (s *Service) HandleCallback(ctx context.Context, code, state string) (int64, error) {
	userID, err := s.state.Verify(state)
	if err != nil {
		s.logger.Warn("OAuth stateの検証に失敗しました", slog.String("error", err.Error()))
		return 0, model.NewInvalidOAuthStateError()
	}
	if code == "" {
		return 0, model.NewInvalidRequestError("Authorization code is required")
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return 0, err
	}

	token, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.logger.Error("認可コードの交換に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
		return 0, model.NewOAuthExchangeFailedError()
	}

	if err := s.users.UpdateGoogleToken(ctx, userID, token); err != nil {
		return 0, fmt.Errorf("Googleトークンの保存に失敗しました: %w", err)
	}

	s.logger.Info("Google Calendarを接続しました",
		slog.Int64("user_id", userID),
		slog.Bool("has_refresh_token", token.RefreshToken != ""),
	)
	return userID, nil
}

// Status はGoogle Calendarが接続済みかを返す。存在しないユーザーは未接続として扱う。
func (s *Service) Status(ctx context.Context, userID int64) (bool, error) {
	if userID <= 0 {
		return false, model.NewInvalidRequestError("Valid userId is required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user != nil && user.GoogleConnected(), nil
}

// Disconnect は保存済みのトークンを削除する。
func (s *Service) Disconnect(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return model.NewInvalidRequestError("userId is required")
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return err
	}
	if err := s.users.ClearGoogleToken(ctx, userID); err != nil {
		return fmt.Errorf("Googleトークンの削除に失敗しました: %w", err)
	}
	s.logger.Info("Google Calendarの接続を解除しました", slog.Int64("user_id", userID))
	return nil
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
