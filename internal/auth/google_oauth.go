package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"

	"github.com/hitoshi/calplanner/internal/model"
)

const (
	defaultGoogleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL = "https://oauth2.googleapis.com/token"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
}

// GoogleOAuthProvider はGoogle Calendarへの書き込み許可をOAuth 2.0で取得する。
type GoogleOAuthProvider struct {
	config *oauth2.Config
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
// スコープはcalendar.eventsのみ。
func NewGoogleOAuthProvider(cfg GoogleOAuthConfig) *GoogleOAuthProvider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultGoogleAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultGoogleTokenURL
	}
	return &GoogleOAuthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
	}
}

// Config はトークンのリフレッシュに使うoauth2.Configを返す。
// gcal.Clientと同じ設定を共有する。
func (p *GoogleOAuthProvider) Config() *oauth2.Config {
	return p.config
}

// GetConsentURL は同意画面のURLを生成する。
// リフレッシュトークンを毎回受け取るため、offlineアクセスとprompt=consentを付与する。
func (p *GoogleOAuthProvider) GetConsentURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode は認可コードをトークンに交換する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (model.GoogleToken, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return model.GoogleToken{}, fmt.Errorf("failed to exchange token: %w", err)
	}
	if tok.AccessToken == "" {
		return model.GoogleToken{}, fmt.Errorf("empty access token in response")
	}
	return model.GoogleToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
