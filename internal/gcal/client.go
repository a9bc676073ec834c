// Package gcal はGoogle Calendar APIへのイベント書き込みを提供する。
package gcal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hitoshi/calplanner/internal/model"
)

// DefaultCalendarID はユーザーのメインカレンダー。
const DefaultCalendarID = "primary"

// Event はGoogle Calendarに作成するイベントの内容。
type Event struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// Calendar は1ユーザー分のカレンダー操作を表す。
type Calendar interface {
	// CreateEvent はイベントを作成し、GoogleのイベントIDを返す。
	CreateEvent(ctx context.Context, ev Event) (string, error)
	// SetEventColor はイベントの色を変更する。
	SetEventColor(ctx context.Context, eventID, colorID string) error
	// DeleteEvent はイベントを削除する。
	DeleteEvent(ctx context.Context, eventID string) error
	// Token は現在のトークンを返す。更新されていればrefreshedがtrueになる。
	Token() (token model.GoogleToken, refreshed bool, err error)
}

// ClientOptions はClientの追加設定。
type ClientOptions struct {
	// CalendarID は書き込み先のカレンダー。空の場合はprimary。
	CalendarID string
	// Endpoint はCalendar APIのベースURL。テスト時にのみ指定する。
	Endpoint string
}

// Client はユーザーのトークンからCalendarを開くファクトリ。
type Client struct {
	oauth      *oauth2.Config
	calendarID string
	endpoint   string
}

// NewClient はClientを生成する。
func NewClient(oauthConfig *oauth2.Config, opts ClientOptions) *Client {
	if opts.CalendarID == "" {
		opts.CalendarID = DefaultCalendarID
	}
	return &Client{
		oauth:      oauthConfig,
		calendarID: opts.CalendarID,
		endpoint:   opts.Endpoint,
	}
}

// Open は保存済みトークンでCalendarを開く。
// 有効期限が不明なトークンは期限切れとして扱い、初回呼び出し時にリフレッシュする。
func (c *Client) Open(ctx context.Context, token model.GoogleToken) (Calendar, error) {
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, fmt.Errorf("no google credentials")
	}

	initial := &oauth2.Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
		TokenType:    "Bearer",
	}
	if initial.Expiry.IsZero() && initial.RefreshToken != "" {
		initial.Expiry = time.Now().Add(-time.Minute)
	}

	source := oauth2.ReuseTokenSource(initial, c.oauth.TokenSource(ctx, initial))

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, source))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &session{
		events:     svc.Events,
		calendarID: c.calendarID,
		source:     source,
		original:   token.AccessToken,
	}, nil
}

type session struct {
	events     *calendar.EventsService
	calendarID string
	source     oauth2.TokenSource
	original   string
}

func (s *session) CreateEvent(ctx context.Context, ev Event) (string, error) {
	created, err := s.events.Insert(s.calendarID, &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339)},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to insert calendar event: %w", err)
	}
	return created.Id, nil
}

func (s *session) SetEventColor(ctx context.Context, eventID, colorID string) error {
	_, err := s.events.Patch(s.calendarID, eventID, &calendar.Event{ColorId: colorID}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to patch event color: %w", err)
	}
	return nil
}

func (s *session) DeleteEvent(ctx context.Context, eventID string) error {
	if err := s.events.Delete(s.calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete calendar event: %w", err)
	}
	return nil
}

func (s *session) Token() (model.GoogleToken, bool, error) {
	tok, err := s.source.Token()
	if err != nil {
		return model.GoogleToken{}, false, fmt.Errorf("failed to read token: %w", err)
	}
	return model.GoogleToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}, tok.AccessToken != s.original, nil
}
