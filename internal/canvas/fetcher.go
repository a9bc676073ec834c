// Package canvas はCanvas LMSのICSフィードをGoogle Calendarへ一方向同期する。
package canvas

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/calplanner/internal/model"
)

// calendarMarker はICSファイルであることを示す必須行。
const calendarMarker = "BEGIN:VCALENDAR"

// htmlMarkers はHTMLページが返されたと判定する文字列。
var htmlMarkers = [][]byte{
	[]byte("<!DOCTYPE"),
	[]byte("<html>"),
	[]byte("<HTML>"),
}

// URLGuard はSSRF検証のインターフェース。
// security.URLGuardを抽象化してテスト時に差し替えられるようにする。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxRedirects int) *http.Client
}

// FetchRecorder はフィード取得のメトリクスを記録する。
type FetchRecorder interface {
	RecordFeedFetch(statusCode int, duration time.Duration)
}

// FetcherConfig はフィード取得の制限値。
type FetcherConfig struct {
	Timeout      time.Duration
	MaxBodySize  int64
	MaxRedirects int
	UserAgent    string
}

// Fetcher はICSフィードをHTTPで取得し、カレンダーとして妥当かを検証する。
type Fetcher struct {
	guard    URLGuard
	recorder FetchRecorder
	logger   *slog.Logger
	cfg      FetcherConfig
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(guard URLGuard, recorder FetchRecorder, logger *slog.Logger, cfg FetcherConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 5 * 1024 * 1024
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "calplanner/1.0 (+calendar sync)"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		guard:    guard,
		recorder: recorder,
		logger:   logger,
		cfg:      cfg,
	}
}

// Fetch はフィードを取得してICS本文を返す。
// 失敗時はユーザー向けの案内を持つ*model.APIErrorを返す。
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	if err := f.guard.ValidateURL(feedURL); err != nil {
		f.logger.Warn("フィードURLの検証に失敗しました",
			slog.String("url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInvalidURLError()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError()
	}
	req.Header.Set("Accept", "text/calendar, text/plain, */*")
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	client := f.guard.NewSafeClient(f.cfg.Timeout, f.cfg.MaxRedirects)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		f.record(0, time.Since(start))
		f.logger.Error("フィードの取得に失敗しました",
			slog.String("url", feedURL),
			slog.String("error", err.Error()),
		)
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return nil, model.NewFeedUnreachableError()
		}
		return nil, model.NewFeedFetchFailedError()
	}
	defer resp.Body.Close()

	f.record(resp.StatusCode, time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		f.logFeedStatus(feedURL, resp.StatusCode)
		return nil, model.NewFeedAccessDeniedError()
	case resp.StatusCode == http.StatusNotFound:
		f.logFeedStatus(feedURL, resp.StatusCode)
		return nil, model.NewFeedNotFoundError()
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		f.logFeedStatus(feedURL, resp.StatusCode)
		return nil, model.NewFeedFetchFailedError()
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodySize+1))
	if err != nil {
		f.logger.Error("フィード本文の読み取りに失敗しました",
			slog.String("url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFeedFetchFailedError()
	}
	if int64(len(body)) > f.cfg.MaxBodySize {
		f.logger.Warn("フィード本文がサイズ上限を超えました",
			slog.String("url", feedURL),
			slog.Int64("max_bytes", f.cfg.MaxBodySize),
		)
		return nil, model.NewFeedFetchFailedError()
	}

	if err := validateCalendarBody(body); err != nil {
		attrs := []any{
			slog.String("url", feedURL),
			slog.String("content_type", resp.Header.Get("Content-Type")),
			slog.String("error", err.Error()),
		}
		if title := pageTitle(body); title != "" {
			attrs = append(attrs, slog.String("page_title", title))
		}
		f.logger.Warn("フィードがカレンダー形式ではありません", attrs...)
		return nil, err
	}

	f.logger.Debug("フィードを取得しました",
		slog.String("url", feedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("bytes", len(body)),
	)
	return body, nil
}

func (f *Fetcher) record(statusCode int, d time.Duration) {
	if f.recorder != nil {
		f.recorder.RecordFeedFetch(statusCode, d)
	}
}

func (f *Fetcher) logFeedStatus(feedURL string, status int) {
	f.logger.Warn("フィードが異常なステータスを返しました",
		slog.String("url", feedURL),
		slog.Int("http_status", status),
	)
}

// validateCalendarBody はHTMLページやカレンダーでない応答を弾く。
// HTML判定を先に行う。
func validateCalendarBody(body []byte) error {
	for _, marker := range htmlMarkers {
		if bytes.Contains(body, marker) {
			return model.NewFeedIsWebpageError()
		}
	}
	if !bytes.Contains(body, []byte(calendarMarker)) {
		return model.NewFeedInvalidFormatError()
	}
	return nil
}

// pageTitle はHTML応答のtitle要素を返す。見つからない場合は空文字列。
func pageTitle(body []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(body))
	inTitle := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if name := string(tn); name == "title" || name == "head" {
				return ""
			}
		}
	}
}

