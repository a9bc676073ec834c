// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OpenAI互換チャット補完API
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIModel         string
	OpenAITemperature   float64
	OpenAITimeout       time.Duration
	AssistantHistoryMax int

	// Google Calendar OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	OAuthStateSecret   string

	// Canvas
	CanvasFetchTimeout time.Duration
	CanvasFetchMaxSize int64
	CanvasMaxRedirects int
	CanvasEventColorID string
	CanvasSyncInterval time.Duration

	// Scheduling
	Location *time.Location

	// Password
	BcryptCost int

	// Rate Limit (req/min)
	RateLimitGeneral   int
	RateLimitAssistant int

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	FrontendURL string

	// CORS
	CORSAllowedOrigin string

	// リバースプロキシのX-Forwarded-For等を信頼するか
	TrustProxyHeaders bool
}

// LoadDotEnv はカレントディレクトリの.envを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既存の環境変数は上書きしない。
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	var present []string
	for _, f := range filenames {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("failed to load %v: %w", present, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.OpenAIAPIKey = required("OPENAI_API_KEY")
	cfg.GoogleClientID = required("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = required("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = required("GOOGLE_REDIRECT_URL")
	cfg.OAuthStateSecret = required("OAUTH_STATE_SECRET")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	loc, err := loadLocation(getEnvString("TIMEZONE", "Local"))
	if err != nil {
		return nil, err
	}
	cfg.Location = loc

	cfg.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", "https://models.inference.ai.azure.com")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o")
	cfg.OpenAITemperature = getEnvFloat("OPENAI_TEMPERATURE", 0.3)
	cfg.OpenAITimeout = getEnvDuration("OPENAI_TIMEOUT", 60*time.Second)
	cfg.AssistantHistoryMax = getEnvInt("ASSISTANT_HISTORY_LIMIT", 50)
	cfg.CanvasFetchTimeout = getEnvDuration("CANVAS_FETCH_TIMEOUT", 10*time.Second)
	cfg.CanvasFetchMaxSize = getEnvInt64("CANVAS_FETCH_MAX_SIZE", 5242880)
	cfg.CanvasMaxRedirects = getEnvInt("CANVAS_MAX_REDIRECTS", 5)
	cfg.CanvasEventColorID = getEnvString("CANVAS_EVENT_COLOR_ID", "11")
	cfg.CanvasSyncInterval = getEnvDuration("CANVAS_SYNC_INTERVAL", time.Hour)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAssistant = getEnvInt("RATE_LIMIT_ASSISTANT", 10)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.FrontendURL = strings.TrimRight(getEnvString("FRONTEND_URL", "http://localhost:5173"), "/")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.FrontendURL)
	cfg.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", false)

	return cfg, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
