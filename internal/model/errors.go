package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, task, canvas, calendar, assistant, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeTaskNotFound        = "TASK_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeDuplicateEmail      = "DUPLICATE_EMAIL"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeCanvasNotConfigured = "CANVAS_NOT_CONFIGURED"
	ErrCodeGoogleNotConnected  = "GOOGLE_NOT_CONNECTED"
	ErrCodeFeedAccessDenied    = "CANVAS_FEED_ACCESS_DENIED"
	ErrCodeFeedNotFound        = "CANVAS_FEED_NOT_FOUND"
	ErrCodeFeedIsWebpage       = "CANVAS_FEED_WEBPAGE"
	ErrCodeFeedInvalidFormat   = "CANVAS_FEED_INVALID_FORMAT"
	ErrCodeFeedUnreachable     = "CANVAS_FEED_UNREACHABLE"
	ErrCodeFeedFetchFailed     = "CANVAS_FEED_FETCH_FAILED"
	ErrCodeFeedParseFailed     = "CANVAS_FEED_PARSE_FAILED"
	ErrCodeAssistantFailed     = "ASSISTANT_FAILED"
	ErrCodeInvalidOAuthState   = "INVALID_OAUTH_STATE"
	ErrCodeOAuthExchangeFailed = "OAUTH_EXCHANGE_FAILED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストの必須項目欠落・形式不正エラーを生成する。
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "Check the request body and query parameters.",
	}
}

// NewValidationError は値の検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Correct the highlighted value and try again.",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  "Invalid URL format",
		Category: "validation",
		Action:   "Enter the full calendar feed URL starting with http:// or https://.",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  "Task not found",
		Category: "task",
		Action:   "Reload your calendar; the task may have been deleted.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewDuplicateEmailError はメールアドレス重複エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "An account with this email already exists",
		Category: "auth",
		Action:   "Sign in instead, or use a different email address.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレスの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password",
		Category: "auth",
		Action:   "Check your email and password and try again.",
	}
}

// NewCanvasNotConfiguredError はCanvas未設定エラーを生成する。
func NewCanvasNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeCanvasNotConfigured,
		Message:  "Canvas not set up for this user",
		Category: "canvas",
		Action:   "Add your Canvas calendar feed URL first.",
	}
}

// NewGoogleNotConnectedError はGoogle Calendar未接続エラーを生成する。
func NewGoogleNotConnectedError() *APIError {
	return &APIError{
		Code:     ErrCodeGoogleNotConnected,
		Message:  "Google Calendar not connected",
		Category: "calendar",
		Action:   "Connect your Google Calendar from the settings page.",
	}
}

// NewFeedAccessDeniedError はフィードが401/403を返した場合のエラーを生成する。
func NewFeedAccessDeniedError() *APIError {
	return &APIError{
		Code:     ErrCodeFeedAccessDenied,
		Message:  "Access denied. Your Canvas calendar feed URL may have expired or requires authentication. Try generating a new feed URL from Canvas.",
		Category: "canvas",
		Action:   "Generate a new calendar feed URL in Canvas.",
	}
}

// NewFeedNotFoundError はフィードが404を返した場合のエラーを生成する。
func NewFeedNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotFound,
		Message:  "Calendar feed not found. Please verify the URL is correct and hasn't been changed or disabled.",
		Category: "canvas",
		Action:   "Verify the feed URL.",
	}
}

// NewFeedIsWebpageError はフィードURLがHTMLページを返した場合のエラーを生成する。
func NewFeedIsWebpageError() *APIError {
	return &APIError{
		Code: ErrCodeFeedIsWebpage,
		Message: "The URL returned a webpage instead of a calendar feed. This usually means:\n" +
			"• You may need to be logged into Canvas\n" +
			"• The feed URL may have expired\n" +
			"• The URL might be incorrect\n\n" +
			"Try generating a fresh calendar feed URL from your Canvas Calendar settings.",
		Category: "canvas",
		Action:   "Generate a fresh calendar feed URL from your Canvas Calendar settings.",
	}
}

// NewFeedInvalidFormatError はBEGIN:VCALENDARを含まない応答のエラーを生成する。
func NewFeedInvalidFormatError() *APIError {
	return &APIError{
		Code:     ErrCodeFeedInvalidFormat,
		Message:  "Invalid calendar format. The URL must point to a valid .ics calendar feed. Make sure you copied the full feed URL that ends with .ics",
		Category: "canvas",
		Action:   "Copy the full feed URL that ends with .ics.",
	}
}

// NewFeedUnreachableError は名前解決に失敗した場合のエラーを生成する。
func NewFeedUnreachableError() *APIError {
	return &APIError{
		Code:     ErrCodeFeedUnreachable,
		Message:  "Cannot reach Canvas server. Please check the URL domain and your internet connection.",
		Category: "canvas",
		Action:   "Check the URL domain and your internet connection.",
	}
}

// NewFeedFetchFailedError はその他のフェッチ失敗エラーを生成する。
func NewFeedFetchFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeFeedFetchFailed,
		Message:  "Failed to fetch Canvas calendar. Please check the URL and try again.",
		Category: "canvas",
		Action:   "Check the URL and try again.",
	}
}

// NewFeedParseFailedError はICSの解析失敗エラーを生成する。
func NewFeedParseFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeFeedParseFailed,
		Message:  "Failed to parse ICS file",
		Category: "canvas",
		Action:   "Make sure the URL points to a Canvas calendar feed.",
	}
}

// NewAssistantFailedError は補完APIの呼び出し失敗エラーを生成する。
func NewAssistantFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAssistantFailed,
		Message:  "Failed to process your request. Please try again.",
		Category: "assistant",
		Action:   "Try again in a moment.",
	}
}

// NewInvalidOAuthStateError はOAuthのstate検証失敗エラーを生成する。
func NewInvalidOAuthStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidOAuthState,
		Message:  "Invalid or tampered OAuth state",
		Category: "calendar",
		Action:   "Start the Google Calendar connection again.",
	}
}

// NewOAuthExchangeFailedError は認可コード交換の失敗エラーを生成する。
func NewOAuthExchangeFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeOAuthExchangeFailed,
		Message:  "Failed to connect Google Calendar",
		Category: "calendar",
		Action:   "Start the Google Calendar connection again.",
	}
}

// NewInternalError は想定外のサーバーエラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "Try again later.",
	}
}
