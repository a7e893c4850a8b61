// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, search, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInvalidTab     = "INVALID_TAB"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeVoiceDisabled  = "VOICE_UNAVAILABLE"
	ErrCodeNotListening   = "NOT_LISTENING"
	ErrCodeSearchFailed   = "SEARCH_FAILED"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeCSRFInvalid    = "CSRF_INVALID"
	ErrCodeRateLimited    = "RATE_LIMIT_EXCEEDED"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Please sign in.",
	}
}

// NewInvalidTabError は無効なタブ指定エラーを生成する。
func NewInvalidTabError(tab string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTab,
		Message:  fmt.Sprintf("Unknown tab: %s", tab),
		Category: "validation",
		Action:   "Use one of all, popular or recent.",
	}
}

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the request body and try again.",
	}
}

// NewSearchFailedError は検索が完了しなかった場合のエラーを生成する。
func NewSearchFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSearchFailed,
		Message:  "Search could not be completed.",
		Category: "search",
		Action:   "Please try your search again.",
	}
}

// NewVoiceUnavailableError は音声入力が利用できない場合のエラーを生成する。
func NewVoiceUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeVoiceDisabled,
		Message:  "Voice input is not available.",
		Category: "search",
		Action:   "Type your question instead.",
	}
}

// NewNotListeningError は音声入力を待ち受けていない状態で認識結果が届いた場合のエラーを生成する。
func NewNotListeningError() *APIError {
	return &APIError{
		Code:     ErrCodeNotListening,
		Message:  "Voice input is not listening.",
		Category: "search",
		Action:   "Start voice input before speaking.",
	}
}

// NewCSRFInvalidError はCSRFトークンの検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "Your form has expired.",
		Category: "security",
		Action:   "Reload the page and submit the form again.",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  MsgUnexpectedError,
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// AuthErrorKind は認証ゲートウェイが返すエラーの分類。
type AuthErrorKind string

const (
	// AuthErrServiceUnavailable はIdPクライアントが未構成であることを示す。
	AuthErrServiceUnavailable AuthErrorKind = "ServiceUnavailable"
	// AuthErrNetwork はIdPとの通信自体に失敗したことを示す。
	AuthErrNetwork AuthErrorKind = "NetworkError"
	// AuthErrProvider はIdPがリクエストを拒否したことを示す。
	AuthErrProvider AuthErrorKind = "ProviderError"
)

// ユーザー向け定型メッセージ
const (
	MsgSignUpUnavailable = "Authentication is currently unavailable. Please try again later or contact support."
	MsgSignInUnavailable = "Authentication service is not properly configured. Please contact support."
	MsgNetworkError      = "Network error: Unable to connect to authentication service. Please check your internet connection and try again."
	MsgUnexpectedError   = "An unexpected error occurred"
)

// AuthError は認証ゲートウェイの境界で正規化されたエラー。
// Messageはそのままフォームに表示できる文言を保持する。
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Status  int   // IdPが返したHTTPステータス（ProviderErrorのみ）
	Cause   error // 元のエラー（ログ用）
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap は元のエラーを返す。
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// NewServiceUnavailableError は未構成エラーを生成する。
func NewServiceUnavailableError(message string) *AuthError {
	return &AuthError{Kind: AuthErrServiceUnavailable, Message: message}
}

// NewNetworkError は通信エラーを生成する。
func NewNetworkError(cause error) *AuthError {
	return &AuthError{Kind: AuthErrNetwork, Message: MsgNetworkError, Cause: cause}
}

// NewProviderError はIdPの拒否エラーを生成する。
func NewProviderError(status int, message string) *AuthError {
	if message == "" {
		message = MsgUnexpectedError
	}
	return &AuthError{Kind: AuthErrProvider, Message: message, Status: status}
}
