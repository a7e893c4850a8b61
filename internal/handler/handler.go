// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/fundori/fundori/internal/auth"
	"github.com/fundori/fundori/internal/countdown"
	"github.com/fundori/fundori/internal/middleware"
	"github.com/fundori/fundori/internal/model"
	"github.com/fundori/fundori/internal/search"
)

// AuthGateway はハンドラーが必要とする認証ゲートウェイのインターフェース。
type AuthGateway interface {
	Enabled() bool
	SignUp(ctx context.Context, clientID, email, password string, meta model.NameMetadata) (*model.SignUpResult, error)
	SignIn(ctx context.Context, clientID, email, password string) (*model.Session, error)
	SignOut(ctx context.Context, clientID string) error
	GetCurrentUser(ctx context.Context, clientID string) (*model.User, error)
	GetSession(ctx context.Context, clientID string) (*model.Session, error)
	Subscribe(clientID string) *auth.Subscription
}

// FormMessageStore は次の画面表示で1度だけ表示するフォームメッセージの保存先。
type FormMessageStore interface {
	SetFormMessage(w http.ResponseWriter, r *http.Request, msg model.FormMessage) error
	PopFormMessage(w http.ResponseWriter, r *http.Request) *model.FormMessage
}

// CountdownSource は試験日までのカウントダウンの取得元。
type CountdownSource interface {
	Snapshot() countdown.State
	Target() time.Time
}

// WidgetRegistry はクライアントごとの検索ウィジェットの管理先。
type WidgetRegistry interface {
	Get(clientID string) *search.Widget
	Remove(clientID string)
}

var (
	_ AuthGateway      = (*auth.Gateway)(nil)
	_ FormMessageStore = (*middleware.ClientSessions)(nil)
	_ CountdownSource  = (*countdown.Widget)(nil)
	_ WidgetRegistry   = (*search.Registry)(nil)
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// clientIDOrFail はクライアントIDを取得する。取得できない場合は500を書き込みfalseを返す。
func clientIDOrFail(w http.ResponseWriter, r *http.Request) (string, bool) {
	clientID, err := middleware.ClientIDFromContext(r.Context())
	if err != nil {
		slog.Error("client ID missing from request", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return "", false
	}
	return clientID, true
}

// userResponse はAPIで返すユーザー情報。
type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DisplayName string `json:"display_name"`
}

func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.DisplayName(),
	}
}

// writeAPIError は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
}

// mapAPIErrorToHTTPStatus はAPIErrorのコードからHTTPステータスコードを決定する。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidTab, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeNotListening:
		return http.StatusConflict
	case model.ErrCodeVoiceDisabled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
