// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/fundori/fundori/internal/model"
)

// ClientSessionName はブラウザごとのセッションCookieの名前。
const ClientSessionName = "fundori_session"

const clientIDKey = "client_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	clientIDContextKey     = contextKey("client_id")
	clientIDSinkContextKey = contextKey("client_id_sink")
	userContextKey         = contextKey("user")
)

func init() {
	// フラッシュメッセージとしてCookieに保存するため
	gob.Register(model.FormMessage{})
}

// ClientSessionConfig はブラウザセッションCookieの設定。
type ClientSessionConfig struct {
	Secret string
	MaxAge int
	Secure bool
	Domain string
}

// ClientSessions は署名付きCookieでブラウザを識別し、
// 次の画面表示で1度だけ表示するフォームメッセージを保持する。
// Cookieに保存するのはクライアントIDとメッセージのみで、IdPのトークンは含まない。
type ClientSessions struct {
	store sessions.Store
}

// NewClientSessions はCookieStoreを使用したClientSessionsを生成する。
func NewClientSessions(cfg ClientSessionConfig) *ClientSessions {
	store := sessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &ClientSessions{store: store}
}

// NewClientSessionsWithStore は任意のsessions.Storeを使用したClientSessionsを生成する。
func NewClientSessionsWithStore(store sessions.Store) *ClientSessions {
	return &ClientSessions{store: store}
}

// Middleware はクライアントIDをリクエストコンテキストに注入するミドルウェアを返す。
// Cookieが無い、または署名が不正な場合は新しいクライアントIDを発行する。
func (cs *ClientSessions) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := cs.store.Get(r, ClientSessionName)
			if err != nil {
				slog.Debug("discarding invalid client session cookie",
					slog.String("error", err.Error()),
				)
			}

			clientID, _ := session.Values[clientIDKey].(string)
			if clientID == "" {
				clientID = uuid.NewString()
				session.Values[clientIDKey] = clientID
				if err := session.Save(r, w); err != nil {
					slog.Error("failed to save client session",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
			}

			if sink, ok := r.Context().Value(clientIDSinkContextKey).(*string); ok {
				*sink = clientID
			}

			ctx := context.WithValue(r.Context(), clientIDContextKey, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// withClientIDSink は外側のミドルウェアが発行後のクライアントIDを受け取るための格納先を設定する。
func withClientIDSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, clientIDSinkContextKey, sink)
}

// SetFormMessage はフォームメッセージを保存する。既存のメッセージは置き換える。
func (cs *ClientSessions) SetFormMessage(w http.ResponseWriter, r *http.Request, msg model.FormMessage) error {
	session, err := cs.store.Get(r, ClientSessionName)
	if err != nil && session == nil {
		return fmt.Errorf("failed to load client session: %w", err)
	}
	session.Flashes()
	session.AddFlash(msg)
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("failed to save form message: %w", err)
	}
	return nil
}

// PopFormMessage は保存されているフォームメッセージを取り出して削除する。無い場合はnilを返す。
func (cs *ClientSessions) PopFormMessage(w http.ResponseWriter, r *http.Request) *model.FormMessage {
	session, err := cs.store.Get(r, ClientSessionName)
	if err != nil && session == nil {
		return nil
	}

	flashes := session.Flashes()
	if len(flashes) == 0 {
		return nil
	}
	if err := session.Save(r, w); err != nil {
		slog.Error("failed to clear form message", slog.String("error", err.Error()))
	}

	// 最後に追加されたメッセージのみ表示する
	msg, ok := flashes[len(flashes)-1].(model.FormMessage)
	if !ok {
		return nil
	}
	return &msg
}

// ClientIDFromContext はリクエストコンテキストからクライアントIDを取得する。
// ClientSessions.Middlewareを通過したリクエストでのみ有効。
func ClientIDFromContext(ctx context.Context) (string, error) {
	clientID, ok := ctx.Value(clientIDContextKey).(string)
	if !ok || clientID == "" {
		return "", fmt.Errorf("client ID not found in context")
	}
	return clientID, nil
}

// SessionProvider は認証済みセッションの取得に必要なインターフェース。
// auth.Gatewayの部分集合として定義する。
type SessionProvider interface {
	GetSession(ctx context.Context, clientID string) (*model.Session, error)
}

// NewRequireUserMiddleware はIdPのセッションを持つクライアントのみを通過させるミドルウェアを返す。
// 認証済みユーザーをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewRequireUserMiddleware(provider SessionProvider) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, err := ClientIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := provider.GetSession(r.Context(), clientID)
			if err != nil {
				slog.Error("failed to get session",
					slog.String("client_id", clientID),
					slog.String("error", err.Error()),
				)
			}
			if session == nil || session.User == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, session.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// NewRequireUserMiddlewareを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok && user != nil
}

// ContextWithClientID はクライアントIDを設定したコンテキストを返す。
// ハンドラーのテストなど、ClientSessions.Middlewareを経由しない場合に使用する。
func ContextWithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDContextKey, clientID)
}

// ContextWithUser は認証済みユーザーを設定したコンテキストを返す。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
