package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/fundori/fundori/internal/identity"
	"github.com/fundori/fundori/internal/model"
)

// 認証操作の名前（メトリクスのラベルに使用する）
const (
	OpSignUp     = "sign_up"
	OpSignIn     = "sign_in"
	OpSignOut    = "sign_out"
	OpGetUser    = "get_user"
	OpGetSession = "get_session"
	OpRefresh    = "refresh"
)

// AuthRecorder は認証操作の結果を記録するインターフェース。
type AuthRecorder interface {
	RecordAuth(op string, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuth(string, string) {}

// Option はGatewayの任意設定。
type Option func(*Gateway)

// WithTokenInspector はアクセストークンの検査器を設定する。
func WithTokenInspector(ti *TokenInspector) Option {
	return func(g *Gateway) { g.tokens = ti }
}

// WithRecorder はメトリクス記録先を設定する。
func WithRecorder(r AuthRecorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

// WithClock は現在時刻の取得関数を設定する。テスト用。
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// Gateway はIdPへの全アクセスを集約するアダプタ。
// すべての操作はクライアントID単位で行われ、失敗は*model.AuthErrorとして返す。
// providerがnilの場合は無効化されたゲートウェイとして動作し、
// 更新系操作はServiceUnavailable、参照系操作は未認証を返す。
type Gateway struct {
	provider identity.Provider
	store    SessionStore
	notifier *Notifier
	tokens   *TokenInspector
	recorder AuthRecorder
	now      func() time.Time
	logger   *slog.Logger
}

// NewGateway はGatewayを生成する。providerがnilの場合は無効化されたゲートウェイになる。
func NewGateway(provider identity.Provider, store SessionStore, notifier *Notifier, opts ...Option) *Gateway {
	if store == nil {
		store = NewMemoryStore(0)
	}
	if notifier == nil {
		notifier = NewNotifier()
	}
	g := &Gateway{
		provider: provider,
		store:    store,
		notifier: notifier,
		tokens:   NewTokenInspector(""),
		recorder: nopRecorder{},
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewDisabledGateway はIdP未構成時に使用する無効化されたゲートウェイを生成する。
func NewDisabledGateway(notifier *Notifier, opts ...Option) *Gateway {
	return NewGateway(nil, nil, notifier, opts...)
}

// Enabled はIdPが構成されているかどうかを返す。
func (g *Gateway) Enabled() bool {
	return g.provider != nil
}

// Subscribe はクライアントの認証イベントを購読する。
func (g *Gateway) Subscribe(clientID string) *Subscription {
	return g.notifier.Subscribe(clientID)
}

// SignUp はアカウントを作成し氏名メタデータを付与する。
// IdPがセッションを返した場合（メール確認不要の構成）はログイン状態にする。
func (g *Gateway) SignUp(ctx context.Context, clientID, email, password string, meta model.NameMetadata) (*model.SignUpResult, error) {
	if !g.Enabled() {
		g.recorder.RecordAuth(OpSignUp, string(model.AuthErrServiceUnavailable))
		return nil, model.NewServiceUnavailableError(model.MsgSignUpUnavailable)
	}

	result, err := g.provider.SignUp(ctx, email, password, meta)
	if err != nil {
		authErr := g.toAuthError(OpSignUp, err)
		g.recorder.RecordAuth(OpSignUp, string(authErr.Kind))
		return nil, authErr
	}

	if result.Session != nil {
		if err := g.establish(ctx, clientID, result.Session, model.AuthEventSignedIn); err != nil {
			g.recorder.RecordAuth(OpSignUp, "store_error")
			return nil, err
		}
	}

	g.recorder.RecordAuth(OpSignUp, "success")
	g.logger.Info("user signed up",
		slog.String("client_id", clientID),
		slog.Bool("confirmation_pending", result.Session == nil),
	)
	return result, nil
}

// SignIn はメールアドレスとパスワードで認証する。メールアドレスの前後の空白は除去する。
func (g *Gateway) SignIn(ctx context.Context, clientID, email, password string) (*model.Session, error) {
	if !g.Enabled() {
		g.logger.Warn("sign in attempted while authentication is not configured")
		g.recorder.RecordAuth(OpSignIn, string(model.AuthErrServiceUnavailable))
		return nil, model.NewServiceUnavailableError(model.MsgSignInUnavailable)
	}

	session, err := g.provider.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		authErr := g.toAuthError(OpSignIn, err)
		g.recorder.RecordAuth(OpSignIn, string(authErr.Kind))
		return nil, authErr
	}

	if err := g.establish(ctx, clientID, session, model.AuthEventSignedIn); err != nil {
		g.recorder.RecordAuth(OpSignIn, "store_error")
		return nil, err
	}

	g.recorder.RecordAuth(OpSignIn, "success")
	g.logger.Info("user signed in", slog.String("client_id", clientID))
	return session, nil
}

// SignOut はリモートセッションを破棄し、ローカルのミラーをクリアする。
// 無効化されたゲートウェイでは何もせず成功する。
// リモートの破棄に失敗した場合もローカルのミラーは必ずクリアする。
func (g *Gateway) SignOut(ctx context.Context, clientID string) error {
	if !g.Enabled() {
		return nil
	}

	var remoteErr error
	session, err := g.store.Load(ctx, clientID)
	if err != nil {
		g.logger.Error("failed to load session for sign out",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
	}
	if session != nil {
		if err := g.provider.SignOut(ctx, session.AccessToken); err != nil {
			remoteErr = g.toAuthError(OpSignOut, err)
		}
	}

	g.clear(ctx, clientID)

	if remoteErr != nil {
		g.recorder.RecordAuth(OpSignOut, "remote_error")
		return remoteErr
	}
	g.recorder.RecordAuth(OpSignOut, "success")
	g.logger.Info("user signed out", slog.String("client_id", clientID))
	return nil
}

// GetCurrentUser はIdPに問い合わせて現在のユーザーを取得する。
// 無効化されている場合、セッションが無い場合、通信に失敗した場合はnilを返す。
func (g *Gateway) GetCurrentUser(ctx context.Context, clientID string) (*model.User, error) {
	if !g.Enabled() {
		return nil, nil
	}

	session, err := g.GetSession(ctx, clientID)
	if err != nil || session == nil {
		return nil, err
	}

	user, err := g.provider.GetUser(ctx, session.AccessToken)
	if err != nil {
		authErr := g.toAuthError(OpGetUser, err)
		g.recorder.RecordAuth(OpGetUser, string(authErr.Kind))
		if authErr.Kind == model.AuthErrNetwork {
			return nil, nil
		}
		return nil, authErr
	}

	g.recorder.RecordAuth(OpGetUser, "success")
	return user, nil
}

// GetSession はクライアントの現在のセッションを返す。
// アクセストークンが期限切れの場合はリフレッシュトークンで更新し、
// 更新できない場合はミラーをクリアして未認証を通知する。
// 無効化されている場合やセッションが無い場合は(nil, nil)を返す。
func (g *Gateway) GetSession(ctx context.Context, clientID string) (*model.Session, error) {
	if !g.Enabled() {
		return nil, nil
	}

	session, err := g.store.Load(ctx, clientID)
	if err != nil {
		g.logger.Error("failed to load session",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	if session == nil {
		return nil, nil
	}

	expiresAt := session.ExpiresAt
	if expiresAt.IsZero() || g.tokens.Verifies() {
		claims, err := g.tokens.Inspect(session.AccessToken)
		if err != nil {
			g.logger.Warn("discarding session with invalid access token",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()),
			)
			g.clear(ctx, clientID)
			return nil, nil
		}
		if expiresAt.IsZero() {
			expiresAt = claims.ExpiresAt
		}
	}

	if expiresAt.IsZero() || expiresAt.After(g.now()) {
		return session, nil
	}

	return g.refresh(ctx, clientID, session)
}

// refresh は期限切れのセッションをリフレッシュトークンで更新する。
func (g *Gateway) refresh(ctx context.Context, clientID string, expired *model.Session) (*model.Session, error) {
	if expired.RefreshToken == "" {
		g.clear(ctx, clientID)
		return nil, nil
	}

	session, err := g.provider.RefreshSession(ctx, expired.RefreshToken)
	if err != nil {
		authErr := g.toAuthError(OpRefresh, err)
		g.recorder.RecordAuth(OpRefresh, string(authErr.Kind))
		// 通信エラーの場合はミラーを残し、次回のアクセスで再度更新を試みる
		if authErr.Kind != model.AuthErrNetwork {
			g.clear(ctx, clientID)
		}
		return nil, nil
	}

	if session.User == nil {
		session.User = expired.User
	}
	if err := g.establish(ctx, clientID, session, model.AuthEventTokenRefreshed); err != nil {
		g.recorder.RecordAuth(OpRefresh, "store_error")
		return nil, err
	}

	g.recorder.RecordAuth(OpRefresh, "success")
	return session, nil
}

// establish はセッションを保存しイベントを配信する。
func (g *Gateway) establish(ctx context.Context, clientID string, session *model.Session, kind model.AuthEventKind) error {
	if err := g.store.Save(ctx, clientID, session); err != nil {
		g.logger.Error("failed to save session",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
		return &model.AuthError{
			Kind:    model.AuthErrServiceUnavailable,
			Message: model.MsgUnexpectedError,
			Cause:   err,
		}
	}
	g.notifier.Publish(clientID, model.AuthEvent{Kind: kind, Session: session})
	return nil
}

// clear はミラーを削除し未認証を通知する。
func (g *Gateway) clear(ctx context.Context, clientID string) {
	if err := g.store.Delete(ctx, clientID); err != nil {
		g.logger.Error("failed to delete session",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
	}
	g.notifier.Publish(clientID, model.AuthEvent{Kind: model.AuthEventSignedOut})
}

// toAuthError はIdPのエラーをゲートウェイのエラー分類に変換する。
func (g *Gateway) toAuthError(op string, err error) *model.AuthError {
	var respErr *identity.ResponseError
	switch {
	case errors.As(err, &respErr):
		g.logger.Warn("identity provider rejected request",
			slog.String("op", op),
			slog.Int("status", respErr.Status),
			slog.String("code", respErr.Code),
		)
		return model.NewProviderError(respErr.Status, respErr.Message)
	case errors.Is(err, identity.ErrTransport),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		g.logger.Error("identity provider unreachable",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return model.NewNetworkError(err)
	default:
		g.logger.Error("unexpected identity provider error",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		return &model.AuthError{
			Kind:    model.AuthErrProvider,
			Message: model.MsgUnexpectedError,
			Cause:   err,
		}
	}
}
