// Package identity はホスト型IdP（Supabase GoTrue）へのアクセスを提供する。
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/fundori/fundori/internal/model"
)

// ErrTransport はIdPへの通信自体が失敗したことを示す。
// IdPがレスポンスを返した場合はResponseErrorが使われる。
var ErrTransport = errors.New("identity provider unreachable")

// ResponseError はIdPがリクエストを拒否した場合のエラー。
type ResponseError struct {
	Status  int
	Code    string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ResponseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("identity provider returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("identity provider returned %d: %s", e.Status, e.Message)
}

// Provider はIdPの能力インターフェース。
// セッション変化の通知はIdPではなくauth.Notifierが担う。
type Provider interface {
	// SignUp はアカウントを作成し氏名メタデータを付与する。
	// メール確認が必要な場合、結果のSessionはnilになる。
	SignUp(ctx context.Context, email, password string, meta model.NameMetadata) (*model.SignUpResult, error)
	// SignInWithPassword はメールアドレスとパスワードで認証しセッションを発行する。
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	// SignOut はアクセストークンに紐づくリモートセッションを破棄する。
	SignOut(ctx context.Context, accessToken string) error
	// GetUser はアクセストークンの持ち主を取得する。
	GetUser(ctx context.Context, accessToken string) (*model.User, error)
	// RefreshSession はリフレッシュトークンで新しいセッションを取得する。
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error)
}
