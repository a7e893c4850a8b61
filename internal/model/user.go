package model

import (
	"strings"
	"time"
)

// defaultDisplayName はユーザー名を特定できない場合の表示名。
const defaultDisplayName = "Scholar"

// User はIdPが管理するユーザーを表す。
// アプリケーション側からは不変として扱う。
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	FullName  string
	CreatedAt time.Time
}

// DisplayName は画面表示用の呼び名を返す。
// first_name、full_nameの先頭語、メールアドレスのローカル部の順に採用し、
// いずれも無い場合は "Scholar" を返す。
func (u *User) DisplayName() string {
	if u == nil {
		return defaultDisplayName
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	if fields := strings.Fields(u.FullName); len(fields) > 0 {
		return fields[0]
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	return defaultDisplayName
}

// NameMetadata はサインアップ時にユーザーメタデータとして付与する氏名。
type NameMetadata struct {
	FirstName string
	LastName  string
}

// FullName は "first last" 形式の氏名を返す。
// 氏名が両方とも空の場合は空文字列を返す。
func (m NameMetadata) FullName() string {
	if m.FirstName == "" && m.LastName == "" {
		return ""
	}
	return m.FirstName + " " + m.LastName
}

// Session はIdPが発行したログインセッションを表す。
// ローカルではクライアント単位のミラーとして保持する。
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	User         *User
}

// Expired はnow時点でアクセストークンが期限切れかどうかを返す。
// ExpiresAtが未設定の場合は期限切れとみなさない。
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !s.ExpiresAt.After(now)
}

// SignUpResult はサインアップの結果を表す。
// メール確認待ちの場合Sessionはnilになる。
type SignUpResult struct {
	User    *User
	Session *Session
}

// AuthEventKind は認証状態変化の種別を表す。
type AuthEventKind string

const (
	AuthEventInitialSession AuthEventKind = "INITIAL_SESSION"
	AuthEventSignedIn       AuthEventKind = "SIGNED_IN"
	AuthEventSignedOut      AuthEventKind = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEventKind = "USER_UPDATED"
)

// AuthEvent はクライアントに通知される認証状態の変化。
// Sessionがnilの場合は未認証状態を意味する。
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}

// User はイベントが示すユーザーを返す。未認証の場合はnilを返す。
func (e AuthEvent) User() *User {
	if e.Session == nil {
		return nil
	}
	return e.Session.User
}
