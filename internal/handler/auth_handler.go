package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fundori/fundori/internal/model"
	"github.com/fundori/fundori/internal/security"
)

// ランディング画面のフォームに表示するメッセージ
const (
	MsgLoginSuccess       = "Login successful!"
	MsgSignUpSuccess      = "Account created successfully! Please check your email to verify your account."
	MsgPasswordsMismatch  = "Passwords do not match"
	MsgMissingCredentials = "Please enter your email and password."
)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// BaseURL はフォーム送信後のリダイレクト先。空の場合は"/"。
	BaseURL string
}

// AuthHandler はログイン・登録フォームとセッション関連のHTTPハンドラー。
// フォームの結果はPost/Redirect/Getで返し、メッセージはCookieセッションに1件だけ保存する。
type AuthHandler struct {
	gateway   AuthGateway
	messages  FormMessageStore
	searches  WidgetRegistry
	sanitizer security.TextSanitizer
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(gateway AuthGateway, messages FormMessageStore, searches WidgetRegistry, sanitizer security.TextSanitizer, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		gateway:   gateway,
		messages:  messages,
		searches:  searches,
		sanitizer: sanitizer,
		config:    config,
	}
}

// Login はメールアドレスとパスワードでログインする。
// POST /auth/login (form: email, password)
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDOrFail(w, r)
	if !ok {
		return
	}

	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	if strings.TrimSpace(email) == "" || password == "" {
		h.finish(w, r, model.FormLogin, model.FormMessageError, MsgMissingCredentials)
		return
	}

	if _, err := h.gateway.SignIn(r.Context(), clientID, email, password); err != nil {
		h.finish(w, r, model.FormLogin, model.FormMessageError, authErrorMessage(err))
		return
	}

	h.finish(w, r, model.FormLogin, model.FormMessageSuccess, MsgLoginSuccess)
}

// SignUp はアカウントを作成する。
// POST /auth/signup (form: first_name, last_name, email, password, confirm_password)
// パスワードが一致しない場合はIdPを呼び出さない。
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDOrFail(w, r)
	if !ok {
		return
	}

	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	if password != r.PostFormValue("confirm_password") {
		h.finish(w, r, model.FormSignup, model.FormMessageError, MsgPasswordsMismatch)
		return
	}
	if strings.TrimSpace(email) == "" || password == "" {
		h.finish(w, r, model.FormSignup, model.FormMessageError, MsgMissingCredentials)
		return
	}

	meta := model.NameMetadata{
		FirstName: h.sanitizer.Sanitize(r.PostFormValue("first_name")),
		LastName:  h.sanitizer.Sanitize(r.PostFormValue("last_name")),
	}

	if _, err := h.gateway.SignUp(r.Context(), clientID, strings.TrimSpace(email), password, meta); err != nil {
		h.finish(w, r, model.FormSignup, model.FormMessageError, authErrorMessage(err))
		return
	}

	h.finish(w, r, model.FormSignup, model.FormMessageSuccess, MsgSignUpSuccess)
}

// Logout はセッションを破棄し、検索ウィジェットを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDOrFail(w, r)
	if !ok {
		return
	}

	if err := h.gateway.SignOut(r.Context(), clientID); err != nil {
		// リモートの破棄に失敗してもローカルのセッションはクリア済み
		slog.Warn("failed to sign out remotely",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
	}
	h.searches.Remove(clientID)

	http.Redirect(w, r, h.redirectTarget(), http.StatusSeeOther)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	clientID, ok := clientIDOrFail(w, r)
	if !ok {
		return
	}

	user, err := h.gateway.GetCurrentUser(r.Context(), clientID)
	if err != nil {
		slog.Warn("failed to get current user",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()),
		)
	}
	if user == nil {
		writeAPIError(w, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// finish はフォームメッセージを保存してランディング画面へリダイレクトする。
func (h *AuthHandler) finish(w http.ResponseWriter, r *http.Request, form model.FormName, kind model.FormMessageKind, text string) {
	err := h.messages.SetFormMessage(w, r, model.FormMessage{Form: form, Kind: kind, Text: text})
	if err != nil {
		slog.Error("failed to store form message",
			slog.String("form", string(form)),
			slog.String("error", err.Error()),
		)
	}
	http.Redirect(w, r, h.redirectTarget(), http.StatusSeeOther)
}

func (h *AuthHandler) redirectTarget() string {
	if h.config.BaseURL == "" {
		return "/"
	}
	return strings.TrimRight(h.config.BaseURL, "/") + "/"
}

// authErrorMessage はゲートウェイのエラーをフォームに表示する文言に変換する。
func authErrorMessage(err error) string {
	var authErr *model.AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	return model.MsgUnexpectedError
}
