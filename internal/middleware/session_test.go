package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fundori/fundori/internal/model"
)

// --- モック定義 ---

type mockSessionProvider struct {
	getSessionFn func(ctx context.Context, clientID string) (*model.Session, error)
}

func (m *mockSessionProvider) GetSession(ctx context.Context, clientID string) (*model.Session, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, clientID)
	}
	return nil, nil
}

func newTestClientSessions() *ClientSessions {
	return NewClientSessions(ClientSessionConfig{
		Secret: "test-secret-test-secret-test-secret",
		MaxAge: 3600,
	})
}

// sessionCookie はレスポンスからクライアントセッションのCookieを取り出す。
func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == ClientSessionName {
			found = c
		}
	}
	return found
}

// --- ClientSessions.Middleware ---

func TestClientSessionMiddleware_IssuesClientID(t *testing.T) {
	cs := newTestClientSessions()

	var clientID string
	handler := cs.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := ClientIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected client ID, got error %v", err)
		}
		clientID = id
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if clientID == "" {
		t.Fatal("client ID was not issued")
	}
	cookie := sessionCookie(t, w)
	if cookie == nil {
		t.Fatal("session cookie was not set")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
}

func TestClientSessionMiddleware_ReusesClientIDFromCookie(t *testing.T) {
	cs := newTestClientSessions()

	var ids []string
	handler := cs.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := ClientIDFromContext(r.Context())
		ids = append(ids, id)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	cookie := sessionCookie(t, first)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)

	if len(ids) != 2 || ids[0] != ids[1] {
		t.Errorf("client IDs = %v, want the same ID twice", ids)
	}
	if sessionCookie(t, second) != nil {
		t.Error("existing session should not be re-issued")
	}
}

func TestClientSessionMiddleware_TamperedCookieGetsNewID(t *testing.T) {
	cs := newTestClientSessions()

	var clientID string
	handler := cs.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID, _ = ClientIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ClientSessionName, Value: "forged-value"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if clientID == "" {
		t.Error("a new client ID should be issued for a tampered cookie")
	}
	if sessionCookie(t, w) == nil {
		t.Error("a fresh session cookie should be set")
	}
}

func TestClientIDFromContext_NoValue_ReturnsError(t *testing.T) {
	if _, err := ClientIDFromContext(context.Background()); err == nil {
		t.Error("expected error when client ID is missing")
	}
}

// --- フォームメッセージ ---

func TestFormMessage_SetThenPopOnce(t *testing.T) {
	cs := newTestClientSessions()

	set := httptest.NewRecorder()
	err := cs.SetFormMessage(set, httptest.NewRequest(http.MethodPost, "/auth/login", nil), model.FormMessage{
		Form: model.FormLogin,
		Kind: model.FormMessageError,
		Text: "Invalid login credentials",
	})
	if err != nil {
		t.Fatalf("SetFormMessage error: %v", err)
	}
	cookie := sessionCookie(t, set)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	pop := httptest.NewRecorder()
	msg := cs.PopFormMessage(pop, req)
	if msg == nil {
		t.Fatal("expected a form message")
	}
	if msg.Form != model.FormLogin || msg.Text != "Invalid login credentials" || !msg.IsError() {
		t.Errorf("message = %+v, want login error", msg)
	}

	// 表示済みのメッセージは次のリクエストでは取り出せない
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessionCookie(t, pop))
	if again := cs.PopFormMessage(httptest.NewRecorder(), req); again != nil {
		t.Errorf("message shown twice: %+v", again)
	}
}

func TestFormMessage_NewMessageReplacesPrevious(t *testing.T) {
	cs := newTestClientSessions()

	first := httptest.NewRecorder()
	cs.SetFormMessage(first, httptest.NewRequest(http.MethodPost, "/auth/signup", nil), model.FormMessage{
		Form: model.FormSignup, Kind: model.FormMessageError, Text: "Passwords do not match",
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", nil)
	req.AddCookie(sessionCookie(t, first))
	second := httptest.NewRecorder()
	cs.SetFormMessage(second, req, model.FormMessage{
		Form: model.FormSignup, Kind: model.FormMessageSuccess, Text: "Account created",
	})

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(sessionCookie(t, second))
	msg := cs.PopFormMessage(httptest.NewRecorder(), req)
	if msg == nil || msg.Kind != model.FormMessageSuccess {
		t.Errorf("message = %+v, want only the success message", msg)
	}
}

func TestPopFormMessage_NoneSet(t *testing.T) {
	cs := newTestClientSessions()
	if msg := cs.PopFormMessage(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)); msg != nil {
		t.Errorf("message = %+v, want nil", msg)
	}
}

// --- NewRequireUserMiddleware ---

func withClientID(r *http.Request, clientID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), clientIDContextKey, clientID))
}

func TestRequireUser_AuthenticatedInjectsUser(t *testing.T) {
	provider := &mockSessionProvider{
		getSessionFn: func(ctx context.Context, clientID string) (*model.Session, error) {
			if clientID != "client-1" {
				t.Errorf("clientID = %q, want client-1", clientID)
			}
			return &model.Session{User: &model.User{ID: "user-1"}}, nil
		},
	}

	var got *model.User
	handler := NewRequireUserMiddleware(provider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withClientID(httptest.NewRequest(http.MethodGet, "/api/search", nil), "client-1"))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got == nil || got.ID != "user-1" {
		t.Errorf("user = %+v, want user-1", got)
	}
}

func TestRequireUser_Returns401(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		session  *model.Session
		err      error
	}{
		{"クライアントIDなし", "", nil, nil},
		{"セッションなし", "client-1", nil, nil},
		{"ユーザーなし", "client-1", &model.Session{AccessToken: "x"}, nil},
		{"取得エラー", "client-1", nil, errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &mockSessionProvider{
				getSessionFn: func(ctx context.Context, clientID string) (*model.Session, error) {
					return tt.session, tt.err
				},
			}
			handler := NewRequireUserMiddleware(provider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
			if tt.clientID != "" {
				req = withClientID(req, tt.clientID)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}
