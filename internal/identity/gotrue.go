package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fundori/fundori/internal/model"
)

const (
	authPathPrefix      = "/auth/v1"
	maxResponseBodySize = 1 << 20
)

// GoTrueConfig はGoTrueクライアントの設定。
type GoTrueConfig struct {
	URL     string // プロジェクトURL（例: https://xyz.supabase.co）
	AnonKey string // 公開APIキー

	// 未指定の場合はTimeoutのみ設定したhttp.Clientを使用する
	HTTPClient *http.Client
	Timeout    time.Duration

	// テスト用に差し替え可能な現在時刻
	Now func() time.Time
}

// GoTrueClient はGoTrue REST APIによるProvider実装。
// 状態を持たないためプロセス全体で共有できる。
type GoTrueClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	now        func() time.Time
}

// NewGoTrueClient はGoTrueClientを生成する。
func NewGoTrueClient(cfg GoTrueConfig) *GoTrueClient {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &GoTrueClient{
		baseURL:    strings.TrimRight(cfg.URL, "/") + authPathPrefix,
		anonKey:    cfg.AnonKey,
		httpClient: client,
		now:        now,
	}
}

// gotrueUser はGoTrueのユーザーオブジェクト。
type gotrueUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	UserMetadata struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		FullName  string `json:"full_name"`
	} `json:"user_metadata"`
}

// gotrueSession はトークンエンドポイントのレスポンス。
type gotrueSession struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         *gotrueUser `json:"user"`
}

// gotrueError はGoTrueのエラーレスポンス。
// エンドポイントやバージョンによってフィールド名が異なる。
type gotrueError struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// SignUp は /signup にアカウント作成を要求する。
func (c *GoTrueClient) SignUp(ctx context.Context, email, password string, meta model.NameMetadata) (*model.SignUpResult, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data": map[string]string{
			"first_name": meta.FirstName,
			"last_name":  meta.LastName,
			"full_name":  meta.FullName(),
		},
	}

	body, err := c.do(ctx, http.MethodPost, "/signup", nil, "", payload)
	if err != nil {
		return nil, err
	}

	// 自動確認が有効な場合はセッション、メール確認待ちの場合はユーザーのみが返る
	var sess gotrueSession
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse signup response: %w", err)
	}
	if sess.AccessToken != "" {
		session := c.toSession(&sess)
		return &model.SignUpResult{User: session.User, Session: session}, nil
	}

	var u gotrueUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("failed to parse signup user: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("empty user in signup response")
	}
	return &model.SignUpResult{User: toUser(&u)}, nil
}

// SignInWithPassword は /token?grant_type=password でセッションを発行する。
func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	return c.token(ctx, "password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// RefreshSession は /token?grant_type=refresh_token でセッションを更新する。
func (c *GoTrueClient) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
}

// SignOut は /logout でリモートセッションを破棄する。
func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil)
	return err
}

// GetUser は /user でアクセストークンの持ち主を取得する。
func (c *GoTrueClient) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	body, err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var u gotrueUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("empty id in user response")
	}
	return toUser(&u), nil
}

// token はトークンエンドポイントを呼び出しセッションに変換する。
func (c *GoTrueClient) token(ctx context.Context, grantType string, payload map[string]string) (*model.Session, error) {
	query := url.Values{"grant_type": {grantType}}
	body, err := c.do(ctx, http.MethodPost, "/token", query, "", payload)
	if err != nil {
		return nil, err
	}

	var sess gotrueSession
	if err := json.Unmarshal(body, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if sess.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}
	return c.toSession(&sess), nil
}

// do はGoTrueへリクエストを送信し、2xxの場合にレスポンスボディを返す。
// bearerが空の場合は公開APIキーをBearerトークンとして使用する。
func (c *GoTrueClient) do(ctx context.Context, method, path string, query url.Values, bearer string, payload any) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// parseErrorResponse はエラーレスポンスからユーザー向けメッセージを取り出す。
func parseErrorResponse(status int, body []byte) *ResponseError {
	respErr := &ResponseError{Status: status}

	var ge gotrueError
	if err := json.Unmarshal(body, &ge); err != nil {
		respErr.Message = http.StatusText(status)
		return respErr
	}

	respErr.Code = ge.ErrorCode
	if respErr.Code == "" {
		respErr.Code = ge.Error
	}

	for _, m := range []string{ge.Msg, ge.ErrorDescription, ge.Message, ge.Error} {
		if m != "" {
			respErr.Message = m
			break
		}
	}
	if respErr.Message == "" {
		respErr.Message = http.StatusText(status)
	}
	return respErr
}

// toSession はGoTrueのセッションをドメインモデルに変換する。
func (c *GoTrueClient) toSession(s *gotrueSession) *model.Session {
	session := &model.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
	}
	switch {
	case s.ExpiresAt > 0:
		session.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		session.ExpiresAt = c.now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	if s.User != nil {
		session.User = toUser(s.User)
	}
	return session
}

// toUser はGoTrueのユーザーをドメインモデルに変換する。
func toUser(u *gotrueUser) *model.User {
	return &model.User{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.UserMetadata.FirstName,
		LastName:  u.UserMetadata.LastName,
		FullName:  u.UserMetadata.FullName,
		CreatedAt: u.CreatedAt,
	}
}

// compile-time interface check
var _ Provider = (*GoTrueClient)(nil)
