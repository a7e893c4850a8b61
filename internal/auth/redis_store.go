package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fundori/fundori/internal/model"
)

const redisKeyPrefix = "fundori:session:"

// storedSession はRedisに保存するセッションの表現。
type storedSession struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         *storedUser `json:"user,omitempty"`
}

type storedUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore はRedisを使用したSessionStore実装。
// 複数インスタンス構成や再起動後もセッションミラーを維持する場合に使用する。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore はRedisStoreを生成する。
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// OpenRedis はURLからRedisクライアントを生成し、接続を確認する。
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Load はクライアントのセッションを取得する。
func (s *RedisStore) Load(ctx context.Context, clientID string) (*model.Session, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+clientID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var stored storedSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return stored.toModel(), nil
}

// Save はクライアントのセッションを保存する。
func (s *RedisStore) Save(ctx context.Context, clientID string, session *model.Session) error {
	raw, err := json.Marshal(fromModel(session))
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+clientID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete はクライアントのセッションを削除する。
func (s *RedisStore) Delete(ctx context.Context, clientID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+clientID).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func fromModel(s *model.Session) storedSession {
	stored := storedSession{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresAt:    s.ExpiresAt,
	}
	if s.User != nil {
		stored.User = &storedUser{
			ID:        s.User.ID,
			Email:     s.User.Email,
			FirstName: s.User.FirstName,
			LastName:  s.User.LastName,
			FullName:  s.User.FullName,
			CreatedAt: s.User.CreatedAt,
		}
	}
	return stored
}

func (s storedSession) toModel() *model.Session {
	session := &model.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresAt:    s.ExpiresAt,
	}
	if s.User != nil {
		session.User = &model.User{
			ID:        s.User.ID,
			Email:     s.User.Email,
			FirstName: s.User.FirstName,
			LastName:  s.User.LastName,
			FullName:  s.User.FullName,
			CreatedAt: s.User.CreatedAt,
		}
	}
	return session
}

// compile-time interface check
var _ SessionStore = (*RedisStore)(nil)
