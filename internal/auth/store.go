// Package auth はIdPへのゲートウェイ、認証状態の通知、セッションオブザーバーを提供する。
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/fundori/fundori/internal/model"
)

// SessionStore はクライアント単位でIdPセッションのミラーを保持するストア。
// IdPが発行したトークン以外は保存しない。
type SessionStore interface {
	// Load はクライアントのセッションを取得する。存在しない場合はnilを返す。
	Load(ctx context.Context, clientID string) (*model.Session, error)
	// Save はクライアントのセッションを保存する。
	Save(ctx context.Context, clientID string, session *model.Session) error
	// Delete はクライアントのセッションを削除する。存在しなくてもエラーにしない。
	Delete(ctx context.Context, clientID string) error
}

type memoryEntry struct {
	session *model.Session
	savedAt time.Time
}

// MemoryStore はプロセス内メモリのSessionStore実装。
// 保存からttlを超えたエントリはLoad時に破棄される。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore はMemoryStoreを生成する。ttlが0以下の場合は期限なしとする。
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Load はクライアントのセッションを取得する。
func (s *MemoryStore) Load(_ context.Context, clientID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[clientID]
	if !ok {
		return nil, nil
	}
	if s.ttl > 0 && s.now().Sub(entry.savedAt) > s.ttl {
		delete(s.entries, clientID)
		return nil, nil
	}
	return entry.session, nil
}

// Save はクライアントのセッションを保存する。
func (s *MemoryStore) Save(_ context.Context, clientID string, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[clientID] = memoryEntry{session: session, savedAt: s.now()}
	return nil
}

// Delete はクライアントのセッションを削除する。
func (s *MemoryStore) Delete(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, clientID)
	return nil
}

// Len は保持しているセッション数を返す。テスト用。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// compile-time interface check
var _ SessionStore = (*MemoryStore)(nil)
