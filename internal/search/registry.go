package search

import (
	"sync"
	"time"
)

// DefaultIdleTTL は最後のアクセスからウィジェットを破棄するまでの時間。
const DefaultIdleTTL = 30 * time.Minute

type registryEntry struct {
	widget     *Widget
	lastAccess time.Time
}

// Registry はクライアントごとの検索ウィジェットを管理する。
// 一定時間アクセスの無いウィジェットはバックグラウンドで破棄する。
type Registry struct {
	factory         func() *Widget
	ttl             time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	mu      sync.RWMutex
	widgets map[string]*registryEntry

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRegistry は新しいRegistryを生成し、クリーンアップを開始する。
// cleanupIntervalが0以下の場合はクリーンアップを開始しない。
func NewRegistry(factory func() *Widget, ttl, cleanupInterval time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	r := &Registry{
		factory:         factory,
		ttl:             ttl,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		widgets:         make(map[string]*registryEntry),
		stopCh:          make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go r.cleanupLoop()
	}
	return r
}

// Stop はクリーンアップを停止し、全ウィジェットを閉じる。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)

		r.mu.Lock()
		defer r.mu.Unlock()
		for clientID, e := range r.widgets {
			e.widget.Close()
			delete(r.widgets, clientID)
		}
	})
}

// Get はクライアントのウィジェットを取得または作成する。
func (r *Registry) Get(clientID string) *Widget {
	r.mu.RLock()
	e, exists := r.widgets[clientID]
	r.mu.RUnlock()

	if exists {
		r.mu.Lock()
		e.lastAccess = r.now()
		r.mu.Unlock()
		return e.widget
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// ダブルチェック
	if e, exists := r.widgets[clientID]; exists {
		e.lastAccess = r.now()
		return e.widget
	}

	w := r.factory()
	r.widgets[clientID] = &registryEntry{widget: w, lastAccess: r.now()}
	return w
}

// Remove はクライアントのウィジェットを閉じて破棄する。ログアウト時に使用する。
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	e, exists := r.widgets[clientID]
	delete(r.widgets, clientID)
	r.mu.Unlock()

	if exists {
		e.widget.Close()
	}
}

// Len は管理しているウィジェット数を返す。テストおよびメトリクス用。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.widgets)
}

func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.cleanup()
		case <-r.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからttlを超えたウィジェットを破棄する。
func (r *Registry) cleanup() {
	now := r.now()

	var expired []*Widget
	r.mu.Lock()
	for clientID, e := range r.widgets {
		if now.Sub(e.lastAccess) > r.ttl {
			expired = append(expired, e.widget)
			delete(r.widgets, clientID)
		}
	}
	r.mu.Unlock()

	for _, w := range expired {
		w.Close()
	}
}
