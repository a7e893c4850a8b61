package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fundori/fundori/internal/model"
)

// 制限の種類（ログとメトリクスのラベルに使用する）
const (
	LimitTypeGeneral = "general"
	LimitTypeAuth    = "auth"
)

// maxRetryAfterSeconds はRetry-Afterヘッダーの上限（1時間）。
const maxRetryAfterSeconds = 60 * 60

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // 全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // 全般のバーストサイズ
	AuthRate        rate.Limit    // ログイン・登録試行のレート（req/sec）。10/60
	AuthBurst       int           // ログイン・登録試行のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 全般 120 req/min/client、ログイン・登録試行 10 req/min/client
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120, 10)
}

// NewRateLimiterConfig は1分あたりのリクエスト数からレート制限設定を生成する。
func NewRateLimiterConfig(generalPerMinute, authPerMinute int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMinute) / 60.0),
		GeneralBurst:    generalPerMinute,
		AuthRate:        rate.Limit(float64(authPerMinute) / 60.0),
		AuthBurst:       authPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimitRecorder はレート制限による拒否を記録するインターフェース。
type RateLimitRecorder interface {
	RecordRateLimited(limitType string)
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limitKeyFunc はリクエストからリミッターのキーを取り出す。
type limitKeyFunc func(r *http.Request) (string, error)

// clientIDLimitKey はクライアントセッションのIDをキーにする。
func clientIDLimitKey(r *http.Request) (string, error) {
	return ClientIDFromContext(r.Context())
}

// remoteAddrKey は接続元アドレスのホスト部をキーにする。
// クライアントが自由に作り直せるセッションCookieには依存しない。
func remoteAddrKey(r *http.Request) (string, error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// chiのRealIPはポートなしのアドレスを設定する
		return r.RemoteAddr, nil
	}
	return host, nil
}

// limiterSet は1種類のレート制限についてキーごとのリミッターを管理する。
type limiterSet struct {
	limitType string
	rate      rate.Limit
	burst     int
	keyOf     limitKeyFunc

	mu       sync.RWMutex
	limiters map[string]*clientLimiter
}

func newLimiterSet(limitType string, r rate.Limit, burst int, keyOf limitKeyFunc) *limiterSet {
	return &limiterSet{
		limitType: limitType,
		rate:      r,
		burst:     burst,
		keyOf:     keyOf,
		limiters:  make(map[string]*clientLimiter),
	}
}

// RateLimiter はレート制限を管理する。
// 全般のレート制限はクライアントセッション単位、
// ログイン・登録試行のレート制限は接続元アドレス単位で適用する。
type RateLimiter struct {
	config   RateLimiterConfig
	recorder RateLimitRecorder

	general *limiterSet
	auth    *limiterSet

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet(LimitTypeGeneral, config.GeneralRate, config.GeneralBurst, clientIDLimitKey),
		auth:    newLimiterSet(LimitTypeAuth, config.AuthRate, config.AuthBurst, remoteAddrKey),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// SetRecorder はメトリクス記録先を設定する。
func (rl *RateLimiter) SetRecorder(r RateLimitRecorder) {
	rl.recorder = r
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware は全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにクライアントIDが含まれている必要がある（ClientSessions.Middlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// AuthMiddleware はログイン・登録試行のレート制限ミドルウェアを返す。
// 全般のレート制限とは独立に動作し、接続元アドレスごとに制限する。
// リバースプロキシ配下ではchiのRealIPを前段に置く。
func (rl *RateLimiter) AuthMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.auth)
}

func (rl *RateLimiter) middleware(set *limiterSet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := set.keyOf(r)
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if !set.get(key).Allow() {
				writeRateLimitResponse(w, set.rate)
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", set.limitType),
				)
				if rl.recorder != nil {
					rl.recorder.RecordRateLimited(set.limitType)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されている全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// AuthLimiterCount は現在管理されているログイン・登録試行リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) AuthLimiterCount() int {
	return rl.auth.len()
}

// get はキーに対応するリミッターを取得または作成する。
func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.RLock()
	cl, exists := s.limiters[key]
	s.mu.RUnlock()

	if exists {
		s.mu.Lock()
		cl.lastAccess = time.Now()
		s.mu.Unlock()
		return cl.limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ダブルチェック
	if cl, exists := s.limiters[key]; exists {
		cl.lastAccess = time.Now()
		return cl.limiter
	}

	limiter := rate.NewLimiter(s.rate, s.burst)
	s.limiters[key] = &clientLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

func (s *limiterSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

// evict は最終アクセスからttlを超えたエントリを削除する。
func (s *limiterSet) evict(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cl := range s.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.general.evict(now, ttl)
	rl.auth.evict(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(r)))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitError())
}

// retryAfterSeconds は1トークンが補充されるまでの秒数を返す。
// レートが0以下の場合は補充されないため上限値を返す。
func retryAfterSeconds(r rate.Limit) int {
	if r <= 0 {
		return maxRetryAfterSeconds
	}
	sec := math.Ceil(1.0 / float64(r))
	if sec > maxRetryAfterSeconds {
		return maxRetryAfterSeconds
	}
	if sec < 1 {
		return 1
	}
	return int(sec)
}
