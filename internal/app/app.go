package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fundori/fundori/internal/auth"
	"github.com/fundori/fundori/internal/config"
	"github.com/fundori/fundori/internal/content"
	"github.com/fundori/fundori/internal/countdown"
	"github.com/fundori/fundori/internal/handler"
	"github.com/fundori/fundori/internal/identity"
	"github.com/fundori/fundori/internal/logger"
	"github.com/fundori/fundori/internal/metrics"
	"github.com/fundori/fundori/internal/middleware"
	"github.com/fundori/fundori/internal/search"
	"github.com/fundori/fundori/internal/security"
)

const (
	shutdownTimeout        = 30 * time.Second
	widgetCleanupInterval  = 5 * time.Minute
	defaultHealthcheckPort = "8080"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. ログレベルを反映する
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("invalid LOG_LEVEL, using info",
			slog.String("log_level", cfg.LogLevel),
			slog.String("error", err.Error()),
		)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultHealthcheckPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServe(ctx, cfg)
}

// server はHTTPハンドラーと、停止が必要なバックグラウンド処理をまとめたもの。
type server struct {
	handler http.Handler
	gateway *auth.Gateway

	registry    *search.Registry
	rateLimiter *middleware.RateLimiter
	redis       *redis.Client
	cancel      context.CancelFunc
}

// newServer は設定から全依存関係をワイヤリングする。
// 返されたserverは使用後にcloseで停止する必要がある。
func newServer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*server, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &server{cancel: cancel}

	// 1. メトリクス
	reg := metrics.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 2. 認証ゲートウェイ
	gateway, err := s.buildGateway(ctx, cfg, collector, log)
	if err != nil {
		s.close()
		return nil, err
	}
	s.gateway = gateway

	// 3. カウントダウン
	loc, err := time.LoadLocation(cfg.ExamTimezone)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("failed to load exam timezone %q: %w", cfg.ExamTimezone, err)
	}
	target, err := countdown.ParseTarget(cfg.ExamDate, loc)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("failed to parse exam date: %w", err)
	}
	cd := countdown.NewWidget(target, loc)
	cd.Start(ctx)

	// 4. 検索ウィジェット
	sanitizer := security.NewTextSanitizer(security.DefaultMaxLength)
	searcher := search.NewMockSearcher(cfg.SearchLatency)
	s.registry = search.NewRegistry(func() *search.Widget {
		opts := []search.WidgetOption{
			search.WithSearchRecorder(collector),
			search.WithLogger(log),
		}
		if cfg.VoiceInput {
			opts = append(opts, search.WithRecognizer(search.NewTranscriptRecognizer()))
		}
		return search.NewWidget(searcher, sanitizer, opts...)
	}, search.DefaultIdleTTL, widgetCleanupInterval)

	// 5. ミドルウェア
	s.rateLimiter = middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	s.rateLimiter.SetRecorder(collector)

	clientSessions := middleware.NewClientSessions(middleware.ClientSessionConfig{
		Secret: cfg.SessionSecret,
		MaxAge: cfg.SessionMaxAge,
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
	})

	// 6. ルーター
	s.handler = handler.NewRouter(&handler.RouterDeps{
		Logger:         log,
		ClientSessions: clientSessions,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			Logger:       log,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RateLimiter:       s.rateLimiter,
		StatusRecorder:    collector,

		Gateway:          gateway,
		AuthConfig:       handler.AuthHandlerConfig{BaseURL: cfg.BaseURL},
		ObserverRecorder: collector,

		Countdown: cd,
		Searches:  s.registry,
		Catalog:   content.Catalog(),
		Sanitizer: sanitizer,

		MetricsHandler: metrics.Handler(reg),
	})

	return s, nil
}

// buildGateway はIdPの構成有無に応じて認証ゲートウェイを生成する。
// REDIS_URLが設定されている場合、セッションはRedisに保存する。
func (s *server) buildGateway(ctx context.Context, cfg *config.Config, collector *metrics.Collector, log *slog.Logger) (*auth.Gateway, error) {
	notifier := auth.NewNotifier()
	opts := []auth.Option{
		auth.WithRecorder(collector),
		auth.WithLogger(log),
	}

	if !cfg.AuthConfigured() {
		log.Warn("identity provider is not configured, sign-in and sign-up are disabled")
		return auth.NewDisabledGateway(notifier, opts...), nil
	}

	ttl := time.Duration(cfg.SessionMaxAge) * time.Second
	var store auth.SessionStore
	if cfg.RedisURL != "" {
		client, err := auth.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.redis = client
		store = auth.NewRedisStore(client, ttl)
		log.Info("session store: redis")
	} else {
		store = auth.NewMemoryStore(ttl)
		log.Info("session store: memory")
	}

	provider := identity.NewGoTrueClient(identity.GoTrueConfig{
		URL:     cfg.SupabaseURL,
		AnonKey: cfg.SupabaseAnonKey,
		Timeout: cfg.IdentityTimeout,
	})

	tokens := auth.NewTokenInspector(cfg.SupabaseJWTSecret)
	if !tokens.Verifies() {
		log.Warn("SUPABASE_JWT_SECRET is not set, access token signatures are not verified")
	}
	opts = append(opts, auth.WithTokenInspector(tokens))

	return auth.NewGateway(provider, store, notifier, opts...), nil
}

// close はバックグラウンド処理を停止し、外部接続を閉じる。
func (s *server) close() {
	s.cancel()
	if s.registry != nil {
		s.registry.Stop()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}
}

// runServe はWebサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxが終了するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := newServer(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer srv.close()

	// シャットダウン開始時にSSEなどの長時間リクエストを終了させる
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	// SSEストリームはハンドラー側で書き込み期限を解除する
	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", httpServer.Addr),
			slog.Bool("auth_enabled", srv.gateway.Enabled()),
			slog.Bool("voice_input", cfg.VoiceInput),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down web server...")
	cancelRequests()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
