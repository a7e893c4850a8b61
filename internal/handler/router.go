package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fundori/fundori/internal/auth"
	"github.com/fundori/fundori/internal/content"
	"github.com/fundori/fundori/internal/middleware"
	"github.com/fundori/fundori/internal/security"
	"github.com/fundori/fundori/internal/view"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	ClientSessions    *middleware.ClientSessions
	CSRF              middleware.CSRFConfig
	CORSAllowedOrigin string
	// TrustProxyHeaders がtrueの場合、X-Forwarded-For等からRemoteAddrを設定する。
	TrustProxyHeaders bool
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder

	// 認証
	Gateway          AuthGateway
	AuthConfig       AuthHandlerConfig
	ObserverRecorder auth.ObserverRecorder

	// 画面とウィジェット
	Countdown CountdownSource
	Searches  WidgetRegistry
	Catalog   []content.Subject
	Sanitizer security.TextSanitizer

	// MetricsHandler は/metricsで公開するハンドラー。nilの場合は公開しない。
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	[RealIP] → Recovery → Metrics → Logging → SecurityHeaders → CORS → ClientSession → CSRF → RateLimit(General)
//
// /health と /metrics はミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer(security.DefaultMaxLength)
	}

	r := chi.NewRouter()
	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware(logger))

	r.Get("/health", Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	pageHandler := NewPageHandler(deps.Gateway, deps.ClientSessions, deps.Countdown, deps.Searches, deps.Catalog, sanitizer)
	authHandler := NewAuthHandler(deps.Gateway, deps.ClientSessions, deps.Searches, sanitizer, deps.AuthConfig)
	eventsHandler := NewEventsHandler(deps.Gateway, deps.ObserverRecorder, logger)
	searchHandler := NewSearchHandler(deps.Searches)
	contentHandler := NewContentHandler(deps.Catalog)
	countdownHandler := NewCountdownHandler(deps.Countdown)

	r.Group(func(r chi.Router) {
		if deps.StatusRecorder != nil {
			r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
		}
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRF.CookieSecure))
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(deps.ClientSessions.Middleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// --- 認証不要のルート ---
		r.Get("/", pageHandler.Index)
		r.Handle("/static/*", view.StaticHandler())
		r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
		r.Get("/api/papers", contentHandler.ListPapers)
		r.Get("/api/countdown", countdownHandler.Get)

		r.Route("/auth", func(r chi.Router) {
			// ログイン・登録試行は専用のレート制限を追加する
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/signup", authHandler.SignUp)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
			r.Get("/events", eventsHandler.Stream)
		})

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireUserMiddleware(deps.Gateway))

			r.Route("/api/search", func(r chi.Router) {
				r.Get("/", searchHandler.State)
				r.Post("/", searchHandler.Search)
				r.Post("/clear", searchHandler.Clear)
				r.Get("/prompts", searchHandler.Prompts)
				r.Post("/voice", searchHandler.Voice)
				r.Post("/voice/toggle", searchHandler.ToggleVoice)
			})
		})
	})

	return r
}

// Health はヘルスチェック用のハンドラー。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
