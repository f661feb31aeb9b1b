package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/yieldvision/internal/metrics"
	"github.com/hitoshi/yieldvision/internal/middleware"
	"github.com/hitoshi/yieldvision/internal/security"
)

// 未ログイン時の代替表示。ビューごとに固定。
const (
	PredictionLoginNotice = "Please log in to make crop yield predictions."
	SettingsLoginNotice   = "Please log in to access settings."
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	ClientConfig      middleware.ClientConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	ProviderLoader    middleware.ProviderLoader
	RateLimiter       *middleware.RateLimiter

	// 運用
	Metrics        metrics.MetricsCollector
	MetricsHandler http.Handler
	HealthChecker  HealthChecker

	// 認証
	Sanitizer security.TextSanitizer

	// 予測・設定・可視化・通知
	PredictionService PredictionServiceInterface
	SettingsService   SettingsServiceInterface
	Charts            ChartCatalog
	Notifications     NotificationSource
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Client → Session → CSRF
//
// /health と /metrics はクライアント識別の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.Sanitizer, collector)
	predictionHandler := NewPredictionHandler(deps.PredictionService, collector)
	settingsHandler := NewSettingsHandler(deps.SettingsService)
	chartHandler := NewChartHandler(deps.Charts)
	notificationHandler := NewNotificationHandler(deps.Notifications)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(middleware.NewLoggingMiddleware(logger, collector))
		r.Use(middleware.NewClientMiddleware(deps.ClientConfig))
		r.Use(middleware.NewSessionMiddleware(deps.ProviderLoader))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// --- ログイン不要のルート ---
		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		r.Route("/auth", func(r chi.Router) {
			// 認証試行はクライアントごとに制限する
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/register", authHandler.Register)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		r.Get("/api/notifications", notificationHandler.Drain)

		r.Route("/api/charts", func(r chi.Router) {
			r.Get("/", chartHandler.ListCharts)
			r.Get("/{name}", chartHandler.GetChart)
		})

		// --- ログインが必要なルート ---
		// ミドルウェアスタック: Guard → RateLimit(General)
		r.Route("/api/predictions", func(r chi.Router) {
			r.Use(middleware.NewGuard(middleware.GuardConfig{
				Notice:   PredictionLoginNotice,
				Recorder: collector,
			}))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Post("/", predictionHandler.Predict)
			r.Get("/latest", predictionHandler.Latest)
		})

		r.Route("/api/settings", func(r chi.Router) {
			r.Use(middleware.NewGuard(middleware.GuardConfig{
				Notice:   SettingsLoginNotice,
				Recorder: collector,
			}))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/", settingsHandler.GetSettings)
			r.Put("/profile", settingsHandler.UpdateProfile)
			r.Put("/notifications", settingsHandler.UpdateNotifications)
		})
	})

	return r
}
