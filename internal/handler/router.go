package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mashtheking/PropertyPro-sub001/internal/metrics"
	"github.com/mashtheking/PropertyPro-sub001/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プロフィール・報酬・購読
	ProfileService      ProfileServiceInterface
	RewardService       RewardServiceInterface
	SubscriptionService SubscriptionServiceInterface

	// CRM
	CRMService CRMServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → CSRF
//	  → (認証ルートのみ) Session → RateLimit(General) [→ RateLimit(RewardCredit)]
//
// /health と /metrics、/auth/* は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService)
	rewardHandler := NewRewardHandler(deps.RewardService)
	subHandler := NewSubscriptionHandler(deps.SubscriptionService)
	crmHandler := NewCRMHandler(deps.CRMService)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/session", authHandler.Session)
		r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF).ServeHTTP)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/profile", profileHandler.GetProfile)

		r.Route("/rewards", func(r chi.Router) {
			// 広告報酬の付与は専用レート制限を追加
			r.With(deps.RateLimiter.RewardCreditMiddleware()).Post("/add", rewardHandler.Add)
			r.Post("/use", rewardHandler.Use)
			r.Get("/history", rewardHandler.History)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/verify", subHandler.Verify)
			r.Post("/cancel", subHandler.Cancel)
			r.Get("/{id}", subHandler.Details)
		})

		r.Route("/api", func(r chi.Router) {
			r.Route("/clients", func(r chi.Router) {
				r.Get("/", crmHandler.ListClients)
				r.Post("/", crmHandler.CreateClient)
				r.Get("/{id}", crmHandler.GetClient)
				r.Put("/{id}", crmHandler.UpdateClient)
				r.Delete("/{id}", crmHandler.DeleteClient)
			})
			r.Route("/properties", func(r chi.Router) {
				r.Get("/", crmHandler.ListProperties)
				r.Post("/", crmHandler.CreateProperty)
				r.Get("/{id}", crmHandler.GetProperty)
				r.Put("/{id}", crmHandler.UpdateProperty)
				r.Delete("/{id}", crmHandler.DeleteProperty)
			})
			r.Route("/appointments", func(r chi.Router) {
				r.Get("/", crmHandler.ListAppointments)
				r.Post("/", crmHandler.CreateAppointment)
				r.Get("/{id}", crmHandler.GetAppointment)
				r.Put("/{id}", crmHandler.UpdateAppointment)
				r.Delete("/{id}", crmHandler.DeleteAppointment)
			})
			r.Get("/analytics/summary", crmHandler.AnalyticsSummary)

			r.Delete("/users/me", userHandler.Withdraw)
		})
	})

	return r
}
