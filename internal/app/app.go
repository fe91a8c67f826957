package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/auth"
	"github.com/mashtheking/PropertyPro-sub001/internal/billing"
	"github.com/mashtheking/PropertyPro-sub001/internal/config"
	"github.com/mashtheking/PropertyPro-sub001/internal/crm"
	"github.com/mashtheking/PropertyPro-sub001/internal/database"
	"github.com/mashtheking/PropertyPro-sub001/internal/entitlement"
	"github.com/mashtheking/PropertyPro-sub001/internal/handler"
	"github.com/mashtheking/PropertyPro-sub001/internal/logger"
	"github.com/mashtheking/PropertyPro-sub001/internal/metrics"
	"github.com/mashtheking/PropertyPro-sub001/internal/middleware"
	"github.com/mashtheking/PropertyPro-sub001/internal/repository"
	"github.com/mashtheking/PropertyPro-sub001/internal/reward"
	"github.com/mashtheking/PropertyPro-sub001/internal/security"
	"github.com/mashtheking/PropertyPro-sub001/internal/subscription"
	"github.com/mashtheking/PropertyPro-sub001/internal/user"
	"github.com/mashtheking/PropertyPro-sub001/internal/worker/billingsync"
	"github.com/mashtheking/PropertyPro-sub001/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
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

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
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
		slog.Bool("billing_enabled", cfg.BillingEnabled()),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はコネクションプール設定を適用してDBに接続し、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.OpenWithPool(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newRegistry はプロセス・ランタイムのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newBillingProvider はPayPal認証情報があればPayPalクライアントを、なければ常に失敗するProviderを返す。
func newBillingProvider(cfg *config.Config, collector metrics.MetricsCollector) billing.Provider {
	if !cfg.BillingEnabled() {
		slog.Warn("PayPal credentials are not configured; subscription verification is disabled")
		return billing.UnavailableProvider{}
	}
	return billing.NewPayPalClient(billing.PayPalConfig{
		ClientID:     cfg.PayPalClientID,
		ClientSecret: cfg.PayPalClientSecret,
		BaseURL:      cfg.PayPalBaseURL,
	}, &http.Client{Timeout: cfg.BillingTimeout}, collector, slog.Default())
}

// rateLimiterConfig は設定値（分・時間単位）をリミッターのreq/secに変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitRewardCredit > 0 {
		rl.RewardCreditRate = rate.Limit(float64(cfg.RateLimitRewardCredit) / 3600.0)
	}
	return rl
}

// buildRouter は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
// 戻り値のstop関数はレートリミッターのクリーンアップを停止する。
func buildRouter(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (http.Handler, func()) {
	collector := metrics.NewCollector(reg)

	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	rewardRepo := repository.NewPostgresRewardRepo(db)
	subRepo := repository.NewPostgresSubscriptionRepo(db)
	clientRepo := repository.NewPostgresClientRepo(db)
	propertyRepo := repository.NewPostgresPropertyRepo(db)
	appointmentRepo := repository.NewPostgresAppointmentRepo(db)
	analyticsRepo := repository.NewPostgresAnalyticsRepo(db)

	// 2. ドメインサービス
	sanitizer := security.NewContentSanitizer()

	authService := auth.NewService(userRepo, sessionRepo, sanitizer, collector, auth.ServiceConfig{
		SessionSecret:         cfg.SessionSecret,
		SessionMaxAge:         cfg.SessionMaxAge,
		SessionRememberMaxAge: cfg.SessionRememberMaxAge,
		PasswordMinLength:     cfg.PasswordMinLength,
	})
	rewardService := reward.NewService(rewardRepo, collector, reward.ServiceConfig{
		MaxPerAd:  cfg.RewardMaxPerAd,
		UnlockTTL: cfg.FeatureUnlockTTL,
	})
	entitlementService := entitlement.NewService(profileRepo, rewardRepo)
	subService := subscription.NewService(subRepo, newBillingProvider(cfg, collector), collector,
		subscription.ServiceConfig{PlanID: cfg.PayPalPlanID})
	crmService := crm.NewService(clientRepo, propertyRepo, appointmentRepo, analyticsRepo,
		entitlementService, sanitizer, crm.ServiceConfig{FreePropertyLimit: cfg.FreePropertyLimit})
	userService := user.NewService(userRepo, sessionRepo, profileRepo, subService)

	// 3. ルーター
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	authConfig := handler.AuthHandlerConfig{
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionResolver:   authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:     rateLimiter,
		HealthChecker:   db,
		MetricsGatherer: reg,

		AuthService: authService,
		AuthConfig:  authConfig,

		ProfileService:      handler.NewProfileServiceAdapter(profileRepo),
		RewardService:       rewardService,
		SubscriptionService: subService,
		CRMService:          crmService,
		UserService:         userService,
	})

	return router, rateLimiter.Stop
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, stopLimiter := buildRouter(cfg, db, newRegistry())
	defer stopLimiter()

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// 課金プロバイダー呼び出しを含むためBillingTimeoutより長くする
		WriteTimeout: cfg.BillingTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れデータのクリーンアップと購読状態の同期を実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	sessionRepo := repository.NewPostgresSessionRepo(db)
	rewardRepo := repository.NewPostgresRewardRepo(db)
	subRepo := repository.NewPostgresSubscriptionRepo(db)

	// ワーカーのメトリクスはスクレイプされないため専用レジストリに閉じる
	collector := metrics.NewCollector(prometheus.NewRegistry())

	cleanupJob := cleanup.NewCleanupJob(sessionRepo, rewardRepo, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	if cfg.BillingEnabled() {
		subService := subscription.NewService(subRepo, newBillingProvider(cfg, collector), collector,
			subscription.ServiceConfig{PlanID: cfg.PayPalPlanID})
		syncConfig := billingsync.DefaultConfig()
		syncConfig.Interval = cfg.BillingSyncInterval
		go billingsync.NewJob(subService, slog.Default(), syncConfig).Start(ctx)
	} else {
		slog.Warn("billing sync is disabled because PayPal credentials are not configured")
	}

	slog.Info("worker starting", slog.Duration("billing_sync_interval", cfg.BillingSyncInterval))

	// クリーンアップジョブをメインgoroutineで日次実行（ブロッキング）
	cleanupJob.Start(ctx, 24*time.Hour)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
