package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Session
	SessionSecret         string
	SessionMaxAge         int // 通常ログインのセッション有効期間（秒）
	SessionRememberMaxAge int // rememberMe指定時のセッション有効期間（秒）
	PasswordMinLength     int

	// Reward
	RewardMaxPerAd   int
	FeatureUnlockTTL time.Duration

	// CRM
	FreePropertyLimit int

	// Billing (PayPal)
	PayPalClientID      string
	PayPalClientSecret  string
	PayPalBaseURL       string
	PayPalPlanID        string
	BillingTimeout      time.Duration
	BillingSyncInterval time.Duration

	// Rate Limit
	RateLimitGeneral      int // req/min/user
	RateLimitRewardCredit int // req/hour/user

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// BillingEnabled はPayPal連携に必要な認証情報が揃っているかどうかを返す。
func (c *Config) BillingEnabled() bool {
	return c.PayPalClientID != "" && c.PayPalClientSecret != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionRememberMaxAge = getEnvInt("SESSION_REMEMBER_MAX_AGE", 30*86400)
	cfg.PasswordMinLength = getEnvInt("PASSWORD_MIN_LENGTH", 8)
	cfg.RewardMaxPerAd = getEnvInt("REWARD_MAX_PER_AD", 2)
	cfg.FeatureUnlockTTL = getEnvDuration("FEATURE_UNLOCK_TTL", 24*time.Hour)
	cfg.FreePropertyLimit = getEnvInt("FREE_PROPERTY_LIMIT", 10)
	cfg.PayPalClientID = getEnvString("PAYPAL_CLIENT_ID", "")
	cfg.PayPalClientSecret = getEnvString("PAYPAL_CLIENT_SECRET", "")
	cfg.PayPalBaseURL = getEnvString("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com")
	cfg.PayPalPlanID = getEnvString("PAYPAL_PLAN_ID", "")
	cfg.BillingTimeout = getEnvDuration("BILLING_TIMEOUT", 10*time.Second)
	cfg.BillingSyncInterval = getEnvDuration("BILLING_SYNC_INTERVAL", time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRewardCredit = getEnvInt("RATE_LIMIT_REWARD_CREDIT", 20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
