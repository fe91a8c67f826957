// Package cliconfig はppctlの設定ファイルを読み込む。
package cliconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mashtheking/PropertyPro-sub001/internal/ads"
	"github.com/mashtheking/PropertyPro-sub001/internal/gateway"
)

// Config はppctlの設定。
type Config struct {
	GatewayURL string        `yaml:"gateway_url"`
	Timeout    time.Duration `yaml:"timeout"`
	Profile    string        `yaml:"profile"`
	Ads        AdsConfig     `yaml:"ads"`
}

// AdsConfig は広告SDKの代わりに使うモックの設定。
type AdsConfig struct {
	EarnedWeight   int     `yaml:"earned_weight"`
	CanceledWeight int     `yaml:"canceled_weight"`
	FailedWeight   int     `yaml:"failed_weight"`
	RewardAmount   int     `yaml:"reward_amount"`
	LoadFailRate   float64 `yaml:"load_fail_rate"`
}

// Default はデフォルト設定を返す。
func Default() *Config {
	return &Config{
		GatewayURL: gateway.DefaultBaseURL,
		Timeout:    gateway.DefaultTimeout,
		Profile:    "default",
		Ads: AdsConfig{
			EarnedWeight:   ads.DefaultWeights.Earned,
			CanceledWeight: ads.DefaultWeights.Canceled,
			FailedWeight:   ads.DefaultWeights.Failed,
			RewardAmount:   ads.DefaultRewardAmount,
		},
	}
}

// DefaultPath は設定ファイルの既定パスを返す。
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "propertypro", "config.yaml"), nil
}

// Load はpathのYAMLを読み込み、未指定の項目をデフォルト値で補う。
// ファイルが存在しない場合はデフォルト設定を返す。
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	c.GatewayURL = strings.TrimSpace(c.GatewayURL)
	if !strings.HasPrefix(c.GatewayURL, "http://") && !strings.HasPrefix(c.GatewayURL, "https://") {
		return fmt.Errorf("gateway_url must be an http(s) URL: %q", c.GatewayURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %s", c.Timeout)
	}
	if c.Profile == "" {
		c.Profile = "default"
	}
	a := c.Ads
	if a.EarnedWeight < 0 || a.CanceledWeight < 0 || a.FailedWeight < 0 {
		return errors.New("ads weights must not be negative")
	}
	if a.RewardAmount <= 0 {
		return fmt.Errorf("ads.reward_amount must be positive: %d", a.RewardAmount)
	}
	if a.LoadFailRate < 0 || a.LoadFailRate > 1 {
		return fmt.Errorf("ads.load_fail_rate must be within 0..1: %v", a.LoadFailRate)
	}
	return nil
}

// AdsProvider は設定に従ったモック広告プロバイダを生成する。
func (c *Config) AdsProvider() *ads.MockProvider {
	return ads.NewMockProvider(
		ads.WithWeights(ads.Weights{
			Earned:   c.Ads.EarnedWeight,
			Canceled: c.Ads.CanceledWeight,
			Failed:   c.Ads.FailedWeight,
		}),
		ads.WithRewardAmount(c.Ads.RewardAmount),
		ads.WithLoadFailureRate(c.Ads.LoadFailRate),
	)
}
