package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mashtheking/PropertyPro-sub001/internal/cliconfig"
	"github.com/mashtheking/PropertyPro-sub001/internal/gateway"
	"github.com/mashtheking/PropertyPro-sub001/internal/logger"
	"github.com/mashtheking/PropertyPro-sub001/internal/metrics"
	"github.com/mashtheking/PropertyPro-sub001/internal/session"
	"github.com/mashtheking/PropertyPro-sub001/internal/tokenstore"
)

// globalFlags は全コマンド共通のフラグ。
type globalFlags struct {
	configPath string
	gatewayURL string
	profile    string
	timeout    time.Duration
	tokenDir   string
	verbose    bool
}

// cli は1回のコマンド実行で使う依存関係。
type cli struct {
	out     io.Writer
	cfg     *cliconfig.Config
	client  *gateway.Client
	session *session.Session
	logger  *slog.Logger
	// registry はこの実行中のゲートウェイ呼び出しを集計する
	registry *prometheus.Registry
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{}
	c := &cli{out: stdout}

	root := &cobra.Command{
		Use:           "ppctl",
		Short:         "PropertyPro CRM client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd, flags, stderr)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if flags.verbose {
				return c.logGatewayStats()
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/propertypro/config.yaml)")
	pf.StringVar(&flags.gatewayURL, "gateway-url", "", "gateway base URL")
	pf.StringVar(&flags.profile, "profile", "", "profile name (multi-account)")
	pf.DurationVar(&flags.timeout, "timeout", 0, "per-request timeout")
	pf.StringVar(&flags.tokenDir, "token-dir", "", "directory for the session token file fallback")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging and gateway request stats to stderr")
	_ = pf.MarkHidden("token-dir")

	root.AddCommand(
		newLoginCmd(c),
		newRegisterCmd(c),
		newLogoutCmd(c),
		newProfileCmd(c),
		newWatchAdCmd(c),
		newSpendCmd(c),
		newRewardsCmd(c),
		newUpgradeCmd(c),
		newCancelCmd(c),
		newSubscriptionCmd(c),
	)
	return root
}

// setup は設定を読み込み、セッションを組み立てて保存済みトークンで復元する。
func (c *cli) setup(cmd *cobra.Command, flags *globalFlags, stderr io.Writer) error {
	level := slog.LevelWarn
	if flags.verbose {
		level = slog.LevelDebug
	}
	c.logger = logger.SetupWithLevel(stderr, level)

	path := flags.configPath
	if path == "" {
		p, err := cliconfig.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
		path = p
	}
	cfg, err := cliconfig.Load(path)
	if err != nil {
		return err
	}
	if flags.gatewayURL != "" {
		cfg.GatewayURL = flags.gatewayURL
	}
	if flags.profile != "" {
		cfg.Profile = flags.profile
	}
	if flags.timeout > 0 {
		cfg.Timeout = flags.timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	tokens, err := tokenstore.New(tokenstore.Options{Profile: cfg.Profile, Dir: flags.tokenDir})
	if err != nil {
		return fmt.Errorf("token store: %w", err)
	}

	c.registry = prometheus.NewRegistry()
	collector := metrics.NewCollector(c.registry)
	c.client = gateway.NewClient(gateway.Config{BaseURL: cfg.GatewayURL, Timeout: cfg.Timeout}, nil, collector, c.logger)
	c.session = session.New(session.Options{
		Gateway: c.client,
		Ads:     cfg.AdsProvider(),
		Tokens:  tokens,
		Logger:  c.logger,
	})

	if err := c.session.Identity.Restore(cmd.Context()); err != nil {
		// 通信できなくてもloginなどは実行できるよう警告に留める
		c.logger.Warn("session restore failed", "error", err)
	}
	return nil
}

// requireLogin は未ログインの場合にわかりやすいエラーを返す。
func (c *cli) requireLogin() error {
	if !c.session.Identity.IsAuthenticated() {
		return fmt.Errorf("ログインしていません。ppctl login を実行してください")
	}
	return nil
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// passwordFrom はフラグが空ならPPCTL_PASSWORD環境変数を使う。
func passwordFrom(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv("PPCTL_PASSWORD")
}
