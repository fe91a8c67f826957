// Package billingsync は課金プロバイダー側で発生した購読状態の変化を
// 定期的に取り込むバッチジョブを提供する。
// 支払い失敗による一時停止や期限切れはプロバイダー主導で起こるため、
// activeとsuspendedの購読を再検証してプロフィールへ反映する。
package billingsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/billing"
	"github.com/mashtheking/PropertyPro-sub001/internal/model"
)

// Syncer は購読同期のインターフェース。*subscription.Serviceが満たす。
type Syncer interface {
	ListSyncTargets(ctx context.Context, limit int) ([]*model.Subscription, error)
	Sync(ctx context.Context, sub *model.Subscription) (bool, error)
}

// Config はジョブの設定パラメータ。
type Config struct {
	// Interval はサイクルの実行間隔。
	Interval time.Duration
	// CallInterval はプロバイダー呼び出しの最低間隔。
	CallInterval time.Duration
	// MaxPerCycle は1サイクルで同期する購読の上限。
	MaxPerCycle int
}

// DefaultConfig はデフォルト設定を返す。
func DefaultConfig() Config {
	return Config{
		Interval:     time.Hour,
		CallInterval: 500 * time.Millisecond,
		MaxPerCycle:  200,
	}
}

// Job は購読状態の同期ジョブ。
type Job struct {
	syncer            Syncer
	logger            *slog.Logger
	config            Config
	consecutiveErrors int
	backoffUntil      time.Time
	now               func() time.Time
}

// NewJob はJobを生成する。
func NewJob(syncer Syncer, logger *slog.Logger, config Config) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		syncer: syncer,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// Start はジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context) {
	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	j.logger.Info("購読同期ジョブを開始しました",
		slog.Duration("interval", j.config.Interval),
		slog.Int("max_per_cycle", j.config.MaxPerCycle),
	)

	j.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("購読同期ジョブを停止しました")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("購読同期サイクルの実行に失敗しました", slog.String("error", err.Error()))
	}
}

// RunOnce は1回の同期サイクルを実行する。
// 個々の購読の失敗はログに残して次へ進む。プロバイダーが利用できない場合は
// サイクルを打ち切り、連続回数に応じてバックオフする。
func (j *Job) RunOnce(ctx context.Context) error {
	start := j.now()

	if !j.backoffUntil.IsZero() && start.Before(j.backoffUntil) {
		j.logger.Info("購読同期ジョブはバックオフ中のためスキップします",
			slog.Time("backoff_until", j.backoffUntil),
		)
		return nil
	}

	targets, err := j.syncer.ListSyncTargets(ctx, j.config.MaxPerCycle)
	if err != nil {
		return fmt.Errorf("同期対象の購読の取得に失敗しました: %w", err)
	}
	if len(targets) == 0 {
		j.logger.Info("同期対象の購読はありません")
		return nil
	}

	var checked, changed, failed int
	for i, sub := range targets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i > 0 && j.config.CallInterval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(j.config.CallInterval):
			}
		}

		checked++
		updated, err := j.syncer.Sync(ctx, sub)
		if err != nil {
			failed++
			j.logger.Error("購読の同期に失敗しました",
				slog.String("subscription_id", sub.ExternalSubscriptionID),
				slog.String("error", err.Error()),
			)
			if errors.Is(err, billing.ErrUnavailable) {
				j.consecutiveErrors++
				if backoff := errorBackoff(j.consecutiveErrors); backoff > 0 {
					j.backoffUntil = j.now().Add(backoff)
					j.logger.Warn("連続エラーによりバックオフを適用します",
						slog.Int("consecutive_errors", j.consecutiveErrors),
						slog.Duration("backoff_duration", backoff),
					)
				}
				break
			}
			continue
		}
		if updated {
			changed++
		}
	}

	if failed == 0 {
		j.consecutiveErrors = 0
		j.backoffUntil = time.Time{}
	}

	j.logger.Info("購読同期サイクルが完了しました",
		slog.Int("checked", checked),
		slog.Int("changed", changed),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", float64(j.now().Sub(start).Milliseconds())),
	)
	return nil
}

// errorBackoff は連続エラー回数に基づくバックオフ時間を返す。
// 3回連続: 30分、5回連続: 1時間、10回連続: 6時間。
func errorBackoff(consecutiveErrors int) time.Duration {
	switch {
	case consecutiveErrors >= 10:
		return 6 * time.Hour
	case consecutiveErrors >= 5:
		return time.Hour
	case consecutiveErrors >= 3:
		return 30 * time.Minute
	default:
		return 0
	}
}
