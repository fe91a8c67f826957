// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベルの値
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(outcome string)
	RecordRegistration(outcome string)
	RecordRewardCredited(amount int)
	RecordRewardSpent(amount int, feature string)
	RecordRewardRejected(reason string)
	RecordSubscriptionVerification(outcome string)
	RecordSubscriptionCancellation(outcome string)
	RecordBillingStatus(statusCode int)
	RecordBillingLatency(operation string, duration time.Duration)
}

// GatewayRecorder はゲートウェイクライアントのリクエスト計測インターフェース。
type GatewayRecorder interface {
	RecordGatewayRequest(operation string, statusCode int, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins          *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	rewardCredited  prometheus.Counter
	rewardSpent     *prometheus.CounterVec
	rewardRejected  *prometheus.CounterVec
	subVerify       *prometheus.CounterVec
	subCancel       *prometheus.CounterVec
	billingStatus   *prometheus.CounterVec
	billingLatency  *prometheus.HistogramVec
	gatewayRequests *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propertypro_auth_logins_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propertypro_auth_registrations_total",
			Help: "ユーザー登録の結果別合計数",
		}, []string{"outcome"}),
		rewardCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "propertypro_reward_units_credited_total",
			Help: "広告視聴で付与された報酬ユニットの合計",
		}),
		rewardSpent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propertypro_reward_units_spent_total",
			Help: "機能解放に消費された報酬ユニットの合計",
		}, []string{"feature"}),
		rewardRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propertypro_reward_rejected_total",
			Help: "拒否された報酬ユニット操作の理由別合計数",
		}, []string{"reason"}),
		subVerify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propertypro_subscription_verifications_total",
			Help: "購読検証の結果別合計数",
		}, []string{"outcome"}),
		subCancel: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propertypro_subscription_cancellations_total",
			Help: "購読解約の結果別合計数",
		}, []string{"outcome"}),
		billingStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propertypro_billing_http_status_total",
			Help: "課金APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		billingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "propertypro_billing_latency_seconds",
			Help:    "課金API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "propertypro_gateway_client_requests_total",
			Help: "ゲートウェイクライアントのリクエスト数",
		}, []string{"operation", "status_code"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "propertypro_gateway_client_latency_seconds",
			Help:    "ゲートウェイクライアントのリクエストレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.logins,
		c.registrations,
		c.rewardCredited,
		c.rewardSpent,
		c.rewardRejected,
		c.subVerify,
		c.subCancel,
		c.billingStatus,
		c.billingLatency,
		c.gatewayRequests,
		c.gatewayLatency,
	)

	return c
}

// RecordLogin はログイン試行を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordRegistration はユーザー登録を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordRewardCredited は付与された報酬ユニット数を記録する。
func (c *Collector) RecordRewardCredited(amount int) {
	c.rewardCredited.Add(float64(amount))
}

// RecordRewardSpent は消費された報酬ユニット数を記録する。
func (c *Collector) RecordRewardSpent(amount int, feature string) {
	c.rewardSpent.WithLabelValues(feature).Add(float64(amount))
}

// RecordRewardRejected は拒否された報酬ユニット操作を記録する。
func (c *Collector) RecordRewardRejected(reason string) {
	c.rewardRejected.WithLabelValues(reason).Inc()
}

// RecordSubscriptionVerification は購読検証を記録する。
func (c *Collector) RecordSubscriptionVerification(outcome string) {
	c.subVerify.WithLabelValues(outcome).Inc()
}

// RecordSubscriptionCancellation は購読解約を記録する。
func (c *Collector) RecordSubscriptionCancellation(outcome string) {
	c.subCancel.WithLabelValues(outcome).Inc()
}

// RecordBillingStatus は課金APIのHTTPステータスコードを記録する。
func (c *Collector) RecordBillingStatus(statusCode int) {
	c.billingStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordBillingLatency は課金API呼び出しのレイテンシを記録する。
func (c *Collector) RecordBillingLatency(operation string, duration time.Duration) {
	c.billingLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordGatewayRequest はゲートウェイクライアントのリクエストを記録する。
// statusCodeが0の場合は通信エラーを表す。
func (c *Collector) RecordGatewayRequest(operation string, statusCode int, duration time.Duration) {
	c.gatewayRequests.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	c.gatewayLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ GatewayRecorder  = (*Collector)(nil)
)
