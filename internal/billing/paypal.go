package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/metrics"
	"github.com/patrickmn/go-cache"
)

const (
	// DefaultPayPalBaseURL はPayPalサンドボックスのAPIエンドポイント。
	DefaultPayPalBaseURL = "https://api-m.sandbox.paypal.com"

	tokenCacheKey = "paypal_access_token"
	// トークン期限の直前に失効しないよう早めに破棄する
	tokenExpiryMargin = 60 * time.Second
	// エラー本文はログ用にこのバイト数までに切り詰める
	maxErrorBodyBytes = 512
)

// PayPalConfig はPayPalクライアントの設定。
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

// PayPalClient はPayPal Subscriptions APIのクライアント。
// OAuth2クライアントクレデンシャルで取得したアクセストークンを期限までキャッシュする。
type PayPalClient struct {
	config     PayPalConfig
	httpClient *http.Client
	tokens     *cache.Cache
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewPayPalClient はPayPalClientを生成する。metricsはnilでもよい。
func NewPayPalClient(config PayPalConfig, httpClient *http.Client, collector metrics.MetricsCollector, logger *slog.Logger) *PayPalClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultPayPalBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PayPalClient{
		config:     config,
		httpClient: httpClient,
		tokens:     cache.New(cache.NoExpiration, 10*time.Minute),
		metrics:    collector,
		logger:     logger,
	}
}

// paypalTokenResponse はトークンエンドポイントのレスポンス。
type paypalTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// paypalSubscription は購読詳細エンドポイントのレスポンスのうち利用する項目。
type paypalSubscription struct {
	ID          string     `json:"id"`
	PlanID      string     `json:"plan_id"`
	Status      string     `json:"status"`
	StartTime   *time.Time `json:"start_time"`
	BillingInfo *struct {
		NextBillingTime *time.Time `json:"next_billing_time"`
		LastPayment     *struct {
			Time *time.Time `json:"time"`
		} `json:"last_payment"`
	} `json:"billing_info"`
}

// GetSubscription は購読詳細を取得する。存在しない場合はErrSubscriptionNotFoundを返す。
func (c *PayPalClient) GetSubscription(ctx context.Context, id string) (*SubscriptionInfo, error) {
	resp, body, err := c.do(ctx, "get_subscription", http.MethodGet, "/v1/billing/subscriptions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrSubscriptionNotFound
	default:
		return nil, fmt.Errorf("PayPal購読の取得がステータス %d を返しました: %s", resp.StatusCode, truncate(body))
	}

	var sub paypalSubscription
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, fmt.Errorf("PayPal購読レスポンスのパースに失敗しました: %w", err)
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("PayPal購読レスポンスにIDがありません")
	}

	info := &SubscriptionInfo{
		ID:        sub.ID,
		PlanID:    sub.PlanID,
		RawStatus: sub.Status,
		StartTime: sub.StartTime,
	}
	if sub.BillingInfo != nil {
		info.NextBillingTime = sub.BillingInfo.NextBillingTime
		if sub.BillingInfo.LastPayment != nil {
			info.LastPaymentTime = sub.BillingInfo.LastPayment.Time
		}
	}
	return info, nil
}

// CancelSubscription は購読を解約する。
// 既に解約済み等で状態遷移できない場合はErrInvalidStateを返す。
func (c *PayPalClient) CancelSubscription(ctx context.Context, id, reason string) error {
	payload, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return fmt.Errorf("解約リクエストの生成に失敗しました: %w", err)
	}

	resp, body, err := c.do(ctx, "cancel_subscription", http.MethodPost,
		"/v1/billing/subscriptions/"+url.PathEscape(id)+"/cancel", payload)
	if err != nil {
		return err
	}

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrSubscriptionNotFound
	case http.StatusUnprocessableEntity:
		return ErrInvalidState
	default:
		return fmt.Errorf("PayPal購読の解約がステータス %d を返しました: %s", resp.StatusCode, truncate(body))
	}
}

// do は認証付きでAPIを呼び出す。401の場合はトークンを破棄して1回だけ再試行する。
func (c *PayPalClient) do(ctx context.Context, operation, method, path string, payload []byte) (*http.Response, []byte, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, nil, err
		}

		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
		if err != nil {
			return nil, nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, body, err := c.send(req, operation)
		if err != nil {
			return nil, nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.logger.Warn("PayPalアクセストークンが拒否されたため再取得します",
				slog.String("operation", operation),
			)
			c.tokens.Delete(tokenCacheKey)
			continue
		}
		return resp, body, nil
	}
}

// accessToken はキャッシュ済みのアクセストークンを返す。なければ取得してキャッシュする。
func (c *PayPalClient) accessToken(ctx context.Context) (string, error) {
	if cached, ok := c.tokens.Get(tokenCacheKey); ok {
		return cached.(string), nil
	}

	data := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/oauth2/token", strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("トークンリクエストの作成に失敗しました: %w", err)
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, body, err := c.send(req, "oauth_token")
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("PayPalトークン取得がステータス %d を返しました: %s", resp.StatusCode, truncate(body))
	}

	var tokenResp paypalTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("トークンレスポンスのパースに失敗しました: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("トークンレスポンスにアクセストークンがありません")
	}

	ttl := time.Duration(tokenResp.ExpiresIn)*time.Second - tokenExpiryMargin
	if ttl > 0 {
		c.tokens.Set(tokenCacheKey, tokenResp.AccessToken, ttl)
	}
	return tokenResp.AccessToken, nil
}

// send はリクエストを実行し、レスポンス本文を読み切って返す。
func (c *PayPalClient) send(req *http.Request, operation string) (*http.Response, []byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.RecordBillingLatency(operation, time.Since(start))
	}
	if err != nil {
		c.logger.Error("PayPal APIの呼び出しに失敗しました",
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordBillingStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	return resp, body, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		return string(body[:maxErrorBodyBytes])
	}
	return string(body)
}

// compile-time interface check
var _ Provider = (*PayPalClient)(nil)
