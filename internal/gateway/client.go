// Package gateway はPropertyProゲートウェイのHTTPクライアントを提供する。
// session.Gatewayを実装し、CLIなどのクライアントから利用する。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/api"
	"github.com/mashtheking/PropertyPro-sub001/internal/metrics"
	"github.com/mashtheking/PropertyPro-sub001/internal/session"
)

const (
	// DefaultBaseURL はローカル開発用のゲートウェイURL。
	DefaultBaseURL = "http://localhost:8080"
	// DefaultTimeout は1リクエストあたりのタイムアウト。
	DefaultTimeout = 15 * time.Second
	// DefaultUserAgent はリクエストに付与するUser-Agent。
	DefaultUserAgent = "ppctl/1.0"

	maxResponseBytes = 1 << 20
)

// Config はClientの設定。
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client はゲートウェイAPIのクライアント。
// 認証が必要な呼び出しはトークンをBearerヘッダーで送る。
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	recorder   metrics.GatewayRecorder
	logger     *slog.Logger
}

// NewClient はClientを生成する。httpClientとrecorderはnilでもよい。
func NewClient(config Config, httpClient *http.Client, recorder metrics.GatewayRecorder, logger *slog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		userAgent:  config.UserAgent,
		httpClient: httpClient,
		recorder:   recorder,
		logger:     logger,
	}
}

// APIError はゲートウェイが返したエラー応答。
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d %s: %s", e.Status, e.Code, e.Message)
}

// StatusCode はHTTPステータスコードを返す。
func (e *APIError) StatusCode() int { return e.Status }

// ErrorCode はサーバーのエラーコードを返す。
func (e *APIError) ErrorCode() string { return e.Code }

// ErrorMessage はサーバーのエラーメッセージを返す。
func (e *APIError) ErrorMessage() string { return e.Message }

// NetworkError はゲートウェイから応答を得られなかったことを表す。
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError は2xx応答の本文を解釈できなかったことを表す。
// サーバーはリクエストを受理しているため、変更操作は確定済みとして扱える。
type DecodeError struct {
	Op     string
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("gateway %s: decode %d response: %v", e.Op, e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Confirmed はサーバーがリクエストを受理したことを示す。
func (e *DecodeError) Confirmed() bool { return true }

// Login は POST /auth/login を呼ぶ。
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error) {
	var out api.AuthResponse
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register は POST /auth/register を呼ぶ。
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error) {
	var out api.AuthResponse
	if err := c.do(ctx, "register", http.MethodPost, "/auth/register", "", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout は POST /auth/logout を呼ぶ。
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, "logout", http.MethodPost, "/auth/logout", token, nil, nil)
}

// CurrentSession は GET /auth/session を呼ぶ。
func (c *Client) CurrentSession(ctx context.Context, token string) (*api.SessionResponse, error) {
	var out api.SessionResponse
	if err := c.do(ctx, "session", http.MethodGet, "/auth/session", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Profile は GET /profile を呼ぶ。
func (c *Client) Profile(ctx context.Context, token string) (*api.Profile, error) {
	var out api.Profile
	if err := c.do(ctx, "profile", http.MethodGet, "/profile", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddReward は POST /rewards/add を呼ぶ。
func (c *Client) AddReward(ctx context.Context, token string, amount int) (*api.BalanceResponse, error) {
	var out api.BalanceResponse
	if err := c.do(ctx, "rewards_add", http.MethodPost, "/rewards/add", token, api.AddRewardRequest{Amount: amount}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UseReward は POST /rewards/use を呼ぶ。
func (c *Client) UseReward(ctx context.Context, token string, req api.UseRewardRequest) (*api.UseRewardResponse, error) {
	var out api.UseRewardResponse
	if err := c.do(ctx, "rewards_use", http.MethodPost, "/rewards/use", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RewardHistory は GET /rewards/history を呼ぶ。limitが0以下ならサーバーの既定値を使う。
func (c *Client) RewardHistory(ctx context.Context, token string, limit int) ([]api.RewardTransaction, error) {
	path := "/rewards/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []api.RewardTransaction
	if err := c.do(ctx, "rewards_history", http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifySubscription は POST /subscriptions/verify を呼ぶ。
func (c *Client) VerifySubscription(ctx context.Context, token, externalSubscriptionID string) (*api.Subscription, error) {
	var out api.Subscription
	body := api.VerifySubscriptionRequest{ExternalSubscriptionID: externalSubscriptionID}
	if err := c.do(ctx, "subscriptions_verify", http.MethodPost, "/subscriptions/verify", token, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelSubscription は POST /subscriptions/cancel を呼ぶ。
func (c *Client) CancelSubscription(ctx context.Context, token, subscriptionID string) error {
	body := api.CancelSubscriptionRequest{SubscriptionID: subscriptionID}
	return c.do(ctx, "subscriptions_cancel", http.MethodPost, "/subscriptions/cancel", token, body, nil)
}

// SubscriptionDetails は GET /subscriptions/{id} を呼ぶ。
func (c *Client) SubscriptionDetails(ctx context.Context, token, subscriptionID string) (*api.Subscription, error) {
	var out api.Subscription
	path := "/subscriptions/" + url.PathEscape(subscriptionID)
	if err := c.do(ctx, "subscriptions_details", http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do はリクエストを送り、2xxならoutへデコードする。
// 2xx以外はエラー本文を*APIErrorに、応答を得られなかった場合は*NetworkErrorにする。
func (c *Client) do(ctx context.Context, op, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(op, 0, start)
		c.logger.Debug("gateway request failed", "op", op, "error", err)
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.record(op, resp.StatusCode, start)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb api.ErrorBody
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Code = eb.Code
			apiErr.Message = eb.Message
			apiErr.RequestID = eb.RequestID
		}
		if apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		c.logger.Debug("gateway returned error",
			"op", op,
			"status", resp.StatusCode,
			"code", apiErr.Code,
			"request_id", apiErr.RequestID,
		)
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("gateway response could not be decoded", "op", op, "status", resp.StatusCode, "error", err)
		return &DecodeError{Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) record(op string, status int, start time.Time) {
	if c.recorder != nil {
		c.recorder.RecordGatewayRequest(op, status, time.Since(start))
	}
}

// IsNetworkError はerrが通信エラーかどうかを返す。
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// compile-time interface checks
var (
	_ session.Gateway     = (*Client)(nil)
	_ session.RemoteError = (*APIError)(nil)
	_ session.Confirmation = (*DecodeError)(nil)
)
