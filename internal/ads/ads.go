// Package ads は報酬広告SDKの抽象化を提供する。
// 実SDKの代わりに、確率的に結果を返すMockProviderを含む。
package ads

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
)

// OutcomeKind は広告再生の結果種別。
type OutcomeKind string

const (
	// OutcomeEarned は最後まで視聴され報酬を獲得したことを示す。
	OutcomeEarned OutcomeKind = "earned"
	// OutcomeCanceled はユーザーが途中で閉じたことを示す。
	OutcomeCanceled OutcomeKind = "canceled"
	// OutcomeFailed は再生に失敗したことを示す。
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome は広告再生の結果。
// AmountはOutcomeEarnedの場合のみ、ReasonはOutcomeFailedの場合のみ意味を持つ。
type Outcome struct {
	Kind   OutcomeKind
	Amount int
	Reason string
}

// Earned は報酬獲得の結果を返す。
func Earned(amount int) Outcome { return Outcome{Kind: OutcomeEarned, Amount: amount} }

// Canceled はキャンセルの結果を返す。
func Canceled() Outcome { return Outcome{Kind: OutcomeCanceled} }

// Failed は再生失敗の結果を返す。
func Failed(reason string) Outcome { return Outcome{Kind: OutcomeFailed, Reason: reason} }

var (
	// ErrNotLoaded はロード前にShowが呼ばれたことを表す。
	ErrNotLoaded = errors.New("ads: no ad unit is loaded")
	// ErrNoFill は配信できる広告がなかったことを表す。
	ErrNoFill = errors.New("ads: no fill")
)

// Provider は報酬広告の提供元。
// Loadで広告ユニットを準備し、Showで1回分を再生する。再生後は再度Loadが必要。
type Provider interface {
	Load(ctx context.Context) error
	Show(ctx context.Context) (Outcome, error)
}

// Weights は結果の出現比率。合計が0の場合はDefaultWeightsを使う。
type Weights struct {
	Earned   int
	Canceled int
	Failed   int
}

// DefaultWeights は視聴完了90%、キャンセル5%、失敗5%。
var DefaultWeights = Weights{Earned: 90, Canceled: 5, Failed: 5}

// DefaultRewardAmount は1回の視聴で獲得する報酬ユニット数。
const DefaultRewardAmount = 2

// MockProvider は実SDKが未統合の環境で使う、ランダムな結果を返すProvider。
type MockProvider struct {
	weights      Weights
	rewardAmount int
	// 0〜1の確率でLoadを失敗させる
	loadFailureRate float64

	mu     sync.Mutex
	rng    *rand.Rand
	loaded bool
}

// MockOption はMockProviderの設定関数。
type MockOption func(*MockProvider)

// WithWeights は結果の出現比率を設定する。
func WithWeights(w Weights) MockOption {
	return func(p *MockProvider) { p.weights = w }
}

// WithRewardAmount は獲得ユニット数を設定する。
func WithRewardAmount(n int) MockOption {
	return func(p *MockProvider) { p.rewardAmount = n }
}

// WithLoadFailureRate はLoadの失敗確率を設定する。
func WithLoadFailureRate(rate float64) MockOption {
	return func(p *MockProvider) { p.loadFailureRate = rate }
}

// WithRand は乱数源を差し替える。テストで結果を固定するために使う。
func WithRand(rng *rand.Rand) MockOption {
	return func(p *MockProvider) { p.rng = rng }
}

// NewMockProvider はMockProviderを生成する。
func NewMockProvider(opts ...MockOption) *MockProvider {
	p := &MockProvider{
		weights:      DefaultWeights,
		rewardAmount: DefaultRewardAmount,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.weights.Earned+p.weights.Canceled+p.weights.Failed <= 0 {
		p.weights = DefaultWeights
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return p
}

// Load は広告ユニットを準備する。
func (p *MockProvider) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loadFailureRate > 0 && p.rng.Float64() < p.loadFailureRate {
		return ErrNoFill
	}
	p.loaded = true
	return nil
}

// Show は準備済みの広告を再生し、重み付きで結果を返す。
func (p *MockProvider) Show(ctx context.Context) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return Outcome{}, ErrNotLoaded
	}
	p.loaded = false

	w := p.weights
	n := p.rng.IntN(w.Earned + w.Canceled + w.Failed)
	switch {
	case n < w.Earned:
		return Earned(p.rewardAmount), nil
	case n < w.Earned+w.Canceled:
		return Canceled(), nil
	default:
		return Failed("playback error"), nil
	}
}

var _ Provider = (*MockProvider)(nil)
