package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// ProfileListener は新しいスナップショットが反映されたときに呼ばれる。
// Clearされた場合はnilが渡る。通知中にProfileCacheを操作してはならない。
type ProfileListener func(profile *Profile)

// ProfileCache はサーバーのプロフィールをキャッシュする。
// 読み取り側には常に完全なスナップショットだけが見える。
type ProfileCache struct {
	gateway  Gateway
	identity *IdentityStore
	logger   *slog.Logger

	group    singleflight.Group
	snapshot atomic.Pointer[Profile]
	stale    atomic.Bool

	mu sync.Mutex
	// generationが変わると以降のRefreshは進行中の取得に合流しない
	generation  uint64
	dispatchSeq uint64
	appliedSeq  uint64
	// staleSeq以前に発行された取得ではstaleを解除しない
	staleSeq  uint64
	listeners []ProfileListener

	// notifyMuは通知を直列化する。通知時には最新のスナップショットを読み直すため、
	// 最後に届く通知は常に最後に反映された状態になる
	notifyMu sync.Mutex
	// beforeNotifyはテストで通知の遅延を再現するために使う
	beforeNotify func()
}

// NewProfileCache はProfileCacheを生成する。
func NewProfileCache(gateway Gateway, identity *IdentityStore, logger *slog.Logger) *ProfileCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileCache{
		gateway:  gateway,
		identity: identity,
		logger:   logger,
	}
}

// OnChange はスナップショットの更新を購読する。
func (c *ProfileCache) OnChange(fn ProfileListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Profile は現在のスナップショットのコピーを返す。未取得ならnil。
func (c *ProfileCache) Profile() *Profile {
	p := c.snapshot.Load()
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Stale は変更操作の後、まだ最新のプロフィールを取得できていないかを返す。
func (c *ProfileCache) Stale() bool {
	return c.stale.Load()
}

// Refresh はプロフィールを再取得する。
// 同じ世代の取得が進行中であればそれに合流する。
func (c *ProfileCache) Refresh(ctx context.Context) error {
	token, epoch, ok := c.identity.credentials()
	if !ok {
		return errNotAuthenticated()
	}

	c.mu.Lock()
	key := fmt.Sprintf("profile:%d:%d", epoch, c.generation)
	c.mu.Unlock()

	// 取得自体は呼び出し元のキャンセルに影響されず、合流した他の呼び出し元にも結果を届ける
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return nil, c.fetch(fetchCtx, token, epoch)
	})

	select {
	case <-ctx.Done():
		return errInterrupted(ctx.Err())
	case res := <-ch:
		return res.Err
	}
}

// Invalidate はキャッシュを古いものとしてマークし、新たに取得し直す。
// 呼び出し前に発行された取得には合流しない。
func (c *ProfileCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	c.stale.Store(true)
	c.staleSeq = c.dispatchSeq
	c.generation++
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// Clear はスナップショットを破棄する。進行中の取得の結果も反映されなくなる。
func (c *ProfileCache) Clear() {
	c.mu.Lock()
	c.generation++
	c.appliedSeq = c.dispatchSeq
	c.snapshot.Store(nil)
	c.stale.Store(false)
	c.mu.Unlock()

	c.notify()
}

func (c *ProfileCache) fetch(ctx context.Context, token string, epoch uint64) error {
	c.mu.Lock()
	c.dispatchSeq++
	seq := c.dispatchSeq
	c.mu.Unlock()

	p, err := c.gateway.Profile(ctx, token)
	if err != nil {
		return c.identity.check(ctx, err, token)
	}

	if !c.apply(seq, epoch, profileFromAPI(p)) {
		c.logger.Debug("discarded outdated profile response", "seq", seq)
	}
	return nil
}

// apply は取得結果を反映する。より新しい取得が反映済みの場合や、
// 認証状態が変わった場合は破棄してfalseを返す。
func (c *ProfileCache) apply(seq, epoch uint64, p *Profile) bool {
	c.mu.Lock()
	if seq <= c.appliedSeq || c.identity.currentEpoch() != epoch {
		c.mu.Unlock()
		return false
	}
	c.appliedSeq = seq
	c.snapshot.Store(p)
	if seq > c.staleSeq {
		c.stale.Store(false)
	}
	c.mu.Unlock()

	c.notify()
	return true
}

// notify は購読者に現在のスナップショットを渡す。
func (c *ProfileCache) notify() {
	if c.beforeNotify != nil {
		c.beforeNotify()
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	listeners := append([]ProfileListener(nil), c.listeners...)
	c.mu.Unlock()

	p := c.snapshot.Load()
	for _, fn := range listeners {
		fn(p)
	}
}
