package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mashtheking/PropertyPro-sub001/internal/api"
)

func TestProfileCache_RefreshIsIdempotent(t *testing.T) {
	gw := newFakeGateway()
	gw.balance = 3
	s := loggedIn(t, gw, &fakeAds{})

	if err := s.Profiles.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	first := s.Profiles.Profile()
	if err := s.Profiles.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	second := s.Profiles.Profile()

	if *first != *second {
		t.Errorf("profile changed between refreshes: %+v vs %+v", first, second)
	}
}

func TestProfileCache_RequiresIdentity(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw, &fakeAds{}, nil)

	if err := s.Profiles.Refresh(context.Background()); !IsCode(err, CodeNotAuthenticated) {
		t.Errorf("Refresh() error = %v, want NOT_AUTHENTICATED", err)
	}
	if gw.profileCalls.Load() != 0 {
		t.Error("gateway should not be called without identity")
	}
}

func TestProfileCache_ConcurrentRefreshJoinsPendingFetch(t *testing.T) {
	gw := newFakeGateway()
	s := loggedIn(t, gw, &fakeAds{})
	gw.profileCalls.Store(0)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	gw.profileFn = func(ctx context.Context, token string) (*api.Profile, error) {
		entered <- struct{}{}
		<-release
		return gw.currentProfile(), nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- s.Profiles.Refresh(context.Background())
	}()
	<-entered
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Profiles.Refresh(context.Background())
		}()
	}
	// 合流した呼び出しが待機に入るまで少し待つ
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Refresh() error = %v", err)
		}
	}
	if got := gw.profileCalls.Load(); got != 1 {
		t.Errorf("profile fetched %d times, want 1", got)
	}
}

func TestProfileCache_OutdatedResponseIsDiscarded(t *testing.T) {
	gw := newFakeGateway()
	s := loggedIn(t, gw, &fakeAds{})

	slowEntered := make(chan struct{})
	slowRelease := make(chan struct{})
	var calls int
	var mu sync.Mutex
	gw.profileFn = func(ctx context.Context, token string) (*api.Profile, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(slowEntered)
			<-slowRelease
			return &api.Profile{ID: "user-1", RewardUnits: 1}, nil
		}
		return &api.Profile{ID: "user-1", RewardUnits: 7}, nil
	}

	slowDone := make(chan error, 1)
	go func() { slowDone <- s.Profiles.Refresh(context.Background()) }()
	<-slowEntered

	if err := s.Profiles.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if got := s.Profiles.Profile().RewardUnits; got != 7 {
		t.Fatalf("balance after invalidate = %d, want 7", got)
	}

	close(slowRelease)
	if err := <-slowDone; err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := s.Profiles.Profile().RewardUnits; got != 7 {
		t.Errorf("balance = %d, want 7: an earlier fetch overwrote a later one", got)
	}
	if s.Profiles.Stale() {
		t.Error("Stale() should be false once the post-mutation fetch applied")
	}
}

func TestProfileCache_ResponseAfterLogoutIsDiscarded(t *testing.T) {
	gw := newFakeGateway()
	s := loggedIn(t, gw, &fakeAds{})

	entered := make(chan struct{})
	release := make(chan struct{})
	gw.profileFn = func(ctx context.Context, token string) (*api.Profile, error) {
		close(entered)
		<-release
		return &api.Profile{ID: "user-1", RewardUnits: 9}, nil
	}

	done := make(chan error, 1)
	go func() { done <- s.Profiles.Refresh(context.Background()) }()
	<-entered

	if err := s.Identity.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	close(release)
	<-done

	if p := s.Profiles.Profile(); p != nil {
		t.Errorf("Profile() = %+v after logout, want nil", p)
	}
}

func TestProfileCache_InvalidateFailureLeavesStale(t *testing.T) {
	gw := newFakeGateway()
	gw.balance = 4
	s := loggedIn(t, gw, &fakeAds{})
	gw.profileFn = func(ctx context.Context, token string) (*api.Profile, error) {
		return nil, errTransport
	}

	err := s.Profiles.Invalidate(context.Background())
	if !IsCode(err, CodeNetwork) {
		t.Fatalf("Invalidate() error = %v, want NETWORK_ERROR", err)
	}
	if !s.Profiles.Stale() {
		t.Error("Stale() = false after a failed post-mutation fetch")
	}
	if got := s.Profiles.Profile().RewardUnits; got != 4 {
		t.Errorf("previous snapshot should be kept, balance = %d", got)
	}
}

func TestProfileCache_CallerCancellation(t *testing.T) {
	gw := newFakeGateway()
	s := loggedIn(t, gw, &fakeAds{})

	release := make(chan struct{})
	gw.profileFn = func(ctx context.Context, token string) (*api.Profile, error) {
		<-release
		return &api.Profile{ID: "user-1", RewardUnits: 11}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.Profiles.Refresh(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Refresh() error = %v, want deadline exceeded", err)
	}
	if !IsCode(err, CodeNetwork) {
		t.Errorf("Refresh() error = %v, want a NETWORK_ERROR session error", err)
	}
	if err.(*Error).Message == "" {
		t.Error("Message should be user facing")
	}

	close(release)
	// 呼び出し元が離脱しても取得は完了し、反映される
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p := s.Profiles.Profile(); p != nil && p.RewardUnits == 11 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("the abandoned fetch was never applied")
}

func TestProfileCache_SnapshotIsCopy(t *testing.T) {
	gw := newFakeGateway()
	gw.balance = 2
	s := loggedIn(t, gw, &fakeAds{})

	p := s.Profiles.Profile()
	p.RewardUnits = 100
	if got := s.Profiles.Profile().RewardUnits; got != 2 {
		t.Errorf("mutating a returned profile changed the cache: %d", got)
	}
}

func TestProfileCache_OnChange(t *testing.T) {
	gw := newFakeGateway()
	s := newTestSession(gw, &fakeAds{}, nil)

	var seen []*Profile
	s.Profiles.OnChange(func(p *Profile) { seen = append(seen, p) })

	if err := s.Identity.Login(context.Background(), "agent@example.com", gw.password, false); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	s.Identity.Logout(context.Background())

	// ログイン時のClear、取得結果、ログアウト時のClear
	if len(seen) != 3 {
		t.Fatalf("listener called %d times, want 3", len(seen))
	}
	if seen[0] != nil || seen[1] == nil || seen[2] != nil {
		t.Errorf("unexpected notification sequence: %v", seen)
	}
}

// pauseFirstNotify は最初の通知だけを、スナップショットの反映後かつ購読者の呼び出し前で止める。
func pauseFirstNotify(c *ProfileCache) (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	var once sync.Once
	c.beforeNotify = func() {
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
	}
	return entered, release
}

func TestProfileCache_LateNotificationDoesNotRollBackListeners(t *testing.T) {
	gw := newFakeGateway()
	s := loggedIn(t, gw, &fakeAds{})
	entered, release := pauseFirstNotify(s.Profiles)

	// 無料状態のプロフィールを反映したところで通知が止まる
	slowDone := make(chan error, 1)
	go func() { slowDone <- s.Profiles.Refresh(context.Background()) }()
	<-entered

	gw.mu.Lock()
	gw.premium, gw.status, gw.subscriptionID = true, "active", "SUB-123"
	gw.mu.Unlock()
	if err := s.Profiles.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	close(release)
	if err := <-slowDone; err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	p := s.Profiles.Profile()
	if !p.IsPremium || p.SubscriptionStatus != "active" {
		t.Fatalf("cached profile = %+v, want premium", p)
	}
	if !s.Subscription.IsPremium() || s.Subscription.State() != StateActive || s.Subscription.SubscriptionID() != "SUB-123" {
		t.Errorf("machine premium=%v state=%s id=%q, want it to follow the cached profile",
			s.Subscription.IsPremium(), s.Subscription.State(), s.Subscription.SubscriptionID())
	}
}

func TestProfileCache_LateNotificationAfterLogout(t *testing.T) {
	gw := newFakeGateway()
	gw.premium, gw.status, gw.subscriptionID = true, "active", "SUB-123"
	s := loggedIn(t, gw, &fakeAds{})
	entered, release := pauseFirstNotify(s.Profiles)

	done := make(chan error, 1)
	go func() { done <- s.Profiles.Refresh(context.Background()) }()
	<-entered

	if err := s.Identity.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if s.Profiles.Profile() != nil {
		t.Fatal("profile should be cleared after logout")
	}
	if s.Subscription.IsPremium() || s.Subscription.State() != StateFree {
		t.Errorf("machine premium=%v state=%s after logout, want free", s.Subscription.IsPremium(), s.Subscription.State())
	}
}
