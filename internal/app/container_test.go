package app

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"reviewflow/internal/domain"
)

// ---- fakes ----

type fakeSource struct {
	mu      sync.Mutex
	result  domain.FetchResult
	err     error
	calls   atomic.Int64
	release chan struct{} // when set, FetchAll blocks until closed

	published []publishCall
	pubErr    error
}

type publishCall struct {
	accountID, locationID, reviewID, text string
}

func (f *fakeSource) FetchAll(ctx context.Context, token string) (domain.FetchResult, error) {
	f.calls.Add(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return domain.FetchResult{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}

func (f *fakeSource) PublishReply(ctx context.Context, token, accountID, locationID, reviewID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishCall{accountID, locationID, reviewID, text})
	return f.pubErr
}

type fakeDrafter struct {
	lastCtx domain.PromptContext
}

func (f *fakeDrafter) GenerateReply(_ context.Context, pc domain.PromptContext) (string, error) {
	f.lastCtx = pc
	return "Thank you, " + pc.AuthorName + "!", nil
}

type fakeIdentity struct {
	signedOut int
}

func (f *fakeIdentity) AuthorizeURL(redirectTo string) string {
	return "https://id.example/authorize?redirect_to=" + redirectTo
}

func (f *fakeIdentity) SignOut(ctx context.Context, accessToken string) error {
	f.signedOut++
	return nil
}

type fakeTokens struct {
	mu       sync.Mutex
	provider string
	refresh  string
	cleared  int
}

func (f *fakeTokens) Provider(ctx context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.provider, f.provider != "", nil
}

func (f *fakeTokens) Save(ctx context.Context, provider, refresh string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provider, f.refresh = provider, refresh
	return nil
}

func (f *fakeTokens) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provider, f.refresh = "", ""
	f.cleared++
	return nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memCache) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (m *memCache) Set(_ context.Context, key string, v any, _ int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

func (m *memCache) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func newTestContainer(src *fakeSource) (*Container, *fakeTokens, *fakeIdentity, *fakeDrafter) {
	tokens := &fakeTokens{}
	id := &fakeIdentity{}
	dr := &fakeDrafter{}
	c := NewContainer(Deps{
		Source:        src,
		Drafter:       dr,
		Identity:      id,
		Tokens:        tokens,
		BusinessName:  "Le Petit Bistrot",
		OAuthRedirect: "https://app.example/settings",
	})
	return c, tokens, id, dr
}

func liveResult() domain.FetchResult {
	return domain.FetchResult{
		Locations: []domain.Location{
			{ID: "live_loc", Name: "Live Bistro", Address: "1 Real St", OrganizationID: "acct_9"},
		},
		Reviews: []domain.Review{
			{ID: "live_rev", LocationID: "live_loc", AuthorName: "Ada", Rating: 4, Text: "Nice", Date: "2024-01-10", Source: domain.SourceGoogle},
		},
	}
}

// ---- tests ----

func TestNewContainer_StartsInDemoMode(t *testing.T) {
	c, _, _, _ := newTestContainer(&fakeSource{})

	st := c.Status()
	if st.Mode != ModeDemo || st.UsingLiveData {
		t.Fatalf("unexpected initial status: %+v", st)
	}
	if got := len(c.Locations()); got != 2 {
		t.Fatalf("expected 2 seed locations, got %d", got)
	}
	total, pending, replied := c.Stats()
	if total != 4 || pending != 3 || replied != 1 {
		t.Fatalf("unexpected seed stats: %d/%d/%d", total, pending, replied)
	}
}

func TestHandleSession_ReplacesSeedWithLiveData(t *testing.T) {
	src := &fakeSource{result: liveResult()}
	c, tokens, _, _ := newTestContainer(src)

	err := c.HandleSession(context.Background(), domain.Session{
		AccessToken: "tok", RefreshToken: "ref", Email: "owner@example.com",
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	st := c.Status()
	if st.Mode != ModeLive || !st.UsingLiveData {
		t.Fatalf("expected live mode, got %+v", st)
	}
	locs := c.Locations()
	if len(locs) != 1 || locs[0].ID != "live_loc" {
		t.Fatalf("seed data not replaced: %+v", locs)
	}
	if tokens.provider != "tok" || tokens.refresh != "ref" {
		t.Fatalf("tokens not persisted: %+v", tokens)
	}

	var google domain.Integration
	for _, in := range c.Integrations() {
		if in.Platform == domain.PlatformGoogle {
			google = in
		}
	}
	if !google.IsConnected || google.ConnectedAs != "owner@example.com" || google.LastSync == "" {
		t.Fatalf("google integration not marked connected: %+v", google)
	}
}

func TestHandleSession_EmptyTokenSignsOut(t *testing.T) {
	src := &fakeSource{result: liveResult()}
	c, tokens, _, _ := newTestContainer(src)
	if err := c.HandleSession(context.Background(), domain.Session{AccessToken: "tok"}); err != nil {
		t.Fatalf("session: %v", err)
	}

	if err := c.HandleSession(context.Background(), domain.Session{}); err != nil {
		t.Fatalf("sign-out: %v", err)
	}
	if st := c.Status(); st.Mode != ModeDemo {
		t.Fatalf("expected demo after sign-out, got %+v", st)
	}
	if tokens.cleared == 0 {
		t.Fatalf("expected tokens cleared on sign-out")
	}
	// Displayed data is kept; only the connection state resets.
	if locs := c.Locations(); len(locs) != 1 || locs[0].ID != "live_loc" {
		t.Fatalf("sign-out should not wipe displayed data: %+v", locs)
	}
}

func TestFetch_EmptyAccountKeepsDataAndNoticesOnce(t *testing.T) {
	src := &fakeSource{result: liveResult()}
	c, _, _, _ := newTestContainer(src)
	if err := c.HandleSession(context.Background(), domain.Session{AccessToken: "tok"}); err != nil {
		t.Fatalf("session: %v", err)
	}

	src.mu.Lock()
	src.result = domain.FetchResult{}
	src.mu.Unlock()
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	st := c.Status()
	if st.Mode != ModeLiveEmpty || !st.UsingLiveData {
		t.Fatalf("expected live_empty, got %+v", st)
	}
	if st.Notice == "" {
		t.Fatalf("expected a notice on first read")
	}
	if again := c.Status(); again.Notice != "" {
		t.Fatalf("notice should be one-shot, got %q", again.Notice)
	}
	if locs := c.Locations(); len(locs) != 1 {
		t.Fatalf("previous data should survive an empty fetch: %+v", locs)
	}
}

func TestFetch_APINotEnabledIsPersistent(t *testing.T) {
	src := &fakeSource{err: &domain.APINotEnabledError{API: "Account Management"}}
	c, tokens, _, _ := newTestContainer(src)

	err := c.HandleSession(context.Background(), domain.Session{AccessToken: "tok"})
	if err == nil {
		t.Fatalf("expected fetch error")
	}

	for i := 0; i < 3; i++ {
		st := c.Status()
		if st.Error == nil || st.Error.Kind != ErrKindAPINotEnabled || st.Error.APIName != "Account Management" {
			t.Fatalf("expected persistent api_not_enabled error, got %+v", st.Error)
		}
	}
	// The token survives so enabling the API plus a refresh recovers.
	if tokens.provider != "tok" {
		t.Fatalf("token should be retained: %+v", tokens)
	}
	src.mu.Lock()
	src.err = nil
	src.result = liveResult()
	src.mu.Unlock()
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh after enabling: %v", err)
	}
	if st := c.Status(); st.Mode != ModeLive || st.Error != nil {
		t.Fatalf("expected recovery, got %+v", st)
	}
}

func TestFetch_AuthExpiredDropsToken(t *testing.T) {
	src := &fakeSource{err: &domain.UpstreamError{Op: "list accounts", Status: 401, Message: "UNAUTHENTICATED"}}
	c, tokens, _, _ := newTestContainer(src)

	if err := c.HandleSession(context.Background(), domain.Session{AccessToken: "tok"}); err == nil {
		t.Fatalf("expected fetch error")
	}

	st := c.Status()
	if st.Mode != ModeDemo {
		t.Fatalf("expected fall back to demo, got %+v", st)
	}
	if st.Error == nil || st.Error.Kind != ErrKindAuthExpired {
		t.Fatalf("expected auth_expired classification, got %+v", st.Error)
	}
	if tokens.cleared == 0 {
		t.Fatalf("expected stored token cleared")
	}
	if err := c.Refresh(context.Background()); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("refresh without token: got %v, want ErrNotConnected", err)
	}
}

func TestFetch_OtherFailureAlertsOnce(t *testing.T) {
	src := &fakeSource{result: liveResult()}
	c, _, _, _ := newTestContainer(src)
	if err := c.HandleSession(context.Background(), domain.Session{AccessToken: "tok"}); err != nil {
		t.Fatalf("session: %v", err)
	}

	src.mu.Lock()
	src.err = errors.New("connection reset by peer")
	src.mu.Unlock()
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh failure")
	}

	st := c.Status()
	if st.Mode != ModeLive {
		t.Fatalf("a transient failure should not change mode: %+v", st)
	}
	if !strings.Contains(st.Alert, "connection reset") {
		t.Fatalf("expected one-shot alert, got %q", st.Alert)
	}
	if again := c.Status(); again.Alert != "" {
		t.Fatalf("alert should be one-shot, got %q", again.Alert)
	}
}

func TestFetch_ConcurrentRefreshesCoalesce(t *testing.T) {
	src := &fakeSource{result: liveResult(), release: make(chan struct{})}
	c, _, _, _ := newTestContainer(src)
	c.mu.Lock()
	c.token = "tok"
	c.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Refresh(context.Background())
		}()
	}
	for src.calls.Load() == 0 {
		runtime.Gosched()
	}
	close(src.release)
	wg.Wait()

	if got := src.calls.Load(); got != 1 {
		t.Fatalf("expected one coalesced walk, got %d", got)
	}
}

func TestReply_DemoModeStaysLocal(t *testing.T) {
	src := &fakeSource{}
	c, _, _, _ := newTestContainer(src)

	published, err := c.Reply(context.Background(), "rev_1", "Thanks a lot!")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if published {
		t.Fatalf("demo reply must not publish upstream")
	}
	if len(src.published) != 0 {
		t.Fatalf("unexpected upstream publish: %+v", src.published)
	}
	revs, _ := c.Reviews("", "replied")
	found := false
	for _, r := range revs {
		if r.ID == "rev_1" && r.Response == "Thanks a lot!" {
			found = true
		}
	}
	if !found {
		t.Fatalf("reply not recorded locally: %+v", revs)
	}
}

func TestReply_LivePublishesWithOwningAccount(t *testing.T) {
	src := &fakeSource{result: liveResult()}
	c, _, _, _ := newTestContainer(src)
	if err := c.HandleSession(context.Background(), domain.Session{AccessToken: "tok"}); err != nil {
		t.Fatalf("session: %v", err)
	}

	published, err := c.Reply(context.Background(), "live_rev", "Merci!")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if !published {
		t.Fatalf("expected upstream publish")
	}
	want := publishCall{accountID: "acct_9", locationID: "live_loc", reviewID: "live_rev", text: "Merci!"}
	if len(src.published) != 1 || src.published[0] != want {
		t.Fatalf("unexpected publish call: %+v", src.published)
	}
}

func TestReply_UnknownReview(t *testing.T) {
	c, _, _, _ := newTestContainer(&fakeSource{})
	if _, err := c.Reply(context.Background(), "nope", "x"); !errors.Is(err, ErrReviewNotFound) {
		t.Fatalf("got %v, want ErrReviewNotFound", err)
	}
}

func TestDraft_BuildsPromptContext(t *testing.T) {
	c, _, _, dr := newTestContainer(&fakeSource{})

	out, err := c.Draft(context.Background(), "rev_2", domain.ToneEmpathetic)
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if !strings.Contains(out, "Marie Curie") {
		t.Fatalf("unexpected draft: %q", out)
	}
	if dr.lastCtx.Rating != 2 || dr.lastCtx.BusinessName != "Le Petit Bistrot" || dr.lastCtx.Tone != domain.ToneEmpathetic {
		t.Fatalf("unexpected prompt context: %+v", dr.lastCtx)
	}
}

func TestConnect_GoogleReturnsAuthorizeURL(t *testing.T) {
	c, _, _, _ := newTestContainer(&fakeSource{})

	url, err := c.Connect("1")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !strings.Contains(url, "redirect_to=https://app.example/settings") {
		t.Fatalf("unexpected authorize url: %q", url)
	}
	// Starting the flow does not flip the toggle; only a real session does.
	for _, in := range c.Integrations() {
		if in.Platform == domain.PlatformGoogle && in.IsConnected {
			t.Fatalf("google should not connect before the session lands")
		}
	}
}

func TestConnect_SimulatedPlatformToggles(t *testing.T) {
	c, _, _, _ := newTestContainer(&fakeSource{})

	url, err := c.Connect("2")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if url != "" {
		t.Fatalf("simulated platform should not return an authorize url")
	}
	var fb domain.Integration
	for _, in := range c.Integrations() {
		if in.Platform == domain.PlatformFacebook {
			fb = in
		}
	}
	if !fb.IsConnected || fb.LastSync == "" {
		t.Fatalf("facebook toggle not applied: %+v", fb)
	}

	if err := c.Disconnect(context.Background(), "2"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	for _, in := range c.Integrations() {
		if in.Platform == domain.PlatformFacebook && in.IsConnected {
			t.Fatalf("facebook should be off: %+v", in)
		}
	}
}

func TestDisconnect_GoogleRestoresSeedExactly(t *testing.T) {
	src := &fakeSource{result: liveResult()}
	c, tokens, id, _ := newTestContainer(src)
	if err := c.HandleSession(context.Background(), domain.Session{AccessToken: "tok", Email: "o@e.com"}); err != nil {
		t.Fatalf("session: %v", err)
	}
	if _, err := c.Reply(context.Background(), "live_rev", "edited"); err != nil {
		t.Fatalf("reply: %v", err)
	}

	if err := c.Disconnect(context.Background(), "1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	if id.signedOut != 1 {
		t.Fatalf("expected one upstream sign-out, got %d", id.signedOut)
	}
	if tokens.provider != "" {
		t.Fatalf("token should be cleared: %+v", tokens)
	}
	if st := c.Status(); st.Mode != ModeDemo || st.Error != nil {
		t.Fatalf("expected clean demo state, got %+v", st)
	}
	if !reflect.DeepEqual(c.Locations(), seedLocations()) {
		t.Fatalf("seed locations not restored: %+v", c.Locations())
	}
	revs, _ := c.Reviews("", "all")
	if !reflect.DeepEqual(revs, seedReviews()) {
		t.Fatalf("seed reviews not restored: %+v", revs)
	}
	for _, in := range c.Integrations() {
		if in.Platform == domain.PlatformGoogle && (in.IsConnected || in.ConnectedAs != "" || in.LastSync != "") {
			t.Fatalf("google row not reset: %+v", in)
		}
	}
}

func TestReviews_Filters(t *testing.T) {
	c, _, _, _ := newTestContainer(&fakeSource{})

	all, err := c.Reviews("all", "all")
	if err != nil || len(all) != 4 {
		t.Fatalf("all filter: %v %d", err, len(all))
	}
	loc1, _ := c.Reviews("loc_1", "")
	if len(loc1) != 3 {
		t.Fatalf("loc_1 filter: got %d", len(loc1))
	}
	pending, _ := c.Reviews("loc_2", "pending")
	if len(pending) != 0 {
		t.Fatalf("loc_2 pending: got %d", len(pending))
	}
	if _, err := c.Reviews("", "weird"); err == nil {
		t.Fatalf("expected error for unknown status filter")
	}
}

func TestWarmFromCache(t *testing.T) {
	cache := &memCache{data: map[string][]byte{}}
	src := &fakeSource{}
	tokens := &fakeTokens{}
	c := NewContainer(Deps{
		Source: src, Drafter: &fakeDrafter{}, Identity: &fakeIdentity{},
		Tokens: tokens, Cache: cache, BusinessName: "B",
	})

	if c.WarmFromCache(context.Background()) {
		t.Fatalf("empty cache should not warm")
	}
	if err := cache.Set(context.Background(), snapshotCacheKey, liveResult(), 60); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	if !c.WarmFromCache(context.Background()) {
		t.Fatalf("expected warm start")
	}
	if st := c.Status(); st.Mode != ModeLive {
		t.Fatalf("expected live after warm, got %+v", st)
	}
	if locs := c.Locations(); len(locs) != 1 || locs[0].ID != "live_loc" {
		t.Fatalf("snapshot not applied: %+v", locs)
	}
}
