package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/instaflow/internal/countparse"
	"github.com/xkilldash9x/instaflow/internal/driver/drivertest"
	"github.com/xkilldash9x/instaflow/internal/selectors"
)

// Locator expressions from the default store, spelled out so a test
// failure names the selector that moved.
const (
	followersLinkExpr = `//a[contains(@href, "/followers")]`
	followingLinkExpr = `//a[contains(@href, "/following")]`
	listItemExpr      = `div[role="dialog"] a[role="link"] span`
	closeButtonExpr   = `//div[@role="dialog"]//button[@aria-label="Close" or .//*[@aria-label="Close"]]`
	spinnerExpr       = `//*[@aria-label="Loading..." or @aria-label="Carregando..."]`
)

func newTestEngine(t *testing.T, fake *drivertest.Fake) *Engine {
	t.Helper()
	store, err := selectors.Load("")
	require.NoError(t, err)
	e := NewEngine(fake, store, "https://www.instagram.com", 30*time.Millisecond, zaptest.NewLogger(t))
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

func testTunables() Tunables {
	return Tunables{
		MaxRefreshAttempts:       2,
		MaxAttempts:              1,
		AdditionalScrollAttempts: 2,
		PauseTime:                0,
		WaitInterval:             time.Millisecond,
	}
}

func TestFollowersConvergesOnExpectedCount(t *testing.T) {
	fake := drivertest.New()
	fake.Visible[followersLinkExpr] = true
	fake.Visible[closeButtonExpr] = true
	fake.SetElements(followersLinkExpr, "3 followers")
	fake.SetElements(listItemExpr, "alice", "bob")
	fake.OnScroll = func() {
		fake.SetElements(listItemExpr, "alice", "bob", "carol")
	}

	e := newTestEngine(t, fake)
	got := e.Followers(context.Background(), "someone", testTunables(), 0)

	assert.Equal(t, []string{"alice", "bob", "carol"}, got)
	assert.Contains(t, fake.Calls, "navigate https://www.instagram.com/someone/")
	assert.Contains(t, fake.Calls, "click "+closeButtonExpr+"[0]")
}

func TestFollowersDeduplicatesPreservingOrder(t *testing.T) {
	fake := drivertest.New()
	fake.Visible[followersLinkExpr] = true
	fake.SetElements(followersLinkExpr, "3 followers")
	fake.SetElements(listItemExpr, "bob", "alice", "bob", "  ", "alice", "carol")

	e := newTestEngine(t, fake)
	got := e.Followers(context.Background(), "someone", testTunables(), 0)

	assert.Equal(t, []string{"bob", "alice", "carol"}, got)
}

func TestFollowersEmptyWhenNavigationFails(t *testing.T) {
	fake := drivertest.New()
	fake.FailNavigate = true

	e := newTestEngine(t, fake)
	got := e.Followers(context.Background(), "someone", testTunables(), 0)

	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFollowersEmptyWhenEntryPointNeverAppears(t *testing.T) {
	fake := drivertest.New()

	e := newTestEngine(t, fake)
	got := e.Followers(context.Background(), "someone", testTunables(), 0)

	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFollowersEmptyWhenOpenClickFails(t *testing.T) {
	fake := drivertest.New()
	fake.Visible[followersLinkExpr] = true
	fake.SetElements(followersLinkExpr, "5 followers")
	fake.FailClick = true

	e := newTestEngine(t, fake)
	got := e.Followers(context.Background(), "someone", testTunables(), 0)

	require.NotNil(t, got)
	assert.Empty(t, got)
}

// A stalled list settles before the loop resorts to a refresh, and the
// refresh budget caps how many reloads happen at all.
func TestSettleRunsBeforeRefresh(t *testing.T) {
	fake := drivertest.New()
	fake.Visible[followersLinkExpr] = true
	fake.SetElements(followersLinkExpr, "followers")
	fake.SetElements(listItemExpr, "alice")

	e := newTestEngine(t, fake)
	got := e.Followers(context.Background(), "someone", testTunables(), 0)

	assert.Equal(t, []string{"alice"}, got)

	settleAt, reloadAt := -1, -1
	reloads := 0
	for i, call := range fake.Calls {
		if call == "wait_gone "+spinnerExpr && settleAt < 0 {
			settleAt = i
		}
		if call == "reload" {
			reloads++
			if reloadAt < 0 {
				reloadAt = i
			}
		}
	}
	require.GreaterOrEqual(t, settleAt, 0, "settle phase never ran")
	require.GreaterOrEqual(t, reloadAt, 0, "refresh never ran")
	assert.Less(t, settleAt, reloadAt, "refresh happened before the settle phase")
	assert.Equal(t, 1, reloads, "refresh budget of 2 allows a single reload")
}

func TestFollowingStopsAtMaxDuration(t *testing.T) {
	fake := drivertest.New()
	fake.Visible[followingLinkExpr] = true
	fake.SetElements(followingLinkExpr, "following")

	// The page keeps producing fresh handles, so only the deadline can
	// stop the loop.
	handles := []string{"u0"}
	fake.SetElements(listItemExpr, handles...)
	fake.OnScroll = func() {
		handles = append(handles, "u"+time.Now().Format("150405.000000000"))
		fake.SetElements(listItemExpr, handles...)
	}

	e := newTestEngine(t, fake)
	tun := testTunables()
	tun.PauseTime = 2 * time.Millisecond
	e.sleep = sleepCtx

	start := time.Now()
	got := e.Following(context.Background(), "someone", tun, 15*time.Millisecond)
	elapsed := time.Since(start)

	assert.NotEmpty(t, got)
	assert.Less(t, elapsed, time.Second, "deadline did not bound the loop")
}

func TestExtractStopsOnCanceledContext(t *testing.T) {
	fake := drivertest.New()
	fake.Visible[followersLinkExpr] = true
	fake.SetElements(followersLinkExpr, "followers")
	fake.SetElements(listItemExpr, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	e := newTestEngine(t, fake)
	cancel()
	got := e.Followers(ctx, "someone", testTunables(), 0)

	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestTotalCount(t *testing.T) {
	fake := drivertest.New()
	fake.Visible[followersLinkExpr] = true
	fake.Visible[followingLinkExpr] = true
	fake.SetElements(followersLinkExpr, "1,2k followers")
	fake.SetElements(followingLinkExpr, "2,5 mil seguindo")

	e := newTestEngine(t, fake)

	n, err := e.TotalCount(context.Background(), "someone", Followers)
	require.NoError(t, err)
	assert.Equal(t, 1200, n)

	n, err = e.TotalCount(context.Background(), "someone", Following)
	require.NoError(t, err)
	assert.Equal(t, 2500, n)

	// The count path never opens the list surface.
	for _, call := range fake.Calls {
		assert.NotContains(t, call, "click")
	}
}

func TestTotalCountMalformedText(t *testing.T) {
	fake := drivertest.New()
	fake.Visible[followersLinkExpr] = true
	fake.SetElements(followersLinkExpr, "a lot of followers")

	e := newTestEngine(t, fake)
	_, err := e.TotalCount(context.Background(), "someone", Followers)

	var perr *countparse.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestTotalCountEntryPointMissing(t *testing.T) {
	fake := drivertest.New()

	e := newTestEngine(t, fake)
	_, err := e.TotalCount(context.Background(), "someone", Followers)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestJoinCountTokens(t *testing.T) {
	cases := map[string]string{
		"1,234 followers":   "1,234",
		"2,5 mil seguidores": "2,5 mil",
		"1 mi seguidores":   "1 mi",
		"1.2k":              "1.2k",
		"567":               "567",
		"":                  "",
		"   ":               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, joinCountTokens(in), "input %q", in)
	}
}
