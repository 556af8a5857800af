// Package extract converts the infinite-scroll relationship lists of a
// profile into deterministic, deduplicated collections. Extraction is
// best-effort by design: the remote UI is outside this system's
// control, so every failure path degrades to a partial or empty result
// instead of raising.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/instaflow/internal/config"
	"github.com/xkilldash9x/instaflow/internal/countparse"
	"github.com/xkilldash9x/instaflow/internal/driver"
	"github.com/xkilldash9x/instaflow/internal/selectors"
)

// ListKind selects which relationship list to harvest.
type ListKind string

const (
	Followers ListKind = "followers"
	Following ListKind = "following"
)

// Tunables control the scroll/convergence loop. Callers may adjust them
// between extraction calls.
type Tunables struct {
	// MaxRefreshAttempts bounds destructive surface refreshes after the
	// settle phase fails to produce growth.
	MaxRefreshAttempts int
	// MaxAttempts is the consecutive no-growth iterations tolerated
	// before entering the settle phase.
	MaxAttempts int
	// AdditionalScrollAttempts is the number of extra scroll+read cycles
	// in the settle phase.
	AdditionalScrollAttempts int
	// PauseTime is the render pause after each scroll.
	PauseTime time.Duration
	// WaitInterval paces the settle phase reads.
	WaitInterval time.Duration
}

// TunablesFromConfig copies the configured defaults.
func TunablesFromConfig(cfg config.ExtractConfig) Tunables {
	return Tunables{
		MaxRefreshAttempts:       cfg.MaxRefreshAttempts,
		MaxAttempts:              cfg.MaxAttempts,
		AdditionalScrollAttempts: cfg.AdditionalScrollAttempts,
		PauseTime:                cfg.PauseTime,
		WaitInterval:             cfg.WaitInterval,
	}
}

// refreshSettle is how long the page gets to recover after a refresh
// before the loop resumes.
const refreshSettle = 3 * time.Second

// scrollFallbackDelta is the viewport-sized scroll used when no list
// items are addressable yet.
const scrollFallbackDelta = 600

// Engine drives relationship-list extraction over one authenticated
// driver.
type Engine struct {
	drv     driver.Driver
	store   *selectors.Store
	baseURL string
	timeout time.Duration
	logger  *zap.Logger

	// sleep is swapped out in tests.
	sleep func(context.Context, time.Duration) error
}

// NewEngine wires an extraction engine. baseURL is the profile-page
// root; timeout bounds each explicit UI wait.
func NewEngine(drv driver.Driver, store *selectors.Store, baseURL string, timeout time.Duration, logger *zap.Logger) *Engine {
	return &Engine{
		drv:     drv,
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		logger:  logger.Named("extract"),
		sleep:   sleepCtx,
	}
}

// Followers returns the deduplicated follower handles of profile in
// first-discovery order. maxDuration of zero means unbounded (the
// refresh budget still applies).
func (e *Engine) Followers(ctx context.Context, profile string, tun Tunables, maxDuration time.Duration) []string {
	return e.extract(ctx, profile, Followers, tun, maxDuration)
}

// Following returns the deduplicated following handles of profile in
// first-discovery order.
func (e *Engine) Following(ctx context.Context, profile string, tun Tunables, maxDuration time.Duration) []string {
	return e.extract(ctx, profile, Following, tun, maxDuration)
}

// TotalCount reads the displayed total for a relationship list without
// running the scroll loop; a single entry-point read, O(1) in UI
// interactions. Malformed count text surfaces as *countparse.ParseError.
func (e *Engine) TotalCount(ctx context.Context, profile string, kind ListKind) (int, error) {
	link, err := e.waitEntryPoint(ctx, profile, kind)
	if err != nil {
		return 0, err
	}
	text, err := e.drv.ReadText(ctx, link)
	if err != nil {
		return 0, fmt.Errorf("read %s count of %q: %w", kind, profile, err)
	}
	return countparse.Parse(joinCountTokens(text))
}

// extract opens the list surface and runs the scroll/convergence loop.
func (e *Engine) extract(ctx context.Context, profile string, kind ListKind, tun Tunables, maxDuration time.Duration) []string {
	log := e.logger.With(zap.String("profile", profile), zap.String("list", string(kind)))

	expected, ok := e.openListSurface(ctx, profile, kind, log)
	if !ok {
		// Open failures and nonexistent profiles are indistinguishable
		// here; both degrade to an empty result.
		return []string{}
	}

	handles := e.collect(ctx, profile, kind, expected, tun, maxDuration, log)
	e.closeListSurface(ctx, log)

	log.Info("Extraction finished",
		zap.Int("collected", len(handles)),
		zap.Int("expected", expected))
	return handles
}

// collect is the scroll loop. It stops when the expected total is
// reached, the refresh budget is exhausted, or maxDuration elapses.
func (e *Engine) collect(ctx context.Context, profile string, kind ListKind, expected int, tun Tunables, maxDuration time.Duration, log *zap.Logger) []string {
	itemLoc := e.store.MustGet(selectors.ProfileUsernameSpan)

	start := time.Now()
	seen := newOrderedSet()
	noGrowth := 0
	refreshes := 0

	for {
		// The deadline is a soft cooperative signal, checked once per
		// iteration and never mid-render.
		if ctx.Err() != nil {
			log.Debug("Context canceled, stopping with partial result")
			break
		}
		if maxDuration > 0 && time.Since(start) > maxDuration {
			log.Debug("Extraction deadline reached, stopping with partial result",
				zap.Duration("max_duration", maxDuration))
			break
		}

		added := e.readVisible(ctx, itemLoc, seen)
		if added == 0 {
			noGrowth++
		} else {
			noGrowth = 0
		}

		if expected > 0 && seen.len() >= expected {
			log.Debug("Expected count reached", zap.Int("expected", expected))
			break
		}

		if noGrowth >= tun.MaxAttempts {
			if e.settle(ctx, itemLoc, seen, tun) {
				noGrowth = 0
				continue
			}
			refreshes++
			if refreshes >= tun.MaxRefreshAttempts {
				log.Debug("Refresh budget exhausted, accepting partial result",
					zap.Int("refreshes", refreshes))
				break
			}
			log.Debug("No growth after settle phase, refreshing surface",
				zap.Int("refresh_attempt", refreshes))
			if !e.refreshSurface(ctx, profile, kind, log) {
				break
			}
			noGrowth = 0
			continue
		}

		e.scrollStep(ctx, itemLoc)
		_ = e.sleep(ctx, tun.PauseTime)
	}

	return seen.items()
}

// openListSurface loads the profile page and clicks the requested list
// entry point. It returns the expected total when the displayed count
// parses, zero when unknown, and ok=false on any failure.
func (e *Engine) openListSurface(ctx context.Context, profile string, kind ListKind, log *zap.Logger) (int, bool) {
	link, err := e.waitEntryPoint(ctx, profile, kind)
	if err != nil {
		log.Debug("List surface unavailable", zap.Error(err))
		return 0, false
	}

	expected := 0
	if text, err := e.drv.ReadText(ctx, link); err == nil {
		if n, perr := countparse.Parse(joinCountTokens(text)); perr == nil {
			expected = n
		} else {
			log.Debug("Displayed count did not parse", zap.Error(perr))
		}
	}

	if err := e.drv.Click(ctx, link); err != nil {
		log.Debug("Failed to open list surface", zap.Error(err))
		return 0, false
	}
	return expected, true
}

// waitEntryPoint navigates to the profile page and waits for the list
// entry-point link.
func (e *Engine) waitEntryPoint(ctx context.Context, profile string, kind ListKind) (driver.Element, error) {
	url := fmt.Sprintf("%s/%s/", e.baseURL, profile)
	if err := e.drv.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("navigate to profile %q: %w", profile, err)
	}

	name := selectors.FollowersLink
	if kind == Following {
		name = selectors.FollowingLink
	}
	link, err := e.drv.WaitVisible(ctx, e.store.MustGet(name), e.timeout)
	if err != nil {
		return nil, fmt.Errorf("%s entry point of %q: %w", kind, profile, err)
	}
	return link, nil
}

// readVisible snapshots the currently rendered handles and folds the
// unseen ones into the ordered set. Returns how many were new.
func (e *Engine) readVisible(ctx context.Context, itemLoc driver.Locator, seen *orderedSet) int {
	texts, err := e.drv.Texts(ctx, itemLoc)
	if err != nil {
		e.logger.Debug("Reading visible handles failed", zap.Error(err))
		return 0
	}
	added := 0
	for _, text := range texts {
		handle := strings.TrimSpace(text)
		if handle == "" {
			continue
		}
		if seen.add(handle) {
			added++
		}
	}
	return added
}

// settle runs the bounded extra scroll+read cycles that catch lazily
// rendered content before the loop resorts to a destructive refresh.
func (e *Engine) settle(ctx context.Context, itemLoc driver.Locator, seen *orderedSet, tun Tunables) bool {
	spinner := e.store.MustGet(selectors.LoadingSpinner)

	for i := 0; i < tun.AdditionalScrollAttempts; i++ {
		// A visible loading indicator means content is still on its way;
		// timing out here is tolerated.
		if err := e.drv.WaitGone(ctx, spinner, tun.WaitInterval); err != nil {
			e.logger.Debug("Loading indicator still present, proceeding anyway")
		}
		e.scrollStep(ctx, itemLoc)
		_ = e.sleep(ctx, tun.WaitInterval)
		if e.readVisible(ctx, itemLoc, seen) > 0 {
			return true
		}
	}
	return false
}

// scrollStep advances the list: scroll the last rendered item into view
// so the lazy loader fetches the next page, or nudge the dialog when
// nothing is addressable yet.
func (e *Engine) scrollStep(ctx context.Context, itemLoc driver.Locator) {
	els, err := e.drv.Find(ctx, itemLoc)
	if err == nil && len(els) > 0 {
		if err := e.drv.ScrollIntoView(ctx, els[len(els)-1]); err == nil {
			return
		}
	}
	dialog := e.store.MustGet(selectors.ListDialog)
	if err := e.drv.ScrollBy(ctx, dialog, scrollFallbackDelta); err != nil {
		e.logger.Debug("Scroll step failed", zap.Error(err))
	}
}

// refreshSurface reloads the page and reopens the list surface after the
// settle phase failed. Refreshing discards scroll position, which is why
// it runs strictly after settling.
func (e *Engine) refreshSurface(ctx context.Context, profile string, kind ListKind, log *zap.Logger) bool {
	if err := e.drv.Reload(ctx); err != nil {
		log.Debug("Refresh failed", zap.Error(err))
		return false
	}
	_ = e.drv.WaitCondition(ctx, e.timeout, func(ctx context.Context) (bool, error) {
		st, err := e.drv.ReadyState(ctx)
		if err != nil {
			return false, nil
		}
		return st == "complete", nil
	})
	_ = e.sleep(ctx, refreshSettle)

	_, ok := e.openListSurface(ctx, profile, kind, log)
	return ok
}

// closeListSurface clicks the modal close control; failure is logged and
// tolerated.
func (e *Engine) closeListSurface(ctx context.Context, log *zap.Logger) {
	closeLoc := e.store.MustGet(selectors.CloseModalButton)
	btn, err := e.drv.WaitVisible(ctx, closeLoc, e.timeout)
	if err != nil {
		log.Debug("Close control not found", zap.Error(err))
		return
	}
	if err := e.drv.Click(ctx, btn); err != nil {
		log.Debug("Failed to close list surface", zap.Error(err))
	}
}

// joinCountTokens glues a count rendered as separate number and
// multiplier tokens ("2,5 mil") back together and drops trailing label
// words ("1,234 followers" reads as "1,234").
func joinCountTokens(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) > 1 {
		switch strings.ToLower(fields[1]) {
		case "k", "m", "mi", "mil":
			return fields[0] + " " + fields[1]
		}
	}
	return fields[0]
}

// orderedSet keeps first-discovery order with exact-match dedup. The
// collected set never shrinks.
type orderedSet struct {
	order []string
	index map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]struct{})}
}

func (s *orderedSet) add(item string) bool {
	if _, dup := s.index[item]; dup {
		return false
	}
	s.index[item] = struct{}{}
	s.order = append(s.order, item)
	return true
}

func (s *orderedSet) len() int { return len(s.order) }

func (s *orderedSet) items() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
