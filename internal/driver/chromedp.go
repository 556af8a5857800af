// internal/driver/chromedp.go
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configure the Chrome instance backing a Browser.
type Options struct {
	Headless       bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	ExtraArgs      []string
	// ActionsPerSecond caps the CDP action rate so automation does not
	// hammer the remote surface. Zero disables the limiter.
	ActionsPerSecond float64
}

// The target surface renders its mobile layout for this agent, which is
// the layout the selector store is written against.
const defaultMobileUserAgent = "Mozilla/5.0 (Linux; Android 8.0; Nexus 5 Build/OPR6.170623.013) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/89.0.4389.72 Mobile Safari/537.36"

// Injected on every new document before any page script runs.
const webdriverFlagScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

const pollInterval = 250 * time.Millisecond

// Browser drives one Chrome instance over the DevTools protocol. It
// implements Driver. A Browser owns its allocator and tab context and
// releases both exactly once on Close.
type Browser struct {
	id          string
	ctx         context.Context
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	limiter     *rate.Limiter
	logger      *zap.Logger
	closeOnce   sync.Once
}

var _ Driver = (*Browser)(nil)

// NewBrowser launches Chrome and attaches a fresh tab. The returned
// Browser must be closed by the caller; failure here means no usable
// automation surface exists.
func NewBrowser(parentCtx context.Context, opts Options, logger *zap.Logger) (*Browser, error) {
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultMobileUserAgent
	}
	width, height := opts.ViewportWidth, opts.ViewportHeight
	if width <= 0 || height <= 0 {
		width, height = 375, 667
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{},
		chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.UserAgent(ua),
		chromedp.WindowSize(width, height),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	for _, arg := range opts.ExtraArgs {
		allocOpts = append(allocOpts, chromedp.Flag(arg, true))
	}

	id := uuid.New().String()
	log := logger.Named("driver").With(zap.String("browser_id", id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	b := &Browser{
		id:          id,
		ctx:         tabCtx,
		allocCancel: allocCancel,
		ctxCancel:   tabCancel,
		logger:      log,
	}
	if opts.ActionsPerSecond > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(opts.ActionsPerSecond), 2)
	}

	// Launch the process now and install the webdriver-flag script before
	// the first navigation.
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, innerErr := page.AddScriptToEvaluateOnNewDocument(webdriverFlagScript).Do(ctx)
		return innerErr
	}))
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	log.Info("Browser launched",
		zap.Bool("headless", opts.Headless),
		zap.Int("viewport_width", width),
		zap.Int("viewport_height", height))
	return b, nil
}

// ID returns the browser instance identifier used in log correlation.
func (b *Browser) ID() string { return b.id }

// run executes chromedp actions against the tab, respecting both the
// browser lifecycle and the caller's context, and pacing through the
// rate limiter.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	runCtx, cancel := combineContext(b.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	b.logger.Debug("Navigating", zap.String("url", url))
	return b.run(ctx, chromedp.Navigate(url))
}

func (b *Browser) Reload(ctx context.Context) error {
	b.logger.Debug("Reloading page")
	return b.run(ctx, chromedp.Reload())
}

// cdpElement wraps a resolved DOM node. The node's full XPath is used to
// re-address it for follow-up actions.
type cdpElement struct {
	node *cdp.Node
}

func (e *cdpElement) Path() string { return e.node.FullXPath() }

// asNode rejects handles produced by a different Driver implementation.
func asNode(el Element) (*cdpElement, error) {
	n, ok := el.(*cdpElement)
	if !ok || n.node == nil {
		return nil, fmt.Errorf("element handle %T does not belong to this driver", el)
	}
	return n, nil
}

// queryOpts maps a Locator onto chromedp query options.
func queryOpts(loc Locator, extra ...chromedp.QueryOption) []chromedp.QueryOption {
	var opts []chromedp.QueryOption
	if loc.By == ByXPath {
		opts = append(opts, chromedp.BySearch)
	} else {
		opts = append(opts, chromedp.ByQueryAll)
	}
	return append(opts, extra...)
}

func (b *Browser) Find(ctx context.Context, loc Locator) ([]Element, error) {
	var nodes []*cdp.Node
	err := b.run(ctx, chromedp.Nodes(loc.Expr, &nodes, queryOpts(loc, chromedp.AtLeast(0))...))
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", loc.Expr, err)
	}
	els := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, &cdpElement{node: n})
	}
	return els, nil
}

func (b *Browser) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var nodes []*cdp.Node
	err := b.run(waitCtx,
		chromedp.WaitVisible(loc.Expr, queryOpts(loc)...),
		chromedp.Nodes(loc.Expr, &nodes, queryOpts(loc, chromedp.AtLeast(0))...),
	)
	if err != nil {
		return nil, fmt.Errorf("wait visible %q: %w", loc.Expr, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("wait visible %q: element vanished after wait", loc.Expr)
	}
	return &cdpElement{node: nodes[0]}, nil
}

func (b *Browser) WaitGone(ctx context.Context, loc Locator, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.run(waitCtx, chromedp.WaitNotPresent(loc.Expr, queryOpts(loc)...)); err != nil {
		return fmt.Errorf("wait gone %q: %w", loc.Expr, err)
	}
	return nil
}

func (b *Browser) WaitCondition(ctx context.Context, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := cond(waitCtx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return waitCtx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Browser) Click(ctx context.Context, el Element) error {
	n, err := asNode(el)
	if err != nil {
		return err
	}
	if err := b.run(ctx, chromedp.MouseClickNode(n.node)); err != nil {
		return fmt.Errorf("click %q: %w", n.Path(), err)
	}
	return nil
}

func (b *Browser) Type(ctx context.Context, el Element, text string) error {
	n, err := asNode(el)
	if err != nil {
		return err
	}
	path := n.Path()
	err = b.run(ctx,
		chromedp.Clear(path, chromedp.BySearch),
		chromedp.SendKeys(path, text, chromedp.BySearch),
	)
	if err != nil {
		return fmt.Errorf("type into %q: %w", path, err)
	}
	return nil
}

func (b *Browser) SubmitKey(ctx context.Context, el Element) error {
	n, err := asNode(el)
	if err != nil {
		return err
	}
	if err := b.run(ctx, chromedp.SendKeys(n.Path(), kb.Enter, chromedp.BySearch)); err != nil {
		return fmt.Errorf("submit via %q: %w", n.Path(), err)
	}
	return nil
}

func (b *Browser) ReadText(ctx context.Context, el Element) (string, error) {
	n, err := asNode(el)
	if err != nil {
		return "", err
	}
	var text string
	if err := b.run(ctx, chromedp.TextContent(n.Path(), &text, chromedp.BySearch)); err != nil {
		return "", fmt.Errorf("read text of %q: %w", n.Path(), err)
	}
	return text, nil
}

func (b *Browser) Texts(ctx context.Context, loc Locator) ([]string, error) {
	var texts []string
	if err := b.Evaluate(ctx, textsScript(loc), &texts); err != nil {
		return nil, fmt.Errorf("read texts of %q: %w", loc.Expr, err)
	}
	return texts, nil
}

// textsScript builds a one-round-trip snapshot of the trimmed text
// content of every locator match.
func textsScript(loc Locator) string {
	if loc.By == ByXPath {
		return fmt.Sprintf(`(() => {
			const out = [];
			const it = document.evaluate(%q, document, null, XPathResult.ORDERED_NODE_ITERATOR_TYPE, null);
			for (let n = it.iterateNext(); n; n = it.iterateNext()) {
				out.push((n.textContent || '').trim());
			}
			return out;
		})()`, loc.Expr)
	}
	return fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(e => (e.textContent || '').trim())`,
		loc.Expr)
}

func (b *Browser) ScrollIntoView(ctx context.Context, el Element) error {
	n, err := asNode(el)
	if err != nil {
		return err
	}
	if err := b.run(ctx, chromedp.ScrollIntoView(n.Path(), chromedp.BySearch)); err != nil {
		return fmt.Errorf("scroll to %q: %w", n.Path(), err)
	}
	return nil
}

func (b *Browser) ScrollBy(ctx context.Context, loc Locator, deltaY int) error {
	var script string
	if loc.By == ByXPath {
		script = fmt.Sprintf(`(() => {
			const n = document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
			(n || window).scrollBy(0, %d);
		})()`, loc.Expr, deltaY)
	} else {
		script = fmt.Sprintf(`(document.querySelector(%q) || window).scrollBy(0, %d)`, loc.Expr, deltaY)
	}
	if err := b.Evaluate(ctx, script, nil); err != nil {
		return fmt.Errorf("scroll %q by %d: %w", loc.Expr, deltaY, err)
	}
	return nil
}

func (b *Browser) Evaluate(ctx context.Context, script string, out any) error {
	return b.run(ctx, chromedp.Evaluate(script, out))
}

func (b *Browser) CurrentURL(ctx context.Context) (string, error) {
	var location string
	if err := b.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return location, nil
}

func (b *Browser) ReadyState(ctx context.Context) (string, error) {
	var state string
	if err := b.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return "", fmt.Errorf("read readyState: %w", err)
	}
	return state, nil
}

// Close tears down the tab and the Chrome process. Safe to call multiple
// times and after failed operations.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		b.logger.Info("Closing browser")
		// Graceful target close first, then the allocator.
		if err := chromedp.Cancel(b.ctx); err != nil {
			b.logger.Debug("Graceful browser close failed", zap.Error(err))
		}
		b.ctxCancel()
		b.allocCancel()
	})
	return nil
}

// combineContext derives a context from the browser lifecycle that is
// also canceled when the caller's context is.
func combineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
