// Package driver defines the automation capability surface the rest of
// instaflow consumes, plus the chromedp-backed implementation. Callers
// never touch chromedp directly; this keeps the login and extraction
// logic testable against a scripted fake.
package driver

import (
	"context"
	"strings"
	"time"
)

// By selects the query strategy for a Locator.
type By string

const (
	ByCSS   By = "css"
	ByXPath By = "xpath"
)

// Locator describes how to find elements on the current page.
type Locator struct {
	By   By
	Expr string
}

// ParseLocator infers the strategy from the expression shape. Selector
// stores hold plain strings; XPath expressions are recognized by their
// leading axis syntax, everything else is CSS.
func ParseLocator(expr string) Locator {
	trimmed := strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(trimmed, "xpath="):
		return Locator{By: ByXPath, Expr: strings.TrimPrefix(trimmed, "xpath=")}
	case strings.HasPrefix(trimmed, "css="):
		return Locator{By: ByCSS, Expr: strings.TrimPrefix(trimmed, "css=")}
	case strings.HasPrefix(trimmed, "//"), strings.HasPrefix(trimmed, "(//"), strings.HasPrefix(trimmed, ".//"):
		return Locator{By: ByXPath, Expr: trimmed}
	default:
		return Locator{By: ByCSS, Expr: trimmed}
	}
}

// Element is an opaque handle to one rendered node. Handles are only
// valid against the Driver that produced them and may go stale after
// navigation.
type Element interface {
	// Path describes how the element resolves on the page, suitable for
	// re-querying and for log output.
	Path() string
}

// Driver is the consumed browser-automation surface. All blocking calls
// honor the passed context; waits additionally carry their own deadline.
// Close is idempotent.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error

	// Find returns zero or more handles; no match is not an error.
	Find(ctx context.Context, loc Locator) ([]Element, error)
	// WaitVisible blocks until the locator matches a visible element or
	// the timeout elapses.
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) (Element, error)
	// WaitGone blocks until the locator matches nothing.
	WaitGone(ctx context.Context, loc Locator, timeout time.Duration) error
	// WaitCondition polls cond until it reports true or the timeout
	// elapses.
	WaitCondition(ctx context.Context, timeout time.Duration, cond func(context.Context) (bool, error)) error

	Click(ctx context.Context, el Element) error
	// Type clears the element and enters text.
	Type(ctx context.Context, el Element, text string) error
	// SubmitKey sends the Enter key to the element, triggering its
	// implicit form submission.
	SubmitKey(ctx context.Context, el Element) error
	ReadText(ctx context.Context, el Element) (string, error)
	// Texts reads the trimmed text content of every match in one round
	// trip.
	Texts(ctx context.Context, loc Locator) ([]string, error)

	ScrollIntoView(ctx context.Context, el Element) error
	ScrollBy(ctx context.Context, loc Locator, deltaY int) error

	Evaluate(ctx context.Context, script string, out any) error
	CurrentURL(ctx context.Context) (string, error)
	ReadyState(ctx context.Context) (string, error)

	Close() error
}
