// Package drivertest provides a scripted in-memory Driver for unit
// tests. Pages are plain maps from locator expression to element texts;
// tests mutate the fake between steps to simulate the remote surface.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/instaflow/internal/driver"
)

// ErrScripted is returned by calls a test has armed to fail.
var ErrScripted = errors.New("scripted driver failure")

// FakeElement is the handle type the fake hands out.
type FakeElement struct {
	// Expr is the locator expression that produced the element.
	Expr string
	// Text is what ReadText returns.
	Text string
	// Index distinguishes siblings matched by the same locator.
	Index int
}

func (e *FakeElement) Path() string {
	return fmt.Sprintf("%s[%d]", e.Expr, e.Index)
}

// Fake implements driver.Driver against scripted page state.
type Fake struct {
	mu sync.Mutex

	// URL is the current location; Navigate rewrites it unless the test
	// installed a NavigateFunc.
	URL string
	// Elements maps locator expressions to the texts of their matches.
	Elements map[string][]string
	// Visible marks locator expressions WaitVisible resolves immediately.
	// Unlisted expressions time out.
	Visible map[string]bool
	// Gone marks locator expressions WaitGone resolves immediately.
	Gone map[string]bool
	// FailNavigate, FailClick, FailType arm the respective calls to fail.
	FailNavigate bool
	FailClick    bool
	FailType     bool

	// NavigateFunc, ClickFunc, SubmitFunc, ReloadFunc optionally
	// intercept calls. Hooks run while the fake's lock is held: mutate
	// fields directly instead of calling the Set* helpers.
	NavigateFunc func(url string) error
	ClickFunc    func(el driver.Element) error
	SubmitFunc   func(el driver.Element) error
	ReloadFunc   func() error
	// OnScroll runs on every ScrollIntoView/ScrollBy, letting tests feed
	// new content in as the page "renders".
	OnScroll func()

	// Recorded calls, oldest first.
	Calls []string

	Closed     int
	TypedTexts map[string][]string
	readyState string
}

var _ driver.Driver = (*Fake)(nil)

// New returns an empty Fake with a "complete" ready state.
func New() *Fake {
	return &Fake{
		Elements:   make(map[string][]string),
		Visible:    make(map[string]bool),
		Gone:       make(map[string]bool),
		TypedTexts: make(map[string][]string),
		readyState: "complete",
	}
}

func (f *Fake) record(format string, args ...any) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

func (f *Fake) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("navigate %s", url)
	if f.NavigateFunc != nil {
		return f.NavigateFunc(url)
	}
	if f.FailNavigate {
		return ErrScripted
	}
	f.URL = url
	return nil
}

func (f *Fake) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("reload")
	if f.ReloadFunc != nil {
		return f.ReloadFunc()
	}
	return nil
}

func (f *Fake) Find(_ context.Context, loc driver.Locator) ([]driver.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("find %s", loc.Expr)
	texts := f.Elements[loc.Expr]
	els := make([]driver.Element, 0, len(texts))
	for i, text := range texts {
		els = append(els, &FakeElement{Expr: loc.Expr, Text: text, Index: i})
	}
	return els, nil
}

func (f *Fake) WaitVisible(_ context.Context, loc driver.Locator, timeout time.Duration) (driver.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("wait_visible %s", loc.Expr)
	if !f.Visible[loc.Expr] {
		return nil, fmt.Errorf("wait visible %q: %w", loc.Expr, context.DeadlineExceeded)
	}
	text := ""
	if texts := f.Elements[loc.Expr]; len(texts) > 0 {
		text = texts[0]
	}
	return &FakeElement{Expr: loc.Expr, Text: text}, nil
}

func (f *Fake) WaitGone(_ context.Context, loc driver.Locator, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("wait_gone %s", loc.Expr)
	if !f.Gone[loc.Expr] && len(f.Elements[loc.Expr]) > 0 {
		return fmt.Errorf("wait gone %q: %w", loc.Expr, context.DeadlineExceeded)
	}
	return nil
}

func (f *Fake) WaitCondition(ctx context.Context, timeout time.Duration, cond func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *Fake) Click(_ context.Context, el driver.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("click %s", el.Path())
	if f.ClickFunc != nil {
		return f.ClickFunc(el)
	}
	if f.FailClick {
		return ErrScripted
	}
	return nil
}

func (f *Fake) Type(_ context.Context, el driver.Element, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("type %s", el.Path())
	if f.FailType {
		return ErrScripted
	}
	fe := el.(*FakeElement)
	f.TypedTexts[fe.Expr] = append(f.TypedTexts[fe.Expr], text)
	return nil
}

func (f *Fake) SubmitKey(_ context.Context, el driver.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("submit %s", el.Path())
	if f.SubmitFunc != nil {
		return f.SubmitFunc(el)
	}
	if f.FailType {
		return ErrScripted
	}
	return nil
}

func (f *Fake) ReadText(_ context.Context, el driver.Element) (string, error) {
	fe, ok := el.(*FakeElement)
	if !ok {
		return "", fmt.Errorf("foreign element %T", el)
	}
	return fe.Text, nil
}

func (f *Fake) Texts(_ context.Context, loc driver.Locator) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("texts %s", loc.Expr)
	return append([]string(nil), f.Elements[loc.Expr]...), nil
}

func (f *Fake) ScrollIntoView(_ context.Context, el driver.Element) error {
	f.mu.Lock()
	scroll := f.OnScroll
	f.record("scroll_into_view %s", el.Path())
	f.mu.Unlock()
	if scroll != nil {
		scroll()
	}
	return nil
}

func (f *Fake) ScrollBy(_ context.Context, loc driver.Locator, deltaY int) error {
	f.mu.Lock()
	scroll := f.OnScroll
	f.record("scroll_by %s %d", loc.Expr, deltaY)
	f.mu.Unlock()
	if scroll != nil {
		scroll()
	}
	return nil
}

func (f *Fake) Evaluate(_ context.Context, script string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("evaluate")
	return nil
}

func (f *Fake) CurrentURL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.URL, nil
}

func (f *Fake) ReadyState(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readyState, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed++
	return nil
}

// SetElements replaces the matches for a locator expression.
func (f *Fake) SetElements(expr string, texts ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Elements[expr] = texts
}

// SetURL moves the fake to a new location without a Navigate call, the
// way a page redirect would.
func (f *Fake) SetURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.URL = url
}
