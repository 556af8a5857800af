// Package auth negotiates the undocumented login flow of the target
// surface. The flow is an explicit state machine: direct form submit,
// keyword-driven fallback button discovery when the submit does not
// navigate, and idempotent dismissal of the interstitial and
// save-credentials prompts on the way through.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/instaflow/internal/config"
	"github.com/xkilldash9x/instaflow/internal/driver"
	"github.com/xkilldash9x/instaflow/internal/selectors"
)

// Credentials identify the account the session logs in as. The secret is
// held for the session lifetime only and never logged.
type Credentials struct {
	Username string
	Password string
}

// state names the positions of the login state machine.
type state int

const (
	stateStart state = iota
	stateFormLoaded
	stateSubmitted
	stateRedirected
	statePostLoginCleanup
	stateReady
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateFormLoaded:
		return "form_loaded"
	case stateSubmitted:
		return "submitted"
	case stateRedirected:
		return "redirected"
	case statePostLoginCleanup:
		return "post_login_cleanup"
	case stateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Flow runs the authentication state machine against one driver.
type Flow struct {
	drv     driver.Driver
	store   *selectors.Store
	cfg     config.AuthConfig
	timeout time.Duration
	logger  *zap.Logger

	// sleep is swapped out in tests to keep them fast.
	sleep func(context.Context, time.Duration) error
}

// NewFlow wires a login flow. timeout bounds every explicit wait (form
// visibility, redirect, readiness).
func NewFlow(drv driver.Driver, store *selectors.Store, cfg config.AuthConfig, timeout time.Duration, logger *zap.Logger) *Flow {
	return &Flow{
		drv:     drv,
		store:   store,
		cfg:     cfg,
		timeout: timeout,
		logger:  logger.Named("auth"),
		sleep:   sleepCtx,
	}
}

// formHandles carries the credential fields between states.
type formHandles struct {
	username driver.Element
	password driver.Element
}

// Run drives the state machine to Ready or fails with a *LoginError.
// The machine never reports success while the current location is still
// the login page.
func (f *Flow) Run(ctx context.Context, creds Credentials) error {
	log := f.logger.With(zap.String("username", creds.Username))

	var form formHandles
	current := stateStart
	for current != stateReady {
		log.Debug("Login state", zap.Stringer("state", current))

		var next state
		var err error
		switch current {
		case stateStart:
			form, err = f.loadForm(ctx)
			next = stateFormLoaded
		case stateFormLoaded:
			err = f.submitCredentials(ctx, form, creds)
			next = stateSubmitted
		case stateSubmitted:
			f.dismissInterstitial(ctx)
			err = f.awaitRedirect(ctx, log)
			next = stateRedirected
		case stateRedirected:
			f.dismissSaveLoginPrompt(ctx)
			next = statePostLoginCleanup
		case statePostLoginCleanup:
			err = f.assertOffLoginPage(ctx)
			next = stateReady
		}
		if err != nil {
			log.Warn("Login failed", zap.Stringer("state", current), zap.Error(err))
			return err
		}
		current = next
	}

	log.Info("Login succeeded")
	return nil
}

// loadForm navigates to the login surface and waits for both credential
// fields to become visible.
func (f *Flow) loadForm(ctx context.Context) (formHandles, error) {
	if err := f.drv.Navigate(ctx, f.cfg.LoginURL); err != nil {
		return formHandles{}, NewLoginError(NavigationFailed, err)
	}

	userLoc := f.store.MustGet(selectors.LoginUsernameInput)
	passLoc := f.store.MustGet(selectors.LoginPasswordInput)

	username, err := f.drv.WaitVisible(ctx, userLoc, f.timeout)
	if err != nil {
		return formHandles{}, NewLoginError(FormNotFound, err)
	}
	password, err := f.drv.WaitVisible(ctx, passLoc, f.timeout)
	if err != nil {
		return formHandles{}, NewLoginError(FormNotFound, err)
	}
	return formHandles{username: username, password: password}, nil
}

// submitCredentials fills both fields and submits through the secret
// field's implicit submit action.
func (f *Flow) submitCredentials(ctx context.Context, form formHandles, creds Credentials) error {
	if err := f.drv.Type(ctx, form.username, creds.Username); err != nil {
		return NewLoginError(CredentialEntryFailed, err)
	}
	if err := f.drv.Type(ctx, form.password, creds.Password); err != nil {
		return NewLoginError(CredentialEntryFailed, err)
	}
	if err := f.drv.SubmitKey(ctx, form.password); err != nil {
		return NewLoginError(CredentialEntryFailed, err)
	}
	return nil
}

// dismissInterstitial clicks the skip/ignore control when the surface
// interposes one after submit. Absence is not an error and the pass is
// idempotent.
func (f *Flow) dismissInterstitial(ctx context.Context) {
	loc := f.store.MustGet(selectors.IgnoreButton)
	if clicked := f.clickFirstKeywordMatch(ctx, loc, f.cfg.DismissKeywords, f.cfg.InterstitialWait); clicked {
		f.logger.Debug("Dismissed interstitial prompt")
	}
}

// awaitRedirect waits for the location to leave the login URL; when the
// direct submit does not navigate, it falls back to enumerating
// button-like candidates and clicking the first whose text matches a
// configured login keyword.
func (f *Flow) awaitRedirect(ctx context.Context, log *zap.Logger) error {
	err := f.drv.WaitCondition(ctx, f.timeout, func(ctx context.Context) (bool, error) {
		return f.leftLoginPage(ctx)
	})
	if err == nil {
		return nil
	}

	log.Debug("Submit did not navigate, trying fallback button search")
	return f.fallbackButtonLogin(ctx, log)
}

func (f *Flow) fallbackButtonLogin(ctx context.Context, log *zap.Logger) error {
	loc := f.store.MustGet(selectors.LoginButtonCandidate)
	candidates, err := f.drv.Find(ctx, loc)
	if err != nil {
		return NewLoginError(NoLoginControlFound, err)
	}
	log.Debug("Enumerated login button candidates", zap.Int("count", len(candidates)))

	clicked := false
	for _, candidate := range candidates {
		text, err := f.drv.ReadText(ctx, candidate)
		if err != nil {
			log.Debug("Skipping unreadable candidate", zap.Error(err))
			continue
		}
		if !matchesKeyword(text, f.cfg.LoginKeywords) {
			continue
		}
		log.Debug("Clicking login button candidate", zap.String("text", strings.TrimSpace(text)))
		if err := f.drv.Click(ctx, candidate); err != nil {
			log.Debug("Candidate click failed, trying next", zap.Error(err))
			continue
		}
		clicked = true
		break
	}
	if !clicked {
		return NewLoginError(NoLoginControlFound, fmt.Errorf("no candidate matched keywords %v", f.cfg.LoginKeywords))
	}

	// Re-wait for the location change and for document readiness, then
	// hold a fixed settle delay.
	err = f.drv.WaitCondition(ctx, f.timeout, func(ctx context.Context) (bool, error) {
		return f.leftLoginPage(ctx)
	})
	if err != nil {
		return NewLoginError(FallbackTimeout, err)
	}
	err = f.drv.WaitCondition(ctx, f.timeout, func(ctx context.Context) (bool, error) {
		st, err := f.drv.ReadyState(ctx)
		if err != nil {
			return false, nil
		}
		return st == "complete", nil
	})
	if err != nil {
		return NewLoginError(FallbackTimeout, err)
	}
	if err := f.sleep(ctx, f.cfg.SettleDelay); err != nil {
		return NewLoginError(FallbackTimeout, err)
	}
	return nil
}

// dismissSaveLoginPrompt handles the "save your login info?" modal.
// Absence is fine; presence-but-unclickable is logged and tolerated.
func (f *Flow) dismissSaveLoginPrompt(ctx context.Context) {
	loc := f.store.MustGet(selectors.SaveLoginInfoButton)
	if !f.clickFirstKeywordMatch(ctx, loc, f.cfg.SaveLoginKeywords, f.timeout) {
		return
	}

	dialog := f.store.MustGet(selectors.SaveLoginInfoDialog)
	if err := f.drv.WaitGone(ctx, dialog, f.timeout); err != nil {
		f.logger.Debug("Save-login dialog still present after dismissal", zap.Error(err))
		return
	}
	f.logger.Debug("Dismissed save-login prompt")
}

// clickFirstKeywordMatch polls for up to wait for a candidate under loc
// whose text matches any keyword, clicking the first hit. Returns
// whether a click landed; all failures are tolerated.
func (f *Flow) clickFirstKeywordMatch(ctx context.Context, loc driver.Locator, keywords []string, wait time.Duration) bool {
	clicked := false
	err := f.drv.WaitCondition(ctx, wait, func(ctx context.Context) (bool, error) {
		candidates, err := f.drv.Find(ctx, loc)
		if err != nil {
			return false, nil
		}
		for _, candidate := range candidates {
			text, err := f.drv.ReadText(ctx, candidate)
			if err != nil {
				continue
			}
			if !matchesKeyword(text, keywords) {
				continue
			}
			if err := f.drv.Click(ctx, candidate); err != nil {
				f.logger.Debug("Prompt button present but unclickable", zap.Error(err))
				// Treat as handled; the prompt does not block the flow.
				return true, nil
			}
			clicked = true
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		f.logger.Debug("No prompt to dismiss within wait", zap.Duration("wait", wait))
	}
	return clicked
}

// leftLoginPage reports whether the current location differs from the
// login URL. Read failures count as "still there" so waits keep polling.
func (f *Flow) leftLoginPage(ctx context.Context) (bool, error) {
	current, err := f.drv.CurrentURL(ctx)
	if err != nil {
		return false, nil
	}
	return !sameURL(current, f.cfg.LoginURL), nil
}

// assertOffLoginPage is the terminal invariant check: success is never
// reported while still on the login page.
func (f *Flow) assertOffLoginPage(ctx context.Context) error {
	left, _ := f.leftLoginPage(ctx)
	if !left {
		return NewLoginError(FallbackTimeout, fmt.Errorf("still on login page after flow completion"))
	}
	return nil
}

func matchesKeyword(text string, keywords []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(normalized, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func sameURL(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
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
