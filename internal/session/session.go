// Package session is the public façade: one Session owns one
// authenticated browser and exposes the harvesting operations on top of
// it. Construction authenticates eagerly; a Session you hold is either
// ready to extract or already closed.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/instaflow/internal/auth"
	"github.com/xkilldash9x/instaflow/internal/config"
	"github.com/xkilldash9x/instaflow/internal/driver"
	"github.com/xkilldash9x/instaflow/internal/extract"
	"github.com/xkilldash9x/instaflow/internal/selectors"
)

// ErrClosed is returned by every operation on a closed Session.
var ErrClosed = errors.New("session is closed")

// State is the session lifecycle. A Session is handed out Authenticated
// and only ever moves to Closed.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DriverFactory builds the browser a Session drives. Tests substitute a
// scripted driver here.
type DriverFactory func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (driver.Driver, error)

func defaultDriverFactory(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (driver.Driver, error) {
	return driver.NewBrowser(ctx, driver.Options{
		Headless:         cfg.Headless,
		UserAgent:        cfg.UserAgent,
		ViewportWidth:    cfg.ViewportWidth,
		ViewportHeight:   cfg.ViewportHeight,
		ExtraArgs:        cfg.Args,
		ActionsPerSecond: cfg.ActionsPerSecond,
	}, logger)
}

// Options configures Session construction beyond credentials.
type Options struct {
	Config *config.Config
	Logger *zap.Logger
	// NewDriver overrides browser construction. Nil means a real
	// headless browser.
	NewDriver DriverFactory
}

// Session drives one authenticated browser. Methods are safe for
// concurrent use, but extractions serialize on the single underlying
// page.
type Session struct {
	drv    driver.Driver
	engine *extract.Engine
	logger *zap.Logger

	mu        sync.Mutex
	state     State
	tunables  extract.Tunables
	closeOnce sync.Once
	closeErr  error
}

// New launches a browser, authenticates with creds, and returns a ready
// Session. Any failure tears the browser down before returning; driver
// construction failures surface as *auth.LoginError with kind
// DriverInitFailed, login failures as whatever kind the flow assigned.
func New(ctx context.Context, creds auth.Credentials, opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session")

	store, err := selectors.Load(cfg.Selectors.File)
	if err != nil {
		return nil, err
	}

	newDriver := opts.NewDriver
	if newDriver == nil {
		newDriver = defaultDriverFactory
	}
	drv, err := newDriver(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, auth.NewLoginError(auth.DriverInitFailed, err)
	}

	flow := auth.NewFlow(drv, store, cfg.Auth, cfg.Browser.Timeout, logger)
	if err := flow.Run(ctx, creds); err != nil {
		// The browser is useless without a login; reap it now.
		if cerr := drv.Close(); cerr != nil {
			logger.Warn("Failed to close browser after login failure", zap.Error(cerr))
		}
		return nil, err
	}

	base, err := siteBaseURL(cfg.Auth.LoginURL)
	if err != nil {
		if cerr := drv.Close(); cerr != nil {
			logger.Warn("Failed to close browser", zap.Error(cerr))
		}
		return nil, err
	}

	s := &Session{
		drv:      drv,
		engine:   extract.NewEngine(drv, store, base, cfg.Browser.Timeout, logger),
		logger:   logger,
		state:    Authenticated,
		tunables: extract.TunablesFromConfig(cfg.Extract),
	}
	logger.Info("Session ready", zap.String("username", creds.Username))
	return s, nil
}

// siteBaseURL strips the login path, leaving the scheme and host the
// profile pages live under.
func siteBaseURL(loginURL string) (string, error) {
	u, err := url.Parse(loginURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("login URL %q has no usable origin: %w", loginURL, err)
	}
	return u.Scheme + "://" + u.Host, nil
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetTunables replaces the extraction tunables for subsequent calls.
// In-flight extractions keep the tunables they started with.
func (s *Session) SetTunables(t extract.Tunables) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tunables = t
}

// Tunables returns the tunables the next extraction will use.
func (s *Session) Tunables() extract.Tunables {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tunables
}

// Followers harvests the follower handles of profile. maxDuration of
// zero means no deadline. An unreachable or empty list yields an empty
// slice, never an error; only a closed session errors.
func (s *Session) Followers(ctx context.Context, profile string, maxDuration time.Duration) ([]string, error) {
	return s.extractList(ctx, profile, extract.Followers, maxDuration)
}

// Following harvests the handles profile follows.
func (s *Session) Following(ctx context.Context, profile string, maxDuration time.Duration) ([]string, error) {
	return s.extractList(ctx, profile, extract.Following, maxDuration)
}

func (s *Session) extractList(ctx context.Context, profile string, kind extract.ListKind, maxDuration time.Duration) ([]string, error) {
	s.mu.Lock()
	if s.state != Authenticated {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	tun := s.tunables
	s.mu.Unlock()

	if kind == extract.Following {
		return s.engine.Following(ctx, profile, tun, maxDuration), nil
	}
	return s.engine.Followers(ctx, profile, tun, maxDuration), nil
}

// TotalCount reads the displayed size of a relationship list without
// scrolling it. Unlike the list extractions this propagates failures:
// malformed count text is a *countparse.ParseError.
func (s *Session) TotalCount(ctx context.Context, profile string, kind extract.ListKind) (int, error) {
	s.mu.Lock()
	if s.state != Authenticated {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	s.mu.Unlock()
	return s.engine.TotalCount(ctx, profile, kind)
}

// Close releases the browser. Safe to call any number of times; calls
// after the first return the first outcome.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()
		s.closeErr = s.drv.Close()
		s.logger.Info("Session closed")
	})
	return s.closeErr
}
