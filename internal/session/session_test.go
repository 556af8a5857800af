package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/instaflow/internal/auth"
	"github.com/xkilldash9x/instaflow/internal/config"
	"github.com/xkilldash9x/instaflow/internal/driver"
	"github.com/xkilldash9x/instaflow/internal/driver/drivertest"
	"github.com/xkilldash9x/instaflow/internal/extract"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	homeURL           = "https://www.instagram.com/"
	usernameExpr      = `input[name="username"]`
	passwordExpr      = `input[name="password"]`
	followersLinkExpr = `//a[contains(@href, "/followers")]`
	listItemExpr      = `div[role="dialog"] a[role="link"] span`
)

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Browser.Timeout = 30 * time.Millisecond
	cfg.Auth.InterstitialWait = time.Millisecond
	cfg.Auth.SettleDelay = 0
	cfg.Extract = config.ExtractConfig{
		MaxRefreshAttempts:       1,
		MaxAttempts:              1,
		AdditionalScrollAttempts: 1,
		PauseTime:                0,
		WaitInterval:             time.Millisecond,
	}
	return cfg
}

// loginReadyFake scripts a driver that sails through authentication.
func loginReadyFake() *drivertest.Fake {
	fake := drivertest.New()
	fake.Visible[usernameExpr] = true
	fake.Visible[passwordExpr] = true
	fake.SubmitFunc = func(driver.Element) error {
		fake.URL = homeURL
		return nil
	}
	return fake
}

func factoryFor(fake *drivertest.Fake) DriverFactory {
	return func(context.Context, config.BrowserConfig, *zap.Logger) (driver.Driver, error) {
		return fake, nil
	}
}

func newReadySession(t *testing.T, fake *drivertest.Fake) *Session {
	t.Helper()
	s, err := New(context.Background(), auth.Credentials{Username: "user", Password: "pw"}, Options{
		Config:    testConfig(),
		Logger:    zaptest.NewLogger(t),
		NewDriver: factoryFor(fake),
	})
	require.NoError(t, err)
	return s
}

func TestNewAuthenticates(t *testing.T) {
	fake := loginReadyFake()
	s := newReadySession(t, fake)
	defer s.Close()

	assert.Equal(t, Authenticated, s.State())
	assert.Equal(t, []string{"user"}, fake.TypedTexts[usernameExpr])
	assert.Equal(t, []string{"pw"}, fake.TypedTexts[passwordExpr])
}

func TestNewDriverFactoryFailure(t *testing.T) {
	boom := errors.New("no chrome binary")
	_, err := New(context.Background(), auth.Credentials{Username: "user", Password: "pw"}, Options{
		Config: testConfig(),
		Logger: zaptest.NewLogger(t),
		NewDriver: func(context.Context, config.BrowserConfig, *zap.Logger) (driver.Driver, error) {
			return nil, boom
		},
	})

	var lerr *auth.LoginError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, auth.DriverInitFailed, lerr.Kind)
	assert.ErrorIs(t, err, boom)
}

func TestNewLoginFailureClosesDriver(t *testing.T) {
	fake := drivertest.New() // form never becomes visible

	_, err := New(context.Background(), auth.Credentials{Username: "user", Password: "pw"}, Options{
		Config:    testConfig(),
		Logger:    zaptest.NewLogger(t),
		NewDriver: factoryFor(fake),
	})

	var lerr *auth.LoginError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, auth.FormNotFound, lerr.Kind)
	assert.Equal(t, 1, fake.Closed, "browser must be reaped after a failed login")
}

func TestFollowersDelegatesToEngine(t *testing.T) {
	fake := loginReadyFake()
	fake.Visible[followersLinkExpr] = true
	fake.SetElements(followersLinkExpr, "2 followers")
	fake.SetElements(listItemExpr, "alice", "bob")

	s := newReadySession(t, fake)
	defer s.Close()

	got, err := s.Followers(context.Background(), "someone", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got)
}

func TestTotalCountDelegatesToEngine(t *testing.T) {
	fake := loginReadyFake()
	fake.Visible[followersLinkExpr] = true
	fake.SetElements(followersLinkExpr, "1.2k followers")

	s := newReadySession(t, fake)
	defer s.Close()

	n, err := s.TotalCount(context.Background(), "someone", extract.Followers)
	require.NoError(t, err)
	assert.Equal(t, 1200, n)
}

func TestCloseIsIdempotent(t *testing.T) {
	fake := loginReadyFake()
	s := newReadySession(t, fake)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, fake.Closed)
	assert.Equal(t, Closed, s.State())
}

func TestOperationsAfterCloseReturnErrClosed(t *testing.T) {
	fake := loginReadyFake()
	s := newReadySession(t, fake)
	require.NoError(t, s.Close())

	_, err := s.Followers(context.Background(), "someone", 0)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Following(context.Background(), "someone", 0)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.TotalCount(context.Background(), "someone", extract.Followers)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSetTunables(t *testing.T) {
	fake := loginReadyFake()
	s := newReadySession(t, fake)
	defer s.Close()

	tun := extract.Tunables{
		MaxRefreshAttempts:       9,
		MaxAttempts:              4,
		AdditionalScrollAttempts: 3,
		PauseTime:                time.Second,
		WaitInterval:             time.Second,
	}
	s.SetTunables(tun)
	assert.Equal(t, tun, s.Tunables())
}
