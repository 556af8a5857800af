package selectors

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/instaflow/internal/driver"
)

func writeStore(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "selectors.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaultsOnly(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	loc, err := s.Get(LoginUsernameInput)
	require.NoError(t, err)
	assert.Equal(t, driver.ByCSS, loc.By)

	loc, err = s.Get(FollowersLink)
	require.NoError(t, err)
	assert.Equal(t, driver.ByXPath, loc.By)
}

func TestLoadOverrides(t *testing.T) {
	path := writeStore(t, `{"login_username_input": "//form//input[1]"}`)

	s, err := Load(path)
	require.NoError(t, err)

	loc, err := s.Get(LoginUsernameInput)
	require.NoError(t, err)
	assert.Equal(t, driver.Locator{By: driver.ByXPath, Expr: "//form//input[1]"}, loc)

	// Unrelated keys keep their defaults.
	_, err = s.Get(CloseModalButton)
	assert.NoError(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)

	var cerr *ConfigurationError
	assert.True(t, errors.As(err, &cerr))
}

func TestLoadCorruptFile(t *testing.T) {
	path := writeStore(t, `{"login_username_input": `)
	_, err := Load(path)
	require.Error(t, err)

	var cerr *ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, path, cerr.Path)
}

func TestLoadRejectsEmptiedRequiredKey(t *testing.T) {
	path := writeStore(t, `{"profile_username_span": ""}`)
	_, err := Load(path)
	require.Error(t, err)

	var cerr *ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ProfileUsernameSpan, cerr.Key)
}

func TestGetUnknownKey(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	_, err = s.Get("does_not_exist")
	require.Error(t, err)

	var cerr *ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "does_not_exist", cerr.Key)
}
