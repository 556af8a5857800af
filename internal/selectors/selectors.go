// Package selectors centralizes the locator store. Logical names map to
// CSS/XPath expressions; the UI under automation changes its markup
// often, so the store can be overridden from a JSON file without a
// rebuild.
package selectors

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/instaflow/internal/driver"
)

// Logical selector names required by the login and extraction flows.
const (
	LoginUsernameInput  = "login_username_input"
	LoginPasswordInput  = "login_password_input"
	LoginButtonCandidate = "login_button_candidate"
	FollowersLink       = "followers_link"
	FollowingLink       = "following_link"
	CloseModalButton    = "close_modal_button"
	ProfileUsernameSpan = "profile_username_span"
	IgnoreButton        = "ignore_button"
	SaveLoginInfoButton = "save_login_info_button"
	SaveLoginInfoDialog = "save_login_info_dialog"
	ListDialog          = "list_dialog"
	LoadingSpinner      = "loading_spinner"
)

// defaults target the mobile layout the driver's user agent requests.
// An override file replaces entries wholesale.
var defaults = map[string]string{
	LoginUsernameInput:  `input[name="username"]`,
	LoginPasswordInput:  `input[name="password"]`,
	LoginButtonCandidate: `//button | //div[@role="button"]`,
	FollowersLink:       `//a[contains(@href, "/followers")]`,
	FollowingLink:       `//a[contains(@href, "/following")]`,
	CloseModalButton:    `//div[@role="dialog"]//button[@aria-label="Close" or .//*[@aria-label="Close"]]`,
	ProfileUsernameSpan: `div[role="dialog"] a[role="link"] span`,
	IgnoreButton:        `//div[@role="dialog"]//button`,
	SaveLoginInfoButton: `//div[@role="dialog"]//button | //div[@role="dialog"]//div[@role="button"]`,
	SaveLoginInfoDialog: `//div[@role="dialog"]`,
	ListDialog:          `div[role="dialog"]`,
	LoadingSpinner:      `//*[@aria-label="Loading..." or @aria-label="Carregando..."]`,
}

// required lists the keys the flows cannot run without. Load fails fast
// when an override nulls one out rather than letting a nil locator reach
// the driver.
var required = []string{
	LoginUsernameInput,
	LoginPasswordInput,
	LoginButtonCandidate,
	FollowersLink,
	FollowingLink,
	CloseModalButton,
	ProfileUsernameSpan,
	IgnoreButton,
	SaveLoginInfoButton,
	SaveLoginInfoDialog,
	ListDialog,
	LoadingSpinner,
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ConfigurationError reports a missing or unusable selector store entry.
type ConfigurationError struct {
	Path string
	Key  string
	Err  error
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Key != "" && e.Path != "":
		return fmt.Sprintf("selector store %s: key %q: %v", e.Path, e.Key, e.Err)
	case e.Key != "":
		return fmt.Sprintf("selector store: key %q: %v", e.Key, e.Err)
	default:
		return fmt.Sprintf("selector store %s: %v", e.Path, e.Err)
	}
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

var errMissing = fmt.Errorf("not defined")
var errEmpty = fmt.Errorf("empty locator")

// Store resolves logical names to locators. Loaded once at startup and
// read-only afterwards.
type Store struct {
	entries map[string]driver.Locator
	path    string
}

// Load builds a Store from the built-in defaults, overlaid with the JSON
// file at path when one is given. A configured-but-unreadable file is a
// hard error; an empty path means defaults only.
func Load(path string) (*Store, error) {
	merged := make(map[string]string, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigurationError{Path: path, Err: err}
		}
		var overrides map[string]string
		if err := json.Unmarshal(raw, &overrides); err != nil {
			return nil, &ConfigurationError{Path: path, Err: fmt.Errorf("invalid JSON: %w", err)}
		}
		for k, v := range overrides {
			merged[k] = v
		}
	}

	s := &Store{entries: make(map[string]driver.Locator, len(merged)), path: path}
	for k, v := range merged {
		if v == "" {
			return nil, &ConfigurationError{Path: path, Key: k, Err: errEmpty}
		}
		s.entries[k] = driver.ParseLocator(v)
	}

	for _, k := range required {
		if _, ok := s.entries[k]; !ok {
			return nil, &ConfigurationError{Path: path, Key: k, Err: errMissing}
		}
	}
	return s, nil
}

// Get returns the locator for a logical name. Unknown names are a
// configuration error, never a zero locator.
func (s *Store) Get(name string) (driver.Locator, error) {
	loc, ok := s.entries[name]
	if !ok {
		return driver.Locator{}, &ConfigurationError{Path: s.path, Key: name, Err: errMissing}
	}
	return loc, nil
}

// MustGet is Get for the required keys validated at Load time.
func (s *Store) MustGet(name string) driver.Locator {
	loc, err := s.Get(name)
	if err != nil {
		panic(err)
	}
	return loc
}
