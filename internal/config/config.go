// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Extract   ExtractConfig   `mapstructure:"extract" yaml:"extract"`
	Selectors SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the automated browser instance.
type BrowserConfig struct {
	Headless         bool     `mapstructure:"headless" yaml:"headless"`
	UserAgent        string   `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth    int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight   int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	Args             []string `mapstructure:"args" yaml:"args"`
	ActionsPerSecond float64  `mapstructure:"actions_per_second" yaml:"actions_per_second"`
	// Timeout bounds each explicit wait during login (form visibility,
	// redirect, readiness).
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AuthConfig tunes the login flow. The keyword lists are configuration
// because the surface renders per-account locales; matching is substring
// on casefolded text and list order is precedence.
type AuthConfig struct {
	LoginURL          string        `mapstructure:"login_url" yaml:"login_url"`
	LoginKeywords     []string      `mapstructure:"login_keywords" yaml:"login_keywords"`
	DismissKeywords   []string      `mapstructure:"dismiss_keywords" yaml:"dismiss_keywords"`
	SaveLoginKeywords []string      `mapstructure:"save_login_keywords" yaml:"save_login_keywords"`
	InterstitialWait  time.Duration `mapstructure:"interstitial_wait" yaml:"interstitial_wait"`
	// SettleDelay holds after a fallback-button login before trusting the
	// page state.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// ExtractConfig carries the default extraction tunables. Each session
// copies these and callers may adjust them between extraction calls.
type ExtractConfig struct {
	MaxRefreshAttempts       int           `mapstructure:"max_refresh_attempts" yaml:"max_refresh_attempts"`
	MaxAttempts              int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	AdditionalScrollAttempts int           `mapstructure:"additional_scroll_attempts" yaml:"additional_scroll_attempts"`
	PauseTime                time.Duration `mapstructure:"pause_time" yaml:"pause_time"`
	WaitInterval             time.Duration `mapstructure:"wait_interval" yaml:"wait_interval"`
}

// SelectorsConfig points at an optional locator override file.
type SelectorsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// SetDefaults initializes default values for all configuration sections.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "instaflow")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 10)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.viewport_width", 375)
	v.SetDefault("browser.viewport_height", 667)
	v.SetDefault("browser.actions_per_second", 8.0)
	v.SetDefault("browser.timeout", "10s")

	// -- Auth --
	v.SetDefault("auth.login_url", "https://www.instagram.com/accounts/login/")
	v.SetDefault("auth.login_keywords", []string{
		"entrar", "log in", "login", "iniciar sesión", "connexion", "anmelden",
	})
	v.SetDefault("auth.dismiss_keywords", []string{"ignorar", "ignore", "skip", "dismiss"})
	v.SetDefault("auth.save_login_keywords", []string{"not now", "agora não", "salvar", "save", "skip"})
	v.SetDefault("auth.interstitial_wait", "5s")
	v.SetDefault("auth.settle_delay", "3s")

	// -- Extract --
	v.SetDefault("extract.max_refresh_attempts", 5)
	v.SetDefault("extract.max_attempts", 2)
	v.SetDefault("extract.additional_scroll_attempts", 1)
	v.SetDefault("extract.pause_time", "500ms")
	v.SetDefault("extract.wait_interval", "500ms")

	// -- Selectors --
	v.SetDefault("selectors.file", "")
}

// NewDefaultConfig creates a configuration struct populated with the
// default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper
// object and validates it.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Auth.LoginURL == "" {
		return fmt.Errorf("auth.login_url is a required configuration field")
	}
	if len(c.Auth.LoginKeywords) == 0 {
		return fmt.Errorf("auth.login_keywords must not be empty")
	}
	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("browser.timeout must be a positive duration")
	}
	if c.Extract.MaxRefreshAttempts < 0 {
		return fmt.Errorf("extract.max_refresh_attempts must not be negative")
	}
	if c.Extract.MaxAttempts <= 0 {
		return fmt.Errorf("extract.max_attempts must be a positive integer")
	}
	if c.Extract.PauseTime < 0 || c.Extract.WaitInterval < 0 {
		return fmt.Errorf("extract pause_time and wait_interval must not be negative")
	}
	return nil
}
