// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/instaflow/internal/auth"
	"github.com/xkilldash9x/instaflow/internal/config"
	"github.com/xkilldash9x/instaflow/internal/observability"
)

var (
	cfgFile  string
	username string
	password string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "instaflow",
	Short: "Instaflow harvests follower and following lists from profile pages.",
	// Version is dynamically set at build time. See cmd/version.go.
	Version: Version,
}

func init() {
	// Assigned here rather than in the composite literal to avoid an
	// initialization cycle (the closure references rootCmd via
	// initializeConfig).
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// This function runs before any command, setting up config and logging.
		if err := initializeConfig(); err != nil {
			return err
		}

		cfg, err := config.NewConfigFromViper(viper.GetViper())
		if err != nil {
			// Initialize a fallback logger so the failure itself is visible.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "instaflow"})
			return fmt.Errorf("failed to load config: %w", err)
		}
		appConfig = cfg

		observability.InitializeLogger(cfg.Logger)
		observability.GetLogger().Info("Starting instaflow", zap.String("version", Version))
		return nil
	}
}

// appConfig is populated by PersistentPreRunE before any RunE fires.
var appConfig *config.Config

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "account username (or INSTAFLOW_USERNAME)")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "account password (or INSTAFLOW_PASSWORD)")
	rootCmd.PersistentFlags().Bool("headless", true, "run the browser headless")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newFollowersCmd())
	rootCmd.AddCommand(newFollowingCmd())
	rootCmd.AddCommand(newCountCmd())
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("INSTAFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("browser.headless", rootCmd.PersistentFlags().Lookup("headless")); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// credentials resolves the account credentials from flags first, then
// the INSTAFLOW_USERNAME / INSTAFLOW_PASSWORD environment. The password
// never travels through the config file or the logs.
func credentials() (auth.Credentials, error) {
	creds := auth.Credentials{Username: username, Password: password}
	if creds.Username == "" {
		creds.Username = os.Getenv("INSTAFLOW_USERNAME")
	}
	if creds.Password == "" {
		creds.Password = os.Getenv("INSTAFLOW_PASSWORD")
	}
	if creds.Username == "" || creds.Password == "" {
		return auth.Credentials{}, errors.New("credentials required: set --username/--password or INSTAFLOW_USERNAME/INSTAFLOW_PASSWORD")
	}
	return creds, nil
}
