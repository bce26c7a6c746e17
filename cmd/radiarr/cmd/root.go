// Package cmd implements the CLI commands for radiarr.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jmylchreest/radiarr/internal/config"
	"github.com/jmylchreest/radiarr/internal/observability"
	"github.com/jmylchreest/radiarr/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "radiarr",
	Short:   "Internet radio relay for networked speakers",
	Version: version.Short(),
	Long: `radiarr browses internet radio stations and plays them on networked
speakers. Stations the speaker can decode are handed over directly; anything
else is transcoded on the fly and relayed as a live MP3 stream the speaker
pulls from this server.`,
	// PersistentPreRunE is set in init() to avoid initialization cycle
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set PersistentPreRunE here to avoid initialization cycle
	// (initLogging references rootCmd.PersistentFlags)
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// Global flags
	// Note: These flags are NOT bound to viper. Instead, we check if they were
	// explicitly set using Changed() and only then override the config/env values.
	// This preserves the correct priority: CLI flag > env var > config > default
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or /etc/radiarr/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Set default configuration values before reading config file
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/radiarr")
		viper.AddConfigPath("$HOME/.radiarr")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables
	viper.SetEnvPrefix("RADIARR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging configures the slog logger based on configuration.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format) - only if explicitly provided
//  2. Environment variables (RADIARR_LOGGING_LEVEL, RADIARR_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, json)
func initLogging() error {
	// Start with config/env values (viper handles precedence of env > config > default)
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	// Override with CLI flags only if explicitly set by user.
	// We don't bind flags to viper because viper's flag layer would always
	// override env/config, even when using the flag's default value.
	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}

	logCfg := config.LoggingConfig{
		Level:      strings.ToLower(level),
		Format:     strings.ToLower(format),
		AddSource:  viper.GetBool("logging.add_source"),
		TimeFormat: viper.GetString("logging.time_format"),
	}

	// Handle "warning" as an alias for "warn"
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}

	// Use observability package to create logger with sensitive data redaction
	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)

	return nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
// This helper ensures lint-compliant error handling for viper.BindPFlag.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
