package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/radiarr/internal/config"
	"github.com/jmylchreest/radiarr/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing radiarr configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  radiarr config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, /etc/radiarr/config.yaml, $HOME/.radiarr)
  - Environment variables (RADIARR_SERVER_PORT, RADIARR_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the RADIARR_ prefix and underscores for nesting.
Example: server.port -> RADIARR_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations and sizes for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		// Get yaml tag or use lowercase field name
		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Tag.Get("yaml")
		}
		if key == "" {
			key = fieldType.Name
		}

		// Handle different types
		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = duration.Format(v)
		case config.Duration:
			result[key] = v.String()
		case config.ByteSize:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	// Load config with defaults (no file, just defaults)
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Convert to map with human-readable values
	cfgMap := toMap(cfg)

	// Marshal to YAML
	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Print header with documentation
	fmt.Println("# radiarr Configuration File")
	fmt.Println("# ===========================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("# Duration format: 30s, 5m, 1h, 30d")
	fmt.Println("# Size format: 4KB, 5MB")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   RADIARR_SERVER_HOST, RADIARR_SERVER_PORT")
	fmt.Println("#   RADIARR_DATABASE_DRIVER, RADIARR_DATABASE_DSN")
	fmt.Println("#   RADIARR_RELAY_STALL_GRACE, RADIARR_PROBE_TIMEOUT")
	fmt.Println("#   RADIARR_LOGGING_LEVEL, RADIARR_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
