// Package configcmder provides the config command for managing persistent
// reel configuration stored in the .reel/ directory.
package configcmder

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/reel/pkg/config"
)

const configLongDesc string = `Manage persistent reel configuration.

Configuration is stored as config.toml in the .reel/ directory and provides
default values for command flags. CLI flags and REEL_* environment variables
take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example
storage.provider, generator.model, memory.short_term_capacity or
eventstream.brokers. Run "reel config list" to see them all.

Use subcommands to get, set, or list configuration values:
  reel config set <key> <value>    Set a configuration value
  reel config get <key>            Get a configuration value
  reel config list                 List all configuration values

Examples:
  reel config set generator.provider anthropic
  reel config set memory.cascade_delete true
  reel config get embedding.model
  reel config list`

const configShortDesc string = "Manage persistent reel configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func unknownKeyError(key string) error {
	return &unknownKey{key: key}
}

type unknownKey struct {
	key string
}

func (e *unknownKey) Error() string {
	return "unknown config key: \"" + e.key + "\"\n\nValid keys: " + strings.Join(config.ValidConfigKeys(), ", ")
}

// display masks secret values.
func display(key, value string) string {
	if value != "" && config.IsSecretKey(key) {
		return "********"
	}
	return value
}
