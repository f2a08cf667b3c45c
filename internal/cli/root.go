// Package cli holds the govconsole commands: the interaction server, the
// local terminal console, and schema migration.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/pitabwire/govconsole/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	// ConfigPath is the YAML config file. Empty means defaults plus
	// GOVCONSOLE_* environment overrides.
	ConfigPath string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "govconsole",
		Short:         "Governance admin console",
		Long:          "Serves the governance admin dashboard to a chat platform and runs it locally in a terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to configuration file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTerminalCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func (o *RootOptions) load() (*config.Config, error) {
	return config.Load(o.ConfigPath)
}
