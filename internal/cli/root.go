// Package cli implements the offline admin tool: alias maintenance against
// the configured store and regex safety checks.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keshon/warden/internal/commands"
	"github.com/keshon/warden/internal/config"
	"github.com/keshon/warden/internal/storage"
	"github.com/keshon/warden/pkg/cmd"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Driver    string
	Path      string
	MaxLength int
}

// NewRootCommand creates the root command of the admin CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	root := &cobra.Command{
		Use:           "warden-cli",
		Short:         "Offline administration for the warden bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// string fields only, parsing cannot fail
	defaults, _ := config.StorageFromEnv()
	root.PersistentFlags().StringVar(&opts.Driver, "driver", defaults.StorageDriver, "storage driver (sqlite|json)")
	root.PersistentFlags().StringVar(&opts.Path, "path", defaults.StoragePath, "storage path")
	root.PersistentFlags().IntVar(&opts.MaxLength, "max-length", 256, "longest accepted regex pattern, in runes")

	root.AddCommand(NewAliasCommand(opts))
	root.AddCommand(NewRegexCommand(opts))

	return root
}

func (o *RootOptions) openStore() (storage.Store, error) {
	store, err := storage.Open(o.Driver, o.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// builtins is the command table of the bot, used to check alias targets.
func builtins(store storage.Store) (*cmd.Registry, error) {
	reg := cmd.NewRegistry()
	err := commands.Register(reg, commands.Deps{Aliases: store, History: store})
	return reg, err
}
