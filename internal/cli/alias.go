package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/keshon/warden/internal/domain"
	"github.com/keshon/warden/internal/regexsafe"
	"github.com/keshon/warden/internal/resolver"
	"github.com/keshon/warden/internal/storage"
	st "github.com/keshon/warden/internal/storagetypes"
)

// NewAliasCommand creates the alias command group.
func NewAliasCommand(opts *RootOptions) *cobra.Command {
	var scope string

	c := &cobra.Command{
		Use:   "alias",
		Short: "List, set and delete command aliases",
	}
	c.PersistentFlags().StringVar(&scope, "scope", "global", "alias scope: global, group:<id> or private:<id>")

	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List aliases of a scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := domain.ParseScope(scope)
			if err != nil {
				return err
			}
			return withStore(opts, func(store storage.Store) error {
				recs, err := store.ListAliases(cmd.Context(), sc)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(recs) == 0 {
					fmt.Fprintln(out, "no aliases")
					return nil
				}
				for _, rec := range recs {
					fmt.Fprintf(out, "%s\t%s\t%s\n", rec.Alias, rec.TargetCommand, rec.ArgTemplate)
				}
				return nil
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "set <alias> <command> [template...]",
		Short: "Create or replace an alias",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := domain.ParseScope(scope)
			if err != nil {
				return err
			}
			return withStore(opts, func(store storage.Store) error {
				rec, err := buildAlias(store, regexsafe.New(opts.MaxLength), sc, args[0], args[1], strings.Join(args[2:], " "))
				if err != nil {
					return err
				}
				if err := store.UpsertAlias(cmd.Context(), rec); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s set in %s\n", rec.Alias, rec.TargetCommand, sc)
				return nil
			})
		},
	})

	c.AddCommand(&cobra.Command{
		Use:   "del <alias>",
		Short: "Delete an alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := domain.ParseScope(scope)
			if err != nil {
				return err
			}
			return withStore(opts, func(store storage.Store) error {
				err := store.DeleteAlias(cmd.Context(), sc, args[0])
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("alias %s not found in %s", args[0], sc)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s deleted from %s\n", args[0], sc)
				return nil
			})
		},
	})

	return c
}

func withStore(opts *RootOptions, fn func(storage.Store) error) error {
	store, err := opts.openStore()
	if err != nil {
		return err
	}
	return errors.Join(fn(store), store.Close())
}

func buildAlias(store storage.Store, analyzer *regexsafe.Analyzer, scope domain.Scope, alias, target, tmpl string) (*st.AliasRecord, error) {
	reg, err := builtins(store)
	if err != nil {
		return nil, err
	}
	if _, taken := reg.Lookup(alias); taken {
		return nil, fmt.Errorf("%s is already a command name", alias)
	}
	command, ok := reg.Lookup(target)
	if !ok {
		return nil, fmt.Errorf("unknown command %s", target)
	}
	if _, err := resolver.CheckTemplate(tmpl, analyzer); err != nil {
		return nil, err
	}
	return &st.AliasRecord{
		ScopeType:     scope.Kind,
		ScopeID:       scope.ID,
		Alias:         alias,
		TargetCommand: command.Name(),
		ArgTemplate:   tmpl,
	}, nil
}

