package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keshon/warden/internal/regexsafe"
)

// NewRegexCommand creates the regex command group.
func NewRegexCommand(opts *RootOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "regex",
		Short: "Regex pattern tools",
	}

	c.AddCommand(&cobra.Command{
		Use:   "check <pattern>",
		Short: "Run the safety analyzer on a rewrite pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := regexsafe.New(opts.MaxLength).Check(args[0])
			if !v.Safe {
				return errors.New(v.String())
			}
			fmt.Fprintln(cmd.OutOrStdout(), "safe")
			return nil
		},
	})

	return c
}
