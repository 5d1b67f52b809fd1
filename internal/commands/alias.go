package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/keshon/warden/internal/dispatch"
	"github.com/keshon/warden/internal/domain"
	"github.com/keshon/warden/internal/regexsafe"
	"github.com/keshon/warden/internal/resolver"
	"github.com/keshon/warden/internal/storage"
	st "github.com/keshon/warden/internal/storagetypes"
	"github.com/keshon/warden/pkg/cmd"
)

// AliasCommand manages the alias table of the current chat and, for
// superusers, the global one.
type AliasCommand struct {
	commands resolver.CommandLookup
	aliases  storage.AliasStore
	analyzer *regexsafe.Analyzer
}

func (c *AliasCommand) Name() string        { return "alias" }
func (c *AliasCommand) Aliases() []string   { return []string{"a"} }
func (c *AliasCommand) Description() string { return "Manage command aliases" }

func (c *AliasCommand) Usage() string {
	return strings.Join([]string{
		"alias set <alias> <command> [template]",
		"alias setglobal <alias> <command> [template]",
		"alias del <alias>",
		"alias delglobal <alias>",
		"alias list",
	}, "\n")
}

func (c *AliasCommand) ValidateArgs(args []string) error {
	if len(args) == 0 {
		return errors.New("missing action")
	}
	switch action := args[0]; action {
	case "list":
		if len(args) != 1 {
			return errors.New("list takes no arguments")
		}
	case "del", "delglobal":
		if len(args) != 2 {
			return fmt.Errorf("%s takes exactly one argument", action)
		}
	case "set", "setglobal":
		if len(args) < 3 {
			return fmt.Errorf("%s needs at least two arguments", action)
		}
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	return nil
}

func (c *AliasCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := chatContext(inv)
	if err != nil {
		return err
	}
	if c.aliases == nil {
		return errors.New("alias store not configured")
	}

	args := inv.Args
	switch args[0] {
	case "list":
		return c.list(ctx, dc)
	case "del":
		return c.del(ctx, dc, dc.Message.Scope(), args[1])
	case "delglobal":
		if !dc.Superuser {
			return dc.Reply(ctx, "Only superusers can delete global aliases.")
		}
		return c.del(ctx, dc, domain.Global, args[1])
	case "set":
		return c.set(ctx, dc, dc.Message.Scope(), args[1], args[2], strings.Join(args[3:], " "))
	case "setglobal":
		if !dc.Superuser {
			return dc.Reply(ctx, "Only superusers can set global aliases.")
		}
		return c.set(ctx, dc, domain.Global, args[1], args[2], strings.Join(args[3:], " "))
	}
	return dc.Reply(ctx, "Unknown action.")
}

func (c *AliasCommand) list(ctx context.Context, dc *dispatch.Context) error {
	scoped, err := c.aliases.ListAliases(ctx, dc.Message.Scope())
	if err != nil {
		return err
	}
	global, err := c.aliases.ListAliases(ctx, domain.Global)
	if err != nil {
		return err
	}
	if len(scoped) == 0 && len(global) == 0 {
		return dc.Reply(ctx, "No aliases defined.")
	}

	var sb strings.Builder
	sb.WriteString("Aliases:")
	for _, rec := range scoped {
		sb.WriteString("\n" + describeAlias(rec))
	}
	for _, rec := range global {
		sb.WriteString("\n" + describeAlias(rec) + " [global]")
	}
	return dc.Reply(ctx, sb.String())
}

func describeAlias(rec st.AliasRecord) string {
	s := rec.Alias + " -> " + rec.TargetCommand
	if rec.ArgTemplate != "" {
		s += " (" + rec.ArgTemplate + ")"
	}
	return s
}

func (c *AliasCommand) del(ctx context.Context, dc *dispatch.Context, scope domain.Scope, alias string) error {
	err := c.aliases.DeleteAlias(ctx, scope, alias)
	if errors.Is(err, storage.ErrNotFound) {
		return dc.Reply(ctx, fmt.Sprintf("Alias %s does not exist.", alias))
	}
	if err != nil {
		return err
	}
	return dc.Reply(ctx, fmt.Sprintf("Alias %s deleted.", alias))
}

func (c *AliasCommand) set(ctx context.Context, dc *dispatch.Context, scope domain.Scope, alias, target, tmpl string) error {
	if _, taken := c.commands.Lookup(alias); taken {
		return dc.Reply(ctx, fmt.Sprintf("%s is already a command name.", alias))
	}
	command, ok := c.commands.Lookup(target)
	if !ok {
		return dc.Reply(ctx, fmt.Sprintf("Unknown command %s.", target))
	}
	rewrite, err := resolver.CheckTemplate(tmpl, c.analyzer)
	if err != nil {
		return dc.Reply(ctx, fmt.Sprintf("Template rejected: %v", err))
	}

	rec := &st.AliasRecord{
		ScopeType:     scope.Kind,
		ScopeID:       scope.ID,
		Alias:         alias,
		TargetCommand: command.Name(),
		ArgTemplate:   tmpl,
		CreatedBy:     dc.Message.SenderID,
	}
	if err := c.aliases.UpsertAlias(ctx, rec); err != nil {
		return err
	}

	reply := fmt.Sprintf("Alias %s set to %s", alias, rec.TargetCommand)
	if tmpl != "" {
		reply += " " + tmpl
	}
	reply += "."
	if rewrite && scope.Kind != domain.ScopeGlobal {
		reply += "\nNote: rewrite templates only run on global aliases; here it is filled in as plain text."
	}
	return dc.Reply(ctx, reply)
}
