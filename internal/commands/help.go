package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keshon/warden/internal/dispatch"
	"github.com/keshon/warden/pkg/cmd"
)

type HelpCommand struct {
	registry *cmd.Registry
}

func (c *HelpCommand) Name() string            { return "help" }
func (c *HelpCommand) Description() string     { return "List available commands" }
func (c *HelpCommand) Usage() string           { return "help [command]" }
func (c *HelpCommand) Cooldown() time.Duration { return 5 * time.Second }

func (c *HelpCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := chatContext(inv)
	if err != nil {
		return err
	}
	if len(inv.Args) > 0 {
		return dc.Reply(ctx, c.detail(dc, inv.Args[0]))
	}
	return dc.Reply(ctx, c.list(dc))
}

func (c *HelpCommand) visible(dc *dispatch.Context, d cmd.Descriptor) bool {
	return d.Scope.Allows(dc.Message.IsGroup()) && (!d.SuperuserOnly || dc.Superuser)
}

func (c *HelpCommand) list(dc *dispatch.Context) string {
	var sb strings.Builder
	sb.WriteString("Available commands:")
	for _, command := range c.registry.GetAll() {
		d := cmd.Describe(command)
		if !c.visible(dc, d) {
			continue
		}
		first, _, _ := strings.Cut(d.Usage, "\n")
		fmt.Fprintf(&sb, "\n%s%s - %s", dc.Prefix, first, d.Description)
	}
	fmt.Fprintf(&sb, "\nSend %shelp <command> for details.", dc.Prefix)
	return sb.String()
}

func (c *HelpCommand) detail(dc *dispatch.Context, token string) string {
	token = strings.TrimPrefix(token, dc.Prefix)
	command, ok := c.registry.Lookup(token)
	if !ok {
		return fmt.Sprintf("Unknown command %s.", token)
	}
	d := cmd.Describe(command)
	if d.SuperuserOnly && !dc.Superuser {
		return fmt.Sprintf("Unknown command %s.", token)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s - %s\nUsage:", d.Name, d.Description)
	for _, line := range strings.Split(d.Usage, "\n") {
		fmt.Fprintf(&sb, "\n%s%s", dc.Prefix, strings.TrimSpace(line))
	}
	if len(d.Aliases) > 0 {
		fmt.Fprintf(&sb, "\nAliases: %s", strings.Join(d.Aliases, ", "))
	}
	fmt.Fprintf(&sb, "\nChats: %s", d.Scope)
	if d.Cooldown > 0 {
		fmt.Fprintf(&sb, "\nCooldown: %s", d.Cooldown)
	}
	return sb.String()
}
