package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/keshon/warden/pkg/cmd"
)

type WarningsCommand struct {
	book WarningBook
}

func (c *WarningsCommand) Name() string                     { return "warnings" }
func (c *WarningsCommand) Description() string              { return "Show a member's spam warning level" }
func (c *WarningsCommand) Usage() string                    { return "warnings <user id>" }
func (c *WarningsCommand) Scope() cmd.Scope                 { return cmd.ScopeGroup }
func (c *WarningsCommand) SuperuserOnly() bool              { return true }
func (c *WarningsCommand) ValidateArgs(args []string) error { return userArg(args) }

func (c *WarningsCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := chatContext(inv)
	if err != nil {
		return err
	}
	if c.book == nil {
		return dc.Reply(ctx, detectionOff)
	}
	id, err := parseUserID(inv.Args[0])
	if err != nil {
		return err
	}
	return dc.Reply(ctx, fmt.Sprintf("User %d has warning level %d.", id, c.book.Level(id)))
}

// PardonCommand resets a member's warning level and lifts their mute.
type PardonCommand struct {
	book  WarningBook
	muter Muter
}

func (c *PardonCommand) Name() string                     { return "pardon" }
func (c *PardonCommand) Description() string              { return "Reset a member's spam warnings and unmute them" }
func (c *PardonCommand) Usage() string                    { return "pardon <user id>" }
func (c *PardonCommand) Scope() cmd.Scope                 { return cmd.ScopeGroup }
func (c *PardonCommand) SuperuserOnly() bool              { return true }
func (c *PardonCommand) ValidateArgs(args []string) error { return userArg(args) }

func (c *PardonCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := chatContext(inv)
	if err != nil {
		return err
	}
	if c.book == nil {
		return dc.Reply(ctx, detectionOff)
	}
	id, err := parseUserID(inv.Args[0])
	if err != nil {
		return err
	}

	prev := c.book.Pardon(id)
	reply := fmt.Sprintf("Warnings of %d cleared (was level %d).", id, prev)
	if c.muter != nil {
		if err := c.muter.MuteSender(ctx, dc.Message.GroupID, id, 0); err != nil {
			log.Warn().Err(err).Int64("group", dc.Message.GroupID).Int64("user", id).Msg("failed to lift mute")
			reply += "\nThe mute could not be lifted."
		}
	}
	return dc.Reply(ctx, reply)
}
