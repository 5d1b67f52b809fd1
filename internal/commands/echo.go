package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/keshon/warden/pkg/cmd"
)

type EchoCommand struct{}

func (c *EchoCommand) Name() string        { return "echo" }
func (c *EchoCommand) Description() string { return "Echo the message back" }
func (c *EchoCommand) Usage() string       { return "echo <text>" }

func (c *EchoCommand) ValidateArgs(args []string) error {
	if len(args) == 0 {
		return errors.New("nothing to echo")
	}
	return nil
}

func (c *EchoCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := chatContext(inv)
	if err != nil {
		return err
	}
	return dc.Reply(ctx, strings.Join(inv.Args, " "))
}
