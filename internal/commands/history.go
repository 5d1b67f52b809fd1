package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keshon/warden/internal/storage"
	"github.com/keshon/warden/pkg/cmd"
	"github.com/keshon/warden/pkg/util"
)

const (
	defaultHistoryCount = 10
	maxHistoryCount     = 50
)

type HistoryCommand struct {
	history storage.HistoryStore
}

func (c *HistoryCommand) Name() string            { return "history" }
func (c *HistoryCommand) Description() string     { return "Show recent commands in this chat" }
func (c *HistoryCommand) Usage() string           { return "history [count]" }
func (c *HistoryCommand) SuperuserOnly() bool     { return true }
func (c *HistoryCommand) Cooldown() time.Duration { return 5 * time.Second }

func (c *HistoryCommand) ValidateArgs(args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > maxHistoryCount {
			return fmt.Errorf("count must be between 1 and %d", maxHistoryCount)
		}
		return nil
	}
	return errors.New("too many arguments")
}

func (c *HistoryCommand) Run(ctx context.Context, inv *cmd.Invocation) error {
	dc, err := chatContext(inv)
	if err != nil {
		return err
	}
	if c.history == nil {
		return errors.New("history store not configured")
	}
	n := defaultHistoryCount
	if len(inv.Args) == 1 {
		n, _ = strconv.Atoi(inv.Args[0])
	}

	recs, err := c.history.RecentCommands(ctx, dc.Message.Scope(), n)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return dc.Reply(ctx, "No commands recorded.")
	}

	var sb strings.Builder
	sb.WriteString("Recent commands:")
	for _, rec := range recs {
		line := fmt.Sprintf("\n%s %s(%d): %s%s",
			util.FormatTime(rec.Datetime, "YYYY-MM-DD hh:mm:ss"), rec.Username, rec.UserID, dc.Prefix, rec.Command)
		if rec.Param != "" {
			line += " " + rec.Param
		}
		sb.WriteString(line)
	}
	return dc.Reply(ctx, sb.String())
}
