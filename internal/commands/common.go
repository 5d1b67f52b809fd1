// Package commands holds the built-in chat commands: echo, help, alias
// management, warning inspection and command history.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keshon/warden/internal/dispatch"
	"github.com/keshon/warden/internal/regexsafe"
	"github.com/keshon/warden/internal/storage"
	"github.com/keshon/warden/pkg/cmd"
)

var errNoChatContext = errors.New("commands: invocation has no chat context")

const detectionOff = "Abuse detection is disabled."

// WarningBook exposes the abuse detector's per-sender warning levels.
type WarningBook interface {
	Level(sender int64) int
	Pardon(sender int64) int
}

// Muter lifts or applies group mutes. A zero duration lifts the mute.
type Muter interface {
	MuteSender(ctx context.Context, groupID, userID int64, d time.Duration) error
}

type Deps struct {
	Aliases  storage.AliasStore
	History  storage.HistoryStore
	Warnings WarningBook // nil when abuse detection is off
	Muter    Muter
	Analyzer *regexsafe.Analyzer
}

// Register adds every built-in command to reg.
func Register(reg *cmd.Registry, deps Deps) error {
	list := []cmd.Command{
		&EchoCommand{},
		&HelpCommand{registry: reg},
		&AliasCommand{commands: reg, aliases: deps.Aliases, analyzer: deps.Analyzer},
		&HistoryCommand{history: deps.History},
		&WarningsCommand{book: deps.Warnings},
		&PardonCommand{book: deps.Warnings, muter: deps.Muter},
	}
	for _, c := range list {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register %s: %w", c.Name(), err)
		}
	}
	return nil
}

func chatContext(inv *cmd.Invocation) (*dispatch.Context, error) {
	dc, ok := dispatch.FromInvocation(inv)
	if !ok {
		return nil, errNoChatContext
	}
	return dc, nil
}

// parseUserID accepts a bare id, @id or an at code ([CQ:at,qq=id]).
func parseUserID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[CQ:at,qq=") && strings.HasSuffix(s, "]") {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "[CQ:at,qq="), "]")
		s, _, _ = strings.Cut(s, ",")
	}
	s = strings.TrimPrefix(s, "@")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not a user id", s)
	}
	return id, nil
}

// userArg validates a single user id argument.
func userArg(args []string) error {
	if len(args) != 1 {
		return errors.New("expected exactly one user id")
	}
	_, err := parseUserID(args[0])
	return err
}
