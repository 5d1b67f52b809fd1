// Package middleware holds cmd.Middleware shared by chat commands.
package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keshon/warden/internal/dispatch"
	"github.com/keshon/warden/internal/storage"
	st "github.com/keshon/warden/internal/storagetypes"
	"github.com/keshon/warden/pkg/cmd"
)

// WithCommandLogger wraps a command to record its execution in the history
// store. A failed history write is logged and does not change the command
// result.
func WithCommandLogger(history storage.HistoryStore) cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			err := c.Run(ctx, inv)

			dc, ok := dispatch.FromInvocation(inv)
			if !ok || history == nil {
				return err
			}
			scope := dc.Message.Scope()
			rec := st.CommandHistory{
				ScopeType: scope.Kind,
				ScopeID:   scope.ID,
				UserID:    dc.Message.SenderID,
				Username:  dc.Message.SenderName,
				Command:   c.Name(),
				Param:     strings.Join(inv.Args, " "),
				Datetime:  time.Now(),
			}
			if e := history.AppendCommand(ctx, rec); e != nil {
				log.Warn().Err(e).Str("command", c.Name()).Msg("failed to log command")
			}
			return err
		})
	}
}
