package dispatch

import (
	"context"

	"github.com/keshon/warden/internal/domain"
	st "github.com/keshon/warden/internal/storagetypes"
	"github.com/keshon/warden/pkg/cmd"
)

// Context is the payload handed to commands through cmd.Invocation.Data.
type Context struct {
	Message   domain.Message
	Command   string          // canonical command name
	Token     string          // token the user typed
	Alias     *st.AliasRecord // set when resolved through an alias
	Superuser bool
	Prefix    string

	reply func(ctx context.Context, text string) error
}

// Reply answers the message that triggered the command.
func (c *Context) Reply(ctx context.Context, text string) error {
	if c.reply == nil {
		return nil
	}
	return c.reply(ctx, text)
}

// FromInvocation extracts the dispatch context of a chat invocation.
func FromInvocation(inv *cmd.Invocation) (*Context, bool) {
	if inv == nil {
		return nil, false
	}
	c, ok := inv.Data.(*Context)
	return c, ok && c != nil
}

// NewContext builds a Context outside the engine, e.g. for command tests.
func NewContext(msg domain.Message, superuser bool, reply func(ctx context.Context, text string) error) *Context {
	return &Context{Message: msg, Superuser: superuser, reply: reply, Prefix: "/"}
}
