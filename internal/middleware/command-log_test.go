package middleware

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/warden/internal/dispatch"
	"github.com/keshon/warden/internal/domain"
	"github.com/keshon/warden/internal/storage"
	"github.com/keshon/warden/pkg/cmd"
)

type countingCommand struct {
	calls int
	err   error
}

func (c *countingCommand) Name() string        { return "echo" }
func (c *countingCommand) Description() string { return "echo" }

func (c *countingCommand) Run(context.Context, *cmd.Invocation) error {
	c.calls++
	return c.err
}

func TestWithCommandLoggerWritesHistory(t *testing.T) {
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "h.json"))
	require.NoError(t, err)
	defer store.Close()

	inner := &countingCommand{}
	c := cmd.Apply(inner, WithCommandLogger(store))

	msg := domain.Message{ID: 2, Kind: domain.ScopeGroup, GroupID: 50, SenderID: 42, SenderName: "alice"}
	dc := dispatch.NewContext(msg, false, nil)
	require.NoError(t, c.Run(context.Background(), &cmd.Invocation{Args: []string{"hi"}, Data: dc}))
	require.NoError(t, c.Run(context.Background(), &cmd.Invocation{Args: []string{"no", "context"}}))

	recs, err := store.RecentCommands(context.Background(), domain.GroupScope(50), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "echo", recs[0].Command)
	assert.Equal(t, "hi", recs[0].Param)
	assert.Equal(t, "alice", recs[0].Username)
	assert.Equal(t, int64(42), recs[0].UserID)
	assert.Equal(t, 2, inner.calls)
}

func TestWithCommandLoggerKeepsCommandError(t *testing.T) {
	boom := errors.New("boom")
	c := cmd.Apply(&countingCommand{err: boom}, WithCommandLogger(nil))

	dc := dispatch.NewContext(domain.Message{Kind: domain.ScopePrivate, SenderID: 1}, false, nil)
	err := c.Run(context.Background(), &cmd.Invocation{Data: dc})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "echo", cmd.Root(c).Name())
}
