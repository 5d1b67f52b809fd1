package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommand struct {
	name     string
	aliases  []string
	scope    Scope
	cooldown time.Duration
	su       bool
	usage    string
	validate func([]string) error
	ran      int
}

func (f *fakeCommand) Name() string            { return f.name }
func (f *fakeCommand) Description() string     { return "fake " + f.name }
func (f *fakeCommand) Aliases() []string       { return f.aliases }
func (f *fakeCommand) Scope() Scope            { return f.scope }
func (f *fakeCommand) Cooldown() time.Duration { return f.cooldown }
func (f *fakeCommand) SuperuserOnly() bool     { return f.su }
func (f *fakeCommand) Usage() string           { return f.usage }
func (f *fakeCommand) ValidateArgs(a []string) error {
	if f.validate == nil {
		return nil
	}
	return f.validate(a)
}
func (f *fakeCommand) Run(context.Context, *Invocation) error {
	f.ran++
	return nil
}

type bareCommand struct{}

func (bareCommand) Name() string                           { return "bare" }
func (bareCommand) Description() string                    { return "" }
func (bareCommand) Run(context.Context, *Invocation) error { return nil }

func TestRegistryRejectsDuplicateTokens(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeCommand{name: "echo", aliases: []string{"e"}}))

	err := r.Register(&fakeCommand{name: "exec", aliases: []string{"e"}})
	require.ErrorIs(t, err, ErrDuplicateCommand)

	err = r.Register(&fakeCommand{name: "e"})
	require.ErrorIs(t, err, ErrDuplicateCommand)

	err = r.Register(&fakeCommand{name: "roll", aliases: []string{"r", "r"}})
	require.ErrorIs(t, err, ErrDuplicateCommand)

	_, ok := r.Lookup("exec")
	assert.False(t, ok, "failed registration must not leak tokens")
}

func TestRegistryLookupByNameAndAlias(t *testing.T) {
	r := NewRegistry()
	echo := &fakeCommand{name: "echo", aliases: []string{"e", "say"}}
	r.MustRegister(echo, bareCommand{})

	for _, tok := range []string{"echo", "e", "say"} {
		c, ok := r.Lookup(tok)
		require.True(t, ok, tok)
		assert.Equal(t, "echo", c.Name())
	}
	_, ok := r.Lookup("nope")
	assert.False(t, ok)

	all := r.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, "bare", all[0].Name())
	assert.Equal(t, "echo", all[1].Name())
	c, ok := r.Lookup("say")
	require.True(t, ok)
	assert.Same(t, echo, c)
}

func TestDescribeSeesThroughWrappers(t *testing.T) {
	inner := &fakeCommand{
		name:     "vote",
		aliases:  []string{"v"},
		scope:    ScopeGroup,
		cooldown: time.Minute,
		su:       true,
		usage:    "vote <option>",
		validate: func(a []string) error {
			if len(a) == 0 {
				return errors.New("missing option")
			}
			return nil
		},
	}
	wrapped := Apply(inner, func(c Command) Command {
		return Wrap(c, func(ctx context.Context, inv *Invocation) error { return c.Run(ctx, inv) })
	})

	d := Describe(wrapped)
	assert.Equal(t, "vote", d.Name)
	assert.Equal(t, []string{"v"}, d.Aliases)
	assert.Equal(t, ScopeGroup, d.Scope)
	assert.Equal(t, time.Minute, d.Cooldown)
	assert.True(t, d.SuperuserOnly)
	assert.Equal(t, "vote <option>", d.Usage)

	assert.EqualError(t, Validate(wrapped, nil), "missing option")
	assert.NoError(t, Validate(wrapped, []string{"a"}))

	require.NoError(t, wrapped.Run(context.Background(), &Invocation{}))
	assert.Equal(t, 1, inner.ran)
	assert.Same(t, inner, Root(wrapped))
}

func TestDescribeDefaults(t *testing.T) {
	d := Describe(bareCommand{})
	assert.Equal(t, ScopeBoth, d.Scope)
	assert.Zero(t, d.Cooldown)
	assert.False(t, d.SuperuserOnly)
	assert.Equal(t, "bare", d.Usage)
	assert.NoError(t, Validate(bareCommand{}, nil))
}

func TestApplyOrder(t *testing.T) {
	var order []string
	mw := func(tag string) Middleware {
		return func(c Command) Command {
			return Wrap(c, func(ctx context.Context, inv *Invocation) error {
				order = append(order, tag)
				return c.Run(ctx, inv)
			})
		}
	}
	c := Apply(bareCommand{}, mw("outer"), mw("inner"))
	require.NoError(t, c.Run(context.Background(), &Invocation{}))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestScopeAllows(t *testing.T) {
	assert.True(t, ScopeBoth.Allows(true))
	assert.True(t, ScopeBoth.Allows(false))
	assert.True(t, ScopeGroup.Allows(true))
	assert.False(t, ScopeGroup.Allows(false))
	assert.False(t, ScopePrivate.Allows(true))
	assert.True(t, ScopePrivate.Allows(false))
}
