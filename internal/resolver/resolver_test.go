package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/warden/internal/domain"
	"github.com/keshon/warden/internal/storage"
	st "github.com/keshon/warden/internal/storagetypes"
	"github.com/keshon/warden/pkg/cmd"
)

type stubCommand struct {
	name    string
	aliases []string
}

func (s stubCommand) Name() string                               { return s.name }
func (s stubCommand) Description() string                        { return s.name }
func (s stubCommand) Aliases() []string                          { return s.aliases }
func (s stubCommand) Run(context.Context, *cmd.Invocation) error { return nil }

type memAliases struct {
	recs  map[domain.Scope]map[string]st.AliasRecord
	err   error
	reads int
}

func newMemAliases() *memAliases {
	return &memAliases{recs: map[domain.Scope]map[string]st.AliasRecord{}}
}

func (m *memAliases) add(kind domain.ScopeKind, id int64, alias, target, tmpl string) {
	s := domain.Scope{Kind: kind, ID: id}
	if m.recs[s] == nil {
		m.recs[s] = map[string]st.AliasRecord{}
	}
	m.recs[s][alias] = st.AliasRecord{ScopeType: kind, ScopeID: id, Alias: alias, TargetCommand: target, ArgTemplate: tmpl}
}

func (m *memAliases) FindAlias(_ context.Context, scope domain.Scope, alias string) (*st.AliasRecord, error) {
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	rec, ok := m.recs[scope][alias]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &rec, nil
}

func newFixture(t *testing.T) (*Resolver, *memAliases) {
	t.Helper()
	reg := cmd.NewRegistry()
	reg.MustRegister(
		stubCommand{name: "echo", aliases: []string{"say"}},
		stubCommand{name: "calc"},
		stubCommand{name: "roll"},
	)
	aliases := newMemAliases()
	return New(reg, aliases), aliases
}

var group = domain.GroupScope(100)

func TestStaticResolutionIsIdempotent(t *testing.T) {
	r, aliases := newFixture(t)
	aliases.add(domain.ScopeGroup, 100, "echo", "roll", "")

	for i := 0; i < 3; i++ {
		res, err := r.Resolve(context.Background(), "say", []string{"a", "b"}, group)
		require.NoError(t, err)
		assert.Equal(t, "echo", res.Command.Name())
		assert.Equal(t, []string{"a", "b"}, res.Args)
		assert.Nil(t, res.Alias)
		assert.Equal(t, TemplateNone, res.Template)
	}
	assert.Zero(t, aliases.reads, "static commands never hit the alias store")
}

func TestScopedAliasBeatsGlobal(t *testing.T) {
	r, aliases := newFixture(t)
	aliases.add(domain.ScopeGroup, 100, "x", "roll", "")
	aliases.add(domain.ScopeGlobal, 0, "x", "calc", "")

	res, err := r.Resolve(context.Background(), "x", nil, group)
	require.NoError(t, err)
	assert.Equal(t, "roll", res.Command.Name())

	res, err = r.Resolve(context.Background(), "x", nil, domain.GroupScope(200))
	require.NoError(t, err)
	assert.Equal(t, "calc", res.Command.Name(), "other groups fall through to the global alias")
}

func TestPrivateScopeAlias(t *testing.T) {
	r, aliases := newFixture(t)
	aliases.add(domain.ScopePrivate, 7, "p", "echo", "hi {1}")

	res, err := r.Resolve(context.Background(), "p", []string{"bob"}, domain.PrivateScope(7))
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "bob"}, res.Args)

	_, err = r.Resolve(context.Background(), "p", nil, domain.GroupScope(7))
	assert.ErrorIs(t, err, ErrCommandNotFound)
}

func TestNotFound(t *testing.T) {
	r, aliases := newFixture(t)
	aliases.add(domain.ScopeGroup, 100, "dangling", "removed", "")

	_, err := r.Resolve(context.Background(), "nothing", nil, group)
	assert.ErrorIs(t, err, ErrCommandNotFound)

	_, err = r.Resolve(context.Background(), "dangling", nil, group)
	assert.ErrorIs(t, err, ErrCommandNotFound)
}

func TestStoreFailureIsAMiss(t *testing.T) {
	r, aliases := newFixture(t)
	aliases.err = errors.New("database is locked")

	_, err := r.Resolve(context.Background(), "x", nil, group)
	assert.ErrorIs(t, err, ErrCommandNotFound)
}

func TestGlobalRewriteTemplate(t *testing.T) {
	r, aliases := newFixture(t)
	aliases.add(domain.ScopeGlobal, 0, "k", "calc", `s/^(\d+)$/add \1/`)

	res, err := r.Resolve(context.Background(), "k", []string{"5"}, group)
	require.NoError(t, err)
	assert.Equal(t, "calc", res.Command.Name())
	assert.Equal(t, []string{"add", "5"}, res.Args)
	assert.Equal(t, TemplateRewrite, res.Template)

	res, err = r.Resolve(context.Background(), "k", []string{"5", "6"}, group)
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6"}, res.Args, "no match leaves the input as is")
}

func TestRewriteFlags(t *testing.T) {
	r, aliases := newFixture(t)
	aliases.add(domain.ScopeGlobal, 0, "first", "echo", "s/a/b/")
	aliases.add(domain.ScopeGlobal, 0, "all", "echo", "s/a/b/g")
	aliases.add(domain.ScopeGlobal, 0, "nocase", "echo", "s/HELLO/bye/gi")
	aliases.add(domain.ScopeGlobal, 0, "slash", "echo", `s/\//-/g`)
	aliases.add(domain.ScopeGlobal, 0, "drop", "echo", "s/.*//")

	cases := []struct {
		token string
		args  []string
		want  []string
	}{
		{"first", []string{"aa", "a"}, []string{"ba", "a"}},
		{"all", []string{"aa", "a"}, []string{"bb", "b"}},
		{"nocase", []string{"Hello", "hello"}, []string{"bye", "bye"}},
		{"slash", []string{"a/b/c"}, []string{"a-b-c"}},
		{"drop", []string{"x", "y"}, []string{}},
	}
	for _, tc := range cases {
		res, err := r.Resolve(context.Background(), tc.token, tc.args, group)
		require.NoError(t, err, tc.token)
		assert.Equal(t, tc.want, res.Args, tc.token)
	}
}

func TestRejectedRewriteLeavesArgs(t *testing.T) {
	r, aliases := newFixture(t)
	aliases.add(domain.ScopeGlobal, 0, "evil", "echo", "s/(a+)+$/x/")
	aliases.add(domain.ScopeGlobal, 0, "broken", "echo", "s/a/b")
	aliases.add(domain.ScopeGlobal, 0, "badre", "echo", "s/(unclosed/x/")

	for _, token := range []string{"evil", "broken", "badre"} {
		res, err := r.Resolve(context.Background(), token, []string{"aaaa", "b"}, group)
		require.NoError(t, err, token)
		assert.Equal(t, []string{"aaaa", "b"}, res.Args, token)
		assert.Equal(t, TemplateRejected, res.Template, token)
	}
}

func TestRewriteOnScopedAliasIsNotApplied(t *testing.T) {
	r, aliases := newFixture(t)
	aliases.add(domain.ScopeGroup, 100, "k", "calc", `s/^(\d+)$/add \1/`)

	res, err := r.Resolve(context.Background(), "k", []string{"5"}, group)
	require.NoError(t, err)
	assert.Equal(t, TemplateSkipped, res.Template)
	assert.NotEqual(t, []string{"add", "5"}, res.Args)
	assert.Equal(t, []string{`s/^(\d+)$/add`, `\1/`}, res.Args)
}

func TestPositionalTemplate(t *testing.T) {
	r, aliases := newFixture(t)
	aliases.add(domain.ScopeGroup, 100, "all", "echo", "pre {args} post")
	aliases.add(domain.ScopeGroup, 100, "swap", "echo", "{2} {1}")
	aliases.add(domain.ScopeGroup, 100, "missing", "echo", "{3}")
	aliases.add(domain.ScopeGroup, 100, "plain", "echo", "")

	cases := []struct {
		token string
		args  []string
		want  []string
	}{
		{"all", []string{"a", "b"}, []string{"pre", "a", "b", "post"}},
		{"all", nil, []string{"pre", "post"}},
		{"swap", []string{"x", "y"}, []string{"y", "x"}},
		{"missing", []string{"x"}, []string{}},
		{"plain", []string{"keep", "me"}, []string{"keep", "me"}},
		{"all", []string{"{1}"}, []string{"pre", "{1}", "post"}},
	}
	for _, tc := range cases {
		res, err := r.Resolve(context.Background(), tc.token, tc.args, group)
		require.NoError(t, err, tc.token)
		assert.Equal(t, tc.want, res.Args, tc.token)
	}
}

func TestCheckTemplate(t *testing.T) {
	rw, err := CheckTemplate("run {1} {args}", nil)
	assert.False(t, rw)
	assert.NoError(t, err)

	rw, err = CheckTemplate(`s/^(\d+)$/add \1/`, nil)
	assert.True(t, rw)
	assert.NoError(t, err)

	_, err = CheckTemplate("s/missing-slash", nil)
	assert.ErrorIs(t, err, ErrMalformedRewrite)

	_, err = CheckTemplate(`s/(a+)+$/x/`, nil)
	var unsafe *UnsafePatternError
	assert.ErrorAs(t, err, &unsafe)

	_, err = CheckTemplate(`s/(unclosed/x/`, nil)
	assert.Error(t, err)
}
