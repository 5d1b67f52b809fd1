package docs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/warden/pkg/cmd"
)

type docCommand struct {
	name  string
	scope cmd.Scope
	usage string
	su    bool
}

func (c *docCommand) Name() string                               { return c.name }
func (c *docCommand) Description() string                        { return "does " + c.name }
func (c *docCommand) Scope() cmd.Scope                           { return c.scope }
func (c *docCommand) Usage() string                              { return c.usage }
func (c *docCommand) SuperuserOnly() bool                        { return c.su }
func (c *docCommand) Run(context.Context, *cmd.Invocation) error { return nil }

func testRegistry(t *testing.T) *cmd.Registry {
	reg := cmd.NewRegistry()
	require.NoError(t, reg.Register(&docCommand{name: "echo", usage: "echo <text>"}))
	require.NoError(t, reg.Register(&docCommand{name: "pardon", scope: cmd.ScopeGroup, usage: "pardon <user id>", su: true}))
	require.NoError(t, reg.Register(&docCommand{name: "alias", usage: "alias set <a> <b>\nalias list"}))
	return reg
}

func TestCommandSections(t *testing.T) {
	out := CommandSections(testRegistry(t), "/")

	assert.Contains(t, out, "### Everywhere\n\n- **/alias** - does alias\n  - `/alias set <a> <b>`\n  - `/alias list`\n")
	assert.Contains(t, out, "### Group chats\n\n- **/pardon** - does pardon *(superusers)*\n")
	assert.NotContains(t, out, "Private chats")
	assert.Less(t, strings.Index(out, "Everywhere"), strings.Index(out, "Group chats"))
}

func TestUpdateReadme(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "README.md.tmpl")
	outPath := filepath.Join(dir, "README.md")
	require.NoError(t, os.WriteFile(tmplPath, []byte("# Bot\n\nPrefix {{.Prefix}}\n\n{{.CommandSections}}"), 0o644))

	require.NoError(t, UpdateReadme(testRegistry(t), "/", tmplPath, outPath))

	got, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(got), "Prefix /")
	assert.Contains(t, string(got), "- **/echo** - does echo")
}

func TestUpdateReadmeMissingTemplate(t *testing.T) {
	dir := t.TempDir()
	err := UpdateReadme(testRegistry(t), "/", filepath.Join(dir, "missing.tmpl"), filepath.Join(dir, "README.md"))
	assert.Error(t, err)
}
