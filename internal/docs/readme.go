// Package docs renders the command reference of README.md.
package docs

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/rs/zerolog/log"

	"github.com/keshon/warden/pkg/cmd"
)

var scopeOrder = []struct {
	scope cmd.Scope
	title string
}{
	{cmd.ScopeBoth, "Everywhere"},
	{cmd.ScopeGroup, "Group chats"},
	{cmd.ScopePrivate, "Private chats"},
}

// CommandSections renders one markdown section per chat scope. Commands keep
// the registry order inside a section.
func CommandSections(registry *cmd.Registry, prefix string) string {
	byScope := make(map[cmd.Scope][]cmd.Descriptor)
	for _, c := range registry.GetAll() {
		d := cmd.Describe(c)
		byScope[d.Scope] = append(byScope[d.Scope], d)
	}

	var buf bytes.Buffer
	for _, s := range scopeOrder {
		list := byScope[s.scope]
		if len(list) == 0 {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "### %s\n\n", s.title)
		for _, d := range list {
			fmt.Fprintf(&buf, "- **%s%s** - %s", prefix, d.Name, d.Description)
			if d.SuperuserOnly {
				buf.WriteString(" *(superusers)*")
			}
			buf.WriteString("\n")
			for _, line := range strings.Split(d.Usage, "\n") {
				fmt.Fprintf(&buf, "  - `%s%s`\n", prefix, strings.TrimSpace(line))
			}
			if len(d.Aliases) > 0 {
				fmt.Fprintf(&buf, "  - aliases: %s\n", strings.Join(d.Aliases, ", "))
			}
		}
	}
	return buf.String()
}

// UpdateReadme executes the template at tmplPath with the command sections of
// registry and writes the result to outPath.
func UpdateReadme(registry *cmd.Registry, prefix, tmplPath, outPath string) error {
	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		return err
	}

	data := struct {
		Prefix          string
		CommandSections string
	}{
		Prefix:          prefix,
		CommandSections: CommandSections(registry, prefix),
	}

	var out bytes.Buffer
	if err := tmpl.Execute(&out, data); err != nil {
		return err
	}
	if err := os.WriteFile(outPath, out.Bytes(), 0o644); err != nil {
		return err
	}

	log.Info().Str("path", outPath).Int("commands", len(registry.GetAll())).Msg("readme updated")
	return nil
}
