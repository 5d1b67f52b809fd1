package cmd

import (
	"strings"
	"time"
)

// Scope restricts the chat type a command may run in.
type Scope int

const (
	ScopeBoth Scope = iota
	ScopeGroup
	ScopePrivate
)

func (s Scope) String() string {
	switch s {
	case ScopeGroup:
		return "group"
	case ScopePrivate:
		return "private"
	default:
		return "both"
	}
}

// Allows reports whether a command with this scope may run in a group chat
// (group == true) or a private chat (group == false).
func (s Scope) Allows(group bool) bool {
	switch s {
	case ScopeGroup:
		return group
	case ScopePrivate:
		return !group
	default:
		return true
	}
}

// AliasProvider is implemented by commands reachable by extra tokens.
type AliasProvider interface {
	Aliases() []string
}

// ScopeProvider is implemented by commands limited to one chat type.
type ScopeProvider interface {
	Scope() Scope
}

// CooldownProvider is implemented by commands with a fixed cooldown.
type CooldownProvider interface {
	Cooldown() time.Duration
}

// SuperuserProvider is implemented by commands reserved to superusers.
type SuperuserProvider interface {
	SuperuserOnly() bool
}

// UsageProvider is implemented by commands with a usage text.
type UsageProvider interface {
	Usage() string
}

// ArgValidator is implemented by commands that check their arguments before
// Run. A non-nil error rejects the invocation; its message is the reason.
type ArgValidator interface {
	ValidateArgs(args []string) error
}

// Descriptor is the flattened metadata of a command.
type Descriptor struct {
	Name          string
	Aliases       []string
	Description   string
	Usage         string
	Scope         Scope
	Cooldown      time.Duration
	SuperuserOnly bool
}

// Describe collects the metadata of c, looking through any middleware wrappers.
func Describe(c Command) Descriptor {
	root := Root(c)
	d := Descriptor{
		Name:        root.Name(),
		Description: root.Description(),
	}
	if p, ok := root.(AliasProvider); ok {
		d.Aliases = p.Aliases()
	}
	if p, ok := root.(ScopeProvider); ok {
		d.Scope = p.Scope()
	}
	if p, ok := root.(CooldownProvider); ok {
		d.Cooldown = p.Cooldown()
	}
	if p, ok := root.(SuperuserProvider); ok {
		d.SuperuserOnly = p.SuperuserOnly()
	}
	d.Usage = Usage(root)
	return d
}

// Usage returns the usage text of c, defaulting to its bare name.
func Usage(c Command) string {
	root := Root(c)
	if p, ok := root.(UsageProvider); ok {
		if u := strings.TrimSpace(p.Usage()); u != "" {
			return u
		}
	}
	return root.Name()
}

// Validate runs the command's validator, if any.
func Validate(c Command, args []string) error {
	if v, ok := Root(c).(ArgValidator); ok {
		return v.ValidateArgs(args)
	}
	return nil
}
