// Package resolver maps a command token to a registered command, either
// directly or through an alias stored for the chat or globally, and expands
// the alias argument template.
package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keshon/warden/internal/domain"
	"github.com/keshon/warden/internal/regexsafe"
	"github.com/keshon/warden/internal/storage"
	st "github.com/keshon/warden/internal/storagetypes"
	"github.com/keshon/warden/pkg/cmd"
)

// ErrCommandNotFound is returned when neither a command nor a usable alias
// matches the token.
var ErrCommandNotFound = errors.New("resolver: command not found")

// DefaultMatchTimeout bounds a single rewrite substitution.
const DefaultMatchTimeout = 100 * time.Millisecond

// CommandLookup finds statically registered commands by name or alias token.
type CommandLookup interface {
	Lookup(token string) (cmd.Command, bool)
}

// AliasFinder reads alias records. It returns storage.ErrNotFound on a miss.
type AliasFinder interface {
	FindAlias(ctx context.Context, scope domain.Scope, alias string) (*st.AliasRecord, error)
}

// TemplateStatus describes how an alias template was handled.
type TemplateStatus string

const (
	TemplateNone       TemplateStatus = "none"
	TemplatePositional TemplateStatus = "positional"
	TemplateRewrite    TemplateStatus = "rewrite"
	// TemplateSkipped: a rewrite template on a non-global alias, expanded positionally instead.
	TemplateSkipped TemplateStatus = "rewrite-skipped"
	// TemplateRejected: a global rewrite that failed to parse, was unsafe or errored.
	TemplateRejected TemplateStatus = "rewrite-rejected"
)

// Resolution is a successfully resolved command.
type Resolution struct {
	Command  cmd.Command
	Args     []string
	Alias    *st.AliasRecord // nil for static matches
	Template TemplateStatus
}

type Resolver struct {
	commands     CommandLookup
	aliases      AliasFinder
	analyzer     *regexsafe.Analyzer
	matchTimeout time.Duration
}

type Option func(*Resolver)

// WithAnalyzer replaces the default regex safety analyzer.
func WithAnalyzer(a *regexsafe.Analyzer) Option {
	return func(r *Resolver) { r.analyzer = a }
}

// WithMatchTimeout bounds each rewrite substitution.
func WithMatchTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.matchTimeout = d }
}

func New(commands CommandLookup, aliases AliasFinder, opts ...Option) *Resolver {
	r := &Resolver{
		commands:     commands,
		aliases:      aliases,
		analyzer:     regexsafe.New(regexsafe.DefaultMaxLength),
		matchTimeout: DefaultMatchTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks token up as a static command, then as an alias of scope, then
// as a global alias. Aliases are read from the store on every call.
func (r *Resolver) Resolve(ctx context.Context, token string, args []string, scope domain.Scope) (*Resolution, error) {
	if c, ok := r.commands.Lookup(token); ok {
		return &Resolution{Command: c, Args: args, Template: TemplateNone}, nil
	}
	if r.aliases == nil {
		return nil, ErrCommandNotFound
	}

	rec := r.findAlias(ctx, scope, token)
	if rec == nil && scope.Kind != domain.ScopeGlobal {
		rec = r.findAlias(ctx, domain.Global, token)
	}
	if rec == nil {
		return nil, ErrCommandNotFound
	}

	c, ok := r.commands.Lookup(rec.TargetCommand)
	if !ok {
		log.Debug().
			Str("alias", rec.Alias).
			Str("target", rec.TargetCommand).
			Str("scope", rec.Scope().String()).
			Msg("alias points at an unknown command")
		return nil, ErrCommandNotFound
	}

	res := &Resolution{Command: c, Alias: rec}
	res.Args, res.Template = r.expand(rec, args)
	return res, nil
}

func (r *Resolver) findAlias(ctx context.Context, scope domain.Scope, token string) *st.AliasRecord {
	rec, err := r.aliases.FindAlias(ctx, scope, token)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Str("alias", token).Str("scope", scope.String()).Msg("alias lookup failed")
		}
		return nil
	}
	return rec
}

func (r *Resolver) expand(rec *st.AliasRecord, args []string) ([]string, TemplateStatus) {
	tmpl := rec.ArgTemplate
	if tmpl == "" {
		return args, TemplateNone
	}

	if isRewrite(tmpl) {
		if !rec.IsGlobal() {
			return strings.Fields(interpolate(tmpl, args)), TemplateSkipped
		}
		rw, ok := parseRewrite(tmpl)
		if !ok {
			log.Debug().Str("alias", rec.Alias).Str("template", tmpl).Msg("malformed rewrite template")
			return args, TemplateRejected
		}
		out, err := applyRewrite(rw, strings.Join(args, " "), r.analyzer, r.matchTimeout)
		if err != nil {
			log.Warn().Err(err).Str("alias", rec.Alias).Msg("rewrite template not applied")
			return args, TemplateRejected
		}
		return strings.Fields(out), TemplateRewrite
	}

	return strings.Fields(interpolate(tmpl, args)), TemplatePositional
}
