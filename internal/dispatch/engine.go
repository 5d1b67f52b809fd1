// Package dispatch drives one inbound chat message through the governance
// pipeline: abuse detection for group messages, then command resolution,
// scope and permission checks, cooldown, argument validation and execution.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/keshon/warden/internal/antispam"
	"github.com/keshon/warden/internal/cooldown"
	"github.com/keshon/warden/internal/domain"
	"github.com/keshon/warden/internal/resolver"
	"github.com/keshon/warden/pkg/cmd"
)

// Outcome is the terminal state of a handled message.
type Outcome string

const (
	OutcomeIgnored            Outcome = "ignored"
	OutcomeNotFound           Outcome = "not-found"
	OutcomeRejectedScope      Outcome = "rejected-scope"
	OutcomeRejectedPermission Outcome = "rejected-permission"
	OutcomeThrottled          Outcome = "throttled"
	OutcomeRejectedArgs       Outcome = "rejected-args"
	OutcomeFailed             Outcome = "failed"
	OutcomeCompleted          Outcome = "completed"
)

// Result reports what happened to a message.
type Result struct {
	Outcome Outcome
	Command string   // canonical name, when resolved
	Args    []string // expanded arguments, when resolved
	Spam    antispam.Verdict
	Err     error // command error for OutcomeFailed
}

// Resolver maps a token to a command.
type Resolver interface {
	Resolve(ctx context.Context, token string, args []string, scope domain.Scope) (*resolver.Resolution, error)
}

// CooldownGate decides whether an invocation is rate limited.
type CooldownGate interface {
	Allow(ctx context.Context, req cooldown.Request) bool
}

// AbuseDetector flags spam.
type AbuseDetector interface {
	Detect(sender int64, text string) antispam.Verdict
}

// Replier answers a message in the chat it came from.
type Replier interface {
	Reply(ctx context.Context, msg domain.Message, text string) error
}

// Moderator carries out punitive actions in groups.
type Moderator interface {
	DeleteMessage(ctx context.Context, messageID int64) error
	MuteSender(ctx context.Context, groupID, userID int64, d time.Duration) error
}

type Config struct {
	Prefix     string
	Superuser  func(id int64) bool
	Penalty    antispam.Penalty
	Middleware []cmd.Middleware // applied around every command run
}

type Deps struct {
	Resolver  Resolver
	Cooldown  CooldownGate
	Detector  AbuseDetector // nil disables abuse detection
	Replier   Replier
	Moderator Moderator // nil disables punitive actions
}

type Engine struct {
	cfg  Config
	deps Deps
}

func New(cfg Config, deps Deps) *Engine {
	if cfg.Prefix == "" {
		cfg.Prefix = "/"
	}
	if cfg.Superuser == nil {
		cfg.Superuser = func(int64) bool { return false }
	}
	return &Engine{cfg: cfg, deps: deps}
}

// Handle runs msg to a terminal outcome. It never panics and never returns
// early on cancellation once a command has started.
func (e *Engine) Handle(ctx context.Context, msg domain.Message) (res Result) {
	defer func() {
		messageOutcomeCount.WithLabelValues(string(res.Outcome)).Inc()
	}()

	if msg.IsGroup() && e.deps.Detector != nil {
		res.Spam = e.govern(ctx, msg)
	}

	token, args, ok := e.split(msg.Text)
	if !ok {
		res.Outcome = OutcomeIgnored
		return res
	}

	logger := log.With().
		Str("scope", msg.Scope().String()).
		Int64("sender", msg.SenderID).
		Str("token", token).
		Logger()

	resolution, err := e.deps.Resolver.Resolve(ctx, token, args, msg.Scope())
	if err != nil {
		if !errors.Is(err, resolver.ErrCommandNotFound) {
			logger.Error().Err(err).Msg("resolve failed")
		}
		logger.Info().Msg("unknown command")
		res.Outcome = OutcomeNotFound
		return res
	}
	if resolution.Alias != nil {
		aliasTemplateCount.WithLabelValues(string(resolution.Template)).Inc()
	}

	desc := cmd.Describe(resolution.Command)
	res.Command = desc.Name
	res.Args = resolution.Args
	logger = logger.With().Str("command", desc.Name).Logger()

	dc := &Context{
		Message:   msg,
		Command:   desc.Name,
		Token:     token,
		Alias:     resolution.Alias,
		Superuser: e.cfg.Superuser(msg.SenderID),
		Prefix:    e.cfg.Prefix,
	}
	dc.reply = func(ctx context.Context, text string) error {
		return e.reply(ctx, msg, text)
	}

	if !desc.Scope.Allows(msg.IsGroup()) {
		logger.Info().Str("allowed", desc.Scope.String()).Msg("command used in the wrong chat type")
		e.replyQuiet(ctx, logger, msg, scopeMessage(desc.Scope))
		res.Outcome = OutcomeRejectedScope
		return res
	}

	if desc.SuperuserOnly && !dc.Superuser {
		logger.Info().Msg("superuser-only command refused")
		e.replyQuiet(ctx, logger, msg, "Insufficient permission.")
		res.Outcome = OutcomeRejectedPermission
		return res
	}

	if e.deps.Cooldown != nil && !e.deps.Cooldown.Allow(ctx, cooldown.Request{
		Scope:    msg.Scope(),
		SenderID: msg.SenderID,
		Command:  desc.Name,
		Duration: desc.Cooldown,
	}) {
		res.Outcome = OutcomeThrottled
		return res
	}

	if err := cmd.Validate(resolution.Command, resolution.Args); err != nil {
		logger.Info().Err(err).Strs("args", resolution.Args).Msg("arguments rejected")
		e.replyQuiet(ctx, logger, msg, fmt.Sprintf("Invalid arguments: %s\nUsage:\n%s", err, formatUsage(e.cfg.Prefix, desc.Usage)))
		res.Outcome = OutcomeRejectedArgs
		return res
	}

	// a started command always finishes, even if the caller gives up
	runCtx := context.WithoutCancel(ctx)
	command := cmd.Apply(resolution.Command, e.cfg.Middleware...)
	start := time.Now()
	err = e.execute(runCtx, command, &cmd.Invocation{Args: resolution.Args, Data: dc})
	commandDuration.WithLabelValues(desc.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error().Err(err).Strs("args", resolution.Args).Msg("command failed")
		e.replyQuiet(runCtx, logger, msg, "Execution failed.\nUsage:\n"+formatUsage(e.cfg.Prefix, desc.Usage))
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	res.Outcome = OutcomeCompleted
	return res
}

// split extracts the command token and arguments. The prefix must be
// followed directly by the token.
func (e *Engine) split(text string) (string, []string, bool) {
	if !strings.HasPrefix(text, e.cfg.Prefix) {
		return "", nil, false
	}
	body := text[len(e.cfg.Prefix):]
	if first, _ := utf8.DecodeRuneInString(body); body == "" || unicode.IsSpace(first) {
		return "", nil, false
	}
	fields := strings.Fields(body)
	return fields[0], fields[1:], true
}

func (e *Engine) execute(ctx context.Context, c cmd.Command, inv *cmd.Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error().Str("command", c.Name()).Bytes("stack", debug.Stack()).Msg("command panicked")
		}
	}()
	return c.Run(ctx, inv)
}

// govern runs the abuse detector and acts on a spam verdict. Punitive action
// failures are logged and swallowed.
func (e *Engine) govern(ctx context.Context, msg domain.Message) antispam.Verdict {
	v := e.deps.Detector.Detect(msg.SenderID, msg.Text)
	if !v.Spam {
		return v
	}
	spamVerdictCount.WithLabelValues(string(v.Reason)).Inc()

	logger := log.With().
		Int64("group", msg.GroupID).
		Int64("sender", msg.SenderID).
		Int("level", v.Level).
		Str("reason", v.String()).
		Logger()

	if e.deps.Moderator == nil {
		logger.Warn().Msg("spam detected")
		return v
	}
	if e.cfg.Superuser(msg.SenderID) {
		logger.Warn().Msg("spam detected from superuser, no action taken")
		return v
	}

	mute := e.cfg.Penalty.MuteDuration(v.Level)
	logger.Warn().Dur("mute", mute).Msg("spam detected")

	if err := e.deps.Moderator.DeleteMessage(ctx, msg.ID); err != nil {
		punitiveActionErrors.WithLabelValues("delete").Inc()
		logger.Warn().Err(err).Int64("message", msg.ID).Msg("failed to delete spam message")
	}
	if mute > 0 {
		if err := e.deps.Moderator.MuteSender(ctx, msg.GroupID, msg.SenderID, mute); err != nil {
			punitiveActionErrors.WithLabelValues("mute").Inc()
			logger.Warn().Err(err).Msg("failed to mute sender")
		}
	}
	return v
}

func (e *Engine) reply(ctx context.Context, msg domain.Message, text string) error {
	if e.deps.Replier == nil {
		return nil
	}
	return e.deps.Replier.Reply(ctx, msg, text)
}

func (e *Engine) replyQuiet(ctx context.Context, logger zerolog.Logger, msg domain.Message, text string) {
	if err := e.reply(ctx, msg, text); err != nil {
		logger.Warn().Err(err).Msg("failed to send reply")
	}
}

// formatUsage puts the command prefix in front of every usage line.
func formatUsage(prefix, usage string) string {
	lines := strings.Split(usage, "\n")
	for i, l := range lines {
		lines[i] = prefix + strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}

func scopeMessage(s cmd.Scope) string {
	switch s {
	case cmd.ScopeGroup:
		return "This command can only be used in group chats."
	case cmd.ScopePrivate:
		return "This command can only be used in private chats."
	}
	return "This command cannot be used here."
}
