// Package cooldown rate-limits commands per chat. In a group the limit is
// shared by the whole group and only applies to ordinary members; in a
// private chat it applies to the sender.
package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keshon/warden/internal/domain"
)

// RoleLookup asks the chat platform for a member's current role.
type RoleLookup interface {
	RoleOf(ctx context.Context, groupID, userID int64) (domain.Role, error)
}

// Privileged reports whether a sender bypasses every cooldown.
type Privileged func(senderID int64) bool

// Request describes one command invocation to be gated.
type Request struct {
	Scope    domain.Scope
	SenderID int64
	Command  string
	Duration time.Duration // 0 means no limit
}

type key struct {
	kind    domain.ScopeKind
	id      int64
	command string
}

type entry struct {
	last   time.Time
	window time.Duration
}

// Gate holds the last allowed invocation per (scope, command).
type Gate struct {
	roles      RoleLookup
	privileged Privileged
	now        func() time.Time

	mu   sync.Mutex
	last map[key]entry
}

type Option func(*Gate)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func New(roles RoleLookup, privileged Privileged, opts ...Option) *Gate {
	g := &Gate{
		roles:      roles,
		privileged: privileged,
		now:        time.Now,
		last:       make(map[key]entry),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allow reports whether the invocation may run and, if so, records it.
func (g *Gate) Allow(ctx context.Context, req Request) bool {
	if req.Duration <= 0 {
		return true
	}
	if g.privileged != nil && g.privileged(req.SenderID) {
		return true
	}

	k := key{kind: req.Scope.Kind, id: req.Scope.ID, command: req.Command}
	switch req.Scope.Kind {
	case domain.ScopeGroup:
		if g.elevated(ctx, req.Scope.ID, req.SenderID) {
			return true
		}
	default:
		k = key{kind: domain.ScopePrivate, id: req.SenderID, command: req.Command}
	}

	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.last[k]; ok && now.Sub(e.last) < req.Duration {
		log.Debug().
			Str("command", req.Command).
			Str("scope", string(k.kind)).
			Int64("id", k.id).
			Dur("remaining", req.Duration-now.Sub(e.last)).
			Msg("command on cooldown")
		return false
	}
	g.last[k] = entry{last: now, window: req.Duration}
	return true
}

// elevated asks for the sender's role outside the gate lock. A failed lookup
// counts as an ordinary member.
func (g *Gate) elevated(ctx context.Context, groupID, userID int64) bool {
	if g.roles == nil {
		return false
	}
	role, err := g.roles.RoleOf(ctx, groupID, userID)
	if err != nil {
		log.Warn().Err(err).Int64("group", groupID).Int64("user", userID).Msg("role lookup failed, treating as member")
		return false
	}
	return role.Elevated()
}

// Sweep drops keys whose cooldown window has elapsed and returns how many
// were removed.
func (g *Gate) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for k, e := range g.last {
		if now.Sub(e.last) >= e.window {
			delete(g.last, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}

// Run sweeps every interval until ctx is done.
func (g *Gate) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Sweep(g.now()); n > 0 {
				log.Debug().Int("removed", n).Msg("Cleared expired cooldowns")
			}
		}
	}
}
