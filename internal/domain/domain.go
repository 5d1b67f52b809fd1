// Package domain holds the chat primitives shared by the governance engines:
// inbound messages, the scope they belong to and the role of a group member.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScopeKind is the kind of chat a message or alias belongs to.
type ScopeKind string

const (
	ScopeGroup   ScopeKind = "group"
	ScopePrivate ScopeKind = "private"
	ScopeGlobal  ScopeKind = "global"
)

// Valid reports whether k is one of the known kinds.
func (k ScopeKind) Valid() bool {
	switch k {
	case ScopeGroup, ScopePrivate, ScopeGlobal:
		return true
	}
	return false
}

// Scope identifies a group (by group id), a private chat (by user id) or the
// global namespace (ID is always 0).
type Scope struct {
	Kind ScopeKind
	ID   int64
}

// Global is the scope shared by every chat.
var Global = Scope{Kind: ScopeGlobal}

// GroupScope returns the scope of a group chat.
func GroupScope(groupID int64) Scope { return Scope{Kind: ScopeGroup, ID: groupID} }

// PrivateScope returns the scope of a private chat with a user.
func PrivateScope(userID int64) Scope { return Scope{Kind: ScopePrivate, ID: userID} }

func (s Scope) String() string {
	if s.Kind == ScopeGlobal {
		return string(ScopeGlobal)
	}
	return string(s.Kind) + ":" + strconv.FormatInt(s.ID, 10)
}

// ParseScope is the inverse of Scope.String: "global", "group:<id>" or
// "private:<id>".
func ParseScope(s string) (Scope, error) {
	if s == string(ScopeGlobal) {
		return Global, nil
	}
	kind, id, ok := strings.Cut(s, ":")
	if !ok || (ScopeKind(kind) != ScopeGroup && ScopeKind(kind) != ScopePrivate) {
		return Scope{}, fmt.Errorf("invalid scope %q", s)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return Scope{}, fmt.Errorf("invalid scope id in %q", s)
	}
	return Scope{Kind: ScopeKind(kind), ID: n}, nil
}

// Role is a group member's rank.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// Elevated reports whether the role is above an ordinary member.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleOwner
}

// ParseRole maps a protocol role string to a Role. Unknown values are members.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleOwner:
		return RoleOwner
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleMember
	}
}

// Message is an inbound chat text message.
type Message struct {
	ID         int64
	Kind       ScopeKind // group or private
	GroupID    int64
	SenderID   int64
	SenderName string
	Text       string
	Time       time.Time
}

// IsGroup reports whether the message was posted in a group chat.
func (m Message) IsGroup() bool { return m.Kind == ScopeGroup }

// Scope returns the alias and cooldown scope of the message: the group for
// group messages, the sender for private ones.
func (m Message) Scope() Scope {
	if m.IsGroup() {
		return GroupScope(m.GroupID)
	}
	return PrivateScope(m.SenderID)
}

// StreamKey identifies the logical stream the message is ordered within.
func (m Message) StreamKey() string {
	return m.Scope().String()
}
