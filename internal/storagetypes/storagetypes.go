package storagetypes

import (
	"time"

	"github.com/keshon/warden/internal/domain"
)

// AliasRecord is a user-defined command alias owned by a group, a private
// chat or the global namespace. Global aliases use ScopeID 0.
type AliasRecord struct {
	ID            uint             `gorm:"primaryKey" json:"-"`
	ScopeType     domain.ScopeKind `gorm:"size:16;not null;uniqueIndex:idx_alias_scope,priority:1" json:"scope_type"`
	ScopeID       int64            `gorm:"not null;uniqueIndex:idx_alias_scope,priority:2" json:"scope_id"`
	Alias         string           `gorm:"size:64;not null;uniqueIndex:idx_alias_scope,priority:3" json:"alias"`
	TargetCommand string           `gorm:"size:64;not null" json:"target_command"`
	ArgTemplate   string           `gorm:"size:512" json:"arg_template,omitempty"`
	CreatedBy     int64            `json:"created_by"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (AliasRecord) TableName() string { return "command_aliases" }

// Scope returns the owning scope of the alias.
func (r AliasRecord) Scope() domain.Scope {
	return domain.Scope{Kind: r.ScopeType, ID: r.ScopeID}
}

// IsGlobal reports whether the alias is visible from every chat.
func (r AliasRecord) IsGlobal() bool { return r.ScopeType == domain.ScopeGlobal }

// CommandHistory is one executed command, kept per chat for the history command.
type CommandHistory struct {
	ID        uint             `gorm:"primaryKey" json:"-"`
	ScopeType domain.ScopeKind `gorm:"size:16;not null;index:idx_history_scope,priority:1" json:"scope_type"`
	ScopeID   int64            `gorm:"not null;index:idx_history_scope,priority:2" json:"scope_id"`
	UserID    int64            `json:"user_id"`
	Username  string           `gorm:"size:128" json:"username"`
	Command   string           `gorm:"size:64;not null" json:"command"`
	Param     string           `gorm:"size:512" json:"param"`
	Datetime  time.Time        `gorm:"index" json:"datetime"`
}

func (CommandHistory) TableName() string { return "command_history" }
