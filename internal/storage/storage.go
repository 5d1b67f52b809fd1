// Package storage persists command aliases and command history. Two backends
// are available: SQL (gorm over sqlite) and a JSON file built on datastore.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keshon/warden/internal/domain"
	st "github.com/keshon/warden/internal/storagetypes"
)

const commandHistoryLimit = 50

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("storage: not found")

// AliasStore reads and writes alias records scoped by (scope type, scope id).
type AliasStore interface {
	FindAlias(ctx context.Context, scope domain.Scope, alias string) (*st.AliasRecord, error)
	UpsertAlias(ctx context.Context, rec *st.AliasRecord) error
	DeleteAlias(ctx context.Context, scope domain.Scope, alias string) error
	ListAliases(ctx context.Context, scope domain.Scope) ([]st.AliasRecord, error)
}

// HistoryStore keeps executed commands per chat.
type HistoryStore interface {
	AppendCommand(ctx context.Context, rec st.CommandHistory) error
	// RecentCommands returns up to limit records, newest first.
	RecentCommands(ctx context.Context, scope domain.Scope, limit int) ([]st.CommandHistory, error)
	// PruneHistory deletes records older than before and returns how many went.
	PruneHistory(ctx context.Context, before time.Time) (int64, error)
}

type Store interface {
	AliasStore
	HistoryStore
	Close() error
}

// Open returns the store for driver ("sqlite" or "json") at path.
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "":
		return NewSQLStore(path)
	case "json":
		return NewFileStore(path)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}

// normalizeScope pins the global scope to id 0 so lookups and the unique
// index agree.
func normalizeScope(s domain.Scope) domain.Scope {
	if s.Kind == domain.ScopeGlobal {
		s.ID = 0
	}
	return s
}

func validateAlias(rec *st.AliasRecord) error {
	if rec == nil {
		return errors.New("storage: nil alias record")
	}
	if !rec.ScopeType.Valid() {
		return fmt.Errorf("storage: invalid scope type %q", rec.ScopeType)
	}
	if strings.TrimSpace(rec.Alias) == "" || strings.ContainsAny(rec.Alias, " \t\r\n") {
		return fmt.Errorf("storage: invalid alias token %q", rec.Alias)
	}
	if strings.TrimSpace(rec.TargetCommand) == "" {
		return errors.New("storage: empty alias target")
	}
	if rec.ScopeType == domain.ScopeGlobal {
		rec.ScopeID = 0
	}
	return nil
}
