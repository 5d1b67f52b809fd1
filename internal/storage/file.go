package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keshon/warden/datastore"
	"github.com/keshon/warden/internal/domain"
	st "github.com/keshon/warden/internal/storagetypes"
)

// FileStore keeps aliases and history in a single JSON document file.
type FileStore struct {
	ds *datastore.Store
	mu sync.Mutex // guards read-modify-write of history lists
}

const (
	fileAutoSave = 10 * time.Second
	fileBackups  = 3
)

// NewFileStore opens the JSON store at filePath. It flushes every 10s and
// keeps 3 backups unless opts say otherwise.
func NewFileStore(filePath string, opts ...datastore.Option) (*FileStore, error) {
	opts = append([]datastore.Option{
		datastore.WithAutoSave(fileAutoSave),
		datastore.WithBackups(fileBackups),
		datastore.WithLogger(log.With().Str("component", "filestore").Str("path", filePath).Logger()),
	}, opts...)
	ds, err := datastore.Open(filePath, opts...)
	if err != nil {
		return nil, err
	}
	return &FileStore{ds: ds}, nil
}

func (s *FileStore) Close() error {
	return s.ds.Close()
}

func scopePrefix(kind string, scope domain.Scope) string {
	scope = normalizeScope(scope)
	return kind + "/" + string(scope.Kind) + "/" + strconv.FormatInt(scope.ID, 10)
}

func aliasKey(scope domain.Scope, alias string) string {
	return scopePrefix("alias", scope) + "/" + alias
}

func historyKey(scope domain.Scope) string {
	return scopePrefix("history", scope)
}

func (s *FileStore) FindAlias(_ context.Context, scope domain.Scope, alias string) (*st.AliasRecord, error) {
	var rec st.AliasRecord
	ok, err := s.ds.Get(aliasKey(scope, alias), &rec)
	if err != nil {
		return nil, fmt.Errorf("storage: find alias: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *FileStore) UpsertAlias(ctx context.Context, rec *st.AliasRecord) error {
	if err := validateAlias(rec); err != nil {
		return err
	}
	now := time.Now()
	if prev, err := s.FindAlias(ctx, rec.Scope(), rec.Alias); err == nil {
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if err := s.ds.Put(aliasKey(rec.Scope(), rec.Alias), rec); err != nil {
		return fmt.Errorf("storage: upsert alias: %w", err)
	}
	return nil
}

func (s *FileStore) DeleteAlias(_ context.Context, scope domain.Scope, alias string) error {
	if !s.ds.Delete(aliasKey(scope, alias)) {
		return ErrNotFound
	}
	return nil
}

func (s *FileStore) ListAliases(ctx context.Context, scope domain.Scope) ([]st.AliasRecord, error) {
	prefix := scopePrefix("alias", scope) + "/"
	keys := s.ds.Keys(prefix)
	recs := make([]st.AliasRecord, 0, len(keys))
	for _, k := range keys {
		rec, err := s.FindAlias(ctx, scope, strings.TrimPrefix(k, prefix))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, nil
}

func (s *FileStore) AppendCommand(_ context.Context, rec st.CommandHistory) error {
	if rec.Datetime.IsZero() {
		rec.Datetime = time.Now()
	}
	scope := domain.Scope{Kind: rec.ScopeType, ID: rec.ScopeID}

	s.mu.Lock()
	defer s.mu.Unlock()

	var list []st.CommandHistory
	if _, err := s.ds.Get(historyKey(scope), &list); err != nil {
		return fmt.Errorf("storage: append command: %w", err)
	}
	list = append(list, rec)
	if len(list) > commandHistoryLimit {
		list = list[len(list)-commandHistoryLimit:]
	}
	return s.ds.Put(historyKey(scope), list)
}

func (s *FileStore) RecentCommands(_ context.Context, scope domain.Scope, limit int) ([]st.CommandHistory, error) {
	var list []st.CommandHistory
	if _, err := s.ds.Get(historyKey(scope), &list); err != nil {
		return nil, fmt.Errorf("storage: recent commands: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Datetime.After(list[j].Datetime)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *FileStore) PruneHistory(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for _, key := range s.ds.Keys("history/") {
		var list []st.CommandHistory
		if _, err := s.ds.Get(key, &list); err != nil {
			return removed, fmt.Errorf("storage: prune history: %w", err)
		}
		kept := list[:0]
		for _, rec := range list {
			if rec.Datetime.Before(before) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			s.ds.Delete(key)
			continue
		}
		if len(kept) != len(list) {
			if err := s.ds.Put(key, kept); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}
