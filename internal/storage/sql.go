package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/keshon/warden/internal/domain"
	st "github.com/keshon/warden/internal/storagetypes"
)

// SQLStore keeps aliases and history in a sqlite database through gorm.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore opens (creating if needed) the sqlite database at path and
// migrates the schema.
func NewSQLStore(path string) (*SQLStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
	}

	sqlLog := log.With().Str("component", "gorm").Logger()
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger: logger.New(&sqlLog, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxIdleTime(time.Hour)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=normal;",
		"PRAGMA busy_timeout=5000;",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("storage: %s: %w", pragma, err)
		}
	}

	if err := db.AutoMigrate(&st.AliasRecord{}, &st.CommandHistory{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) FindAlias(ctx context.Context, scope domain.Scope, alias string) (*st.AliasRecord, error) {
	scope = normalizeScope(scope)
	var rec st.AliasRecord
	err := s.db.WithContext(ctx).
		Where("scope_type = ? AND scope_id = ? AND alias = ?", scope.Kind, scope.ID, alias).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: find alias: %w", err)
	}
	return &rec, nil
}

func (s *SQLStore) UpsertAlias(ctx context.Context, rec *st.AliasRecord) error {
	if err := validateAlias(rec); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope_type"}, {Name: "scope_id"}, {Name: "alias"}},
		DoUpdates: clause.AssignmentColumns([]string{"target_command", "arg_template", "created_by", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("storage: upsert alias: %w", err)
	}
	return nil
}

func (s *SQLStore) DeleteAlias(ctx context.Context, scope domain.Scope, alias string) error {
	scope = normalizeScope(scope)
	res := s.db.WithContext(ctx).
		Where("scope_type = ? AND scope_id = ? AND alias = ?", scope.Kind, scope.ID, alias).
		Delete(&st.AliasRecord{})
	if res.Error != nil {
		return fmt.Errorf("storage: delete alias: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListAliases(ctx context.Context, scope domain.Scope) ([]st.AliasRecord, error) {
	scope = normalizeScope(scope)
	var recs []st.AliasRecord
	err := s.db.WithContext(ctx).
		Where("scope_type = ? AND scope_id = ?", scope.Kind, scope.ID).
		Order("alias").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("storage: list aliases: %w", err)
	}
	return recs, nil
}

func (s *SQLStore) AppendCommand(ctx context.Context, rec st.CommandHistory) error {
	rec.ID = 0
	if rec.Datetime.IsZero() {
		rec.Datetime = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("storage: append command: %w", err)
	}
	return nil
}

func (s *SQLStore) RecentCommands(ctx context.Context, scope domain.Scope, limit int) ([]st.CommandHistory, error) {
	if limit <= 0 || limit > commandHistoryLimit {
		limit = commandHistoryLimit
	}
	var recs []st.CommandHistory
	err := s.db.WithContext(ctx).
		Where("scope_type = ? AND scope_id = ?", scope.Kind, scope.ID).
		Order("datetime DESC, id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("storage: recent commands: %w", err)
	}
	return recs, nil
}

func (s *SQLStore) PruneHistory(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("datetime < ?", before).Delete(&st.CommandHistory{})
	if res.Error != nil {
		return 0, fmt.Errorf("storage: prune history: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *SQLStore) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}
