// Package datastore keeps a map of JSON documents in memory and mirrors it to
// a single file. Writes go through a temp file and a rename; unchanged
// snapshots are skipped by checksum and the previous file can be kept as a
// rotating backup.
package datastore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed      = errors.New("datastore: closed")
	ErrMemoryLimit = errors.New("datastore: memory limit exceeded")
)

type options struct {
	autosave time.Duration
	maxBytes int64
	backups  int
	logger   zerolog.Logger
}

// Option tunes Open.
type Option func(*options)

// WithAutoSave flushes dirty state every d. Zero disables the loop and leaves
// flushing to Flush and Close.
func WithAutoSave(d time.Duration) Option { return func(o *options) { o.autosave = d } }

// WithMemoryLimit caps the summed size of the stored documents. Zero is unlimited.
func WithMemoryLimit(n int64) Option { return func(o *options) { o.maxBytes = n } }

// WithBackups keeps the n most recent copies of the file next to it.
func WithBackups(n int) Option { return func(o *options) { o.backups = n } }

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.logger = l } }

type Store struct {
	path string
	opts options

	mu     sync.RWMutex
	docs   map[string]json.RawMessage
	size   int64
	closed bool

	flushMu  sync.Mutex
	lastSum  [sha256.Size]byte
	stopSave context.CancelFunc
	saving   sync.WaitGroup
}

// Open loads the store at path, creating the file and its directory when
// missing. Defaults: autosave every 10s, 100MB limit, 3 backups.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("datastore: empty path")
	}
	o := options{
		autosave: 10 * time.Second,
		maxBytes: 100 << 20,
		backups:  3,
		logger:   log.With().Str("component", "datastore").Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("datastore: %w", err)
	}

	s := &Store{path: path, opts: o, docs: make(map[string]json.RawMessage)}
	switch err := s.load(); {
	case errors.Is(err, os.ErrNotExist):
		if err := s.replaceFile([]byte("{}")); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if o.autosave > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopSave = cancel
		s.saving.Add(1)
		go s.autosave(ctx)
	}
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	docs := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("datastore: decode %s: %w", s.path, err)
	}
	if docs == nil {
		docs = make(map[string]json.RawMessage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = docs
	s.size = 0
	for _, d := range docs {
		s.size += int64(len(d))
	}
	return nil
}

// Put stores value as JSON under key.
func (s *Store) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("datastore: encode %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	size := s.size - int64(len(s.docs[key])) + int64(len(raw))
	if s.opts.maxBytes > 0 && size > s.opts.maxBytes {
		return ErrMemoryLimit
	}
	s.docs[key] = raw
	s.size = size
	return nil
}

// Get decodes the document at key into out and reports whether it exists.
func (s *Store) Get(key string, out any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.docs[key]
	closed := s.closed
	s.mu.RUnlock()

	switch {
	case closed:
		return false, ErrClosed
	case !ok:
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("datastore: decode %q: %w", key, err)
	}
	return true, nil
}

// Delete reports whether key was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[key]
	if s.closed || !ok {
		return false
	}
	s.size -= int64(len(raw))
	delete(s.docs, key)
	return true
}

// Keys lists the keys starting with prefix in lexical order.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	var keys []string
	for k := range s.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// Len is the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Flush writes the current state to disk now.
func (s *Store) Flush() error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return s.flush()
}

// Close stops the autosave loop and performs a last flush. Later calls are no-ops.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.stopSave != nil {
		s.stopSave()
		s.saving.Wait()
	}
	return s.flush()
}

func (s *Store) flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	snapshot, err := json.MarshalIndent(s.docs, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("datastore: encode snapshot: %w", err)
	}

	sum := sha256.Sum256(snapshot)
	if sum == s.lastSum {
		return nil
	}
	if s.opts.backups > 0 {
		if err := s.backup(); err != nil {
			s.opts.logger.Warn().Err(err).Msg("backup failed")
		}
	}
	if err := s.replaceFile(snapshot); err != nil {
		return err
	}

	written, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("datastore: verify: %w", err)
	}
	if sha256.Sum256(written) != sum {
		return errors.New("datastore: verify: checksum mismatch")
	}
	s.lastSum = sum
	return nil
}

// replaceFile writes data next to the target, syncs it and renames it over.
func (s *Store) replaceFile(data []byte) (err error) {
	tmp := s.path + ".tmp"
	defer func() {
		if err != nil {
			os.Remove(tmp)
			err = fmt.Errorf("datastore: write %s: %w", s.path, err)
		}
	}()

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err = f.Write(data); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) backup() error {
	src, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer src.Close()

	name := s.path + ".backup." + time.Now().Format("20060102_150405.000000")
	dst, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	s.pruneBackups()
	return nil
}

// pruneBackups drops the oldest backups beyond the configured count. Backup
// names embed a sortable timestamp.
func (s *Store) pruneBackups() {
	names, err := filepath.Glob(s.path + ".backup.*")
	if err != nil || len(names) <= s.opts.backups {
		return
	}
	slices.Sort(names)
	for _, name := range names[:len(names)-s.opts.backups] {
		if err := os.Remove(name); err != nil {
			s.opts.logger.Warn().Err(err).Str("file", name).Msg("remove backup")
		}
	}
}

func (s *Store) autosave(ctx context.Context) {
	defer s.saving.Done()
	ticker := time.NewTicker(s.opts.autosave)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.flush(); err != nil {
				s.opts.logger.Error().Err(err).Msg("autosave failed")
			}
		}
	}
}
