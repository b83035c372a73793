package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/curtistech/unlock-server/internal/model"
)

// FileStore keeps every record in one JSON document mapping code to record.
// Each mutation rewrites the document atomically while holding the store
// lock, so read-modify-write never loses a concurrent update.
type FileStore struct {
	path    string
	mu      sync.RWMutex
	records recordMap
}

// NewFileStore loads path, treating a missing file as an empty ledger.
// A file that exists but cannot be parsed is an error: starting empty would
// silently discard issued codes on the next write.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, records: make(recordMap)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", path).Msg("ledger file not found, starting empty")
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.records); err != nil {
			return nil, fmt.Errorf("parse ledger file %s: %w", path, err)
		}
	}

	for code, rec := range s.records {
		if rec.Code == "" {
			rec.Code = code
		}
		if rec.State == "" {
			rec.State = model.RedemptionStateUnused
		}
	}

	log.Info().Str("path", path).Int("records", len(s.records)).Msg("ledger file loaded")
	return s, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) FindByCode(ctx context.Context, code string) (*model.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[code]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (s *FileStore) FindBySessionID(ctx context.Context, sessionID string) (*model.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.records.findBySessionID(sessionID), nil
}

func (s *FileStore) List(ctx context.Context) ([]model.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.records.list(), nil
}

func (s *FileStore) Save(ctx context.Context, rec *model.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.records[rec.Code]
	s.records.save(rec)

	if err := s.flushLocked(); err != nil {
		s.restoreLocked(rec.Code, prev)
		return err
	}
	return nil
}

func (s *FileStore) MarkUsed(ctx context.Context, code string, usedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.records[code]
	if !ok {
		return false, nil
	}
	prev = prev.Clone()

	if !s.records.markUsed(code, usedAt) {
		return false, nil
	}

	if err := s.flushLocked(); err != nil {
		s.restoreLocked(code, prev)
		return false, err
	}
	return true, nil
}

func (s *FileStore) Ping(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("ledger directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("ledger directory %s is not a directory", dir)
	}
	return nil
}

func (s *FileStore) restoreLocked(code string, prev *model.Redemption) {
	if prev == nil {
		delete(s.records, code)
		return
	}
	s.records[code] = prev
}

func (s *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write ledger file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync ledger file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close ledger file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}
