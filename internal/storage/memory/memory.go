// Package memory is a process-local backup store used for dry runs and
// tests. Nothing survives the process.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/webspoilt/code-janitor/internal/types"
)

// Store keeps backups in a map guarded by a mutex
type Store struct {
	mu      sync.RWMutex
	next    int64
	records map[int64]*types.BackupRecord

	// FailPut makes PutBackup fail (tests)
	FailPut error
}

// New creates an empty store
func New() *Store {
	return &Store{records: make(map[int64]*types.BackupRecord)}
}

func (s *Store) PutBackup(ctx context.Context, unit string, content []byte) (*types.BackupRecord, error) {
	if unit == "" {
		return nil, fmt.Errorf("unit is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPut != nil {
		return nil, s.FailPut
	}

	s.next++
	sum := sha256.Sum256(content)
	rec := &types.BackupRecord{
		Revision:  s.next,
		Unit:      unit,
		Content:   append([]byte{}, content...),
		SHA256:    hex.EncodeToString(sum[:]),
		Size:      int64(len(content)),
		CreatedAt: time.Now().UTC(),
	}
	s.records[rec.Revision] = rec
	return copyRecord(rec, true), nil
}

func (s *Store) GetBackup(ctx context.Context, revision int64) (*types.BackupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[revision]
	if !ok {
		return nil, fmt.Errorf("backup revision %d: %w", revision, types.ErrNotFound)
	}
	return copyRecord(rec, true), nil
}

func (s *Store) ListBackups(ctx context.Context, unit string) ([]*types.BackupRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.BackupRecord
	for _, rec := range s.records {
		if unit == "" || rec.Unit == unit {
			out = append(out, copyRecord(rec, false))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revision > out[j].Revision })
	return out, nil
}

func (s *Store) DeleteBackup(ctx context.Context, revision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, revision)
	return nil
}

func (s *Store) DeleteBackups(ctx context.Context, filter types.BackupFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for rev, rec := range s.records {
		if filter.Matches(rec) {
			delete(s.records, rev)
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }

// Len returns the number of stored records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyRecord(rec *types.BackupRecord, withContent bool) *types.BackupRecord {
	c := *rec
	if withContent {
		c.Content = append([]byte{}, rec.Content...)
	} else {
		c.Content = nil
	}
	return &c
}
