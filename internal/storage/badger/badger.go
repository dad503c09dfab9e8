// Package badger is an embedded key-value backup store. It keeps backups
// in a directory of their own, apart from the SQLite history database.
package badger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/webspoilt/code-janitor/internal/types"
)

var (
	revisionPrefix = []byte("backup/rev/")
	unitPrefix     = []byte("backup/unit/")
	sequenceKey    = []byte("seq/backup")
)

// Config holds configuration for the Badger backup store
type Config struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM (tests)
	InMemory bool

	// Logger receives Badger's internal log lines. Nil disables them.
	Logger *slog.Logger
}

// Store implements the backup store on Badger
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

// badgerLogger adapts slog.Logger to Badger's Logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// New opens the store. Writes are synced to disk before they return.
func New(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent backup store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create backup store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	// Leases are persisted, so revisions keep increasing across reopen
	// (with gaps for unused leases).
	seq, err := db.GetSequence(sequenceKey, 16)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("get revision sequence: %w", err)
	}

	return &Store{db: db, seq: seq}, nil
}

// Close releases the sequence lease and closes the database
func (s *Store) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}

// record is the stored value; content is kept alongside the metadata
type record struct {
	Revision  int64     `json:"revision"`
	Unit      string    `json:"unit"`
	Content   []byte    `json:"content"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *record) toBackup(withContent bool) *types.BackupRecord {
	rec := &types.BackupRecord{
		Revision:  r.Revision,
		Unit:      r.Unit,
		SHA256:    r.SHA256,
		Size:      r.Size,
		CreatedAt: r.CreatedAt,
	}
	if withContent {
		rec.Content = r.Content
		if rec.Content == nil {
			rec.Content = []byte{}
		}
	}
	return rec
}

func revisionKey(rev int64) []byte {
	key := make([]byte, len(revisionPrefix)+8)
	copy(key, revisionPrefix)
	binary.BigEndian.PutUint64(key[len(revisionPrefix):], uint64(rev))
	return key
}

func unitIndexPrefix(unit string) []byte {
	key := make([]byte, 0, len(unitPrefix)+len(unit)+1)
	key = append(key, unitPrefix...)
	key = append(key, unit...)
	return append(key, 0)
}

func unitIndexKey(unit string, rev int64) []byte {
	prefix := unitIndexPrefix(unit)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(rev))
	return key
}

// PutBackup stores a new immutable record under the next revision
func (s *Store) PutBackup(ctx context.Context, unit string, content []byte) (*types.BackupRecord, error) {
	if unit == "" {
		return nil, fmt.Errorf("unit is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next, err := s.seq.Next()
	if err != nil {
		return nil, fmt.Errorf("allocate revision: %w", err)
	}
	// Sequences start at 0; revisions start at 1
	rev := int64(next) + 1

	sum := sha256.Sum256(content)
	rec := &record{
		Revision:  rev,
		Unit:      unit,
		Content:   append([]byte{}, content...),
		SHA256:    hex.EncodeToString(sum[:]),
		Size:      int64(len(content)),
		CreatedAt: time.Now().UTC(),
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal backup: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(revisionKey(rev), value); err != nil {
			return err
		}
		return txn.Set(unitIndexKey(unit, rev), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}
	return rec.toBackup(true), nil
}

// GetBackup returns one record with its content
func (s *Store) GetBackup(ctx context.Context, revision int64) (*types.BackupRecord, error) {
	var rec *record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, revision)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("backup revision %d: %w", revision, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read backup %d: %w", revision, err)
	}
	return rec.toBackup(true), nil
}

func getRecord(txn *badger.Txn, revision int64) (*record, error) {
	item, err := txn.Get(revisionKey(revision))
	if err != nil {
		return nil, err
	}
	var rec record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListBackups returns records newest first, without content
func (s *Store) ListBackups(ctx context.Context, unit string) ([]*types.BackupRecord, error) {
	var out []*types.BackupRecord
	err := s.db.View(func(txn *badger.Txn) error {
		if unit == "" {
			return iterateReverse(txn, revisionPrefix, true, func(key []byte, item *badger.Item) error {
				var rec record
				if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
					return err
				}
				out = append(out, rec.toBackup(false))
				return nil
			})
		}

		prefix := unitIndexPrefix(unit)
		return iterateReverse(txn, prefix, false, func(key []byte, _ *badger.Item) error {
			rev := int64(binary.BigEndian.Uint64(key[len(prefix):]))
			rec, err := getRecord(txn, rev)
			if err != nil {
				return err
			}
			out = append(out, rec.toBackup(false))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	return out, nil
}

// iterateReverse walks keys under prefix from the highest down
func iterateReverse(txn *badger.Txn, prefix []byte, values bool, fn func(key []byte, item *badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.PrefetchValues = values
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	// Reverse iteration seeks to the largest key <= seek, so seek past
	// every key that starts with prefix.
	seek := append(append([]byte{}, prefix...), 0xFF)
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if err := fn(item.KeyCopy(nil), item); err != nil {
			return err
		}
	}
	return nil
}

// DeleteBackup removes one revision. A missing revision is not an error.
func (s *Store) DeleteBackup(ctx context.Context, revision int64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, revision)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return deleteRecord(txn, rec)
	})
	if err != nil {
		return fmt.Errorf("delete backup %d: %w", revision, err)
	}
	return nil
}

func deleteRecord(txn *badger.Txn, rec *record) error {
	if err := txn.Delete(revisionKey(rec.Revision)); err != nil {
		return err
	}
	return txn.Delete(unitIndexKey(rec.Unit, rec.Revision))
}

// DeleteBackups removes every record matching filter
func (s *Store) DeleteBackups(ctx context.Context, filter types.BackupFilter) (int, error) {
	if filter.IsEmpty() {
		return 0, nil
	}

	listed, err := s.ListBackups(ctx, filter.Unit)
	if err != nil {
		return 0, err
	}

	deleted := 0
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, b := range listed {
			if !filter.Matches(b) {
				continue
			}
			if err := deleteRecord(txn, &record{Revision: b.Revision, Unit: b.Unit}); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge backups: %w", err)
	}
	return deleted, nil
}
