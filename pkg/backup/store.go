package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("backup: store is closed")

// FileStore writes one CBOR file per snapshot into Dir and keeps the
// newest Keep files of each run. Keep < 1 keeps everything.
type FileStore struct {
	Dir  string
	Keep int
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, keep int) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	return &FileStore{Dir: dir, Keep: keep}, nil
}

// Path returns the file name used for s.
func (f *FileStore) Path(s *Snapshot) string {
	return filepath.Join(f.Dir, fmt.Sprintf("%s-%012d.cbor", s.RunID, s.Tick))
}

// Save writes s atomically and prunes old snapshots of the same run.
func (f *FileStore) Save(ctx context.Context, s *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("backup: marshal snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(f.Dir, "snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("backup: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("backup: close %s: %w", tmp.Name(), err)
	}
	path := f.Path(s)
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("backup: %w", err)
	}
	log.Infof("snapshot of tick %d saved to %s (%d organisms)", s.Tick, path, len(s.Orgs))
	return f.prune(s.RunID)
}

// List returns the snapshot files of a run, oldest first.
func (f *FileStore) List(runID string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(f.Dir, runID+"-*.cbor"))
	if err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (f *FileStore) prune(runID string) error {
	if f.Keep < 1 {
		return nil
	}
	files, err := f.List(runID)
	if err != nil {
		return err
	}
	for len(files) > f.Keep {
		if err := os.Remove(files[0]); err != nil {
			log.Warningf("cannot remove old snapshot %s: %v", files[0], err)
		}
		files = files[1:]
	}
	return nil
}

// Load reads a snapshot file.
func (f *FileStore) Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	return Unmarshal(data)
}

// Close implements Store.
func (f *FileStore) Close() error { return nil }

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS snapshots (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id     TEXT    NOT NULL,
		tick       INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		orgs       INTEGER NOT NULL,
		body       BLOB    NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS snapshots_run_tick ON snapshots(run_id, tick)`,
}

// SQLiteStore keeps CBOR snapshots in a SQLite table and the newest Keep
// rows of each run. Keep < 1 keeps everything.
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	keep int
}

// OpenSQLite opens or creates the database at dsn.
func OpenSQLite(dsn string, keep int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("backup: open %s: %w", dsn, err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("backup: create schema in %s: %w", dsn, err)
		}
	}
	return &SQLiteStore{db: db, keep: keep}, nil
}

// Save inserts s and prunes old rows of the same run.
func (st *SQLiteStore) Save(ctx context.Context, s *Snapshot) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.db == nil {
		return ErrClosed
	}
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("backup: marshal snapshot: %w", err)
	}
	_, err = st.db.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, tick, created_at, orgs, body) VALUES (?, ?, ?, ?, ?)`,
		s.RunID, s.Tick, s.Created, len(s.Orgs), data)
	if err != nil {
		return fmt.Errorf("backup: insert snapshot: %w", err)
	}
	if st.keep > 0 {
		_, err = st.db.ExecContext(ctx,
			`DELETE FROM snapshots WHERE run_id = ? AND id NOT IN (
				SELECT id FROM snapshots WHERE run_id = ? ORDER BY tick DESC, id DESC LIMIT ?)`,
			s.RunID, s.RunID, st.keep)
		if err != nil {
			return fmt.Errorf("backup: prune snapshots: %w", err)
		}
	}
	log.Infof("snapshot of tick %d stored (%d organisms, %d bytes)", s.Tick, len(s.Orgs), len(data))
	return nil
}

// Count returns the number of stored snapshots of a run.
func (st *SQLiteStore) Count(ctx context.Context, runID string) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.db == nil {
		return 0, ErrClosed
	}
	var n int
	err := st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("backup: count snapshots: %w", err)
	}
	return n, nil
}

// Latest returns the snapshot with the highest tick of a run.
func (st *SQLiteStore) Latest(ctx context.Context, runID string) (*Snapshot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.db == nil {
		return nil, ErrClosed
	}
	var data []byte
	err := st.db.QueryRowContext(ctx,
		`SELECT body FROM snapshots WHERE run_id = ? ORDER BY tick DESC, id DESC LIMIT 1`, runID).Scan(&data)
	if err != nil {
		return nil, fmt.Errorf("backup: latest snapshot of %s: %w", runID, err)
	}
	return Unmarshal(data)
}

// Close closes the database. Further calls return ErrClosed.
func (st *SQLiteStore) Close() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.db == nil {
		return ErrClosed
	}
	err := st.db.Close()
	st.db = nil
	return err
}

// Multi saves to every store and joins their errors.
type Multi []Store

func (m Multi) Save(ctx context.Context, s *Snapshot) error {
	var errs []error
	for _, st := range m {
		if err := st.Save(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, st := range m {
		if err := st.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
