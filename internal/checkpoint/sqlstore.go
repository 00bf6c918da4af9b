package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLStore keeps flags in a sqlite table so several processes can share them.
type SQLStore struct {
	mu     sync.Mutex
	db     *sql.DB
	ownsDB bool
	now    func() time.Time
}

// NewSQLStore opens (or creates) the sqlite file at path.
func NewSQLStore(path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("checkpoint store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLStore{db: db, ownsDB: true, now: time.Now}, nil
}

// NewSQLStoreFromDB reuses an already open database. Close leaves it open.
func NewSQLStoreFromDB(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("external db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_expires ON checkpoints(expires_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("checkpoint schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("checkpoint store is closed")
	}
	return s.db, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	db, err := s.handle()
	if err != nil {
		return "", false, err
	}
	var value string
	var expires int64
	err = db.QueryRowContext(ctx, `SELECT value, expires_at FROM checkpoints WHERE key = ?`, key).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if expires <= s.now().UnixMilli() {
		return "", false, nil
	}
	return value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	expires := s.now().Add(ttl).UnixMilli()
	_, err = db.ExecContext(ctx, `INSERT INTO checkpoints(key, value, expires_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expires)
	return err
}

// Prune deletes expired flags and reports how many were removed.
func (s *SQLStore) Prune(ctx context.Context) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM checkpoints WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	var err error
	if s.ownsDB {
		err = s.db.Close()
	}
	s.db = nil
	return err
}
