package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fundledger/internal/store"
	"fundledger/internal/store/model"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type SqliteStore struct {
	db *gorm.DB
}

func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	// every in-memory store gets its own named database
	dsn := fmt.Sprintf("file:ledger-%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString())
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return newSqliteStore(db)
}

func NewSqliteStoreFromDB(db *gorm.DB) (*SqliteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	return newSqliteStore(db)
}

func newSqliteStore(db *gorm.DB) (*SqliteStore, error) {
	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("migrate ledger schema: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// one writer at a time; WAL lets readers proceed
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	return &SqliteStore{db: db}, nil
}

// DB exposes the underlying handle for tooling.
func (s *SqliteStore) DB() *gorm.DB { return s.db }

func (s *SqliteStore) Accounts() store.AccountRepository   { return NewAccountRepo(s.db) }
func (s *SqliteStore) Positions() store.PositionRepository { return NewPositionRepo(s.db) }
func (s *SqliteStore) Flows() store.FlowRepository         { return NewFlowRepo(s.db) }
func (s *SqliteStore) Snapshots() store.SnapshotRepository { return NewSnapshotRepo(s.db) }
func (s *SqliteStore) Dividends() store.DividendRepository { return NewDividendRepo(s.db) }
func (s *SqliteStore) RunLogs() store.RunLogRepository     { return NewRunLogRepo(s.db) }

func (s *SqliteStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormUnitOfWork{tx: tx}, nil
}

func (s *SqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormUnitOfWork struct {
	tx   *gorm.DB
	done bool
}

func (u *gormUnitOfWork) Accounts() store.AccountRepository   { return NewAccountRepo(u.tx) }
func (u *gormUnitOfWork) Positions() store.PositionRepository { return NewPositionRepo(u.tx) }
func (u *gormUnitOfWork) Flows() store.FlowRepository         { return NewFlowRepo(u.tx) }
func (u *gormUnitOfWork) Snapshots() store.SnapshotRepository { return NewSnapshotRepo(u.tx) }
func (u *gormUnitOfWork) Dividends() store.DividendRepository { return NewDividendRepo(u.tx) }

func (u *gormUnitOfWork) Commit() error {
	u.done = true
	return u.tx.Commit().Error
}

func (u *gormUnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Rollback().Error
}

var (
	_ store.Store       = (*SqliteStore)(nil)
	_ store.RunLogStore = (*SqliteStore)(nil)
)
