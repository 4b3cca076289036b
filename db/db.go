package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"crmcore/model"
)

// dsnParams enables foreign keys and takes the write lock at BEGIN so two
// writers never both read a stale order total.
const dsnParams = "_foreign_keys=on&_txlock=immediate&_busy_timeout=5000"

// DSN turns a database file path into a go-sqlite3 DSN. ":memory:" yields a
// private shared-cache in-memory database.
func DSN(path string) string {
	if path == "" || path == ":memory:" {
		return MemoryDSN()
	}
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?" + dsnParams + "&_journal_mode=WAL"
}

// MemoryDSN returns a DSN for a fresh, uniquely named in-memory database.
func MemoryDSN() string {
	return "file:crm-" + uuid.NewString() + "?mode=memory&cache=shared&" + dsnParams
}

// OpenSQL opens and pings a SQLite connection pool.
// SQLite allows a single writer, so the pool is capped at one connection;
// this also keeps in-memory databases alive for the life of the pool.
func OpenSQL(ctx context.Context, dsn string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return sqlDB, nil
}

// gormRoots caches a single *gorm.DB per *sql.DB so we don't call gorm.Open
// for every unit of work. Entries are not pruned; reuse *sql.DB for the app lifetime.
var gormRoots sync.Map

// Gorm returns the GORM root bound to sqlDB.
func Gorm(sqlDB *sql.DB, log *zap.Logger) (*gorm.DB, error) {
	if v, ok := gormRoots.Load(sqlDB); ok {
		return v.(*gorm.DB), nil
	}
	gdb, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger:         NewGormLogger(log),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	actual, _ := gormRoots.LoadOrStore(sqlDB, gdb)
	return actual.(*gorm.DB), nil
}

// Forget drops the cached GORM root for sqlDB, typically right before closing it.
func Forget(sqlDB *sql.DB) { gormRoots.Delete(sqlDB) }

// Migrate creates or updates the customers, products, orders and order_items tables.
func Migrate(ctx context.Context, gdb *gorm.DB) error {
	if err := gdb.WithContext(ctx).AutoMigrate(model.Models()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Open is OpenSQL + Gorm + Migrate, the usual start-up sequence.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*gorm.DB, func() error, error) {
	sqlDB, err := OpenSQL(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	gdb, err := Gorm(sqlDB, log)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	if err := Migrate(ctx, gdb); err != nil {
		Forget(sqlDB)
		_ = sqlDB.Close()
		return nil, nil, err
	}
	closeFn := func() error {
		Forget(sqlDB)
		return sqlDB.Close()
	}
	return gdb, closeFn, nil
}
