package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/core-coin/handlemint/internal/models"
	"github.com/core-coin/handlemint/pkg/logger"
)

// serializationFailure is the postgres SQLSTATE for a serializable conflict.
const serializationFailure = "40001"

type DB struct {
	logger *logger.Logger

	Conn *gorm.DB
	// serializable is set for dialects that need SERIALIZABLE isolation to make
	// predicate checks atomic with the write that follows them.
	serializable bool
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	db, err := open(postgres.Open(dsn), logger, true)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return db, nil
}

// NewSQLiteDB opens an embedded database. SQLite has a single writer, so the pool is
// capped at one connection and every transaction is serialized.
func NewSQLiteDB(path string, logger *logger.Logger) (*DB, error) {
	db, err := open(sqlite.Open(path), logger, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	logger.Debugw("Opened SQLite database", "path", path)
	return db, nil
}

func open(dialector gorm.Dialector, logger *logger.Logger, serializable bool) (*DB, error) {
	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	conn, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger, TranslateError: true})
	if err != nil {
		return nil, err
	}

	db := &DB{Conn: conn, logger: logger, serializable: serializable}
	if err := db.migrate(); err != nil {
		return nil, err
	}
	if err := db.seed(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	if err := db.Conn.AutoMigrate(
		&models.ActiveSession{},
		&models.MintingWallet{},
		&models.MintingCacheEntry{},
		&models.State{},
		&models.Settings{},
		&models.AppLock{},
		&models.Payment{},
		&models.PaymentAddress{},
		&models.StakePool{},
		&models.ReservedHandle{},
		&models.AlertRecipient{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate models: %w", err)
	}
	return nil
}

// seed creates the State and Settings singletons if they don't exist yet.
func (db *DB) seed() error {
	if err := db.Conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.State{ID: models.SingletonID}).Error; err != nil {
		return fmt.Errorf("failed to seed state: %w", err)
	}
	if err := db.Conn.Clauses(clause.OnConflict{DoNothing: true}).Create(models.DefaultSettings()).Error; err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

// transaction runs fn in a transaction. When strict is set and the dialect needs it,
// the transaction runs with SERIALIZABLE isolation and is retried once on a
// serialization failure. fn must be safe to run again.
func (db *DB) transaction(ctx context.Context, strict bool, fn func(tx *gorm.DB) error) error {
	if strict && db.serializable {
		return retrySerialization(func() error {
			return db.Conn.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelSerializable})
		})
	}
	return db.Conn.WithContext(ctx).Transaction(fn)
}

func retrySerialization(run func() error) error {
	err := run()
	if isSerializationFailure(err) {
		err = run()
	}
	return err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == serializationFailure
}

func isConflict(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrNotFound
	}
	return err
}

// forUpdate locks selected rows on dialects that support it. SQLite ignores it.
func forUpdate() clause.Expression {
	return clause.Locking{Strength: "UPDATE"}
}

func forUpdateSkipLocked() clause.Expression {
	return clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
