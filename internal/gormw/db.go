// Package gormw provides a wrapped gorm.
package gormw

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"

	"github.com/welcomarr/welcomarr/internal/models"
)

var (
	logger = zlog.With().Str("component", "db").Logger()
)

const (
	memoryDSN = ":memory:"

	defaultConflictRetries = 5
	conflictBackoff        = 20 * time.Millisecond
)

type DB struct {
	*gorm.DB

	retries int
}

type Config struct {
	// DSN the Data Source Name.
	DSN string `yaml:"dsn"`

	// Disable automatic ping.
	DisableAutomaticPing bool `yaml:"disable_automatic_ping"`

	// Max DB open connections.
	MaxOpenConns int `yaml:"max_open_conns"`

	// Max DB idle connections.
	MaxIdleConns int `yaml:"max_idle_conns"`

	// ConflictRetries is how many times a transaction hitting a write
	// conflict is attempted before giving up.
	ConflictRetries int `yaml:"conflict_retries"`

	LogLevel glog.LogLevel `yaml:"log_level"`
}

func (cfg *Config) applyDefaults() {
	if cfg.DSN == "" {
		// use sqlite DB memory mode by default.
		cfg.DSN = memoryDSN
		logger.Warn().Msg("Using in-memory sqlite DB, should not be used in production")
	}

	if cfg.DSN == memoryDSN {
		// every sqlite connection opens its own memory DB.
		cfg.MaxOpenConns = 1
	}

	if cfg.MaxIdleConns <= 0 {
		// golang's default.
		cfg.MaxIdleConns = 2
	}

	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = defaultConflictRetries
	}

	if cfg.LogLevel < glog.Silent || cfg.LogLevel > glog.Info {
		// INFO by default.
		cfg.LogLevel = glog.Info
	}
}

func isPostgresDSN(dsn string) bool {
	return regexp.MustCompile(`^postgres(ql)?://`).MatchString(dsn) ||
		len(strings.Fields(dsn)) >= 3
}

func Open(cfg *Config) (*DB, error) {
	cfg.applyDefaults()

	var dialector gorm.Dialector
	// We try to parse it as postgresql, otherwise
	// fallback to sqlite.
	if isPostgresDSN(cfg.DSN) {
		dialector = postgres.New(postgres.Config{
			DSN: cfg.DSN,
		})
	} else {
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: glog.New(
			&logger,
			glog.Config{
				SlowThreshold:             100 * time.Millisecond,
				LogLevel:                  cfg.LogLevel,
				IgnoreRecordNotFoundError: true,
				ParameterizedQueries:      true,
				Colorful:                  false,
			},
		),
		PrepareStmt:          true,
		TranslateError:       true,
		DisableAutomaticPing: cfg.DisableAutomaticPing,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	if sqlDB, err := db.DB(); err == nil /* ignore error */ {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return &DB{DB: db, retries: cfg.ConflictRetries}, nil
}

// sqliteDSN turns on foreign keys, and for file databases a busy timeout so
// concurrent writers wait for the lock instead of failing at once.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	pragmas := "_pragma=foreign_keys(1)"
	if dsn != memoryDSN {
		pragmas += "&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return dsn + sep + pragmas
}

// Migrate calls gorm.DB AutoMigrate() with all models in this project.
func (db *DB) Migrate() error {
	return db.AutoMigrate(
		&models.Admin{},
		&models.Settings{},
		&models.Library{},
		&models.Invitation{},
		&models.User{},
	)
}

// IsConflict reports whether err is a transient write conflict: a locked
// sqlite database or a postgres serialization failure or deadlock.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

// ErrConflictRetriesExhausted wraps the last conflict once retries run out.
var ErrConflictRetriesExhausted = errors.New("write conflict retries exhausted")

// TransactionWithRetry runs fn in a transaction, retrying the whole
// transaction while it fails with a write conflict.
func (db *DB) TransactionWithRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	retries := db.retries
	if retries <= 0 {
		retries = defaultConflictRetries
	}

	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		err = db.WithContext(ctx).Transaction(fn)
		if !IsConflict(err) {
			return err
		}

		logger.Warn().Err(err).Int("attempt", attempt).Msg("Transaction conflict, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * conflictBackoff):
		}
	}
	return errors.Join(ErrConflictRetriesExhausted, err)
}
