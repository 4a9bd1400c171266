package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/tgienger/taskmanager/internal/metrics"
)

//go:embed schema.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

// ErrNotFound is returned when a lookup, update or delete matches no row.
var ErrNotFound = errors.New("record not found")

// Dialect identifies the SQL flavour behind a DB.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// DB wraps the database connection
type DB struct {
	*sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// Options controls how the store is opened.
type Options struct {
	DSN          string
	MaxOpenConns int
}

// Open connects to the store named by opts.DSN and initializes the schema.
// Postgres URLs and keyword DSNs go through pgx; anything else is treated as
// a SQLite file path.
func Open(opts Options, logger *zap.Logger) (*DB, error) {
	dialect := DialectFor(opts.DSN)

	logger.Info("Opening task store", zap.Stringer("dialect", dialect))

	var (
		conn *sql.DB
		err  error
	)
	switch dialect {
	case Postgres:
		cfg, perr := pgx.ParseConfig(opts.DSN)
		if perr != nil {
			return nil, fmt.Errorf("parse postgres dsn: %w", perr)
		}
		conn = stdlib.OpenDB(*cfg)
		if opts.MaxOpenConns > 0 {
			conn.SetMaxOpenConns(opts.MaxOpenConns)
			conn.SetMaxIdleConns(opts.MaxOpenConns)
		}
		conn.SetConnMaxIdleTime(time.Minute)
	default:
		conn, err = sql.Open("sqlite3", sqliteDSN(opts.DSN))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// SQLite serializes writers anyway; one connection avoids "database is locked".
		conn.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		logger.Error("Task store ping failed", zap.Error(err))
		return nil, fmt.Errorf("ping: %w", err)
	}

	db := &DB{DB: conn, dialect: dialect, logger: logger}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("Task store ready", zap.Stringer("dialect", dialect))
	return db, nil
}

// DialectFor reports which driver Open would use for dsn.
func DialectFor(dsn string) Dialect {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Postgres
	case strings.Contains(lower, "host="):
		return Postgres
	}
	return SQLite
}

// Dialect returns the SQL flavour of the store.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

func sqliteDSN(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_busy_timeout=5000"
}

func (db *DB) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if db.dialect == Postgres {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.logger.Error("Failed to apply schema", zap.Error(err))
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $1, $2, ... for Postgres.
func (db *DB) rebind(query string) string {
	if db.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func observe(operation, table string, start time.Time) {
	metrics.RecordDBQueryDuration(operation, table, time.Since(start))
}

// DefaultPath returns the SQLite file used when no connection string is configured.
func DefaultPath() (string, error) {
	// Use XDG data directory or fallback to home directory
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, ".local", "share")
	}

	appDir := filepath.Join(dataDir, "stm")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		return "", err
	}

	return filepath.Join(appDir, "stm.db"), nil
}
