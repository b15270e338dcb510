// Package d1 is a SQL storage backend. It runs on a local SQLite file by
// default and on PostgreSQL when the database ID is a connection URL.
package d1

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/moontv/gateway/internal/storage"
)

const (
	driverSQLite   = "sqlite3"
	driverPostgres = "postgres"

	adminConfigKey = "admin"
)

// Config selects the database.
type Config struct {
	// DatabaseID names a SQLite file under DataDir, or is a postgres:// URL.
	DatabaseID string
	DataDir    string
}

// Store implements storage.Backend on a SQL database.
type Store struct {
	db *sqlx.DB
}

var _ storage.Backend = (*Store)(nil)

// Open connects to the database and applies migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver, dsn, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("d1: connection to %s database failed: %w", driver, err)
	}
	if driver == driverSQLite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing handle without running migrations.
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func resolve(cfg Config) (driver, dsn string, err error) {
	id := strings.TrimSpace(cfg.DatabaseID)
	if id == "" {
		return "", "", errors.New("d1: missing environment variable D1_DATABASE_ID")
	}
	if strings.HasPrefix(id, "postgres://") || strings.HasPrefix(id, "postgresql://") {
		return driverPostgres, id, nil
	}
	if strings.ContainsAny(id, `/\`) {
		return "", "", fmt.Errorf("d1: invalid database id %q", id)
	}

	dir := cfg.DataDir
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("d1: create data dir: %w", err)
	}
	return driverSQLite, filepath.Join(dir, id+".db"), nil
}

func (s *Store) CheckUserExist(ctx context.Context, username string) (bool, error) {
	var n int
	query := s.db.Rebind(`SELECT COUNT(1) FROM users WHERE username = ?`)
	if err := s.db.GetContext(ctx, &n, query, username); err != nil {
		return false, fmt.Errorf("d1: check user: %w", err)
	}
	return n > 0, nil
}

// RegisterUser relies on the primary key; a conflicting insert affects no rows
// and reports storage.ErrUserExists.
func (s *Store) RegisterUser(ctx context.Context, username, password string) error {
	hash, err := storage.HashPassword(password)
	if err != nil {
		return err
	}

	query := s.db.Rebind(`INSERT INTO users (username, password) VALUES (?, ?) ON CONFLICT (username) DO NOTHING`)
	res, err := s.db.ExecContext(ctx, query, username, hash)
	if err != nil {
		return fmt.Errorf("d1: register user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("d1: register user: %w", err)
	}
	if n == 0 {
		return storage.ErrUserExists
	}
	return nil
}

func (s *Store) GetAdminConfig(ctx context.Context) (*storage.AdminConfig, error) {
	var raw string
	query := s.db.Rebind(`SELECT config FROM admin_config WHERE key = ?`)
	err := s.db.GetContext(ctx, &raw, query, adminConfigKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("d1: get admin config: %w", err)
	}

	var cfg storage.AdminConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("d1: decode admin config: %w", err)
	}
	return &cfg, nil
}

func (s *Store) SaveAdminConfig(ctx context.Context, cfg *storage.AdminConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("d1: encode admin config: %w", err)
	}

	query := s.db.Rebind(`INSERT INTO admin_config (key, config) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET config = excluded.config, updated_at = CURRENT_TIMESTAMP`)
	if _, err := s.db.ExecContext(ctx, query, adminConfigKey, string(raw)); err != nil {
		return fmt.Errorf("d1: save admin config: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("d1: connection check failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
