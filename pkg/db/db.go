package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB is the run ledger. It records what each pipeline run did; the JSONL
// stores remain the only source of truth for what is already processed.
type DB struct {
	*sql.DB
	path string
}

// connect opens the ledger file with run_skips cascading on run deletion.
// ":memory:" ledgers live in a single connection, so the pool is capped at one.
func connect(dbPath string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to enable run_skips cascade: %w", err)
	}
	return sqlDB, nil
}

// Open opens or creates the ledger at dbPath, creating parent directories.
func Open(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := connect(dbPath)
	if err != nil {
		return nil, err
	}

	db := &DB{DB: sqlDB, path: dbPath}
	if err := db.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create ledger tables: %w", err)
	}
	return db, nil
}

// migrate creates the runs and run_skips tables in a new ledger file.
func (db *DB) migrate() error {
	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'runs'`).Scan(&name)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return db.InitSchema()
	case err != nil:
		return fmt.Errorf("failed to inspect ledger: %w", err)
	default:
		return nil
	}
}

func (db *DB) Path() string { return db.path }

// InitSchema creates the ledger tables. It is idempotent.
func (db *DB) InitSchema() error {
	_, err := db.Exec(schema)
	return err
}
