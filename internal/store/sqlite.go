package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
)

// OpenSQLite opens the side-table database at path in WAL mode.
// An empty path gives a private in-memory database.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fterrors.StorageError("failed to create database directory", err)
		}
		if err := CheckSQLiteIntegrity(path); err != nil {
			slog.Warn("side table database corrupted",
				slog.String("path", path),
				slog.String("error", err.Error()))
			for _, p := range []string{path, path + "-wal", path + "-shm"} {
				if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
					return nil, fterrors.New(fterrors.ErrCodeCorruptIndex, "database corrupted and cannot be removed", rmErr).
						WithDetail("path", path)
				}
			}
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fterrors.StorageError("failed to open database", err)
	}

	// single connection: one writer, and :memory: stays one database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fterrors.StorageError("failed to set pragma", err).WithDetail("pragma", pragma)
		}
	}
	return db, nil
}

// CheckSQLiteIntegrity runs PRAGMA integrity_check on an existing database.
// A missing database is not an error.
func CheckSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}
