package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"
)

const memoryPath = ":memory:"

// Open connects to the service database through libSQL.
//
// path is either a local file (created along with its directory), ":memory:"
// for a private database pinned to a single connection, or a libsql:// or
// https:// URL of a remote libSQL server. Local databases get a 5 s busy
// timeout, foreign keys and, for files, WAL journaling.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn, local, err := prepare(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == memoryPath {
		db.SetMaxOpenConns(1)
	}

	if local {
		if err := configure(ctx, db, path != memoryPath); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

func isRemote(path string) bool {
	for _, scheme := range []string{"libsql://", "https://", "http://"} {
		if strings.HasPrefix(path, scheme) {
			return true
		}
	}
	return false
}

// prepare turns path into a driver DSN and reports whether it is local.
func prepare(path string) (string, bool, error) {
	switch {
	case path == "":
		return "", false, fmt.Errorf("database path is empty")
	case isRemote(path):
		return path, false, nil
	case path == memoryPath:
		return "file:" + path, true, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", false, fmt.Errorf("creating database directory: %w", err)
		}
	}
	return "file:" + path, true, nil
}

// configure applies the connection pragmas. libSQL rejects Exec for PRAGMAs
// that return rows, so every statement goes through Query and is drained.
func configure(ctx context.Context, db *sql.DB, wal bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	if wal {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		rows, err := db.QueryContext(ctx, p)
		if err != nil {
			return fmt.Errorf("executing %s: %w", p, err)
		}
		rows.Close()
	}
	return nil
}
