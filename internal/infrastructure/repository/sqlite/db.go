// Package sqlite opens the platform database file produced by the ingestion
// pipeline. This service only reads from it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kirillkom/platform-qa/internal/infrastructure/repository/sqlstore"
	"github.com/kirillkom/platform-qa/internal/infrastructure/resilience"
)

// OpenDB opens path read-only. A missing file is an error rather than a new
// empty database.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat sqlite database: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func NewChunkRepository(db *sql.DB, exec *resilience.Executor) *sqlstore.ChunkRepository {
	return sqlstore.NewChunkRepository(db, sqlstore.SQLite, exec, classifySQLiteError)
}

// classifySQLiteError retries lock contention with the ingestion writer.
func classifySQLiteError(err error) resilience.ErrorClassification {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
		}
	}
	return sqlstore.ClassifyError(err)
}
