package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/platform-qa/internal/infrastructure/repository/sqlstore"
	"github.com/kirillkom/platform-qa/internal/infrastructure/resilience"
)

func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// NewChunkRepository reads chunks and parties from the shared ingestion schema.
func NewChunkRepository(db *sql.DB, exec *resilience.Executor) *sqlstore.ChunkRepository {
	return sqlstore.NewChunkRepository(db, sqlstore.Postgres, exec, classifyPostgresError)
}

func classifyPostgresError(err error) resilience.ErrorClassification {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "57P01",
			pgErr.Code == "57P03",
			pgErr.Code == "53300",
			pgErr.Code == "40001":
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			// Schema and syntax errors will not heal on retry.
			return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
		}
	}
	if pgconn.SafeToRetry(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return sqlstore.ClassifyError(err)
}
