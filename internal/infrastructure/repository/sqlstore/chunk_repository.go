// Package sqlstore reads party platform chunks from the relational schema the
// ingestion pipeline writes. The postgres and sqlite packages supply the
// driver, placeholder style and error classification.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/platform-qa/internal/core/domain"
	"github.com/kirillkom/platform-qa/internal/infrastructure/repository/vecblob"
	"github.com/kirillkom/platform-qa/internal/infrastructure/resilience"
)

type Dialect struct {
	Name        string
	Placeholder func(position int) string
}

var (
	Postgres = Dialect{Name: "postgres", Placeholder: func(position int) string { return "$" + strconv.Itoa(position) }}
	SQLite   = Dialect{Name: "sqlite", Placeholder: func(int) string { return "?" }}
)

const chunkSelect = `
SELECT de.id, dt.document_id, d.party_id, p.name, COALESCE(p.abbreviation, ''),
	COALESCE(dt.page_number, 0), COALESCE(de.chunk_index, 0), de.chunk_text, de.embedding
FROM document_embeddings de
JOIN document_text dt ON dt.id = de.document_text_id
JOIN documents d ON d.id = dt.document_id
JOIN parties p ON p.id = d.party_id
WHERE de.embedding IS NOT NULL`

const dimensionQuery = `
SELECT length(embedding) FROM document_embeddings WHERE embedding IS NOT NULL LIMIT 1`

const partySelect = `
SELECT id, name, COALESCE(abbreviation, '') FROM parties`

// ChunkRepository implements ports.ChunkStore and ports.PartyDirectory over
// database/sql. It never writes.
type ChunkRepository struct {
	db       *sql.DB
	dialect  Dialect
	exec     *resilience.Executor
	classify resilience.ErrorClassifier
}

func NewChunkRepository(db *sql.DB, dialect Dialect, exec *resilience.Executor, classify resilience.ErrorClassifier) *ChunkRepository {
	if classify == nil {
		classify = ClassifyError
	}
	return &ChunkRepository{db: db, dialect: dialect, exec: exec, classify: classify}
}

func (r *ChunkRepository) ScanChunks(ctx context.Context, filter domain.PartyFilter, visit func(domain.Chunk) error) error {
	query, args := r.scanQuery(filter)
	rows, err := resilience.Do(ctx, r.exec, r.operation("scan_chunks"), func(callCtx context.Context) (*sql.Rows, error) {
		return r.db.QueryContext(callCtx, query, args...)
	}, r.classify)
	if err != nil {
		return storeError("query chunks", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chunk domain.Chunk
		var blob []byte
		if err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.PartyID, &chunk.PartyName, &chunk.PartyCode,
			&chunk.Page, &chunk.ChunkIndex, &chunk.Text, &blob,
		); err != nil {
			return storeError("scan chunk row", err)
		}
		vec, err := vecblob.Decode(blob)
		if err != nil {
			return domain.WrapError(domain.ErrDimensionMismatch, fmt.Sprintf("decode chunk %d", chunk.ID), err)
		}
		chunk.Embedding = vec
		if err := visit(chunk); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storeError("iterate chunks", err)
	}
	return nil
}

func (r *ChunkRepository) Dimension(ctx context.Context) (int, error) {
	width, err := resilience.Do(ctx, r.exec, r.operation("dimension"), func(callCtx context.Context) (sql.NullInt64, error) {
		var bytes sql.NullInt64
		err := r.db.QueryRowContext(callCtx, dimensionQuery).Scan(&bytes)
		if errors.Is(err, sql.ErrNoRows) {
			return sql.NullInt64{}, nil
		}
		return bytes, err
	}, r.classify)
	if err != nil {
		return 0, storeError("probe dimension", err)
	}
	// No row means an empty store.
	if !width.Valid {
		return 0, nil
	}
	dim, err := vecblob.Dimension(int(width.Int64))
	if err != nil {
		return 0, domain.WrapError(domain.ErrDimensionMismatch, "probe dimension", err)
	}
	return dim, nil
}

func (r *ChunkRepository) ListParties(ctx context.Context) ([]domain.Party, error) {
	rows, err := resilience.Do(ctx, r.exec, r.operation("list_parties"), func(callCtx context.Context) (*sql.Rows, error) {
		return r.db.QueryContext(callCtx, partySelect+` ORDER BY id`)
	}, r.classify)
	if err != nil {
		return nil, storeError("list parties", err)
	}
	defer rows.Close()

	parties := make([]domain.Party, 0)
	for rows.Next() {
		var party domain.Party
		if err := rows.Scan(&party.ID, &party.Name, &party.ShortCode); err != nil {
			return nil, storeError("scan party", err)
		}
		parties = append(parties, party)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate parties", err)
	}
	return parties, nil
}

// GetPartyByCode matches the abbreviation case-insensitively.
func (r *ChunkRepository) GetPartyByCode(ctx context.Context, code string) (*domain.Party, error) {
	normalized := domain.NormalizePartyCode(code)
	if normalized == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get party by code", errors.New("party code is empty"))
	}

	query := partySelect + ` WHERE UPPER(abbreviation) = ` + r.dialect.Placeholder(1)
	party, err := resilience.Do(ctx, r.exec, r.operation("get_party"), func(callCtx context.Context) (domain.Party, error) {
		var party domain.Party
		err := r.db.QueryRowContext(callCtx, query, normalized).Scan(&party.ID, &party.Name, &party.ShortCode)
		return party, err
	}, r.classify)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPartyNotFound, "get party by code", fmt.Errorf("no party with code %q", normalized))
		}
		return nil, storeError("get party by code", err)
	}
	return &party, nil
}

func (r *ChunkRepository) scanQuery(filter domain.PartyFilter) (string, []any) {
	if filter.IsEmpty() {
		return chunkSelect, nil
	}
	ids := filter.IDs()
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = r.dialect.Placeholder(i + 1)
		args[i] = id
	}
	return chunkSelect + ` AND d.party_id IN (` + strings.Join(placeholders, ", ") + `)`, args
}

func (r *ChunkRepository) operation(name string) string {
	return r.dialect.Name + "." + name
}

func storeError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if domain.IsKind(err, domain.ErrStoreUnavailable) {
		return err
	}
	return domain.WrapError(domain.ErrStoreUnavailable, op, err)
}
