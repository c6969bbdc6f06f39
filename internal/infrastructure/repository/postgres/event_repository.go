package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/platform-qa/internal/core/domain"
)

// EventRepository stores chat telemetry consumed by the worker.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chat_events (
	id TEXT PRIMARY KEY,
	event TEXT NOT NULL,
	question TEXT NOT NULL,
	party_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	result_count INTEGER NOT NULL DEFAULT 0,
	parties_in_results JSONB NOT NULL DEFAULT '[]'::jsonb,
	turn_index INTEGER NOT NULL DEFAULT 0,
	occurred_at TIMESTAMPTZ NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_chat_events_occurred_at ON chat_events(occurred_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// SaveChatEvent is idempotent on the event id, so redelivered messages are harmless.
func (r *EventRepository) SaveChatEvent(ctx context.Context, event domain.ChatEvent) error {
	partyIDs := event.PartyIDs
	if partyIDs == nil {
		partyIDs = []int64{}
	}
	parties := event.PartiesRepresented
	if parties == nil {
		parties = []string{}
	}
	partyIDsJSON, err := json.Marshal(partyIDs)
	if err != nil {
		return fmt.Errorf("marshal party ids: %w", err)
	}
	partiesJSON, err := json.Marshal(parties)
	if err != nil {
		return fmt.Errorf("marshal parties: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO chat_events (
	id, event, question, party_ids, result_count, parties_in_results, turn_index, occurred_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING
`,
		event.ID, event.Name, event.Question, partyIDsJSON, event.ResultCount, partiesJSON, event.TurnIndex, event.OccurredAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrStoreUnavailable, "insert chat event", err)
	}
	return nil
}
