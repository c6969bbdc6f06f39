package ports

import (
	"context"
	"time"

	"github.com/kirillkom/platform-qa/internal/core/domain"
)

// ChunkStore is the read-only view of the ingested chunk table.
type ChunkStore interface {
	// ScanChunks visits every chunk whose party passes filter. Returning an
	// error from visit stops the scan and is returned unchanged.
	ScanChunks(ctx context.Context, filter domain.PartyFilter, visit func(domain.Chunk) error) error
	// Dimension reports the stored embedding width, or 0 for an empty store.
	Dimension(ctx context.Context) (int, error)
}

// PartyDirectory resolves parties known to the store.
type PartyDirectory interface {
	ListParties(ctx context.Context) ([]domain.Party, error)
	GetPartyByCode(ctx context.Context, code string) (*domain.Party, error)
}

// Embedder turns query text into a vector in the store's embedding space.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerStreamer generates a grounded answer token by token. emit blocks when
// the consumer is slow; an emit error aborts generation and is returned.
type AnswerStreamer interface {
	StreamAnswer(
		ctx context.Context,
		systemInstruction string,
		transcript []domain.Turn,
		emit func(token string) error,
	) (domain.GenerationStats, error)
}

// TelemetrySink accepts usage events. Callers never wait on it.
type TelemetrySink interface {
	Track(ctx context.Context, event domain.ChatEvent) error
}

// ChatEventStore persists telemetry events consumed by the worker.
type ChatEventStore interface {
	SaveChatEvent(ctx context.Context, event domain.ChatEvent) error
}

// ChatMetrics receives observations from the chat pipeline.
type ChatMetrics interface {
	RecordRAGObservation(service, endpoint string, sourceCount int, duration time.Duration)
	RecordTokenUsage(service, endpoint, model string, promptTokens, completionTokens int)
	RecordStreamOutcome(service, endpoint, outcome string)
}

// TelemetryMetrics receives observations from the telemetry worker.
type TelemetryMetrics interface {
	StartEvent()
	FinishEvent(service string, duration time.Duration, err error)
	ObserveDeliveryLag(service string, lag time.Duration)
}
