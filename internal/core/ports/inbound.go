package ports

import (
	"context"

	"github.com/kirillkom/platform-qa/internal/core/domain"
)

// ChatRequest is one question together with the transcript that led to it.
// PartyCodes are resolved inside the request budget and merged with PartyIDs.
type ChatRequest struct {
	Transcript []domain.Turn
	PartyIDs   []int64
	PartyCodes []string
}

// ChatResponder is the inbound contract for grounded, streamed answers.
// Errors returned directly happen before the first token; later failures
// arrive as the terminal event on the stream.
type ChatResponder interface {
	Respond(ctx context.Context, req ChatRequest) (*domain.ChatStream, error)
}

// ChatEventConsumer is the inbound contract for the telemetry worker.
type ChatEventConsumer interface {
	Consume(ctx context.Context, event domain.ChatEvent) error
}

// PartyCatalog lists the parties a request may be scoped to.
type PartyCatalog interface {
	ListParties(ctx context.Context) ([]domain.Party, error)
}
