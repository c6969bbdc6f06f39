package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/platform-qa/internal/core/domain"
	"github.com/kirillkom/platform-qa/internal/core/ports"
)

type ChatPhase string

const (
	PhaseIdle       ChatPhase = "idle"
	PhaseEmbedding  ChatPhase = "embedding"
	PhaseRetrieving ChatPhase = "retrieving"
	PhaseAssembling ChatPhase = "assembling"
	PhaseGenerating ChatPhase = "generating"
	PhaseDone       ChatPhase = "done"
	PhaseFailed     ChatPhase = "failed"
	PhaseCancelled  ChatPhase = "cancelled"
)

const (
	metricsService  = "api"
	metricsEndpoint = "chat"
)

type ChatOptions struct {
	TopK             int
	RequestTimeout   time.Duration
	StreamBuffer     int
	MaxTurns         int
	TelemetryTimeout time.Duration
}

func DefaultChatOptions() ChatOptions {
	return ChatOptions{
		TopK:             DefaultTopK,
		RequestTimeout:   30 * time.Second,
		StreamBuffer:     16,
		MaxTurns:         50,
		TelemetryTimeout: 5 * time.Second,
	}
}

func (o ChatOptions) normalize() ChatOptions {
	out := o
	def := DefaultChatOptions()
	if out.TopK <= 0 {
		out.TopK = def.TopK
	}
	if out.TopK > MaxRetrievalLimit {
		out.TopK = MaxRetrievalLimit
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = def.RequestTimeout
	}
	if out.StreamBuffer <= 0 {
		out.StreamBuffer = def.StreamBuffer
	}
	if out.MaxTurns <= 0 {
		out.MaxTurns = def.MaxTurns
	}
	if out.TelemetryTimeout <= 0 {
		out.TelemetryTimeout = def.TelemetryTimeout
	}
	return out
}

type chunkRetriever interface {
	Retrieve(ctx context.Context, queryVector []float32, filter domain.PartyFilter, limit int) ([]domain.SearchResult, error)
}

// ChatUseCase drives embed -> retrieve -> assemble -> generate for one
// question. It holds no per-request state, so one instance serves all requests.
type ChatUseCase struct {
	embedder  ports.Embedder
	retriever chunkRetriever
	generator ports.AnswerStreamer
	directory ports.PartyDirectory
	sink      ports.TelemetrySink
	metrics   ports.ChatMetrics
	opts      ChatOptions
}

func NewChatUseCase(
	embedder ports.Embedder,
	retriever chunkRetriever,
	generator ports.AnswerStreamer,
	opts ChatOptions,
) *ChatUseCase {
	return &ChatUseCase{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		opts:      opts.normalize(),
	}
}

// WithPartyDirectory names the selected parties in the system instruction.
func (uc *ChatUseCase) WithPartyDirectory(directory ports.PartyDirectory) *ChatUseCase {
	uc.directory = directory
	return uc
}

func (uc *ChatUseCase) WithTelemetry(sink ports.TelemetrySink) *ChatUseCase {
	uc.sink = sink
	return uc
}

func (uc *ChatUseCase) WithMetrics(metrics ports.ChatMetrics) *ChatUseCase {
	uc.metrics = metrics
	return uc
}

func (uc *ChatUseCase) Respond(ctx context.Context, req ports.ChatRequest) (*domain.ChatStream, error) {
	question, err := validateTranscript(req.Transcript, uc.opts.MaxTurns)
	if err != nil {
		return nil, err
	}
	transcript := append([]domain.Turn(nil), req.Transcript...)

	reqCtx, cancel := context.WithTimeout(ctx, uc.opts.RequestTimeout)
	start := time.Now()

	partyIDs, err := uc.resolveScope(reqCtx, req)
	if err != nil {
		cancel()
		logPhase(PhaseFailed, "error", err)
		return nil, preStreamError(ctx, reqCtx, "resolve parties", err)
	}
	filter := domain.NewPartyFilter(partyIDs...)

	logPhase(PhaseEmbedding, "question_chars", len(question), "party_filter", filter.IDs())
	queryVector, err := uc.embedder.EmbedQuery(reqCtx, question)
	if err != nil {
		cancel()
		logPhase(PhaseFailed, "error", err)
		return nil, preStreamError(ctx, reqCtx, "embed query", embeddingError(err))
	}

	logPhase(PhaseRetrieving, "top_k", uc.opts.TopK)
	results, err := uc.retriever.Retrieve(reqCtx, queryVector, filter, uc.opts.TopK)
	if err != nil {
		cancel()
		logPhase(PhaseFailed, "error", err)
		return nil, preStreamError(ctx, reqCtx, "retrieve", err)
	}

	logPhase(PhaseAssembling, "results", len(results))
	assembled := AssembleContext(results)
	uc.dispatchTelemetry(ctx, domain.ChatEvent{
		ID:                 uuid.NewString(),
		Name:               domain.ChatQuestionAskedEvent,
		Question:           question,
		PartyIDs:           filter.IDs(),
		ResultCount:        assembled.ResultCount,
		PartiesRepresented: assembled.PartiesRepresented,
		TurnIndex:          domain.UserTurnCount(transcript),
		OccurredAt:         time.Now().UTC(),
	})
	if uc.metrics != nil {
		uc.metrics.RecordRAGObservation(metricsService, metricsEndpoint, assembled.ResultCount, time.Since(start))
	}
	slog.Info("rag_retrieval",
		"retrieved_chunks", assembled.ResultCount,
		"parties_represented", assembled.PartiesRepresented,
		"no_context", assembled.Empty,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)

	system := BuildSystemInstruction(assembled, uc.scopeLabels(reqCtx, filter))

	events := make(chan domain.StreamEvent, uc.opts.StreamBuffer)
	logPhase(PhaseGenerating)
	go uc.generate(ctx, reqCtx, cancel, system, transcript, events)

	return &domain.ChatStream{Context: assembled, Events: events}, nil
}

// resolveScope merges explicit party ids with the ids behind party codes.
func (uc *ChatUseCase) resolveScope(ctx context.Context, req ports.ChatRequest) ([]int64, error) {
	if len(req.PartyCodes) == 0 {
		return req.PartyIDs, nil
	}
	if uc.directory == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve parties", errors.New("party codes are not supported without a party directory"))
	}
	ids, err := NewPartyUseCase(uc.directory).ResolvePartyCodes(ctx, req.PartyCodes)
	if err != nil {
		return nil, err
	}
	return append(append([]int64(nil), req.PartyIDs...), ids...), nil
}

func (uc *ChatUseCase) generate(
	callerCtx context.Context,
	reqCtx context.Context,
	cancel context.CancelFunc,
	system string,
	transcript []domain.Turn,
	events chan<- domain.StreamEvent,
) {
	defer close(events)
	defer cancel()

	emitted := 0
	emit := func(token string) error {
		if token == "" {
			return nil
		}
		select {
		case events <- domain.StreamEvent{Token: token}:
			emitted++
			return nil
		case <-reqCtx.Done():
			return reqCtx.Err()
		}
	}

	stats, err := uc.generator.StreamAnswer(reqCtx, system, transcript, emit)
	if err == nil {
		uc.recordOutcome(PhaseDone, stats)
		logPhase(PhaseDone, "tokens_forwarded", emitted)
		return
	}

	terminal := streamError(callerCtx, reqCtx, err)
	if domain.IsKind(terminal, domain.ErrCancelled) {
		uc.recordOutcome(PhaseCancelled, stats)
		logPhase(PhaseCancelled, "tokens_forwarded", emitted)
		return
	}

	uc.recordOutcome(PhaseFailed, stats)
	logPhase(PhaseFailed, "tokens_forwarded", emitted, "kind", domain.KindName(terminal), "error", terminal)
	select {
	case events <- domain.StreamEvent{Err: terminal}:
	case <-callerCtx.Done():
	}
}

func (uc *ChatUseCase) recordOutcome(phase ChatPhase, stats domain.GenerationStats) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.RecordStreamOutcome(metricsService, metricsEndpoint, string(phase))
	uc.metrics.RecordTokenUsage(metricsService, metricsEndpoint, stats.Model, stats.PromptTokens, stats.CompletionTokens)
}

func (uc *ChatUseCase) dispatchTelemetry(ctx context.Context, event domain.ChatEvent) {
	if uc.sink == nil {
		return
	}
	timeout := uc.opts.TelemetryTimeout
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("telemetry_dispatch_panic", "event_id", event.ID, "panic", fmt.Sprint(r))
			}
		}()
		trackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := uc.sink.Track(trackCtx, event); err != nil {
			slog.Warn("telemetry_dispatch_failed", "event_id", event.ID, "error", err)
		}
	}()
}

func (uc *ChatUseCase) scopeLabels(ctx context.Context, filter domain.PartyFilter) []string {
	if filter.IsEmpty() {
		return nil
	}
	ids := filter.IDs()
	codes := make(map[int64]string, len(ids))
	if uc.directory != nil {
		parties, err := uc.directory.ListParties(ctx)
		if err != nil {
			slog.Warn("party_directory_unavailable", "error", err)
		}
		for _, party := range parties {
			codes[party.ID] = party.ShortCode
		}
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if code := strings.TrimSpace(codes[id]); code != "" {
			out = append(out, code)
			continue
		}
		out = append(out, "#"+strconv.FormatInt(id, 10))
	}
	return out
}

func validateTranscript(transcript []domain.Turn, maxTurns int) (string, error) {
	if len(transcript) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate transcript", errors.New("transcript is empty"))
	}
	if len(transcript) > maxTurns {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate transcript", fmt.Errorf("transcript has %d turns, limit is %d", len(transcript), maxTurns))
	}
	for idx, turn := range transcript {
		if !turn.Role.Valid() {
			return "", domain.WrapError(domain.ErrInvalidInput, "validate transcript", fmt.Errorf("turn %d has unknown role %q", idx, turn.Role))
		}
	}
	last, ok := domain.LastUserTurn(transcript)
	if !ok {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate transcript", errors.New("transcript has no user turn"))
	}
	return strings.TrimSpace(last.Content), nil
}

func embeddingError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if domain.IsKind(err, domain.ErrEmbeddingFailed) {
		return domain.WrapError(domain.ErrUpstreamUnavailable, "embedder", err)
	}
	return fmt.Errorf("embedder: %w: %w: %w", domain.ErrUpstreamUnavailable, domain.ErrEmbeddingFailed, err)
}

// preStreamError reports failures that happen before any token was produced.
func preStreamError(callerCtx, reqCtx context.Context, operation string, err error) error {
	switch {
	case callerCtx.Err() != nil:
		return domain.WrapError(domain.ErrCancelled, operation, err)
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded):
		return domain.WrapError(domain.ErrTimeout, operation, err)
	default:
		return err
	}
}

// streamError classifies a failure that ended an already started stream.
func streamError(callerCtx, reqCtx context.Context, err error) error {
	switch {
	case callerCtx.Err() != nil:
		return domain.WrapError(domain.ErrCancelled, "generate", err)
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded):
		return domain.WrapError(domain.ErrTimeout, "generate", err)
	case domain.IsKind(err, domain.ErrGenerationFailed):
		return err
	default:
		return domain.WrapError(domain.ErrGenerationFailed, "generate", err)
	}
}

func logPhase(phase ChatPhase, attrs ...any) {
	slog.Debug("chat_phase", append([]any{"phase", string(phase)}, attrs...)...)
}
