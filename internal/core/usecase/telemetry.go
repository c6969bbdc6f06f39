package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kirillkom/platform-qa/internal/core/domain"
	"github.com/kirillkom/platform-qa/internal/core/ports"
)

const telemetryMetricsService = "worker"

// TelemetryUseCase persists chat events delivered to the worker.
type TelemetryUseCase struct {
	store   ports.ChatEventStore
	metrics ports.TelemetryMetrics
	now     func() time.Time
}

func NewTelemetryUseCase(store ports.ChatEventStore, metrics ports.TelemetryMetrics) *TelemetryUseCase {
	return &TelemetryUseCase{store: store, metrics: metrics, now: time.Now}
}

func (uc *TelemetryUseCase) Consume(ctx context.Context, event domain.ChatEvent) (err error) {
	start := uc.now()
	if uc.metrics != nil {
		uc.metrics.StartEvent()
		defer func() {
			uc.metrics.FinishEvent(telemetryMetricsService, uc.now().Sub(start), err)
		}()
	}

	if event.ID == "" || event.Name == "" {
		return domain.WrapError(domain.ErrInvalidInput, "consume chat event", errors.New("event id and name are required"))
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = start.UTC()
	} else if uc.metrics != nil {
		uc.metrics.ObserveDeliveryLag(telemetryMetricsService, start.Sub(event.OccurredAt))
	}

	if err := uc.store.SaveChatEvent(ctx, event); err != nil {
		return err
	}
	slog.Debug("chat_event_stored", "event_id", event.ID, "event", event.Name, "result_count", event.ResultCount)
	return nil
}
