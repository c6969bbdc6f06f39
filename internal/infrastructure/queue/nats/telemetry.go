package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/platform-qa/internal/core/domain"
	"github.com/kirillkom/platform-qa/internal/infrastructure/resilience"
)

const DefaultTelemetrySubject = "platform.chat.events"

const workerQueueGroup = "telemetry-workers"

type publisher interface {
	Publish(subject string, data []byte) error
}

// TelemetrySink publishes chat events as JSON. It implements ports.TelemetrySink.
type TelemetrySink struct {
	pub      publisher
	subject  string
	executor *resilience.Executor
}

func NewTelemetrySink(conn *nats.Conn, subject string, executor *resilience.Executor) *TelemetrySink {
	return newTelemetrySink(conn, subject, executor)
}

func newTelemetrySink(pub publisher, subject string, executor *resilience.Executor) *TelemetrySink {
	if subject == "" {
		subject = DefaultTelemetrySubject
	}
	return &TelemetrySink{pub: pub, subject: subject, executor: executor}
}

func (s *TelemetrySink) Track(ctx context.Context, event domain.ChatEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal chat event: %w", err)
	}

	err = s.publish(ctx, payload)
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

func (s *TelemetrySink) publish(ctx context.Context, payload []byte) error {
	call := func(_ context.Context) error {
		if err := s.pub.Publish(s.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if s.executor == nil {
		return call(ctx)
	}
	return s.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
}

// SubscribeChatEvents delivers events to handler until ctx ends, then drains
// in-flight messages. Replicas share the queue group so each event is handled once.
func SubscribeChatEvents(ctx context.Context, conn *nats.Conn, subject string, handler func(context.Context, domain.ChatEvent) error) error {
	if subject == "" {
		subject = DefaultTelemetrySubject
	}
	sub, err := conn.QueueSubscribe(subject, workerQueueGroup, func(msg *nats.Msg) {
		handleMessage(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func handleMessage(ctx context.Context, data []byte, handler func(context.Context, domain.ChatEvent) error) {
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	event, err := decodeChatEvent(data)
	if err != nil {
		slog.Warn("telemetry_message_rejected", "error", err, "bytes", len(data))
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, event); err != nil {
		slog.Error("telemetry_handler_failed", "event_id", event.ID, "error", err)
	}
}

func decodeChatEvent(data []byte) (domain.ChatEvent, error) {
	var event domain.ChatEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.ChatEvent{}, fmt.Errorf("decode chat event: %w", err)
	}
	if event.ID == "" || event.Name == "" {
		return domain.ChatEvent{}, errors.New("chat event is missing id or name")
	}
	return event, nil
}
