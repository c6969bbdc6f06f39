package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kirillkom/platform-qa/internal/core/domain"
	"github.com/kirillkom/platform-qa/internal/core/ports"
)

const maxChatBodyBytes = 1 << 20

type chatRequest struct {
	Transcript []domain.Turn `json:"transcript"`
	// Messages is accepted as an alias for Transcript.
	Messages []domain.Turn `json:"messages"`
	PartyIDs []int64       `json:"partyIds"`
	Parties  []string      `json:"parties"`
}

type contextFrame struct {
	ResultCount int      `json:"resultCount"`
	Parties     []string `json:"parties"`
	Empty       bool     `json:"empty"`
}

type tokenFrame struct {
	Text string `json:"text"`
}

func (rt *Router) chatStream(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	var body chatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.WrapError(domain.ErrInvalidInput, "decode chat request", err))
		return
	}

	transcript := body.Transcript
	if len(transcript) == 0 {
		transcript = body.Messages
	}

	stream, err := rt.chat.Respond(r.Context(), ports.ChatRequest{
		Transcript: transcript,
		PartyIDs:   body.PartyIDs,
		PartyCodes: body.Parties,
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrCancelled) {
			return
		}
		writeError(w, err)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		// Drain so the generator goroutine is not left blocked.
		for range stream.Events {
		}
		writeError(w, errors.New("streaming unsupported"))
		return
	}

	sse.event("context", contextFrame{
		ResultCount: stream.Context.ResultCount,
		Parties:     stream.Context.PartiesRepresented,
		Empty:       stream.Context.Empty,
	})

	for ev := range stream.Events {
		if ev.Err != nil {
			sse.event("error", errorResponse{Kind: domain.KindName(ev.Err), Error: ev.Err.Error()})
			continue
		}
		sse.event("token", tokenFrame{Text: ev.Token})
	}

	if sse.failed == nil && !sse.errored && r.Context().Err() == nil {
		sse.event("done", struct{}{})
	}
	if sse.failed != nil {
		slog.Debug("chat_stream_write_failed", "request_id", requestIDFromContext(r.Context()), "error", sse.failed)
	}
}

// sseWriter frames server-sent events and stops writing after the first
// write error. The caller keeps draining the event channel either way.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	failed  error
	errored bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) event(name string, payload any) {
	if name == "error" {
		s.errored = true
	}
	if s.failed != nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.failed = err
		return
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		s.failed = err
		return
	}
	s.flusher.Flush()
}
