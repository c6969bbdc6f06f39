package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/platform-qa/internal/core/domain"
	"github.com/kirillkom/platform-qa/internal/infrastructure/resilience"
)

func fastExecutor(attempts int) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})
}

func writeNDJSON(t *testing.T, w http.ResponseWriter, lines ...string) {
	t.Helper()
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	for _, line := range lines {
		_, _ = w.Write([]byte(line + "\n"))
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func TestEmbedQuerySendsModelAndInput(t *testing.T) {
	var payload embedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, Options{EmbedModel: "nomic-embed-text"}), nil)
	vec, err := embedder.EmbedQuery(context.Background(), "¿Qué proponen en educación?")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 dims, got %d", len(vec))
	}
	if payload.Model != "nomic-embed-text" || len(payload.Input) != 1 || payload.Input[0] != "¿Qué proponen en educación?" {
		t.Fatalf("unexpected request %+v", payload)
	}
}

func TestEmbedQueryRetriesOnceOnUnavailable(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[1,0]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, Options{EmbedModel: "embed"}), fastExecutor(2))
	if _, err := embedder.EmbedQuery(context.Background(), "hola"); err != nil {
		t.Fatalf("expected success after one retry, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestEmbedQueryClientErrorIsRetriedOnce(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "model \"embed\" not found", http.StatusNotFound)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, Options{EmbedModel: "embed"}), fastExecutor(2))
	_, err := embedder.EmbedQuery(context.Background(), "hola")
	if !domain.IsKind(err, domain.ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("404 must not be temporary")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestEmbedQueryRetriesMalformedBody(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte(`{"embeddings":[[0.1,`))
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, Options{EmbedModel: "embed"}), fastExecutor(2))
	vector, err := embedder.EmbedQuery(context.Background(), "hola")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 3 {
		t.Fatalf("expected 3 dimensions, got %v", vector)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestEmbedQueryRetriesEmptyEmbedding(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, Options{EmbedModel: "embed"}), fastExecutor(2))
	if _, err := embedder.EmbedQuery(context.Background(), "hola"); !domain.IsKind(err, domain.ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestEmbedQueryRejectsEmptyEmbedding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, Options{EmbedModel: "embed"}), nil)
	if _, err := embedder.EmbedQuery(context.Background(), "hola"); !domain.IsKind(err, domain.ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
}

func TestStreamAnswerForwardsTokensInOrder(t *testing.T) {
	var payload chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeNDJSON(t, w,
			`{"model":"llama3.1","message":{"role":"assistant","content":"El PLN "},"done":false}`,
			`{"model":"llama3.1","message":{"role":"assistant","content":"propone becas "},"done":false}`,
			`{"model":"llama3.1","message":{"role":"assistant","content":"[Página 12]."},"done":false}`,
			`{"model":"llama3.1","message":{"role":"assistant","content":""},"done":true,"prompt_eval_count":321,"eval_count":12}`,
		)
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, Options{ChatModel: "llama3.1"}), nil)
	transcript := []domain.Turn{
		{Role: domain.RoleUser, Content: "¿Salud?"},
		{Role: domain.RoleAssistant, Content: "..."},
		{Role: domain.RoleUser, Content: "¿Y educación?"},
	}

	var b strings.Builder
	stats, err := gen.StreamAnswer(context.Background(), "SYSTEM", transcript, func(token string) error {
		b.WriteString(token)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamAnswer() error = %v", err)
	}
	if got := b.String(); got != "El PLN propone becas [Página 12]." {
		t.Fatalf("unexpected answer %q", got)
	}
	if stats.PromptTokens != 321 || stats.CompletionTokens != 12 || stats.Model != "llama3.1" {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if !payload.Stream {
		t.Fatalf("expected streaming request")
	}
	if temp, _ := payload.Options["temperature"].(float64); temp != DefaultTemperature {
		t.Fatalf("expected temperature %.1f, got %v", DefaultTemperature, payload.Options["temperature"])
	}
	if len(payload.Messages) != 4 || payload.Messages[0].Role != "system" || payload.Messages[0].Content != "SYSTEM" {
		t.Fatalf("expected system message followed by transcript, got %+v", payload.Messages)
	}
	if payload.Messages[3].Content != "¿Y educación?" {
		t.Fatalf("transcript order lost: %+v", payload.Messages)
	}
}

func TestStreamAnswerInStreamErrorAfterTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeNDJSON(t, w,
			`{"message":{"role":"assistant","content":"uno "},"done":false}`,
			`{"message":{"role":"assistant","content":"dos"},"done":false}`,
			`{"error":"model runner has unexpectedly stopped"}`,
		)
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, Options{ChatModel: "m"}), nil)
	var tokens []string
	_, err := gen.StreamAnswer(context.Background(), "s", []domain.Turn{{Role: domain.RoleUser, Content: "q"}}, func(token string) error {
		tokens = append(tokens, token)
		return nil
	})
	if !domain.IsKind(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected the 2 delivered tokens, got %v", tokens)
	}
}

func TestStreamAnswerMissingDoneIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeNDJSON(t, w, `{"message":{"role":"assistant","content":"parcial"},"done":false}`)
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, Options{ChatModel: "m"}), nil)
	_, err := gen.StreamAnswer(context.Background(), "s", []domain.Turn{{Role: domain.RoleUser, Content: "q"}}, func(string) error { return nil })
	if !domain.IsKind(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestStreamAnswerStatusFailureIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.DefaultConfig().WithoutRetry())
	gen := NewGenerator(New(server.URL, Options{ChatModel: "m"}), exec)
	_, err := gen.StreamAnswer(context.Background(), "s", []domain.Turn{{Role: domain.RoleUser, Content: "q"}}, func(string) error { return nil })
	if !domain.IsKind(err, domain.ErrGenerationFailed) || !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary generation failure, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestStreamAnswerStopsWhenEmitFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeNDJSON(t, w,
			`{"message":{"role":"assistant","content":"a"},"done":false}`,
			`{"message":{"role":"assistant","content":"b"},"done":false}`,
			`{"message":{"role":"assistant","content":""},"done":true}`,
		)
	}))
	defer server.Close()

	errStop := errors.New("consumer gone")
	gen := NewGenerator(New(server.URL, Options{ChatModel: "m"}), nil)
	calls := 0
	_, err := gen.StreamAnswer(context.Background(), "s", []domain.Turn{{Role: domain.RoleUser, Content: "q"}}, func(string) error {
		calls++
		return errStop
	})
	if !errors.Is(err, errStop) {
		t.Fatalf("expected emit error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected decoding to stop after the first failed emit, got %d calls", calls)
	}
}
