package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kirillkom/platform-qa/internal/core/domain"
	"github.com/kirillkom/platform-qa/internal/infrastructure/resilience"
)

// Generator streams answers from /api/chat. The executor should be built
// with Config.WithoutRetry since emitted tokens cannot be taken back.
type Generator struct {
	client *Client
	exec   *resilience.Executor
}

func NewGenerator(client *Client, exec *resilience.Executor) *Generator {
	return &Generator{client: client, exec: exec}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatChunk struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

func (g *Generator) StreamAnswer(
	ctx context.Context,
	systemInstruction string,
	transcript []domain.Turn,
	emit func(token string) error,
) (domain.GenerationStats, error) {
	stats := domain.GenerationStats{Model: g.client.chatModel}

	messages := make([]chatMessage, 0, len(transcript)+1)
	messages = append(messages, chatMessage{Role: "system", Content: systemInstruction})
	for _, turn := range transcript {
		messages = append(messages, chatMessage{Role: string(turn.Role), Content: turn.Content})
	}
	request := chatRequest{
		Model:    g.client.chatModel,
		Messages: messages,
		Stream:   true,
		Options:  map[string]any{"temperature": g.client.temperature},
	}

	resp, err := resilience.Do(ctx, g.exec, "ollama.chat", func(callCtx context.Context) (*http.Response, error) {
		return g.client.openStream(callCtx, "/api/chat", request, "chat")
	}, classifyOllamaError)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return stats, ctxErr
		}
		return stats, domain.WrapError(domain.ErrGenerationFailed, "ollama chat", wrapTemporaryIfNeeded("ollama chat", err))
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	for {
		var chunk chatChunk
		if err := decoder.Decode(&chunk); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			if errors.Is(err, io.EOF) {
				return stats, domain.WrapError(domain.ErrGenerationFailed, "ollama chat", errors.New("stream ended before done"))
			}
			return stats, domain.WrapError(domain.ErrGenerationFailed, "decode chat stream", err)
		}
		if chunk.Error != "" {
			return stats, domain.WrapError(domain.ErrGenerationFailed, "ollama chat", errors.New(chunk.Error))
		}
		if chunk.Message.Content != "" {
			if err := emit(chunk.Message.Content); err != nil {
				return stats, err
			}
		}
		if chunk.Done {
			if chunk.Model != "" {
				stats.Model = chunk.Model
			}
			stats.PromptTokens = chunk.PromptEvalCount
			stats.CompletionTokens = chunk.EvalCount
			return stats, nil
		}
	}
}
