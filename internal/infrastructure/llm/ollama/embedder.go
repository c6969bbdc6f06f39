package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/platform-qa/internal/core/domain"
	"github.com/kirillkom/platform-qa/internal/infrastructure/resilience"
)

type Embedder struct {
	client *Client
	exec   *resilience.Executor
}

// NewEmbedder wraps each call in exec, which may be nil.
func NewEmbedder(client *Client, exec *resilience.Executor) *Embedder {
	return &Embedder{client: client, exec: exec}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed query", errors.New("text is empty"))
	}

	request := embedRequest{Model: e.client.embedModel, Input: []string{text}}
	vector, err := resilience.Do(ctx, e.exec, "ollama.embed", func(callCtx context.Context) ([]float32, error) {
		var out embedResponse
		if err := e.client.postJSON(callCtx, "/api/embed", request, &out, "embed"); err != nil {
			return nil, err
		}
		if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
			return nil, fmt.Errorf("model %q returned no embedding", e.client.embedModel)
		}
		return out.Embeddings[0], nil
	}, classifyEmbedError)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrEmbeddingFailed, "embed query", wrapTemporaryIfNeeded("ollama embed", err))
	}
	return vector, nil
}
