package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kirillkom/platform-qa/internal/core/domain"
	"github.com/kirillkom/platform-qa/internal/core/ports"
	"github.com/kirillkom/platform-qa/internal/core/vectormath"
)

const (
	DefaultTopK       = 10
	MaxRetrievalLimit = 50
)

// SemanticRetriever runs an exact cosine nearest-neighbour scan over the
// chunk store. No approximate index is involved, so identical inputs against
// an unchanged store always produce identical output.
type SemanticRetriever struct {
	store ports.ChunkStore
}

func NewSemanticRetriever(store ports.ChunkStore) *SemanticRetriever {
	return &SemanticRetriever{store: store}
}

func (r *SemanticRetriever) Retrieve(
	ctx context.Context,
	queryVector []float32,
	filter domain.PartyFilter,
	limit int,
) ([]domain.SearchResult, error) {
	if limit <= 0 || limit > MaxRetrievalLimit {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", fmt.Errorf("limit %d outside [1, %d]", limit, MaxRetrievalLimit))
	}

	dim, err := r.store.Dimension(ctx)
	if err != nil {
		return nil, storeError("read store dimension", err)
	}
	if dim == 0 {
		return []domain.SearchResult{}, nil
	}
	if len(queryVector) != dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "retrieve", fmt.Errorf("query vector has %d dims, store has %d", len(queryVector), dim))
	}

	top := newTopResults(limit)
	err = r.store.ScanChunks(ctx, filter, func(chunk domain.Chunk) error {
		if !filter.Contains(chunk.PartyID) {
			return nil
		}
		sim, err := vectormath.CosineSimilarity(queryVector, chunk.Embedding)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", chunk.ID, err)
		}
		top.offer(domain.SearchResult{
			PartyID:    chunk.PartyID,
			PartyName:  chunk.PartyName,
			PartyCode:  chunk.PartyCode,
			DocumentID: chunk.DocumentID,
			Page:       chunk.Page,
			ChunkIndex: chunk.ChunkIndex,
			Text:       chunk.Text,
			Similarity: sim,
		})
		return nil
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrDimensionMismatch) {
			return nil, domain.WrapError(domain.ErrDimensionMismatch, "retrieve", err)
		}
		return nil, storeError("scan chunks", err)
	}
	return top.results(), nil
}

func storeError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if domain.IsKind(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrStoreUnavailable, operation, err)
}

// rankedBefore is the total retrieval order: similarity desc, then page asc,
// party id asc, document id asc, chunk index asc.
func rankedBefore(a, b domain.SearchResult) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.Page != b.Page {
		return a.Page < b.Page
	}
	if a.PartyID != b.PartyID {
		return a.PartyID < b.PartyID
	}
	if a.DocumentID != b.DocumentID {
		return a.DocumentID < b.DocumentID
	}
	return a.ChunkIndex < b.ChunkIndex
}

// topResults keeps the best `limit` results seen so far, sorted.
type topResults struct {
	limit int
	items []domain.SearchResult
}

func newTopResults(limit int) *topResults {
	return &topResults{limit: limit, items: make([]domain.SearchResult, 0, limit)}
}

func (t *topResults) offer(r domain.SearchResult) {
	if len(t.items) == t.limit && !rankedBefore(r, t.items[len(t.items)-1]) {
		return
	}
	idx := sort.Search(len(t.items), func(i int) bool {
		return rankedBefore(r, t.items[i])
	})
	if len(t.items) < t.limit {
		t.items = append(t.items, domain.SearchResult{})
	}
	copy(t.items[idx+1:], t.items[idx:len(t.items)-1])
	t.items[idx] = r
}

func (t *topResults) results() []domain.SearchResult {
	out := make([]domain.SearchResult, len(t.items))
	copy(out, t.items)
	return out
}
