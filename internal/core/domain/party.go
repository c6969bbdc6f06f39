package domain

import (
	"sort"
	"strings"
)

type Party struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortCode string `json:"short_code"`
}

type Document struct {
	ID        int64  `json:"id"`
	PartyID   int64  `json:"party_id"`
	SourceRef string `json:"source_ref"`
}

// Chunk is one embedded fragment of a document page as written by the
// ingestion pipeline. Chunks are never mutated by this service.
type Chunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	PartyID    int64     `json:"party_id"`
	PartyName  string    `json:"party_name"`
	PartyCode  string    `json:"party_code"`
	Page       int       `json:"page"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
}

// PartyFilter restricts retrieval to a set of parties. The zero value and an
// explicitly empty set both mean "all parties".
type PartyFilter struct {
	ids map[int64]struct{}
}

func NewPartyFilter(ids ...int64) PartyFilter {
	if len(ids) == 0 {
		return PartyFilter{}
	}
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return PartyFilter{ids: set}
}

func (f PartyFilter) IsEmpty() bool {
	return len(f.ids) == 0
}

func (f PartyFilter) Contains(partyID int64) bool {
	if f.IsEmpty() {
		return true
	}
	_, ok := f.ids[partyID]
	return ok
}

// IDs returns the filter members sorted ascending.
func (f PartyFilter) IDs() []int64 {
	out := make([]int64, 0, len(f.ids))
	for id := range f.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NormalizePartyCode is the lookup key for case-insensitive short code matching.
func NormalizePartyCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
