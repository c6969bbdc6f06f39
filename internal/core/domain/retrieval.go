package domain

type SearchResult struct {
	PartyID    int64   `json:"party_id"`
	PartyName  string  `json:"party_name"`
	PartyCode  string  `json:"party_code"`
	DocumentID int64   `json:"document_id"`
	Page       int     `json:"page"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

// AssembledContext is the rendered, citation-annotated context block plus the
// metadata that telemetry and transports report about it.
type AssembledContext struct {
	Text               string   `json:"-"`
	ResultCount        int      `json:"result_count"`
	PartiesRepresented []string `json:"parties_represented"`
	Empty              bool     `json:"empty"`
}
