package models

// DefaultRelevanceThreshold is the score under which a result is treated as "no relevant context".
const DefaultRelevanceThreshold = 0.3

// Passage is a ranked search result with provenance.
type Passage struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Filename   string  `json:"filename"`
	PageNumber int     `json:"page_number"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// RankedResult is ordered by descending score, ties broken by chunk index.
type RankedResult struct {
	Passages []Passage `json:"passages"`
}

func (r RankedResult) Empty() bool { return len(r.Passages) == 0 }

// Relevant reports whether at least one passage reaches threshold.
func (r RankedResult) Relevant(threshold float64) bool {
	for _, p := range r.Passages {
		if p.Score >= threshold {
			return true
		}
	}
	return false
}
