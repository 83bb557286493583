package model

// CandidateEntry is one flat search-index result after boundary parsing.
// URL and DurationSeconds are optional; the index routinely omits them.
type CandidateEntry struct {
	Title           string   `json:"title"`
	SourceID        string   `json:"sourceId"`
	URL             string   `json:"url,omitempty"`
	DurationSeconds *float64 `json:"durationSeconds,omitempty"`
}

// HasDuration reports whether the index supplied a usable duration.
func (e CandidateEntry) HasDuration() bool {
	return e.DurationSeconds != nil && *e.DurationSeconds > 0
}

// ScoredCandidate pairs an entry with its fitness score
type ScoredCandidate struct {
	Entry CandidateEntry `json:"entry"`
	Score float64        `json:"score"`
}

// VariantOutcome records what a single search query produced.
type VariantOutcome struct {
	Query   string
	Entries []CandidateEntry
	Err     error
}
