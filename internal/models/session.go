package models

import "time"

// Session records one uploaded or fetched codebase. A session owns at most one
// index; re-indexing replaces it wholesale.
type Session struct {
	ID         string     `json:"session_id"`
	Source     string     `json:"source"`
	SourceType string     `json:"source_type"`
	Stats      IndexStats `json:"stats"`
	CreatedAt  time.Time  `json:"created_at"`
}

// QAResult is the outcome of answering a single question. Snippets carry the
// retrieved chunks in rank order. RefactorSuggestions is empty unless refactor
// suggestions were requested and the best-effort generation call succeeded.
type QAResult struct {
	Answer              string        `json:"answer"`
	Snippets            []ScoredChunk `json:"snippets"`
	RefactorSuggestions string        `json:"refactor_suggestions,omitempty"`
}

// QARecord is one question/answer exchange persisted to history.
type QARecord struct {
	ID        string        `json:"qa_id"`
	SessionID string        `json:"session_id"`
	Question  string        `json:"question"`
	Answer    string        `json:"answer"`
	Snippets  []ScoredChunk `json:"snippets"`
	Tags      []string      `json:"tags"`
	CreatedAt time.Time     `json:"created_at"`
}
