// Package models defines core data structures for chunks, sessions, and Q&A results.
package models

// Chunk is one fixed-size window of lines from a source file. Text is the
// content sent for embedding (a header line naming the file and line range,
// followed by the raw lines); Raw holds the original lines only. Line numbers
// are 1-based and inclusive. A chunk's identity is its position in the
// session's chunk sequence.
type Chunk struct {
	File      string `json:"file"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	Text      string `json:"text"`
	Raw       string `json:"raw"`
}

// ScoredChunk is a chunk plus its similarity score from retrieval, in [-1, 1].
// Language is a display label derived from the file extension.
type ScoredChunk struct {
	Chunk
	Score    float64 `json:"score"`
	Language string  `json:"language,omitempty"`
}

// IndexStats summarizes one indexing run.
type IndexStats struct {
	FilesIndexed int `json:"files_indexed"`
	FilesSkipped int `json:"files_skipped"`
	TotalChunks  int `json:"total_chunks"`
}
