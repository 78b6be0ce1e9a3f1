package indexer

import (
	"fmt"
	"strings"

	"github.com/codelens/codelens/internal/models"
)

// Chunker splits file text into fixed-size overlapping line windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given window size and overlap (in lines).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into windows of chunkSize lines stepping
// chunkSize-chunkOverlap lines between windows. Line ranges are 1-based and
// inclusive. The text destined for embedding is the raw window prefixed with a
// header naming the file and line range; embedding the header together with
// the code improves retrieval. Whitespace-only windows are dropped. The final
// window is clamped so it ends exactly at the last line. Chunking is a pure
// function of its inputs: identical input always yields identical chunks.
func (c *Chunker) Chunk(path, text string) []models.Chunk {
	lines := splitLines(text)
	total := len(lines)
	if total == 0 {
		return nil
	}

	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}

	var chunks []models.Chunk
	for start := 0; start < total; start += step {
		end := start + c.chunkSize
		if end > total {
			end = total
		}
		raw := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(raw) != "" {
			chunks = append(chunks, models.Chunk{
				File:      path,
				LineStart: start + 1,
				LineEnd:   end,
				Text:      fmt.Sprintf("# File: %s (lines %d-%d)\n%s", path, start+1, end, raw),
				Raw:       raw,
			})
		}
		if end == total {
			break
		}
	}
	return chunks
}

// splitLines splits on newlines without counting a trailing newline as an
// extra empty line, so an N-line file yields N entries.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
