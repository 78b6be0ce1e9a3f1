package qa

import (
	"fmt"
	"strings"

	"github.com/codelens/codelens/internal/models"
)

// buildAnswerPrompt renders the grounding prompt: numbered, fenced snippets
// followed by the question and answering rules. Snippet numbering matches the
// order of results so citations like [2] map back to the returned snippets.
func buildAnswerPrompt(question string, snippets []models.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("You are a code assistant answering questions about a specific codebase.\n")
	b.WriteString("Use ONLY the code snippets below to answer. Do not invent files, functions, or behavior that is not shown.\n\n")
	b.WriteString("Code snippets:\n\n")
	for i, s := range snippets {
		fmt.Fprintf(&b, "[%d] %s (lines %d-%d)\n", i+1, s.File, s.LineStart, s.LineEnd)
		fmt.Fprintf(&b, "```%s\n%s\n```\n\n", s.Language, s.Raw)
	}
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Rules:\n")
	b.WriteString("- Answer only from the snippets above, citing them by number like [1].\n")
	b.WriteString("- If the snippets do not contain enough information, say so plainly instead of guessing.\n")
	b.WriteString("- Never reference file paths that do not appear in the snippets.\n")
	return b.String()
}

// buildRefactorPrompt asks for a short list of concrete improvements to the
// retrieved code.
func buildRefactorPrompt(snippets []models.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Review the following code snippets and suggest 3-5 concrete improvements.\n")
	b.WriteString("For each suggestion give: Issue, Suggestion, Why. Base every suggestion\n")
	b.WriteString("on code actually shown; do not speculate about code you cannot see.\n\n")
	for i, s := range snippets {
		fmt.Fprintf(&b, "[%d] %s (lines %d-%d)\n", i+1, s.File, s.LineStart, s.LineEnd)
		fmt.Fprintf(&b, "```%s\n%s\n```\n\n", s.Language, s.Raw)
	}
	return b.String()
}
