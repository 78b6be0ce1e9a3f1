// Package utils holds small helpers shared across CodeLens packages:
// logging setup, vector math, and text shaping for exports.
package utils

// Truncate shortens s to at most maxLen bytes and appends "..." when it cut
// anything. Session exports use it to keep code snippets readable. A zero or
// negative maxLen returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
