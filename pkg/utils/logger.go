package utils

import "go.uber.org/zap"

// NewLogger builds the zap logger shared by the server, indexer, and CLI
// commands. Debug mode selects the development config (console output at
// debug level); otherwise the production config emits JSON at info level.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
