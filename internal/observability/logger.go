// Package observability provides structured logging for the orchestrator.
package observability

import (
	"go.uber.org/zap"
)

// NewLogger builds a zap logger for the given environment. Production gets
// JSON output at info level; everything else gets the development console
// encoder at debug level.
func NewLogger(environment string) (*zap.Logger, error) {
	switch environment {
	case "production", "prod":
		return zap.NewProduction()
	default:
		return zap.NewDevelopment()
	}
}
