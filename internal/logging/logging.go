// Package logging constructs the process-wide zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the service logger. Debug mode switches to the human-readable
// development config.
func New(debug bool) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
