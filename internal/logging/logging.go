// Package logging builds the process-wide zap logger.
package logging

import "go.uber.org/zap"

// New creates a sugared logger and installs it as the zap global. Debug
// selects the human-readable development encoder.
func New(debug bool) *zap.SugaredLogger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		logger = zap.NewExample()
	}
	_ = zap.ReplaceGlobals(logger)
	return logger.Sugar()
}
