// Package logging builds the single process-wide logrus logger from a
// command-line level flag, matching the pack's own convention in
// samsamfire-gocanopen's cmd/canopen/main.go (log.SetLevel from a flag)
// except threaded explicitly rather than mutating logrus's package-level
// logger, so every caller states its dependency instead of reaching for
// a global.
package logging

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/webserv-go/webserv/concurrency/gopool"
)

// New builds a *log.Logger at level (one of logrus's level names:
// "debug", "info", "warn", "error", ...), writing text-formatted lines
// with full timestamps to its default output (stderr).
func New(level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logger := log.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	gopool.SetPanicHandler(func(_ context.Context, r interface{}) {
		logger.WithField("panic", r).Error("background task panicked")
	})
	return logger, nil
}
