package main

import (
	"log/slog"
	"os"
	"time"
)

// drain waits for the worker loop to return after shutdown has begun.
// Signals arriving meanwhile are logged and otherwise ignored. With a
// positive timeout it gives up after that long and reports done=false.
func drain(runErr <-chan error, sigs <-chan os.Signal, timeout time.Duration, logger *slog.Logger) (bool, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	for {
		select {
		case err := <-runErr:
			return true, err
		case s := <-sigs:
			logger.Warn("shutdown already in progress, waiting for in-flight jobs", "signal", s.String())
		case <-deadline:
			return false, nil
		}
	}
}
