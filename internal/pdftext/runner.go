package pdftext

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/cv-parser/internal/common"
)

// Runner executes an external extraction tool. Tests replace it with a stub.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// stderr kept in a log record
const maxLoggedStderr = 8 << 10

// execRunner runs the tool with os/exec and logs every run against the job
// carried by ctx.
type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	logger := common.LoggerFor(ctx, r.logger).With("tool", filepath.Base(name))

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		logger.Warn("text extraction tool failed",
			"exit_code", exitCode,
			"duration_ms", elapsed,
			"error", err,
			"stderr", clipUTF8(stderr.String(), maxLoggedStderr),
		)
		return stdout.Bytes(), stderr.Bytes(), err
	}

	logger.Debug("text extraction tool finished",
		"duration_ms", elapsed,
		"text_bytes", stdout.Len(),
		"stderr_bytes", stderr.Len(),
	)
	return stdout.Bytes(), stderr.Bytes(), nil
}

// clipUTF8 cuts s to at most max bytes without splitting a rune.
func clipUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "...(truncated)"
}
