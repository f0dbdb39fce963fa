package pdftext

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joseph-ayodele/cv-parser/constants"
	"github.com/joseph-ayodele/cv-parser/internal/common"
)

// pdftotextPages shells out to poppler's pdftotext. Pages are separated by \f.
func (e *Extractor) pdftotextPages(ctx context.Context, data []byte) ([]string, []string, error) {
	if !constants.IsPDF(data) {
		return nil, nil, common.NewExtractionError("not a pdf document", nil)
	}

	f, err := os.CreateTemp("", "cvp-*.pdf")
	if err != nil {
		return nil, nil, common.NewTransientError("create temp file", err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("failed to remove temp file", "path", path, "error", err)
		}
	}()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, nil, common.NewTransientError("write temp file", err)
	}
	if err := f.Close(); err != nil {
		return nil, nil, common.NewTransientError("close temp file", err)
	}

	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", fmt.Sprintf("%d", e.cfg.MaxPages))
	}
	// pdftotext -layout -enc UTF-8 -eol unix [-l N] <path> -
	args = append(args, path, "-")
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, common.NewTransientError("text extraction interrupted", ctx.Err())
		}
		return nil, []string{strings.TrimSpace(string(errb))}, common.NewExtractionError("pdftotext failed", err)
	}

	// Every page, the last one included, is terminated by a form feed.
	text := strings.TrimSuffix(string(out), "\f")
	pages := limitPages(strings.Split(text, "\f"), e.cfg.MaxPages)

	var warns []string
	if s := strings.TrimSpace(string(errb)); s != "" {
		warns = append(warns, s)
	}
	return pages, warns, nil
}
