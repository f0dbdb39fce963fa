package pdftext

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/cv-parser/constants"
	"github.com/joseph-ayodele/cv-parser/internal/common"
	"github.com/joseph-ayodele/cv-parser/internal/extract"
)

type Config struct {
	Engine    string // constants.EngineNative (default) | constants.EnginePdftotext
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	MaxPages  int    // 0 = no limit
}

// Extractor reads PDF documents page by page.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the command runner used by the pdftotext engine.
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Engine == "" {
		cfg.Engine = constants.EngineNative
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	e := &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

var _ extract.TextExtractor = (*Extractor)(nil)

// Extract returns the document text: non-blank pages in order, each trimmed,
// joined by a single newline.
func (e *Extractor) Extract(ctx context.Context, data []byte) (extract.TextExtractionResult, error) {
	start := time.Now()
	res := extract.TextExtractionResult{Method: e.cfg.Engine}

	var (
		pages []string
		err   error
	)
	switch e.cfg.Engine {
	case constants.EngineNative:
		pages, err = nativePages(ctx, data, e.cfg.MaxPages)
	case constants.EnginePdftotext:
		var warns []string
		pages, warns, err = e.pdftotextPages(ctx, data)
		res.Warnings = append(res.Warnings, warns...)
	default:
		err = common.NewConfigError(fmt.Sprintf("unsupported extraction engine %q", e.cfg.Engine))
	}
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Debug("pdf text extraction failed", "engine", e.cfg.Engine, "bytes", len(data), "error", err)
		return res, err
	}

	res.Pages = len(pages)
	res.Text, res.PagesWithText = JoinPages(pages)
	e.logger.Debug("pdf text extracted",
		"engine", e.cfg.Engine,
		"pages", res.Pages,
		"pages_with_text", res.PagesWithText,
		"chars", len(res.Text),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// JoinPages drops pages without text and joins the rest with "\n". Page
// text is kept as extracted; only the joined result is trimmed.
// It returns the joined text and how many pages contributed to it.
func JoinPages(pages []string) (string, int) {
	chunks := make([]string, 0, len(pages))
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			chunks = append(chunks, p)
		}
	}
	return strings.TrimSpace(strings.Join(chunks, "\n")), len(chunks)
}

func limitPages(pages []string, max int) []string {
	if max > 0 && len(pages) > max {
		return pages[:max]
	}
	return pages
}
