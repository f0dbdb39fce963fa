package extract

import (
	"context"
	"time"
)

// TextExtractor turns raw document bytes into text.
// A document that parses but holds no text yields an empty Text and no error;
// an unparseable byte stream fails with common.ErrExtraction.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (TextExtractionResult, error)
}

type TextExtractionResult struct {
	Text          string
	Pages         int // pages read
	PagesWithText int
	Method        string // "native" | "pdftotext"
	Duration      time.Duration
	Warnings      []string
}
