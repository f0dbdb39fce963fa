package pdftext

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/cv-parser/internal/common"
)

// nativePages parses the PDF in-process and returns the plain text of each page.
func nativePages(ctx context.Context, data []byte, maxPages int) (pages []string, err error) {
	// The reader panics on some malformed object graphs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = common.NewExtractionError("malformed pdf", fmt.Errorf("%v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, common.NewExtractionError("open pdf", err)
	}

	n := r.NumPage()
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, common.NewTransientError("text extraction interrupted", err)
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, common.NewExtractionError(fmt.Sprintf("read page %d", i), err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
