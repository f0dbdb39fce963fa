package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/cv-parser/internal/common"
	"github.com/joseph-ayodele/cv-parser/internal/entity"
	"github.com/joseph-ayodele/cv-parser/internal/extract"
	"github.com/joseph-ayodele/cv-parser/internal/metrics"
)

// Processor handles one CV parse job: validate, download, extract, persist.
// It keeps no per-job state, so a single Processor serves concurrent jobs.
type Processor struct {
	logger    *slog.Logger
	store     DocumentStore
	extractor extract.TextExtractor
	metrics   *metrics.Metrics
}

func NewProcessor(logger *slog.Logger, store DocumentStore, extractor extract.TextExtractor, m *metrics.Metrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:    logger,
		store:     store,
		extractor: extractor,
		metrics:   m,
	}
}

// Handle processes a raw queue payload. On failure the returned result has
// status "error" and the error carries its kind (validation, not found,
// transient, extraction). Nothing is retried here.
func (p *Processor) Handle(ctx context.Context, payload map[string]any) (entity.JobResult, error) {
	log := common.LoggerFor(ctx, p.logger)

	// 1) validate; no external calls for a bad payload
	job, err := entity.ParseJob(payload)
	if err != nil {
		log.Warn("processor.validate.failed", "error", err)
		return entity.ErrorResult(0), err
	}
	log = log.With("candidate_id", job.CandidateID, "storage_path", job.StoragePath)

	// 2) download
	start := time.Now()
	data, err := p.store.Download(ctx, job.StoragePath)
	p.metrics.ObserveStage("download", time.Since(start))
	if err != nil {
		err = asTransient(err, "download")
		log.Error("processor.download.failed", "kind", common.Kind(err), "error", err)
		return entity.ErrorResult(job.CandidateID), fmt.Errorf("download %q: %w", job.StoragePath, err)
	}

	// 3) extract
	start = time.Now()
	res, err := p.extractor.Extract(ctx, data)
	p.metrics.ObserveStage("extract", time.Since(start))
	if err != nil {
		log.Error("processor.extract.failed", "bytes", len(data), "kind", common.Kind(err), "error", err)
		return entity.ErrorResult(job.CandidateID), fmt.Errorf("extract %q: %w", job.StoragePath, err)
	}
	p.metrics.ObserveExtracted(len(res.Text))
	if res.Text == "" {
		log.Warn("processor.extract.empty", "pages", res.Pages)
	}

	// 4) persist; overwriting with the same text makes redelivery safe
	start = time.Now()
	err = p.store.UpdateCVText(ctx, job.CandidateID, res.Text)
	p.metrics.ObserveStage("persist", time.Since(start))
	if err != nil {
		err = asTransient(err, "persist")
		log.Error("processor.persist.failed", "kind", common.Kind(err), "error", err)
		return entity.ErrorResult(job.CandidateID), fmt.Errorf("persist candidate %d: %w", job.CandidateID, err)
	}

	log.Info("processor.persist.ok",
		"pages", res.Pages,
		"pages_with_text", res.PagesWithText,
		"chars", len(res.Text),
		"method", res.Method,
	)
	return entity.OKResult(job.CandidateID), nil
}

// asTransient classifies I/O errors that carry no kind as transient.
func asTransient(err error, stage string) error {
	if common.Kind(err) == "unknown" {
		return common.NewTransientError(stage, err)
	}
	return err
}
