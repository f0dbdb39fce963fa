package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cv-parser/internal/entity"
)

const failedSheet = "Failed Jobs"

// FailedJobLister is the part of the queue the export reads from.
type FailedJobLister interface {
	ListFailed(ctx context.Context, limit int) ([]entity.FailedJob, error)
}

// Service produces XLSX workbooks of dead-lettered jobs for operators.
type Service struct {
	jobs   FailedJobLister
	logger *slog.Logger
}

func NewService(jobs FailedJobLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, logger: logger}
}

// ExportFailedJobsXLSX returns a workbook (as bytes) with up to limit failed
// jobs, newest first. A limit of zero or less exports all of them.
func (s *Service) ExportFailedJobsXLSX(ctx context.Context, limit int) ([]byte, error) {
	start := time.Now()

	jobs, err := s.jobs.ListFailed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}

	b, err := FailedJobsXLSX(jobs)
	if err != nil {
		return nil, err
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(jobs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return b, nil
}

// FailedJobsXLSX renders jobs as a single-sheet workbook.
func FailedJobsXLSX(jobs []entity.FailedJob) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// rename the default sheet so the workbook has exactly one
	if err := f.SetSheetName("Sheet1", failedSheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Job ID",
		"Name",
		"Payload",
		"Attempts",
		"Max Attempts",
		"Error Kind",
		"Last Error",
		"Enqueued At",
		"Failed At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(failedSheet, cell, h)
	}

	for i, j := range jobs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(failedSheet, cell, v)
		}
		write(1, j.ID)
		write(2, j.Name)
		write(3, j.Payload)
		write(4, j.Attempts)
		write(5, j.MaxAttempts)
		write(6, j.ErrorKind)
		write(7, truncate(j.LastError, 300))
		write(8, formatTime(j.EnqueuedAt))
		write(9, formatTime(j.FailedAt))
	}

	_ = f.SetColWidth(failedSheet, "A", "A", 38) // uuid
	_ = f.SetColWidth(failedSheet, "B", "B", 12)
	_ = f.SetColWidth(failedSheet, "C", "C", 48)
	_ = f.SetColWidth(failedSheet, "D", "F", 12)
	_ = f.SetColWidth(failedSheet, "G", "G", 60)
	_ = f.SetColWidth(failedSheet, "H", "I", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
