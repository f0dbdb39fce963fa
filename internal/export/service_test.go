package export

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/cv-parser/internal/entity"
)

type fakeLister struct {
	jobs      []entity.FailedJob
	err       error
	lastLimit int
}

func (f *fakeLister) ListFailed(_ context.Context, limit int) ([]entity.FailedJob, error) {
	f.lastLimit = limit
	return f.jobs, f.err
}

func TestExportFailedJobsXLSX(t *testing.T) {
	failedAt := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	lister := &fakeLister{jobs: []entity.FailedJob{
		{
			ID:          "0b8c1c5e-1111-4a4a-9c9c-000000000001",
			Name:        "parse-cv",
			Payload:     `{"candidate_id":7,"storage_path":"missing.pdf"}`,
			Attempts:    1,
			MaxAttempts: 1,
			ErrorKind:   "not_found",
			LastError:   "download \"missing.pdf\": object not found",
			EnqueuedAt:  failedAt.Add(-time.Minute),
			FailedAt:    failedAt,
		},
	}}

	svc := NewService(lister, nil)
	b, err := svc.ExportFailedJobsXLSX(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 50, lister.lastLimit)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{failedSheet}, f.GetSheetList())

	rows, err := f.GetRows(failedSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Job ID", rows[0][0])
	assert.Equal(t, "Failed At", rows[0][8])
	assert.Equal(t, "0b8c1c5e-1111-4a4a-9c9c-000000000001", rows[1][0])
	assert.Equal(t, "not_found", rows[1][5])
	assert.Equal(t, "2025-03-01T10:30:00Z", rows[1][8])
}

func TestExportFailedJobsEmpty(t *testing.T) {
	b, err := FailedJobsXLSX(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(failedSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExportFailedJobsListError(t *testing.T) {
	svc := NewService(&fakeLister{err: errors.New("redis down")}, nil)
	_, err := svc.ExportFailedJobsXLSX(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	got := truncate(strings.Repeat("x", 10), 5)
	assert.Equal(t, "xxxx…", got)
}
