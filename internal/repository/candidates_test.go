package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cv-parser/internal/common"
)

func openTestDB(t *testing.T) *entsql.Driver {
	t.Helper()
	ctx := context.Background()
	drv, err := OpenSQLite(ctx, ":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })

	require.NoError(t, CreateCandidatesTable(ctx, drv, ""))
	require.NoError(t, InsertCandidate(ctx, drv, "", 42))
	return drv
}

func cvText(t *testing.T, drv *entsql.Driver, id int64) sql.NullString {
	t.Helper()
	var text sql.NullString
	err := drv.DB().QueryRowContext(context.Background(), "SELECT cv_text FROM candidates WHERE id = ?", id).Scan(&text)
	require.NoError(t, err)
	return text
}

func TestUpdateCVText(t *testing.T) {
	drv := openTestDB(t)
	repo := NewCandidateRepository(drv, "candidates", nil)

	err := repo.UpdateCVText(context.Background(), 42, "Alice Smith\nExperience: ...")
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith\nExperience: ...", cvText(t, drv, 42).String)
}

func TestUpdateCVTextIsIdempotent(t *testing.T) {
	drv := openTestDB(t)
	repo := NewCandidateRepository(drv, "", nil)

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.UpdateCVText(context.Background(), 42, "Alice Smith"))
	}
	assert.Equal(t, "Alice Smith", cvText(t, drv, 42).String)
}

func TestUpdateCVTextEmptyText(t *testing.T) {
	drv := openTestDB(t)
	repo := NewCandidateRepository(drv, "", nil)

	require.NoError(t, repo.UpdateCVText(context.Background(), 42, ""))
	got := cvText(t, drv, 42)
	assert.True(t, got.Valid)
	assert.Empty(t, got.String)
}

func TestUpdateCVTextMissingCandidate(t *testing.T) {
	drv := openTestDB(t)
	repo := NewCandidateRepository(drv, "", nil)

	err := repo.UpdateCVText(context.Background(), 7, "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.False(t, cvText(t, drv, 42).Valid, "other rows untouched")
}

func TestUpdateCVTextDatabaseFailure(t *testing.T) {
	drv := openTestDB(t)
	repo := NewCandidateRepository(drv, "no_such_table", nil)

	err := repo.UpdateCVText(context.Background(), 42, "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTransient)
}

func TestHealthCheck(t *testing.T) {
	drv := openTestDB(t)
	assert.NoError(t, HealthCheck(context.Background(), DriverPinger(drv), time.Second, slog.Default()))

	require.NoError(t, drv.Close())
	assert.Error(t, HealthCheck(context.Background(), DriverPinger(drv), time.Second, slog.Default()))
}
