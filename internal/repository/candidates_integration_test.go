//go:build integration

package repository

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/joseph-ayodele/cv-parser/internal/common"
)

func TestCandidateRepositoryPostgres(t *testing.T) {
	ctx := context.Background()

	pgCtr, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("cvparser_test"),
		tcpostgres.WithUsername("cvparser"),
		tcpostgres.WithPassword("testpassword"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgCtr.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := pgCtr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.Default()
	drv, pool, err := Open(ctx, Config{DSN: dsn, MaxConns: 4, DialTimeout: 10 * time.Second}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { Close(drv, pool, logger) })
	require.NoError(t, HealthCheck(ctx, pool, 5*time.Second, logger))

	require.NoError(t, CreateCandidatesTable(ctx, drv, ""))
	require.NoError(t, InsertCandidate(ctx, drv, "", 42))

	repo := NewCandidateRepository(drv, "", logger)
	for i := 0; i < 2; i++ {
		require.NoError(t, repo.UpdateCVText(ctx, 42, "Alice Smith\nExperience: ..."))
	}

	var text string
	require.NoError(t, pool.QueryRow(ctx, "SELECT cv_text FROM candidates WHERE id = $1", 42).Scan(&text))
	assert.Equal(t, "Alice Smith\nExperience: ...", text)

	err = repo.UpdateCVText(ctx, 7, "text")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
