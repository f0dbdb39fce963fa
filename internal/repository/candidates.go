package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/cv-parser/constants"
	"github.com/joseph-ayodele/cv-parser/internal/common"
)

// CandidateRepository writes extracted CV text onto candidate records.
type CandidateRepository interface {
	// UpdateCVText overwrites the cv_text field of one candidate. It fails with
	// common.ErrNotFound when no candidate has the ID and common.ErrTransient
	// when the database call itself fails.
	UpdateCVText(ctx context.Context, candidateID int64, text string) error
}

type candidateRepo struct {
	drv    dialect.Driver
	table  string
	logger *slog.Logger
}

func NewCandidateRepository(drv dialect.Driver, table string, logger *slog.Logger) CandidateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if table == "" {
		table = constants.CandidatesTable
	}
	return &candidateRepo{drv: drv, table: table, logger: logger}
}

func (r *candidateRepo) UpdateCVText(ctx context.Context, candidateID int64, text string) error {
	query, args := entsql.Dialect(r.drv.Dialect()).
		Update(r.table).
		Set(constants.CVTextColumn, text).
		Where(entsql.EQ("id", candidateID)).
		Query()

	var res sql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		r.logger.Error("failed to update candidate cv text", "candidate_id", candidateID, "table", r.table, "error", err)
		return common.NewTransientError("update candidate cv text", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.NewTransientError("read rows affected", err)
	}
	if n == 0 {
		return common.NewNotFoundError(fmt.Sprintf("candidate %d", candidateID), nil)
	}
	r.logger.Debug("candidate cv text updated", "candidate_id", candidateID, "chars", len(text))
	return nil
}

// CreateCandidatesTable creates a minimal candidates table if it is missing.
// Production databases own their schema; this serves local SQLite runs.
func CreateCandidatesTable(ctx context.Context, drv dialect.Driver, table string) error {
	if table == "" {
		table = constants.CandidatesTable
	}
	query, args := entsql.Dialect(drv.Dialect()).
		CreateTable(table).
		IfNotExists().
		Columns(
			entsql.Column("id").Type("INTEGER").Attr("NOT NULL"),
			entsql.Column(constants.CVTextColumn).Type("TEXT"),
		).
		PrimaryKey("id").
		Query()
	return drv.Exec(ctx, query, args, nil)
}

// InsertCandidate adds an empty candidate row. Used to seed local databases.
func InsertCandidate(ctx context.Context, drv dialect.Driver, table string, id int64) error {
	if table == "" {
		table = constants.CandidatesTable
	}
	query, args := entsql.Dialect(drv.Dialect()).
		Insert(table).
		Columns("id").
		Values(id).
		Query()
	return drv.Exec(ctx, query, args, nil)
}
