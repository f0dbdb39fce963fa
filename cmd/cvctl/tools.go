package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cv-parser/constants"
	"github.com/joseph-ayodele/cv-parser/internal/pdftext"
	repo "github.com/joseph-ayodele/cv-parser/internal/repository"
)

func newExtractCmd() *cobra.Command {
	var (
		engine   string
		maxPages int
		stats    bool
	)
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Extract text from a local PDF and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if engine == "" {
				engine = cfg.Extract.Engine
			}

			x := pdftext.NewExtractor(pdftext.Config{
				Engine:    engine,
				Pdftotext: cfg.Extract.Pdftotext,
				MaxPages:  maxPages,
			}, logger)
			res, err := x.Extract(cmd.Context(), data)
			if err != nil {
				return err
			}

			fmt.Println(res.Text)
			if stats {
				fmt.Fprintf(os.Stderr, "method=%s pages=%d pages_with_text=%d chars=%d duration_ms=%d\n",
					res.Method, res.Pages, res.PagesWithText, len(res.Text), res.Duration.Milliseconds())
				for _, w := range res.Warnings {
					fmt.Fprintln(os.Stderr, "warning:", w)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&engine, "engine", "", "native | pdftotext (default: EXTRACT_ENGINE)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "only read the first N pages (0 = all)")
	cmd.Flags().BoolVar(&stats, "stats", false, "print extraction stats to stderr")
	return cmd
}

// openRecordDB opens the SQL record store named by RECORD_STORE.
func openRecordDB(ctx context.Context) (*entsql.Driver, func(), error) {
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, nil, err
	}
	switch cfg.RecordStore {
	case constants.RecordStoreSQLite:
		drv, err := repo.OpenSQLite(ctx, cfg.Database.DSN, logger)
		if err != nil {
			return nil, nil, err
		}
		return drv, func() { repo.Close(drv, nil, logger) }, nil
	case constants.RecordStorePostgres:
		drv, pool, err := repo.Open(ctx, repo.Config{
			DSN:         cfg.Database.DSN,
			MaxConns:    2,
			MinConns:    1,
			DialTimeout: cfg.Database.DialTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return drv, func() { repo.Close(drv, pool, logger) }, nil
	default:
		return nil, nil, fmt.Errorf("RECORD_STORE=%q has no SQL database; use postgres or sqlite", cfg.RecordStore)
	}
}

func newDBHealthCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dbhealth",
		Short: "Ping the SQL record store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			drv, closeDB, err := openRecordDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			if err := repo.HealthCheck(cmd.Context(), repo.DriverPinger(drv), timeout, logger); err != nil {
				return fmt.Errorf("DB health: FAIL (%w)", err)
			}
			fmt.Println("DB health: OK")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "ping timeout")
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var seed []int64
	cmd := &cobra.Command{
		Use:   "dbinit",
		Short: "Create the candidates table (local sqlite or scratch postgres)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			drv, closeDB, err := openRecordDB(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			table := cfg.Database.CandidatesTable
			if err := repo.CreateCandidatesTable(cmd.Context(), drv, table); err != nil {
				return err
			}
			for _, id := range seed {
				if err := repo.InsertCandidate(cmd.Context(), drv, table, id); err != nil {
					return fmt.Errorf("seed candidate %d: %w", id, err)
				}
			}
			ids := make([]string, len(seed))
			for i, id := range seed {
				ids[i] = fmt.Sprint(id)
			}
			fmt.Printf("table %s ready; seeded [%s]\n", table, strings.Join(ids, ", "))
			return nil
		},
	}
	cmd.Flags().Int64SliceVar(&seed, "seed", nil, "candidate ids to insert")
	return cmd
}
