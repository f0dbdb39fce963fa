package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cv-parser/constants"
	"github.com/joseph-ayodele/cv-parser/internal/entity"
	"github.com/joseph-ayodele/cv-parser/internal/export"
	"github.com/joseph-ayodele/cv-parser/internal/queue"
)

func newEnqueueCmd() *cobra.Command {
	var (
		candidateID int64
		storagePath string
		jobID       string
		attempts    int
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a CV for text extraction",
		Example: `  cvctl enqueue --candidate-id 42 --storage-path cvs/42.pdf
  cvctl enqueue --candidate-id 42 --storage-path cvs/42.pdf --attempts 3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload := map[string]any{"candidate_id": candidateID, "storage_path": storagePath}
			// reject what the worker would reject anyway
			if _, err := entity.ParseJob(payload); err != nil {
				return err
			}

			q, err := openQueue(cmd.Context())
			if err != nil {
				return err
			}
			defer q.Close()

			id, err := q.Enqueue(cmd.Context(), constants.JobNameParseCV, payload, queue.EnqueueOptions{
				JobID:       jobID,
				MaxAttempts: attempts,
			})
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().Int64Var(&candidateID, "candidate-id", 0, "candidate record id")
	cmd.Flags().StringVar(&storagePath, "storage-path", "", "object path of the CV inside the bucket")
	cmd.Flags().StringVar(&jobID, "job-id", "", "explicit job id (default: random UUID)")
	cmd.Flags().IntVar(&attempts, "attempts", 0, "max attempts for transient failures (default: QUEUE_MAX_ATTEMPTS)")
	_ = cmd.MarkFlagRequired("candidate-id")
	_ = cmd.MarkFlagRequired("storage-path")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts per state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := openQueue(cmd.Context())
			if err != nil {
				return err
			}
			defer q.Close()

			s, err := q.Stats(cmd.Context())
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("State", "Jobs")
			_ = table.Append(string(constants.JobStatusWaiting), strconv.FormatInt(s.Waiting, 10))
			_ = table.Append(string(constants.JobStatusActive), strconv.FormatInt(s.Active, 10))
			_ = table.Append(string(constants.JobStatusDelayed), strconv.FormatInt(s.Delayed, 10))
			_ = table.Append(string(constants.JobStatusFailed), strconv.FormatInt(s.Failed, 10))
			return table.Render()
		},
	}
}

func newFailedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "Inspect and requeue dead-lettered jobs",
	}
	cmd.AddCommand(newFailedListCmd(), newFailedRetryCmd(), newFailedExportCmd())
	return cmd
}

func newFailedListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List failed jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := openQueue(cmd.Context())
			if err != nil {
				return err
			}
			defer q.Close()

			jobs, err := q.ListFailed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("no failed jobs")
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.Header("ID", "Payload", "Attempts", "Kind", "Error", "Failed At")
			for _, j := range jobs {
				_ = table.Append(
					j.ID,
					j.Payload,
					fmt.Sprintf("%d/%d", j.Attempts, j.MaxAttempts),
					j.ErrorKind,
					shorten(j.LastError, 80),
					j.FailedAt.Format("2006-01-02 15:04:05"),
				)
			}
			return table.Render()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max jobs to show (0 = all)")
	return cmd
}

func newFailedRetryCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "retry [JOB_ID]",
		Short: "Move failed jobs back onto the queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("pass either a job id or --all")
			}

			q, err := openQueue(cmd.Context())
			if err != nil {
				return err
			}
			defer q.Close()

			if all {
				n, err := q.RetryAllFailed(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("requeued %d job(s)\n", n)
				return nil
			}
			if err := q.RetryFailed(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("requeued", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "requeue every failed job")
	return cmd
}

func newFailedExportCmd() *cobra.Command {
	var (
		out   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write failed jobs to an XLSX workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := openQueue(cmd.Context())
			if err != nil {
				return err
			}
			defer q.Close()

			b, err := export.NewService(q, logger).ExportFailedJobsXLSX(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "failed.xlsx", "output file")
	cmd.Flags().IntVar(&limit, "limit", 0, "max jobs to export (0 = all)")
	return cmd
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
