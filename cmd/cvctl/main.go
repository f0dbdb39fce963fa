package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cv-parser/internal/common"
	"github.com/joseph-ayodele/cv-parser/internal/queue"
)

var rootFlags struct {
	envFile string
	verbose bool
}

// loaded by the root PersistentPreRunE
var (
	cfg    *common.Config
	logger *slog.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cvctl",
		Short:         "Operate the cv-parser queue and stores",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rootFlags.envFile != "" {
				if err := godotenv.Load(rootFlags.envFile); err != nil {
					return fmt.Errorf("load %s: %w", rootFlags.envFile, err)
				}
			} else {
				_ = godotenv.Load()
			}

			c, err := common.LoadConfig()
			if err != nil {
				return err
			}
			cfg = c

			level := cfg.Log.Level
			if rootFlags.verbose {
				level = "debug"
			}
			// stdout is for command output
			logger = common.NewLogger(os.Stderr, cfg.Log.Format, level)
			slog.SetDefault(logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&rootFlags.envFile, "env-file", "", "load environment from this file (default: .env if present)")
	root.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newEnqueueCmd(),
		newExtractCmd(),
		newStatsCmd(),
		newFailedCmd(),
		newDBHealthCmd(),
		newDBInitCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openQueue(ctx context.Context) (*queue.RedisQueue, error) {
	return queue.NewRedisQueue(ctx, queue.Options{
		URL:         cfg.Queue.RedisURL,
		Name:        cfg.Queue.Name,
		Prefix:      cfg.Queue.Prefix,
		ConsumerID:  cfg.Queue.ConsumerID,
		PollTimeout: cfg.Queue.PollTimeout,
		MaxAttempts: cfg.Queue.MaxAttempts,
		Backoff:     cfg.Queue.Backoff,
		MaxBackoff:  cfg.Queue.MaxBackoff,
		ResultTTL:   cfg.Queue.ResultTTL,
	}, logger)
}
