// Package main is the operator CLI: schema migrations and audit dead-letter
// queue inspection and replay.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/civic-assembly/backend/config"
	"github.com/civic-assembly/backend/pkg/database"
	"github.com/civic-assembly/backend/pkg/queue"
	"github.com/civic-assembly/backend/pkg/redis"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// deadQueue is what the dlq commands need from queue.Queue.
type deadQueue interface {
	Len(ctx context.Context, queueName string) (int64, error)
	ReplayDead(ctx context.Context, limit int) (int, error)
}

type app struct {
	timeout time.Duration
	verbose bool

	// Overridable in tests.
	migrate   func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error
	openQueue func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (deadQueue, func(), error)
	loadCfg   func() (*config.Config, error)
}

func newApp() *app {
	return &app{
		migrate:   runMigrations,
		openQueue: openRedisQueue,
		loadCfg:   config.Load,
	}
}

func rootCmd() *cobra.Command {
	return newApp().command()
}

func (a *app) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "assemblyctl",
		Short:         "Operate the assembly governance backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "Deadline for the whole command")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log at debug level")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "assemblyctl version %s\n", version)
		},
	})
	cmd.AddCommand(a.migrateCmd(), a.dlqCmd())
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEnv(cmd, func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
				if err := a.migrate(ctx, cfg, logger); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations up to date")
				return nil
			})
		},
	}
}

func (a *app) dlqCmd() *cobra.Command {
	dlq := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect or replay dead-lettered audit jobs",
	}
	dlq.AddCommand(&cobra.Command{
		Use:   "len",
		Short: "Print the number of dead-lettered jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withQueue(cmd, func(ctx context.Context, q deadQueue) error {
				n, err := q.Len(ctx, queue.QueueDLQ)
				if err != nil {
					return fmt.Errorf("dlq length: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	})

	var limit int
	replay := &cobra.Command{
		Use:   "replay",
		Short: "Move dead-lettered jobs back onto the audit queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withQueue(cmd, func(ctx context.Context, q deadQueue) error {
				n, err := q.ReplayDead(ctx, limit)
				fmt.Fprintf(cmd.OutOrStdout(), "replayed %d job(s)\n", n)
				return err
			})
		},
	}
	replay.Flags().IntVar(&limit, "limit", 0, "Replay at most this many jobs (0 for all)")
	dlq.AddCommand(replay)
	return dlq
}

func (a *app) withEnv(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error) error {
	cfg, err := a.loadCfg()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), a.verbose)
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()
	return fn(ctx, cfg, logger)
}

func (a *app) withQueue(cmd *cobra.Command, fn func(ctx context.Context, q deadQueue) error) error {
	return a.withEnv(cmd, func(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
		q, closeFn, err := a.openQueue(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(ctx, q)
	})
}

func runMigrations(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.PoolOptions(), logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	return database.Migrate(ctx, pool, logger)
}

func openRedisQueue(ctx context.Context, cfg *config.Config, logger *zap.Logger) (deadQueue, func(), error) {
	rdb, err := redis.NewClient(ctx, cfg.Redis.Options(), logger)
	if err != nil {
		return nil, nil, err
	}
	return queue.NewQueue(rdb.Client, logger), func() { _ = rdb.Close() }, nil
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), level))
}
