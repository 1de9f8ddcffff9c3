// Command fieldvisitctl runs batch jobs against the fieldvisit store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fieldvisit/common/logger"
	"fieldvisit/internal/app"
	"fieldvisit/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fieldvisitctl",
		Short:         "Batch tools for the fieldvisit service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newImportCmd(), newGeocodeBackfillCmd(), newMigrateCmd())
	return root
}

// bootstrap 加载配置并构建对象图；调用方负责 Close
func bootstrap() (*app.App, error) {
	cfg := config.Load()
	log, err := logger.NewLogger(cfg.Log.Level, "console", "fieldvisitctl")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a := app.New(cfg, log)
	if a.DB == nil {
		log.Warn("No database connection; changes are kept in memory only", zap.Bool("db_enabled", cfg.DBEnabled))
	}
	return a, nil
}
