package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/wayback-fetcher/internal/api"
	"github.com/JakeFAU/wayback-fetcher/internal/id/uuid"
	"github.com/JakeFAU/wayback-fetcher/internal/index"
	"github.com/JakeFAU/wayback-fetcher/internal/worker"
)

func newFetchCmd() *cobra.Command {
	var dataPath string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download every snapshot listed in an index CSV",
		Long: `Reads a timestamp,url CSV produced by the index command and downloads
each snapshot into the configured blob store. Progress is checkpointed
before every dispatch, so a restarted run resumes at the last dispatched
record.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer closeApp(cmd.Context())
			return runFetch(cmd.Context(), dataPath)
		},
	}
	cmd.Flags().StringVarP(&dataPath, "data", "d", "./data.csv", "CSV of (timestamp, url) records")
	return cmd
}

func runFetch(ctx context.Context, dataPath string) error {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	logger := appInstance.Logger()
	cfg := appInstance.Config()

	records, err := index.ReadCSVFile(dataPath)
	if err != nil {
		return err
	}
	runID, err := uuid.New().NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}
	run, err := appInstance.FetchRun(ctx, runID)
	if err != nil {
		return err
	}

	started := time.Now().UTC()
	logger.Info("fetch run started",
		zap.String("run_id", runID),
		zap.String("data", dataPath),
		zap.Int("records", len(records)))

	runCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	g, gctx := errgroup.WithContext(runCtx)
	if cfg.Server.Port > 0 {
		server := api.NewServer(run, runID, started, logger.Named("api"))
		g.Go(func() error {
			// A broken status endpoint must not abort the downloads.
			if err := server.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.Server.Port), 5*time.Second); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
			return nil
		})
	}

	var summary worker.Summary
	g.Go(func() error {
		defer stopServer()
		var runErr error
		summary, runErr = run.Run(ctx, records)
		return runErr
	})
	err = g.Wait()

	logger.Info("fetch run complete",
		zap.String("run_id", runID),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("dispatched", summary.Dispatched),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("last_index", summary.LastIndex))
	if errors.Is(err, context.Canceled) {
		logger.Warn("fetch run interrupted, rerun to resume from the checkpoint")
		return nil
	}
	return err
}
