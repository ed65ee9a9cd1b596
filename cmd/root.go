// Package cmd defines the CLI commands of the wayback-fetcher executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-fetcher/internal/app"
	"github.com/JakeFAU/wayback-fetcher/internal/archive"
	"github.com/JakeFAU/wayback-fetcher/internal/config"
	"github.com/JakeFAU/wayback-fetcher/internal/logging"
	"github.com/JakeFAU/wayback-fetcher/internal/worker"
)

// Indexer paginates one domain's index.
type Indexer interface {
	Run(ctx context.Context, domain string) ([]archive.IndexRecord, error)
}

// FetchRun downloads records and exposes its live state.
type FetchRun interface {
	Run(ctx context.Context, records []archive.IndexRecord) (worker.Summary, error)
	RateState() archive.RateState
	Summary() worker.Summary
}

// App is what the commands need from the service container. Tests inject
// a fake through newApp.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Indexer(ctx context.Context) (Indexer, error)
	CSVPath(domain string) string
	FetchRun(ctx context.Context, runID string) (FetchRun, error)
	Close() error
}

type appKeyType struct{}

var appKey appKeyType

type container struct {
	*app.App
	logger *zap.Logger
}

func (c container) Logger() *zap.Logger { return c.logger }

func (c container) Indexer(ctx context.Context) (Indexer, error) {
	return c.App.Paginator(ctx)
}

func (c container) FetchRun(ctx context.Context, runID string) (FetchRun, error) {
	return c.App.FetchPool(ctx, runID)
}

// newApp is a variable so tests can swap in a fake container.
var newApp = func(cfg config.Config) (App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return container{App: app.New(cfg, logger), logger: logger}, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "wayback-fetcher",
		Short: "Harvest archived page snapshots from the Wayback Machine.",
		Long: `wayback-fetcher lists the archived snapshots of one or more domains
through the CDX index, then downloads every snapshot into blob storage,
backing off whenever the archive signals throttling.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.AddCommand(newIndexCmd(), newFetchCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// closeApp releases the container. It runs from each command's RunE since
// cobra skips post-run hooks when RunE fails.
func closeApp(ctx context.Context) {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return
	}
	if err := appInstance.Close(); err != nil {
		appInstance.Logger().Warn("application close failed", zap.Error(err))
	}
	_ = appInstance.Logger().Sync()
}

// Execute runs the root command until it finishes or SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
