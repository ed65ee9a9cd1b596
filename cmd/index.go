package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/wayback-fetcher/internal/index"
)

func newIndexCmd() *cobra.Command {
	var domainsFile string
	cmd := &cobra.Command{
		Use:   "index [domain...]",
		Short: "List archived HTML snapshots of each domain into a CSV file",
		Long: `Pages through the CDX index of every domain, checkpointing after each
page so an interrupted run resumes where it stopped, and writes the
HTML-looking records to <index.csv_dir>/<domain>.csv.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer closeApp(cmd.Context())
			domains, err := collectDomains(args, domainsFile)
			if err != nil {
				return err
			}
			return runIndex(cmd.Context(), domains)
		},
	}
	cmd.Flags().StringVar(&domainsFile, "domains-file", "", "file with one domain per line")
	return cmd
}

func collectDomains(args []string, path string) ([]string, error) {
	seen := make(map[string]struct{})
	var domains []string
	add := func(d string) {
		d = strings.TrimSpace(d)
		if d == "" || strings.HasPrefix(d, "#") {
			return
		}
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		domains = append(domains, d)
	}
	for _, arg := range args {
		add(arg)
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open domains file: %w", err)
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			add(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read domains file: %w", err)
		}
	}
	if len(domains) == 0 {
		return nil, errors.New("no domains given")
	}
	return domains, nil
}

// runIndex paginates every domain independently; one domain failing does
// not stop the others.
func runIndex(ctx context.Context, domains []string) error {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	logger := appInstance.Logger()
	indexer, err := appInstance.Indexer(ctx)
	if err != nil {
		return err
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(appInstance.Config().Index.DomainWorkers)
	for _, domain := range domains {
		g.Go(func() error {
			if err := indexDomain(gctx, appInstance, indexer, domain); err != nil {
				logger.Error("domain index failed", zap.String("domain", domain), zap.Error(err))
				mu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", domain, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("index run finished",
		zap.Int("domains", len(domains)),
		zap.Int("failed", len(failures)))
	return errors.Join(failures...)
}

func indexDomain(ctx context.Context, appInstance App, indexer Indexer, domain string) error {
	records, err := indexer.Run(ctx, domain)
	if err != nil {
		return err
	}
	path := appInstance.CSVPath(domain)
	if err := index.WriteCSVFile(path, records); err != nil {
		return err
	}
	appInstance.Logger().Info("domain indexed",
		zap.String("domain", domain),
		zap.Int("records", len(records)),
		zap.String("csv", path))
	return nil
}
