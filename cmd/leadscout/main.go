// Package main is the entry point for the leadscout service binary.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scoutgrid/leadscout/internal/config"
	"github.com/scoutgrid/leadscout/internal/logging"
	"github.com/scoutgrid/leadscout/internal/serp"
	"github.com/scoutgrid/leadscout/internal/server"
)

var cfgFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadscout",
		Short: "Search-driven lead scouting service",
		Long: `leadscout turns search queries into structured business leads.
It runs multi-page Google searches through a scraping proxy, crawls the
top-ranked company sites, and extracts contact and company data.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and job pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			app, err := server.Build(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}

func newSearchCmd() *cobra.Command {
	var pages int
	var perPage int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Run a one-shot SERP search and print results as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			result, err := runSearch(cmd.Context(), cfg, logger, args[0], pages, perPage)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("encode results: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 0, "number of SERP pages to fetch")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "results per page")
	return cmd
}

func runSearch(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
	query string,
	pages, perPage int,
) (serp.BatchResult, error) {
	client := serp.NewClient(serp.ClientConfig{
		Endpoint:   cfg.SERP.Endpoint,
		APIKey:     cfg.SERP.APIKey,
		Timeout:    cfg.SERPTimeout(),
		MaxRetries: cfg.SERP.MaxRetries,
		Render:     cfg.SERP.Render,
	}, logger.Named("serp_client"))
	pager := serp.NewPager(client, serp.NewParser(logger.Named("serp_parser")), cfg.SERP.Concurrency, logger.Named("serp_pager"))

	if pages <= 0 {
		pages = cfg.SERP.PagesDefault
	}
	if pages > cfg.SERP.MaxPages {
		pages = cfg.SERP.MaxPages
	}
	if perPage <= 0 {
		perPage = cfg.SERP.PerPageDefault
	}
	result, err := pager.Search(ctx, serp.BatchRequest{
		Query:    query,
		Pages:    pages,
		PerPage:  perPage,
		Country:  cfg.SERP.Country,
		Language: cfg.SERP.Language,
	})
	if err != nil {
		return serp.BatchResult{}, fmt.Errorf("search: %w", err)
	}
	return result, nil
}
