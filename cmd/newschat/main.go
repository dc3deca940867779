package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/newschat/config"
	"github.com/mohammad-safakhou/newschat/internal/index"
	"github.com/mohammad-safakhou/newschat/internal/ingest"
	srv "github.com/mohammad-safakhou/newschat/internal/server"
	"github.com/mohammad-safakhou/newschat/provider"
)

func main() {
	var root = &cobra.Command{Use: "newschat"}
	var cfgPath string
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")

	var serveAddr string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server with background ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr == "" {
				serveAddr = os.Getenv("NEWSCHAT_HTTP_ADDR")
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, cfg, serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")

	var ingestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			llm, err := provider.NewProvider(cfg.LLM)
			if err != nil {
				return err
			}
			var idx index.Index
			if cfg.Storage.Index.Backend == "postgres" {
				pg, err := index.NewPostgres(ctx, cfg.Storage.Postgres.DSN())
				if err != nil {
					return err
				}
				idx = pg
			} else {
				// A memory index does not outlive the process; one-shot
				// ingestion only makes sense against postgres.
				return fmt.Errorf("ingest command requires storage.index.backend=postgres")
			}
			fetcher := ingest.NewRSSFetcher(cfg.Ingest.MaxArticlesPerFeed, cfg.Ingest.FeedTimeout)
			ing := ingest.New(fetcher, llm, idx, cfg.Ingest, nil)
			return ing.RunCycle(ctx)
		},
	}

	var migDir string
	var direction string
	var steps int
	var migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return srv.Migrate(migDir, cfg.Storage.Postgres.DSN(), direction, steps)
		},
	}
	migrateCmd.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	migrateCmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrateCmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	root.AddCommand(serve, ingestCmd, migrateCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
