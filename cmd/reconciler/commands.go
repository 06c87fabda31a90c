package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	httpDelivery "github.com/paramed/reconciler/internal/delivery/http"
	"github.com/paramed/reconciler/internal/domain"
	"github.com/paramed/reconciler/internal/logging"
	"github.com/paramed/reconciler/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

func newImportCommand(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import raw JSONL listings into the record store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ctx := logging.WithLogger(cmd.Context(), &logger)

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open %s: %w", file, err)
				}
				defer f.Close()
				in = f
			}

			stats, err := usecase.NewIngestService(a.store).Import(ctx, in)
			if err != nil {
				logger.Error().Err(err).Msg("Import failed")
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "read=%d imported=%d duplicates=%d skipped=%d\n",
				stats.Read, stats.Imported, stats.Duplicates, stats.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "JSONL file with one listing per line, - for stdin")

	return cmd
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var (
		mode    string
		sources []string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation pass over stored records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ctx := logging.WithLogger(cmd.Context(), &logger)

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			service, err := a.reconciliationService(ctx)
			if err != nil {
				return err
			}

			records, err := a.store.LoadRecords(ctx, sources...)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return errors.New("no records in store; run import first")
			}

			result, err := service.Run(ctx, usecase.RunRequest{Mode: domain.Mode(mode), Records: records})
			if err != nil {
				logger.Error().Err(err).Msg("Reconciliation run failed")
				return err
			}

			if output != "" {
				if err := writeResult(output, result); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run=%s mode=%s matches=%d clusters=%d unmatched=%d partitions=%d\n",
				result.RunID, result.Mode, len(result.Matches), len(result.Clusters), len(result.Unmatched), result.Partitions)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "bipartite or graph (default: engine.mode)")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "restrict the run to these catalogs")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the run result as JSON to this file")

	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the reconciliation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ctx := logging.WithLogger(cmd.Context(), &logger)

			logger.Info().
				Str("version", version).
				Str("environment", cfg.Server.Environment).
				Str("port", cfg.Server.Port).
				Str("cache", cfg.Cache.Type).
				Str("embedding", cfg.Embedding.Provider).
				Msg("Starting reconciler")

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			service, err := a.reconciliationService(ctx)
			if err != nil {
				return err
			}

			handler := httpDelivery.NewHandler(service, a.store, a.store)
			router := httpDelivery.SetupRouter(cfg, handler, logger)

			srv := &http.Server{
				Addr:              ":" + cfg.Server.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("Server listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func writeResult(path string, result *domain.RunResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
