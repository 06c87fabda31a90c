package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/paramed/reconciler/config"
	"github.com/paramed/reconciler/internal/logging"
)

const version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and returns the process exit code. Errors are written
// to stderr since the root command silences cobra's own reporting.
func execute(ctx context.Context, args []string, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type rootOptions struct {
	configFile string
	envFile    string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "reconciler",
		Short:         "Cross-catalog product reconciliation engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default: ./config.yaml, ./config/config.yaml, /etc/reconciler/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before configuration")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	cmd.AddCommand(
		newImportCommand(opts),
		newRunCommand(opts),
		newServeCommand(opts),
	)

	return cmd
}

// load reads .env and configuration and installs the process logger
func (o *rootOptions) load() (*config.Config, zerolog.Logger, error) {
	if err := config.LoadEnvFile(o.envFile); err != nil {
		return nil, zerolog.Nop(), err
	}

	cfg, err := config.LoadFrom(o.configFile)
	if err != nil {
		logger := logging.New(logging.Config{})
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Nop(), err
	}

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logger := logging.New(cfg.Log)
	logging.SetDefault(logger)

	return cfg, logger, nil
}
