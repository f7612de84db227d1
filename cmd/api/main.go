package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/PaulBabatuyi/streams/internal/config"
	"github.com/PaulBabatuyi/streams/internal/data"
	"github.com/PaulBabatuyi/streams/internal/db"
	logpkg "github.com/PaulBabatuyi/streams/internal/log"
)

var (
	// Version is the version of the server, set at build time.
	Version = "dev"

	configPath string

	rootCmd = &cobra.Command{
		Use:          "api",
		Short:        "Team messaging workspace server",
		Long:         "Serves the workspace JSON API, the notification stream, a gRPC health listener and prometheus metrics.",
		Version:      Version,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}

	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Reset the workspace to empty",
		Args:  cobra.NoArgs,
		RunE:  runClear,
	}

	configCmd = &cobra.Command{
		Use:   "config PATH",
		Short: "Write the effective configuration as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return cfg.WriteConfig(args[0])
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.RunE = runServe
	rootCmd.AddCommand(serveCmd, clearCmd, configCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger. The returned file,
// when not nil, is the log destination and must be closed.
func setup() (*config.Config, *log.Logger, *os.File, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, f, err := logpkg.NewLogger(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, f, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, f, err := setup()
	if err != nil {
		return err
	}
	if f != nil {
		defer f.Close() //nolint:errcheck
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	logger.Info("workspace server starting", "version", Version, "db", cfg.DB.Driver)

	lch := make(chan error, 1)
	go func() {
		lch <- a.Start(ctx)
	}()

	var serveErr error
	select {
	case serveErr = <-lch:
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Shutdown(sctx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}

func runClear(cmd *cobra.Command, _ []string) error {
	cfg, logger, f, err := setup()
	if err != nil {
		return err
	}
	if f != nil {
		defer f.Close() //nolint:errcheck
	}

	ctx := cmd.Context()
	backend, err := db.New(ctx, cfg.DB.Driver, cfg.DB.DataSource, cfg.DB.Database)
	if err != nil {
		return fmt.Errorf("open backend: %w", err)
	}
	defer backend.Close(ctx) //nolint:errcheck

	if err := data.NewStore(data.WithSnapshotter(backend)).Clear(ctx); err != nil {
		return fmt.Errorf("clear workspace: %w", err)
	}
	logger.Info("workspace cleared", "db", cfg.DB.Driver)
	return nil
}
