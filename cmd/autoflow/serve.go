package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/autoflow"
	"github.com/aretw0/autoflow/internal/cli"
	"github.com/aretw0/autoflow/internal/presentation/tui"
	"github.com/aretw0/autoflow/pkg/adapters/file"
	httpAdapter "github.com/aretw0/autoflow/pkg/adapters/http"
	"github.com/aretw0/autoflow/pkg/domain"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the activation scheduler",
	Long: `Starts the AutoFlow engine in server mode: workflow CRUD, manual runs, activation,
inbound events and run history are exposed as a JSON API over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}
		workflows, _ := cmd.Flags().GetString("workflows")
		activate, _ := cmd.Flags().GetBool("activate")

		streams := httpAdapter.NewStreamManager(logger)
		rt, err := cli.NewEngine(cfg, logger, streams.Hooks())
		if err != nil {
			return err
		}
		defer rt.Close()

		if workflows != "" {
			if err := seedWorkflows(cmd.Context(), rt.Engine, logger, workflows, activate); err != nil {
				return err
			}
		}

		handler := httpAdapter.NewHandler(rt.Engine,
			httpAdapter.WithLogger(logger),
			httpAdapter.WithMetricsHandler(rt.Metrics.Handler()),
			httpAdapter.WithStreams(streams),
			httpAdapter.WithMaxEventBytes(int64(cfg.Server.MaxEventBytes)),
			httpAdapter.WithVersion(autoflow.Version),
		)

		srv := &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: handler,
		}
		// Event streams never go idle on their own; end them when shutdown starts.
		srv.RegisterOnShutdown(streams.Close)

		tui.PrintBanner(cmd.OutOrStdout(), autoflow.Version)
		rt.Engine.Start()

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("autoflow server listening", "addr", srv.Addr, "storage", cfg.Storage.Driver)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			_ = rt.Engine.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutdown started", "signal", sig.String())

			// Give outstanding requests a deadline, then in-flight runs a fresh one.
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("graceful shutdown did not complete", "timeout", cfg.Server.ShutdownTimeout, "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("error killing server", "err", err)
				}
			}

			runCtx, runCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer runCancel()
			if err := rt.Engine.Shutdown(runCtx); err != nil {
				logger.Error("runs still in flight at exit", "err", err)
			}
			logger.Info("autoflow server stopped gracefully")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":3000", "Address to listen on (overrides server.addr)")
	serveCmd.Flags().String("workflows", "", "Workflow definition file or directory to load at startup")
	serveCmd.Flags().Bool("activate", false, "Activate every workflow loaded with --workflows")
}

// seedWorkflows stores the definitions found at path. Ids already present
// in storage are left untouched.
func seedWorkflows(ctx context.Context, engine *autoflow.Engine, logger *slog.Logger, path string, activate bool) error {
	defs, err := file.LoadAll(path)
	if err != nil {
		return err
	}

	for _, wf := range defs {
		if _, err := engine.Create(ctx, wf); err != nil {
			if !errors.Is(err, domain.ErrWriteConflict) {
				return fmt.Errorf("failed to load workflow %s: %w", wf.ID, err)
			}
			logger.Info("workflow already stored, keeping it", "workflow_id", wf.ID)
		}
		if activate {
			act, err := engine.Activate(ctx, wf.ID)
			if err != nil {
				return fmt.Errorf("failed to activate workflow %s: %w", wf.ID, err)
			}
			logger.Info("workflow activated", "workflow_id", wf.ID, "schedule", act.Schedule)
		}
	}
	return nil
}
