package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/timeclock/internal/config"
	"github.com/roach88/timeclock/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Addr     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authoritative attendance store",
		Long: `Run the attendance store HTTP API that arbitrates transitions.

The store keeps one record per worker per calendar day in a SQLite
database (created if it doesn't exist) and exposes the conditional
write that serializes concurrent submissions.

Example:
  timeclock serve --db ./timeclock.db --addr :8433`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.ServerDBPath = opts.Database
	}
	if opts.Addr != "" {
		cfg.ListenAddr = opts.Addr
	}

	slog.Info("opening database", "path", cfg.ServerDBPath)
	st, err := server.OpenStore(cfg.ServerDBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	handler := server.NewHandler(st, slog.Default())
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("attendance store listening", "addr", cfg.ListenAddr)
		fmt.Fprintf(cmd.OutOrStdout(), "Attendance store listening on %s. Press Ctrl-C to stop.\n", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "server error", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return WrapExitError(ExitCommandError, "shutdown error", err)
		}
	}

	slog.Info("server stopped gracefully")
	return nil
}
