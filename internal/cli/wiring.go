package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/timeclock/internal/attendance"
	"github.com/roach88/timeclock/internal/cache"
	"github.com/roach88/timeclock/internal/config"
	"github.com/roach88/timeclock/internal/feed"
	"github.com/roach88/timeclock/internal/remote"
)

// workspace bundles everything a worker-facing command needs.
type workspace struct {
	cfg     config.Config
	cache   *cache.Cache
	client  *remote.Client
	machine *attendance.Machine
	locks   *attendance.WorkerLocks
	emitter feed.Emitter
}

// openWorkspace loads config, opens the local cache and builds the
// state machine. Callers must close it.
func openWorkspace(opts *RootOptions) (*workspace, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to resolve timezone", err)
	}

	c, err := cache.Open(cfg.CachePath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open local cache", err)
	}

	client := remote.New(cfg.RemoteURL, cfg.RemoteTimeout)
	locks := attendance.NewWorkerLocks()
	emitter := feed.NewLogEmitter(slog.Default())

	machine := attendance.NewMachine(attendance.MachineOptions{
		Remote:        client,
		Cache:         c,
		Emitter:       emitter,
		Locks:         locks,
		Location:      loc,
		RemoteTimeout: cfg.RemoteTimeout,
	})

	return &workspace{
		cfg:     cfg,
		cache:   c,
		client:  client,
		machine: machine,
		locks:   locks,
		emitter: emitter,
	}, nil
}

func (w *workspace) close() {
	if err := w.cache.Close(); err != nil {
		slog.Error("error closing local cache", "error", err)
	}
}

// transitionFunc is one of the Machine's worker-facing operations.
type transitionFunc func(ctx context.Context, m *attendance.Machine, workerID string) (attendance.Record, error)

// runTransition wires a cobra command invocation through the machine
// and formats the outcome. Rejections exit 1, command errors exit 2.
func runTransition(opts *RootOptions, cmd *cobra.Command, workerID string, fn transitionFunc) error {
	ws, err := openWorkspace(opts)
	if err != nil {
		return err
	}
	defer ws.close()

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rec, err := fn(ctx, ws.machine, workerID)
	if err != nil {
		if re, ok := attendance.IsRejection(err); ok {
			_ = formatter.Rejection(re)
			return WrapExitError(ExitRejected, string(re.Code), err)
		}
		return WrapExitError(ExitCommandError, "transition failed", err)
	}

	return formatter.Record(rec)
}
