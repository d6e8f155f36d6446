package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/timeclock/internal/reconcile"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Watch bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push pending local transitions to the remote store",
		Long: `Reconcile the local cache with the remote attendance store.

Every record whose latest transition was recorded only locally is
replayed against the store's conditional write. If the store already
holds a newer version, the store wins: the pending transition is
discarded and surfaced as a conflict for operator review.

With --watch, keeps reconciling on the configured interval until
interrupted.

Example:
  timeclock sync
  timeclock sync --watch`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "keep reconciling on the configured interval")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	ws, err := openWorkspace(opts.RootOptions)
	if err != nil {
		return err
	}
	defer ws.close()

	rec := reconcile.New(reconcile.Options{
		Cache:   ws.cache,
		Remote:  ws.client,
		Emitter: ws.emitter,
		Locks:   ws.locks,
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Watch {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Fprintf(cmd.OutOrStdout(), "Reconciling every %s. Press Ctrl-C to stop.\n", ws.cfg.SyncInterval)
		rec.Run(ctx, ws.cfg.SyncInterval)
		return nil
	}

	res, err := rec.Reconcile(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "reconciliation failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if res.Skipped {
		return formatter.Data("remote store unreachable, nothing synced")
	}
	return formatter.Data(fmt.Sprintf("synced %d, conflicts %d", res.Synced, res.Conflicts))
}
