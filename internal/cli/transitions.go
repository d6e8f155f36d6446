package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/timeclock/internal/attendance"
)

// NewCheckInCommand creates the checkin command.
func NewCheckInCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkin <worker-id>",
		Short: "Record the start of a worker's day",
		Long: `Record a check-in for the worker, starting today's attendance record.

A worker can check in at most once per calendar day. If the remote store
is unreachable the transition is recorded locally and synced later.

Example:
  timeclock checkin W1
  timeclock checkin W1 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(rootOpts, cmd, args[0],
				func(ctx context.Context, m *attendance.Machine, w string) (attendance.Record, error) {
					return m.CheckIn(ctx, w)
				})
		},
	}
}

// NewCheckOutCommand creates the checkout command.
func NewCheckOutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <worker-id>",
		Short: "Record the end of a worker's day",
		Long: `Record a check-out for the worker, closing today's attendance record.

An open break is closed first. Total hours are materialized as
check-out minus check-in minus accumulated break time.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(rootOpts, cmd, args[0],
				func(ctx context.Context, m *attendance.Machine, w string) (attendance.Record, error) {
					return m.CheckOut(ctx, w)
				})
		},
	}
}

// NewBreakCommand creates the break command with start/end subcommands.
func NewBreakCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "break",
		Short: "Start or end a break",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "start <worker-id>",
		Short:         "Start a break for an actively checked-in worker",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(rootOpts, cmd, args[0],
				func(ctx context.Context, m *attendance.Machine, w string) (attendance.Record, error) {
					return m.BreakStart(ctx, w)
				})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "end <worker-id>",
		Short:         "End the worker's open break",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(rootOpts, cmd, args[0],
				func(ctx context.Context, m *attendance.Machine, w string) (attendance.Record, error) {
					return m.BreakEnd(ctx, w)
				})
		},
	})

	return cmd
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <worker-id>",
		Short: "Show the worker's record for today",
		Long: `Show the worker's attendance record for today without changing it.

A record from an earlier day is reported as a fresh not-checked-in day,
per the day-boundary rule.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(rootOpts, cmd, args[0],
				func(ctx context.Context, m *attendance.Machine, w string) (attendance.Record, error) {
					return m.GetStatus(ctx, w)
				})
		},
	}
}

// NewForceCheckOutCommand creates the force-checkout operator override.
func NewForceCheckOutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "force-checkout <worker-id>",
		Short: "Operator override: check out a worker stuck checked in",
		Long: `Check out a worker on their behalf. Valid from checked-in or on-break.

The transition follows the same guards as a normal check-out but is
logged distinctly in the activity feed as an operator override.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(rootOpts, cmd, args[0],
				func(ctx context.Context, m *attendance.Machine, w string) (attendance.Record, error) {
					return m.ForceCheckOut(ctx, w)
				})
		},
	}
}

// NewResetDayCommand creates the reset-day operator override.
func NewResetDayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-day <worker-id>",
		Short: "Operator override: re-initialize the worker's current day",
		Long: `Reset the worker's record for the current day to not-checked-in.

Valid after a completed day, or whenever the stored record belongs to an
earlier day. Past days are never mutated.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransition(rootOpts, cmd, args[0],
				func(ctx context.Context, m *attendance.Machine, w string) (attendance.Record, error) {
					return m.ResetDay(ctx, w)
				})
		},
	}
}
