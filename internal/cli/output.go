package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roach88/timeclock/internal/attendance"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Transition applied (remotely or pending local sync)
	ExitRejected     = 1 // Invariant-violation rejection
	ExitCommandError = 2 // Command error (bad flags, unreadable cache, etc.)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitCommandError if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string             `json:"status"` // "ok" or "error"
	Record *attendance.Record `json:"record,omitempty"`
	Data   any                `json:"data,omitempty"`
	Error  *CLIError          `json:"error,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record outputs an attendance record in the configured format.
func (f *OutputFormatter) Record(rec attendance.Record) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Record: &rec})
	}
	fmt.Fprintln(f.Writer, renderRecord(rec))
	return nil
}

// Data outputs an arbitrary success payload (e.g. a sync summary).
func (f *OutputFormatter) Data(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Rejection outputs an invariant-violation rejection.
func (f *OutputFormatter) Rejection(re *attendance.RejectionError) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: string(re.Code), Message: re.Error()},
		})
	}
	fmt.Fprintf(f.Writer, "Rejected [%s]: %s\n", re.Code, re.Error())
	return nil
}

// renderRecord formats a record as a human-readable block.
func renderRecord(rec attendance.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "worker:   %s\n", rec.WorkerID)
	fmt.Fprintf(&b, "day:      %s\n", rec.Day)
	fmt.Fprintf(&b, "status:   %s", renderStatus(rec.Status))
	if rec.PendingSync {
		b.WriteString(" (awaiting sync)")
	}
	b.WriteString("\n")
	if rec.CheckInAt != nil {
		fmt.Fprintf(&b, "in:       %s\n", rec.CheckInAt.Format("15:04:05"))
	}
	if rec.CheckOutAt != nil {
		fmt.Fprintf(&b, "out:      %s\n", rec.CheckOutAt.Format("15:04:05"))
	}
	if rec.BreakStartAt != nil {
		fmt.Fprintf(&b, "on break: since %s\n", rec.BreakStartAt.Format("15:04:05"))
	}
	if rec.BreakTotal > 0 {
		fmt.Fprintf(&b, "breaks:   %s\n", renderDuration(rec.BreakTotal))
	}
	if rec.Status == attendance.StatusCheckedOut {
		fmt.Fprintf(&b, "worked:   %s\n", renderDuration(rec.TotalWorked))
	}
	fmt.Fprintf(&b, "version:  %d", rec.Version)
	return b.String()
}

func renderStatus(s attendance.Status) string {
	switch s {
	case attendance.StatusNotCheckedIn:
		return "not checked in"
	case attendance.StatusCheckedIn:
		return "checked in"
	case attendance.StatusOnBreak:
		return "on break"
	case attendance.StatusCheckedOut:
		return "checked out"
	}
	return string(s)
}

func renderDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}
