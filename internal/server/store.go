// Package server hosts the authoritative attendance store and its HTTP
// API. The store's conditional write ("record transition if invariant
// holds") is what serializes concurrent submissions for a worker across
// devices.
package server

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/timeclock/internal/attendance"
)

//go:embed schema.sql
var schemaSQL string

const timeLayout = time.RFC3339Nano

// Store is the authoritative persistence layer, keyed (worker, day).
type Store struct {
	db *sql.DB
}

// OpenStore creates or opens the authoritative SQLite database.
// Applies WAL mode, a busy timeout and the schema. Idempotent.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to store database: %w", err)
	}

	// Single writer avoids SQLITE_BUSY under concurrent PUTs; the
	// conditional write then decides the winner by version.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ReadRecord returns the record for (workerID, day), or
// attendance.ErrNotFound.
func (s *Store) ReadRecord(ctx context.Context, workerID string, day attendance.Day) (attendance.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT worker_id, day, status, check_in_at, check_out_at,
		       break_start_at, break_end_at, break_total_ns, total_worked_ns, version
		FROM attendance_records
		WHERE worker_id = ? AND day = ?
	`, workerID, string(day))

	rec, err := scanStoreRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Record{}, attendance.ErrNotFound
	}
	if err != nil {
		return attendance.Record{}, fmt.Errorf("read record: %w", err)
	}
	return rec, nil
}

// ReadLatest returns the worker's most recent record across all days,
// or attendance.ErrNotFound. Days sort lexicographically, which for the
// YYYY-MM-DD key is chronological order.
func (s *Store) ReadLatest(ctx context.Context, workerID string) (attendance.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT worker_id, day, status, check_in_at, check_out_at,
		       break_start_at, break_end_at, break_total_ns, total_worked_ns, version
		FROM attendance_records
		WHERE worker_id = ?
		ORDER BY day DESC
		LIMIT 1
	`, workerID)

	rec, err := scanStoreRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Record{}, attendance.ErrNotFound
	}
	if err != nil {
		return attendance.Record{}, fmt.Errorf("read latest record: %w", err)
	}
	return rec, nil
}

// ApplyRecord is the conditional write: it stores rec only if the
// current version for (rec.WorkerID, rec.Day) equals expectedVersion
// (zero meaning no record exists yet). On divergence it returns
// *attendance.ConflictError carrying the current version.
//
// The stored version advances to at least expectedVersion+1; a record
// carrying a higher version (offline transitions folded in) keeps it.
func (s *Store) ApplyRecord(ctx context.Context, rec attendance.Record, expectedVersion int64) (attendance.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("apply record: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var current int64
	err = tx.QueryRowContext(ctx, `
		SELECT version FROM attendance_records WHERE worker_id = ? AND day = ?
	`, rec.WorkerID, string(rec.Day)).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = 0
	case err != nil:
		return attendance.Record{}, fmt.Errorf("apply record: read version: %w", err)
	}

	if current != expectedVersion {
		return attendance.Record{}, &attendance.ConflictError{
			WorkerID:       rec.WorkerID,
			Day:            rec.Day,
			CurrentVersion: current,
		}
	}

	// A reconciled record arrives with several offline transitions
	// folded in and a version ahead of expected+1; keep it so both
	// sides agree on how many transitions the day has seen.
	if rec.Version <= expectedVersion {
		rec.Version = expectedVersion + 1
	}
	rec.PendingSync = false

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_records
		(worker_id, day, status, check_in_at, check_out_at,
		 break_start_at, break_end_at, break_total_ns, total_worked_ns,
		 version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id, day) DO UPDATE SET
			status = excluded.status,
			check_in_at = excluded.check_in_at,
			check_out_at = excluded.check_out_at,
			break_start_at = excluded.break_start_at,
			break_end_at = excluded.break_end_at,
			break_total_ns = excluded.break_total_ns,
			total_worked_ns = excluded.total_worked_ns,
			version = excluded.version,
			updated_at = excluded.updated_at
	`,
		rec.WorkerID,
		string(rec.Day),
		string(rec.Status),
		fmtTimePtr(rec.CheckInAt),
		fmtTimePtr(rec.CheckOutAt),
		fmtTimePtr(rec.BreakStartAt),
		fmtTimePtr(rec.BreakEndAt),
		int64(rec.BreakTotal),
		int64(rec.TotalWorked),
		rec.Version,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("apply record: upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return attendance.Record{}, fmt.Errorf("apply record: commit: %w", err)
	}
	return rec, nil
}

func scanStoreRecord(row *sql.Row) (attendance.Record, error) {
	var (
		rec            attendance.Record
		day, status    string
		inAt, outAt    sql.NullString
		brStart, brEnd sql.NullString
		breakNS        int64
		workedNS       int64
	)
	err := row.Scan(&rec.WorkerID, &day, &status, &inAt, &outAt,
		&brStart, &brEnd, &breakNS, &workedNS, &rec.Version)
	if err != nil {
		return attendance.Record{}, err
	}

	rec.Day = attendance.Day(day)
	rec.Status = attendance.Status(status)
	rec.BreakTotal = time.Duration(breakNS)
	rec.TotalWorked = time.Duration(workedNS)

	if rec.CheckInAt, err = parseTimeCol(inAt); err != nil {
		return attendance.Record{}, fmt.Errorf("check_in_at: %w", err)
	}
	if rec.CheckOutAt, err = parseTimeCol(outAt); err != nil {
		return attendance.Record{}, fmt.Errorf("check_out_at: %w", err)
	}
	if rec.BreakStartAt, err = parseTimeCol(brStart); err != nil {
		return attendance.Record{}, fmt.Errorf("break_start_at: %w", err)
	}
	if rec.BreakEndAt, err = parseTimeCol(brEnd); err != nil {
		return attendance.Record{}, fmt.Errorf("break_end_at: %w", err)
	}
	return rec, nil
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTimeCol(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
