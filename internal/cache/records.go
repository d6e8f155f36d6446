package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/timeclock/internal/attendance"
)

// timeLayout is the storage format for instants. RFC3339Nano round-trips
// time.Time without precision loss.
const timeLayout = time.RFC3339Nano

// Get returns the last known record for a worker together with the last
// remote-confirmed version. Returns attendance.ErrNotFound if the worker
// has no cached record.
func (c *Cache) Get(ctx context.Context, workerID string) (attendance.Record, int64, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT worker_id, day, status, check_in_at, check_out_at,
		       break_start_at, break_end_at, break_total_ns, total_worked_ns,
		       pending_sync, version, synced_version
		FROM records
		WHERE worker_id = ?
	`, workerID)

	rec, synced, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Record{}, 0, attendance.ErrNotFound
	}
	if err != nil {
		return attendance.Record{}, 0, fmt.Errorf("get cached record: %w", err)
	}
	return rec, synced, nil
}

// Put upserts the worker's record. syncedVersion is the last version the
// remote store confirmed for this worker's current day.
func (c *Cache) Put(ctx context.Context, rec attendance.Record, syncedVersion int64) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO records
		(worker_id, day, status, check_in_at, check_out_at,
		 break_start_at, break_end_at, break_total_ns, total_worked_ns,
		 pending_sync, version, synced_version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET
			day = excluded.day,
			status = excluded.status,
			check_in_at = excluded.check_in_at,
			check_out_at = excluded.check_out_at,
			break_start_at = excluded.break_start_at,
			break_end_at = excluded.break_end_at,
			break_total_ns = excluded.break_total_ns,
			total_worked_ns = excluded.total_worked_ns,
			pending_sync = excluded.pending_sync,
			version = excluded.version,
			synced_version = excluded.synced_version,
			updated_at = excluded.updated_at
	`,
		rec.WorkerID,
		string(rec.Day),
		string(rec.Status),
		timePtr(rec.CheckInAt),
		timePtr(rec.CheckOutAt),
		timePtr(rec.BreakStartAt),
		timePtr(rec.BreakEndAt),
		int64(rec.BreakTotal),
		int64(rec.TotalWorked),
		boolInt(rec.PendingSync),
		rec.Version,
		syncedVersion,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("put cached record: %w", err)
	}
	return nil
}

// MarkSynced clears the pending flag and advances synced_version after
// the remote store confirmed the given version.
func (c *Cache) MarkSynced(ctx context.Context, workerID string, version int64) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE records
		SET pending_sync = 0, version = ?, synced_version = ?, updated_at = ?
		WHERE worker_id = ?
	`, version, version, time.Now().UTC().Format(timeLayout), workerID)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// PendingWorkers returns the IDs of workers whose latest transition has
// not been confirmed by the remote store, in stable order.
func (c *Cache) PendingWorkers(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT worker_id FROM records
		WHERE pending_sync = 1
		ORDER BY worker_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending workers: %w", err)
	}
	defer rows.Close()

	var workers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending worker: %w", err)
		}
		workers = append(workers, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending workers: %w", err)
	}

	// Return empty slice instead of nil
	if workers == nil {
		workers = []string{}
	}
	return workers, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (attendance.Record, int64, error) {
	var (
		rec            attendance.Record
		day, status    string
		inAt, outAt    sql.NullString
		brStart, brEnd sql.NullString
		breakNS        int64
		workedNS       int64
		pending        int
		synced         int64
	)
	err := s.Scan(&rec.WorkerID, &day, &status, &inAt, &outAt,
		&brStart, &brEnd, &breakNS, &workedNS, &pending, &rec.Version, &synced)
	if err != nil {
		return attendance.Record{}, 0, err
	}

	rec.Day = attendance.Day(day)
	rec.Status = attendance.Status(status)
	rec.BreakTotal = time.Duration(breakNS)
	rec.TotalWorked = time.Duration(workedNS)
	rec.PendingSync = pending != 0

	if rec.CheckInAt, err = parseTimePtr(inAt); err != nil {
		return attendance.Record{}, 0, fmt.Errorf("check_in_at: %w", err)
	}
	if rec.CheckOutAt, err = parseTimePtr(outAt); err != nil {
		return attendance.Record{}, 0, fmt.Errorf("check_out_at: %w", err)
	}
	if rec.BreakStartAt, err = parseTimePtr(brStart); err != nil {
		return attendance.Record{}, 0, fmt.Errorf("break_start_at: %w", err)
	}
	if rec.BreakEndAt, err = parseTimePtr(brEnd); err != nil {
		return attendance.Record{}, 0, fmt.Errorf("break_end_at: %w", err)
	}

	return rec, synced, nil
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
