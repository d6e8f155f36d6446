package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/timeclock/internal/attendance"
)

// createTestCache creates a cache backed by a temp file.
func createTestCache(t *testing.T) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func testRecord(workerID string, pending bool) attendance.Record {
	in := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	return attendance.Record{
		WorkerID:    workerID,
		Day:         attendance.Day("2025-06-02"),
		Status:      attendance.StatusCheckedIn,
		CheckInAt:   &in,
		PendingSync: pending,
		Version:     1,
	}
}

func TestGet_NotFound(t *testing.T) {
	c := createTestCache(t)

	_, _, err := c.Get(context.Background(), "missing")
	if !errors.Is(err, attendance.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	c := createTestCache(t)
	ctx := context.Background()

	rec := testRecord("W1", false)
	rec.BreakTotal = 30 * time.Minute

	if err := c.Put(ctx, rec, 1); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, synced, err := c.Get(ctx, "W1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if synced != 1 {
		t.Errorf("synced = %d, want 1", synced)
	}
	if got.Status != attendance.StatusCheckedIn {
		t.Errorf("status = %q, want %q", got.Status, attendance.StatusCheckedIn)
	}
	if got.Day != rec.Day {
		t.Errorf("day = %q, want %q", got.Day, rec.Day)
	}
	if got.CheckInAt == nil || !got.CheckInAt.Equal(*rec.CheckInAt) {
		t.Errorf("checkInAt = %v, want %v", got.CheckInAt, rec.CheckInAt)
	}
	if got.CheckOutAt != nil {
		t.Errorf("checkOutAt = %v, want nil", got.CheckOutAt)
	}
	if got.BreakTotal != 30*time.Minute {
		t.Errorf("breakTotal = %v, want 30m", got.BreakTotal)
	}
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}
}

func TestPut_Upsert(t *testing.T) {
	c := createTestCache(t)
	ctx := context.Background()

	rec := testRecord("W1", false)
	if err := c.Put(ctx, rec, 1); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	rec.Status = attendance.StatusOnBreak
	brk := time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)
	rec.BreakStartAt = &brk
	rec.PendingSync = true
	rec.Version = 2

	if err := c.Put(ctx, rec, 1); err != nil {
		t.Fatalf("Put() update failed: %v", err)
	}

	got, synced, err := c.Get(ctx, "W1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Status != attendance.StatusOnBreak {
		t.Errorf("status = %q, want %q", got.Status, attendance.StatusOnBreak)
	}
	if !got.PendingSync {
		t.Error("pendingSync = false, want true")
	}
	if got.Version != 2 || synced != 1 {
		t.Errorf("version/synced = %d/%d, want 2/1", got.Version, synced)
	}
}

func TestPendingWorkers(t *testing.T) {
	c := createTestCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, testRecord("W2", true), 0); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := c.Put(ctx, testRecord("W1", true), 0); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := c.Put(ctx, testRecord("W3", false), 1); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	workers, err := c.PendingWorkers(ctx)
	if err != nil {
		t.Fatalf("PendingWorkers() failed: %v", err)
	}
	if len(workers) != 2 || workers[0] != "W1" || workers[1] != "W2" {
		t.Errorf("PendingWorkers() = %v, want [W1 W2]", workers)
	}

	n, err := c.PendingCount(ctx)
	if err != nil {
		t.Fatalf("PendingCount() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("PendingCount() = %d, want 2", n)
	}
}

func TestPendingWorkers_Empty(t *testing.T) {
	c := createTestCache(t)

	workers, err := c.PendingWorkers(context.Background())
	if err != nil {
		t.Fatalf("PendingWorkers() failed: %v", err)
	}
	if workers == nil {
		t.Error("PendingWorkers() returned nil, want empty slice")
	}
	if len(workers) != 0 {
		t.Errorf("PendingWorkers() = %v, want empty", workers)
	}
}

func TestMarkSynced(t *testing.T) {
	c := createTestCache(t)
	ctx := context.Background()

	rec := testRecord("W1", true)
	rec.Version = 3
	if err := c.Put(ctx, rec, 1); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	if err := c.MarkSynced(ctx, "W1", 3); err != nil {
		t.Fatalf("MarkSynced() failed: %v", err)
	}

	got, synced, err := c.Get(ctx, "W1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.PendingSync {
		t.Error("pendingSync = true, want false after MarkSynced")
	}
	if got.Version != 3 || synced != 3 {
		t.Errorf("version/synced = %d/%d, want 3/3", got.Version, synced)
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := c.Put(ctx, testRecord("W1", true), 0); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// The cache survives a restart; pending state is durable.
	c2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer c2.Close()

	got, _, err := c2.Get(ctx, "W1")
	if err != nil {
		t.Fatalf("Get() after reopen failed: %v", err)
	}
	if !got.PendingSync {
		t.Error("pendingSync lost across reopen")
	}
}
