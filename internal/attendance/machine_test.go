package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/timeclock/internal/attendance"
	"github.com/roach88/timeclock/internal/cache"
	"github.com/roach88/timeclock/internal/feed"
	"github.com/roach88/timeclock/internal/testutil"
)

func testTime(hour, min int) time.Time {
	return time.Date(2025, 6, 2, hour, min, 0, 0, time.UTC)
}

type fixture struct {
	clock   *testutil.FakeClock
	remote  *testutil.FakeRemote
	cache   *cache.Cache
	emitter *testutil.CollectEmitter
	machine *attendance.Machine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := cache.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	f := &fixture{
		clock:   testutil.NewFakeClock(testTime(9, 0)),
		remote:  testutil.NewFakeRemote(),
		cache:   c,
		emitter: testutil.NewCollectEmitter(),
	}
	f.machine = attendance.NewMachine(attendance.MachineOptions{
		Clock:    f.clock,
		Remote:   f.remote,
		Cache:    f.cache,
		Emitter:  f.emitter,
		Location: time.UTC,
	})
	return f
}

func TestMachine_CheckInRemoteHealthy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.machine.CheckIn(ctx, "W1")
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusCheckedIn, rec.Status)
	assert.False(t, rec.PendingSync)
	assert.Equal(t, int64(1), rec.Version)
	require.NotNil(t, rec.CheckInAt)
	assert.True(t, rec.CheckInAt.Equal(testTime(9, 0)))

	// The cache is kept warm for a later outage.
	cached, synced, err := f.cache.Get(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), cached.Version)
	assert.Equal(t, int64(1), synced)
	assert.False(t, cached.PendingSync)
}

func TestMachine_DoubleCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.machine.CheckIn(ctx, "W1")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	second, err := f.machine.CheckIn(ctx, "W1")
	re, ok := attendance.IsRejection(err)
	require.True(t, ok, "second check-in must be rejected, got %v", err)
	assert.Equal(t, attendance.RejectAlreadyCheckedIn, re.Code)

	// checkInTime unchanged.
	assert.True(t, second.CheckInAt.Equal(*first.CheckInAt))
}

func TestMachine_DayRollover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.machine.CheckIn(ctx, "W1")
	require.NoError(t, err)

	// Next morning, yesterday's record is still open (status CheckedIn).
	f.clock.Set(time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC))

	status, err := f.machine.GetStatus(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusNotCheckedIn, status.Status)
	assert.Equal(t, attendance.Day("2025-06-03"), status.Day)

	// And a fresh check-in starts a new record, independent of how
	// yesterday ended.
	rec, err := f.machine.CheckIn(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, attendance.Day("2025-06-03"), rec.Day)
	assert.Equal(t, int64(1), rec.Version)
}

func TestMachine_OfflineFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, err := f.machine.CheckIn(ctx, "W1")
	require.NoError(t, err)
	assert.False(t, rec.PendingSync)

	// The remote store goes away; transitions keep working locally.
	f.remote.SetDown(true)

	f.clock.Set(testTime(13, 0))
	rec, err = f.machine.BreakStart(ctx, "W1")
	require.NoError(t, err, "fallback must not surface an error")
	assert.True(t, rec.PendingSync)
	assert.Equal(t, attendance.StatusOnBreak, rec.Status)

	f.clock.Set(testTime(13, 30))
	rec, err = f.machine.BreakEnd(ctx, "W1")
	require.NoError(t, err)
	assert.True(t, rec.PendingSync)
	assert.Equal(t, 30*time.Minute, rec.BreakTotal)
	assert.Equal(t, int64(3), rec.Version)

	// Guards hold against the cached record too.
	_, err = f.machine.BreakEnd(ctx, "W1")
	re, ok := attendance.IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, attendance.RejectNotOnBreak, re.Code)
}

func TestMachine_CheckOutPushesPendingState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.machine.CheckIn(ctx, "W1")
	require.NoError(t, err)

	f.remote.SetDown(true)
	f.clock.Set(testTime(13, 0))
	_, err = f.machine.BreakStart(ctx, "W1")
	require.NoError(t, err)
	f.clock.Set(testTime(13, 30))
	_, err = f.machine.BreakEnd(ctx, "W1")
	require.NoError(t, err)

	// Remote recovers before the reconciler runs; the next live
	// transition carries the folded offline state with it.
	f.remote.SetDown(false)
	f.clock.Set(testTime(17, 0))
	rec, err := f.machine.CheckOut(ctx, "W1")
	require.NoError(t, err)

	assert.False(t, rec.PendingSync)
	assert.Equal(t, attendance.StatusCheckedOut, rec.Status)
	assert.Equal(t, 7*time.Hour+30*time.Minute, rec.TotalWorked)
	assert.Equal(t, 30*time.Minute, rec.BreakTotal)

	stored, err := f.remote.Read(ctx, "W1", attendance.Day("2025-06-02"))
	require.NoError(t, err)
	assert.Equal(t, rec.Version, stored.Version)
	assert.Equal(t, attendance.StatusCheckedOut, stored.Status)
}

func TestMachine_ConcurrentCheckInTwoDevices(t *testing.T) {
	// Two devices share the remote store but not a cache or lock table.
	// The conditional write arbitrates: exactly one check-in wins.
	remote := testutil.NewFakeRemote()
	clock := testutil.NewFakeClock(testTime(9, 0))

	newDevice := func() *attendance.Machine {
		c, err := cache.Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { c.Close() })
		return attendance.NewMachine(attendance.MachineOptions{
			Clock:    clock,
			Remote:   remote,
			Cache:    c,
			Location: time.UTC,
		})
	}
	devA, devB := newDevice(), newDevice()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		rejections int
	)
	for _, m := range []*attendance.Machine{devA, devB} {
		wg.Add(1)
		go func(m *attendance.Machine) {
			defer wg.Done()
			_, err := m.CheckIn(context.Background(), "W1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			default:
				re, ok := attendance.IsRejection(err)
				if ok && re.Code == attendance.RejectAlreadyCheckedIn {
					rejections++
				}
			}
		}(m)
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one check-in must succeed")
	assert.Equal(t, 1, rejections, "the loser must see AlreadyCheckedInToday")

	stored, err := remote.Read(context.Background(), "W1", attendance.Day("2025-06-02"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version, "one accepted transition")
}

func TestMachine_GetStatusNeverWrites(t *testing.T) {
	f := newFixture(t)

	rec, err := f.machine.GetStatus(context.Background(), "W1")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusNotCheckedIn, rec.Status)
	assert.Equal(t, int64(0), rec.Version)
	assert.Equal(t, 0, f.remote.Applies)
}

func TestMachine_ForceCheckOutMarkedAsOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.machine.CheckIn(ctx, "W1")
	require.NoError(t, err)

	f.clock.Set(testTime(15, 0))
	rec, err := f.machine.ForceCheckOut(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusCheckedOut, rec.Status)

	events := f.emitter.Events()
	require.Len(t, events, 2)
	assert.Equal(t, feed.EventForceCheckOut, events[1].Type)
	assert.True(t, events[1].Forced)
}

func TestMachine_ResetDayThenFreshCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.machine.CheckIn(ctx, "W1")
	require.NoError(t, err)
	f.clock.Set(testTime(17, 0))
	_, err = f.machine.CheckOut(ctx, "W1")
	require.NoError(t, err)

	rec, err := f.machine.ResetDay(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusNotCheckedIn, rec.Status)
	assert.Nil(t, rec.CheckInAt)

	// Mid-shift reset stays forbidden.
	_, err = f.machine.CheckIn(ctx, "W1")
	require.NoError(t, err)
	_, err = f.machine.ResetDay(ctx, "W1")
	re, ok := attendance.IsRejection(err)
	require.True(t, ok)
	assert.Equal(t, attendance.RejectResetNotAllowed, re.Code)
}

func TestMachine_ResetDayAcrossDayBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.machine.CheckIn(ctx, "W1")
	require.NoError(t, err)
	f.clock.Set(testTime(17, 0))
	_, err = f.machine.CheckOut(ctx, "W1")
	require.NoError(t, err)

	// Next day: the stored record belongs to yesterday, so a reset is
	// valid from any state and starts today's record at version 1.
	f.clock.Set(time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC))
	rec, err := f.machine.ResetDay(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusNotCheckedIn, rec.Status)
	assert.Equal(t, attendance.Day("2025-06-03"), rec.Day)
	assert.Equal(t, int64(1), rec.Version)
	assert.False(t, rec.PendingSync)

	stored, err := f.remote.Read(ctx, "W1", attendance.Day("2025-06-03"))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusNotCheckedIn, stored.Status)

	// Yesterday's record is untouched.
	old, err := f.remote.Read(ctx, "W1", attendance.Day("2025-06-02"))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusCheckedOut, old.Status)
}

func TestMachine_ResetDayAcrossBoundaryMidShift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The day ends without a check-out; the record stays open.
	_, err := f.machine.CheckIn(ctx, "W1")
	require.NoError(t, err)

	f.clock.Set(time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC))
	rec, err := f.machine.ResetDay(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusNotCheckedIn, rec.Status)
	assert.Equal(t, attendance.Day("2025-06-03"), rec.Day)
	assert.Equal(t, int64(1), rec.Version)
}

func TestMachine_PendingLossSurfacedAsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// This device records a check-in and a break start offline.
	f.remote.SetDown(true)
	_, err := f.machine.CheckIn(ctx, "W1")
	require.NoError(t, err)
	f.clock.Set(testTime(12, 0))
	_, err = f.machine.BreakStart(ctx, "W1")
	require.NoError(t, err)

	// Meanwhile another device checked the worker in against the store.
	f.remote.SetDown(false)
	in := testTime(9, 5)
	f.remote.Seed(attendance.Record{
		WorkerID:  "W1",
		Day:       attendance.Day("2025-06-02"),
		Status:    attendance.StatusCheckedIn,
		CheckInAt: &in,
		Version:   1,
	})

	// The next live transition loses the conditional write; the pending
	// offline state is discarded, and the discard reaches the feed.
	f.emitter.Reset()
	f.clock.Set(testTime(13, 0))
	_, err = f.machine.BreakEnd(ctx, "W1")
	re, ok := attendance.IsRejection(err)
	require.True(t, ok, "expected a rejection against the fresh remote state, got %v", err)
	assert.Equal(t, attendance.RejectNotOnBreak, re.Code)

	events := f.emitter.Events()
	require.Len(t, events, 1)
	assert.Equal(t, feed.EventConflict, events[0].Type)
	assert.Contains(t, events[0].Note, "discarded local")

	// The cache now mirrors the remote record.
	cached, synced, err := f.cache.Get(ctx, "W1")
	require.NoError(t, err)
	assert.False(t, cached.PendingSync)
	assert.Equal(t, attendance.StatusCheckedIn, cached.Status)
	assert.Equal(t, int64(1), synced)
}

func TestMachine_PendingEventAnnotated(t *testing.T) {
	f := newFixture(t)
	f.remote.SetDown(true)

	rec, err := f.machine.CheckIn(context.Background(), "W1")
	require.NoError(t, err)
	assert.True(t, rec.PendingSync)

	events := f.emitter.Events()
	require.Len(t, events, 1)
	assert.Equal(t, feed.EventCheckIn, events[0].Type)
	assert.True(t, events[0].Pending)
}
