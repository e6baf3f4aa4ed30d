package history_test

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsprackett/quota-tray/internal/db"
	"github.com/zsprackett/quota-tray/internal/events"
	"github.com/zsprackett/quota-tray/internal/history"
	"github.com/zsprackett/quota-tray/internal/quota"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate())
	return store
}

func usageEvent(cycle string, used int64, at time.Time) events.Event {
	return events.Event{
		Type:    events.TypeUsageUpdate,
		CycleID: cycle,
		Trigger: "timer",
		Usage: &quota.Snapshot{
			TotalQuota: 1000, UsedQuota: used, RemainingQuota: 1000 - used,
			UsagePercentage: float64(used) / 10,
			FetchedAt:       at,
		},
		Time: at,
	}
}

func TestRecorder_PersistsUpdatesAndErrors(t *testing.T) {
	store := openStore(t)
	r := history.New(store, 0, discardLogger())
	base := time.Now().Truncate(time.Millisecond)

	r.Broadcast(usageEvent("c1", 100, base))
	r.Broadcast(events.Event{
		Type: events.TypeUsageError, CycleID: "c2", Trigger: "manual",
		Error: "unauthorized", ErrorKind: quota.Unauthorized, Time: base.Add(time.Second),
	})
	r.Broadcast(usageEvent("c3", 300, base.Add(2*time.Second)))

	snaps, err := r.Recent(10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(100), snaps[0].UsedQuota, "oldest first")
	assert.Equal(t, int64(300), snaps[1].UsedQuota)
	assert.Equal(t, 30.0, snaps[1].UsagePercentage)

	evts, err := r.Events(10)
	require.NoError(t, err)
	require.Len(t, evts, 3)
	assert.Equal(t, "c3", evts[0].CycleID)
	assert.Equal(t, "unauthorized", evts[1].Kind)
	assert.Equal(t, "manual", evts[1].Trigger)
}

func TestRecorder_PrunesToLimit(t *testing.T) {
	store := openStore(t)
	r := history.New(store, 3, discardLogger())
	base := time.Now()
	for i := 0; i < 6; i++ {
		r.Broadcast(usageEvent("c", int64(i*10), base.Add(time.Duration(i)*time.Second)))
	}

	snaps, err := r.Recent(100)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, int64(30), snaps[0].UsedQuota)
	assert.Equal(t, int64(50), snaps[2].UsedQuota)

	evts, err := r.Events(100)
	require.NoError(t, err)
	assert.Len(t, evts, 3)
}

type failingStore struct{}

func (failingStore) InsertUsageSnapshot(db.UsageSnapshot) error { return errors.New("disk full") }
func (failingStore) PruneUsageSnapshots(int) error { return nil }
func (failingStore) InsertRefreshEvent(db.RefreshEvent) error { return errors.New("disk full") }
func (failingStore) PruneRefreshEvents(int) error { return nil }
func (failingStore) GetUsageSnapshots(int) ([]db.UsageSnapshot, error) {
	return nil, nil
}
func (failingStore) GetRefreshEvents(int) ([]db.RefreshEvent, error) { return nil, nil }

func TestRecorder_StoreErrorsAreLoggedNotFatal(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	r := history.New(failingStore{}, 10, logger)

	r.Broadcast(usageEvent("c1", 1, time.Now()))

	assert.Contains(t, buf.String(), "insert refresh event")
	assert.Contains(t, buf.String(), "insert usage snapshot")
}
