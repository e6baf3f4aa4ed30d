// Package history persists every published refresh outcome so the UI and the
// web dashboard can show trends across restarts.
package history

import (
	"log/slog"
	"sync"

	"github.com/zsprackett/quota-tray/internal/db"
	"github.com/zsprackett/quota-tray/internal/events"
	"github.com/zsprackett/quota-tray/internal/quota"
)

// Store is the subset of *db.DB the recorder writes to.
type Store interface {
	InsertUsageSnapshot(s db.UsageSnapshot) error
	PruneUsageSnapshots(keep int) error
	InsertRefreshEvent(e db.RefreshEvent) error
	PruneRefreshEvents(keep int) error
	GetUsageSnapshots(limit int) ([]db.UsageSnapshot, error)
	GetRefreshEvents(limit int) ([]db.RefreshEvent, error)
}

// Recorder is an events.Broadcaster that writes each event to the store and
// keeps at most limit rows per table.
type Recorder struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	limit int
}

func New(store Store, limit int, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, limit: limit, logger: logger}
}

// SetLimit changes the retention limit; values <= 0 disable pruning.
func (r *Recorder) SetLimit(limit int) {
	r.mu.Lock()
	r.limit = limit
	r.mu.Unlock()
}

func (r *Recorder) Broadcast(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := db.RefreshEvent{
		CycleID:   e.CycleID,
		Ts:        e.Time,
		Trigger:   e.Trigger,
		EventType: e.Type,
		Kind:      string(e.ErrorKind),
		Detail:    e.Error,
	}
	if err := r.store.InsertRefreshEvent(rec); err != nil {
		r.logger.Warn("history: insert refresh event", "cycle", e.CycleID, "err", err)
	}

	if e.Type == events.TypeUsageUpdate && e.Usage != nil {
		u := e.Usage
		ts := u.FetchedAt
		if ts.IsZero() {
			ts = e.Time
		}
		snap := db.UsageSnapshot{
			TsMs:            ts.UnixMilli(),
			CycleID:         e.CycleID,
			TotalQuota:      u.TotalQuota,
			UsedQuota:       u.UsedQuota,
			RemainingQuota:  u.RemainingQuota,
			UsagePercentage: u.UsagePercentage,
			Limits:          u.Limits,
		}
		if err := r.store.InsertUsageSnapshot(snap); err != nil {
			r.logger.Warn("history: insert usage snapshot", "cycle", e.CycleID, "err", err)
		}
	}

	if r.limit > 0 {
		if err := r.store.PruneUsageSnapshots(r.limit); err != nil {
			r.logger.Warn("history: prune usage snapshots", "err", err)
		}
		if err := r.store.PruneRefreshEvents(r.limit); err != nil {
			r.logger.Warn("history: prune refresh events", "err", err)
		}
	}
}

// Recent returns up to n snapshots, oldest first, ready for charting.
func (r *Recorder) Recent(n int) ([]*quota.Snapshot, error) {
	rows, err := r.store.GetUsageSnapshots(n)
	if err != nil {
		return nil, err
	}
	out := make([]*quota.Snapshot, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i].Quota())
	}
	return out, nil
}

// Events returns up to n refresh events, newest first.
func (r *Recorder) Events(n int) ([]db.RefreshEvent, error) {
	return r.store.GetRefreshEvents(n)
}

var _ events.Broadcaster = (*Recorder)(nil)
