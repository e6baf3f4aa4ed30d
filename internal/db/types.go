package db

import (
	"time"

	"github.com/zsprackett/quota-tray/internal/quota"
)

// UsageSnapshot is one persisted successful refresh.
type UsageSnapshot struct {
	ID              int64
	TsMs            int64
	CycleID         string
	TotalQuota      int64
	UsedQuota       int64
	RemainingQuota  int64
	UsagePercentage float64
	Limits          []quota.Limit // stored as JSON
}

// Quota converts the row back into a domain snapshot.
func (u UsageSnapshot) Quota() *quota.Snapshot {
	return &quota.Snapshot{
		TotalQuota:      u.TotalQuota,
		UsedQuota:       u.UsedQuota,
		RemainingQuota:  u.RemainingQuota,
		UsagePercentage: u.UsagePercentage,
		Limits:          u.Limits,
		FetchedAt:       time.UnixMilli(u.TsMs),
	}
}

// RefreshEvent is one persisted cycle outcome, successful or not.
type RefreshEvent struct {
	ID        int64
	CycleID   string
	Ts        time.Time
	Trigger   string
	EventType string
	Kind      string
	Detail    string
}
