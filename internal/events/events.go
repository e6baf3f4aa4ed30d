package events

import (
	"sync"
	"time"

	"github.com/zsprackett/quota-tray/internal/quota"
)

// Event types pushed to the presentation layer.
const (
	TypeUsageUpdate = "usage-update"
	TypeUsageError  = "usage-error"
)

// Event is a state change pushed to sinks after each published cycle.
// Exactly one of Usage or Error is set.
type Event struct {
	Type      string          `json:"type"`
	CycleID   string          `json:"cycle_id,omitempty"`
	Trigger   string          `json:"trigger,omitempty"`
	Usage     *quota.Snapshot `json:"usage,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind quota.ErrorKind `json:"error_kind,omitempty"`
	Time      time.Time       `json:"time"`
}

// Broadcaster receives events. Implementations must not block for long: they
// are called from the refresh loop.
type Broadcaster interface {
	Broadcast(e Event)
}

// Fanout delivers each event to every sink in order, skipping nil entries.
type Fanout []Broadcaster

func (f Fanout) Broadcast(e Event) {
	for _, b := range f {
		if b != nil {
			b.Broadcast(e)
		}
	}
}

// Func adapts a plain function to a Broadcaster.
type Func func(Event)

func (fn Func) Broadcast(e Event) {
	fn(e)
}

// Hub is a Fanout whose sinks can be added after it has been handed to a
// publisher.
type Hub struct {
	mu    sync.RWMutex
	sinks Fanout
}

func (h *Hub) Add(b Broadcaster) {
	h.mu.Lock()
	h.sinks = append(h.sinks, b)
	h.mu.Unlock()
}

func (h *Hub) Broadcast(e Event) {
	h.mu.RLock()
	sinks := h.sinks
	h.mu.RUnlock()
	sinks.Broadcast(e)
}
