// Package state holds the last published refresh outcome: the most recent
// successful usage snapshot and the most recent refresh error.
package state

import (
	"sync"
	"time"

	"github.com/zsprackett/quota-tray/internal/events"
	"github.com/zsprackett/quota-tray/internal/quota"
)

// Outcome is the result of one refresh cycle. Exactly one of Usage or Err is
// set.
type Outcome struct {
	CycleID string
	Trigger string
	Usage   *quota.Snapshot
	Err     *quota.RefreshError
}

// Failed reports whether the outcome carries an error.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// State is the shared cache read by the UI and written by the scheduler.
type State struct {
	mu    sync.RWMutex
	usage *quota.Snapshot
	err   *quota.RefreshError
	sink  events.Broadcaster
	now   func() time.Time
}

func New(sink events.Broadcaster) *State {
	return &State{sink: sink, now: time.Now}
}

func (s *State) Usage() *quota.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

func (s *State) Error() *quota.RefreshError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Snapshot reads both slots under one lock acquisition.
func (s *State) Snapshot() (*quota.Snapshot, *quota.RefreshError) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage, s.err
}

// Publish records o and then notifies the sink. A successful outcome replaces
// the snapshot and clears the error; a failed one only sets the error.
// The sink runs after the lock is released, so handlers may call Usage/Error
// and will observe o.
func (s *State) Publish(o Outcome) {
	if o.Usage == nil && o.Err == nil {
		return
	}

	s.mu.Lock()
	if o.Err != nil {
		s.err = o.Err
	} else {
		s.usage = o.Usage
		s.err = nil
	}
	s.mu.Unlock()

	if s.sink == nil {
		return
	}
	e := events.Event{
		CycleID: o.CycleID,
		Trigger: o.Trigger,
		Time:    s.now(),
	}
	if o.Err != nil {
		e.Type = events.TypeUsageError
		e.Error = o.Err.Message
		e.ErrorKind = o.Err.Kind
	} else {
		e.Type = events.TypeUsageUpdate
		e.Usage = o.Usage
	}
	s.sink.Broadcast(e)
}
