// Package mediagroup collapses a burst of forwarded album items into one
// submission. Each group id gets a cancellable debounce timer that resets
// on every new arrival; a periodic sweep reclaims buffers the requester
// abandoned mid-burst.
package mediagroup

import (
	"sync"
	"time"

	"planbot/internal/store"
	"planbot/pkg/logx"
)

// Group is the consolidated burst handed to the emit callback once the
// debounce window closes.
type Group struct {
	UserID   int64
	UserInfo string
	Source   string
	Items    []store.ForwardedMessage
}

type buffer struct {
	group      Group
	lastUpdate time.Time
	timer      *time.Timer
}

type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	groups   map[string]*buffer
	emit     func(Group)
	log      logx.Logger
	now      func() time.Time
}

// New builds an aggregator that calls emit (on a timer goroutine) once a
// group has seen no new items for the debounce window.
func New(debounce time.Duration, emit func(Group), log logx.Logger) *Aggregator {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Aggregator{
		debounce: debounce,
		groups:   map[string]*buffer{},
		emit:     emit,
		log:      log,
		now:      time.Now,
	}
}

// Ingest appends one item to the group's buffer, preserving arrival order,
// and (re)arms the debounce timer.
func (a *Aggregator) Ingest(groupID string, userID int64, userInfo, source string, item store.ForwardedMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.groups[groupID]
	if !ok {
		b = &buffer{group: Group{UserID: userID, UserInfo: userInfo, Source: source}}
		a.groups[groupID] = b
	}
	b.group.Items = append(b.group.Items, item)
	b.lastUpdate = a.now()

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(a.debounce, func() { a.flush(groupID) })
}

func (a *Aggregator) flush(groupID string) {
	a.mu.Lock()
	b, ok := a.groups[groupID]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.groups, groupID)
	g := b.group
	a.mu.Unlock()

	a.log.Debug("media group assembled",
		logx.String("group_id", groupID),
		logx.Int("items", len(g.Items)))
	a.emit(g)
}

// SweepStale discards buffers idle longer than staleAfter and returns how
// many were dropped. Run from the recurring sweep schedule.
func (a *Aggregator) SweepStale(staleAfter time.Duration) int {
	cutoff := a.now().Add(-staleAfter)

	a.mu.Lock()
	defer a.mu.Unlock()
	dropped := 0
	for id, b := range a.groups {
		if b.lastUpdate.Before(cutoff) {
			if b.timer != nil {
				b.timer.Stop()
			}
			delete(a.groups, id)
			dropped++
			a.log.Info("stale media group discarded", logx.String("group_id", id))
		}
	}
	return dropped
}

// Len reports the number of in-flight buffers.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.groups)
}
