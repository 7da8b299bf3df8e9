package state

import (
	"strconv"
	"sync"
	"time"

	"github.com/Proton-105/storefront-bot/internal/clock"
)

// Concern names one kind of per-user timer. A user holds at most one live timer per concern.
type Concern string

const (
	ConcernPayment  Concern = "payment"
	ConcernDelivery Concern = "delivery"
	ConcernWatchdog Concern = "watchdog"
)

// AutoDeleteConcern is the concern for removing a single outbound message.
func AutoDeleteConcern(messageID int) Concern {
	return Concern("autodelete:" + strconv.Itoa(messageID))
}

type timerKey struct {
	userID  int64
	concern Concern
}

type timerEntry struct {
	timer clock.Timer
}

// Timers is the registry of pending per-user callbacks.
type Timers struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[timerKey]*timerEntry
}

// NewTimers returns an empty registry scheduling on clk.
func NewTimers(clk clock.Clock) *Timers {
	return &Timers{
		clock:   clk,
		entries: make(map[timerKey]*timerEntry),
	}
}

// Arm schedules fn after d, replacing any timer already armed for the same
// user and concern. A replaced or cancelled timer never runs fn.
func (t *Timers) Arm(userID int64, concern Concern, d time.Duration, fn func()) {
	key := timerKey{userID: userID, concern: concern}
	entry := &timerEntry{}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.entries[key]; ok {
		prev.timer.Stop()
	}
	t.entries[key] = entry
	entry.timer = t.clock.AfterFunc(d, func() {
		t.mu.Lock()
		if t.entries[key] != entry {
			t.mu.Unlock()
			return
		}
		delete(t.entries, key)
		t.mu.Unlock()

		fn()
	})
}

// Cancel stops the timer for the user and concern. It reports whether one was armed.
func (t *Timers) Cancel(userID int64, concern Concern) bool {
	key := timerKey{userID: userID, concern: concern}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(t.entries, key)
	return true
}

// CancelAll stops every timer belonging to the user and returns how many were armed.
func (t *Timers) CancelAll(userID int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cancelled := 0
	for key, entry := range t.entries {
		if key.userID != userID {
			continue
		}
		entry.timer.Stop()
		delete(t.entries, key)
		cancelled++
	}
	return cancelled
}

// Active reports whether a timer is armed for the user and concern.
func (t *Timers) Active(userID int64, concern Concern) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[timerKey{userID: userID, concern: concern}]
	return ok
}

// Count returns how many timers the user has armed.
func (t *Timers) Count(userID int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for key := range t.entries {
		if key.userID == userID {
			n++
		}
	}
	return n
}
