package ledger

import (
	"sync"
	"time"

	"balanceview/internal/core"
)

// Change kinds carried by ChangeEvent.
const (
	KindIncome     = "income"
	KindAddBill    = "add_bill"
	KindDeleteBill = "delete_bill"
	KindMigration  = "migration"
)

// ChangeEvent announces a committed change to one month of one user.
type ChangeEvent struct {
	UserID string
	Month  core.MonthKey
	Kind   string
	BillID string
	At     time.Time
}

// Hub fans change events out to in-process subscribers, keyed by user.
// Slow subscribers miss events rather than blocking writers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan ChangeEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan ChangeEvent]struct{})}
}

// Subscribe returns a channel of the user's events and a function that
// unsubscribes and closes it.
func (h *Hub) Subscribe(userID string) (<-chan ChangeEvent, func()) {
	ch := make(chan ChangeEvent, 16)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan ChangeEvent]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(ev ChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[ev.UserID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns how many channels listen for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
