package sender

import (
	"sync"
	"time"

	"github.com/actorway/actorway/internal/message"
)

type deliveryStatus string

const (
	statusSending deliveryStatus = "SENDING"
	statusWaitAck deliveryStatus = "WAIT_ACK"
	statusFailed  deliveryStatus = "FAILED"
	statusAcked   deliveryStatus = "ACKED"
)

type deliveryState struct {
	id         message.ID
	status     deliveryStatus
	retryCount int
	lastSendAt time.Time
}

// stateTable is the in-process id -> delivery status map spec.md §4.5
// calls for. It is a cache for fast local decisions (is this id already in
// flight?), not the source of truth — Storage's durable OUTBOX/ACKED
// status always wins on disagreement. Bounded: once full, the oldest
// FAILED entry is evicted to make room, since a failed delivery's durable
// record is still in Storage and the monitor will reload and retry it.
type stateTable struct {
	mu      sync.Mutex
	max     int
	entries map[message.ID]*deliveryState
	order   []message.ID // insertion order, for oldest-FAILED eviction
}

func newStateTable(max int) *stateTable {
	return &stateTable{max: max, entries: make(map[message.ID]*deliveryState)}
}

func (t *stateTable) set(id message.ID, status deliveryStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		e = &deliveryState{id: id}
		t.entries[id] = e
		t.order = append(t.order, id)
		t.evictIfNeeded()
	}
	e.status = status
	e.lastSendAt = time.Now().UTC()
	if status == statusFailed {
		e.retryCount++
	}
}

func (t *stateTable) markSending(id message.ID) { t.set(id, statusSending) }
func (t *stateTable) markFailed(id message.ID)  { t.set(id, statusFailed) }
func (t *stateTable) markAcked(id message.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

func (t *stateTable) lookup(id message.ID) (deliveryState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return deliveryState{}, false
	}
	return *e, true
}

// evictIfNeeded must be called with t.mu held. It drops the oldest FAILED
// entry once the table is over capacity; if none are FAILED yet it leaves
// the table to grow, since SENDING/WAIT_ACK entries are actively in flight
// and evicting them would orphan a retry decision.
func (t *stateTable) evictIfNeeded() {
	if len(t.entries) <= t.max {
		return
	}
	for i, id := range t.order {
		if e, ok := t.entries[id]; ok && e.status == statusFailed {
			delete(t.entries, id)
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}
