package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/actorway/actorway/internal/actorerr"
	"github.com/actorway/actorway/internal/message"
)

// MemoryStorage is a volatile Storage implementation with no backing
// segment files: everything is lost on restart. It exists for tests and
// for nodes configured without a storage_dir (spec.md §4 notes durability
// is opt-in per node, not mandatory for every deployment).
type MemoryStorage struct {
	mu             sync.Mutex
	maxPendingSize int
	maxDoneSize    int
	index          map[message.ID]*entry
	pendingOrder   []message.ID
	numBegin       uint64
	numSend        uint64
	numDone        uint64
}

func NewMemory(maxPendingSize, maxDoneSize int) *MemoryStorage {
	return &MemoryStorage{
		maxPendingSize: maxPendingSize,
		maxDoneSize:    maxDoneSize,
		index:          make(map[message.ID]*entry),
	}
}

func (s *MemoryStorage) Load() error { return nil }
func (s *MemoryStorage) Close() error { return nil }

func (s *MemoryStorage) pendingSizeLocked() int {
	n := 0
	for _, id := range s.pendingOrder {
		if e := s.index[id]; e != nil && !e.status.Terminal() {
			n++
		}
	}
	return n
}

func (s *MemoryStorage) doneSizeLocked() int {
	n := 0
	for _, e := range s.index {
		if e.status.Terminal() {
			n++
		}
	}
	return n
}

func (s *MemoryStorage) removeFromPendingLocked(id message.ID) {
	for i, pid := range s.pendingOrder {
		if pid == id {
			s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
			return
		}
	}
}

func (s *MemoryStorage) Begin(msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingSizeLocked() >= s.maxPendingSize {
		return actorerr.StorageFull(fmt.Sprintf("pending size at cap %d", s.maxPendingSize))
	}
	s.index[msg.ID] = &entry{msg: msg, status: message.StatusInbox, createdAt: time.Now().UTC()}
	s.pendingOrder = append(s.pendingOrder, msg.ID)
	s.numBegin++
	return nil
}

// BeginExclusive is Begin's sibling for the synchronous ask fast path: the
// entry is indexed straight into EXECUTING and never added to
// pendingOrder, so TakePending can never also claim it.
func (s *MemoryStorage) BeginExclusive(msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingSizeLocked() >= s.maxPendingSize {
		return actorerr.StorageFull(fmt.Sprintf("pending size at cap %d", s.maxPendingSize))
	}
	s.index[msg.ID] = &entry{msg: msg, status: message.StatusExecuting, createdAt: time.Now().UTC()}
	s.numBegin++
	return nil
}

func (s *MemoryStorage) Send(id message.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok {
		return actorerr.UnknownID(string(id))
	}
	next, err := transition(e.status, KindSend)
	if err != nil {
		return actorerr.UnknownID(fmt.Sprintf("%s: %v", id, err))
	}
	e.status = next
	now := time.Now().UTC()
	e.lastSendAt = &now
	s.numSend++
	return nil
}

func (s *MemoryStorage) Ack(id message.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok {
		return actorerr.UnknownID(string(id))
	}
	if e.status == message.StatusAcked {
		return nil
	}
	next, err := transition(e.status, KindAck)
	if err != nil {
		return actorerr.UnknownID(fmt.Sprintf("%s: %v", id, err))
	}
	e.status = next
	now := time.Now().UTC()
	e.ackAt = &now
	return nil
}

func (s *MemoryStorage) Done(id message.ID, result map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok {
		return actorerr.UnknownID(string(id))
	}
	next, err := transition(e.status, KindDone)
	if err != nil {
		return actorerr.UnknownID(fmt.Sprintf("%s: %v", id, err))
	}
	e.status = next
	e.result = result
	s.numDone++
	s.removeFromPendingLocked(id)
	return nil
}

func (s *MemoryStorage) Error(id message.ID, info message.ErrorInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok {
		return actorerr.UnknownID(string(id))
	}
	next, err := transition(e.status, KindError)
	if err != nil {
		return actorerr.UnknownID(fmt.Sprintf("%s: %v", id, err))
	}
	e.status = next
	e.errInfo = &info
	s.removeFromPendingLocked(id)
	return nil
}

func (s *MemoryStorage) Expire(id message.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok {
		return actorerr.UnknownID(string(id))
	}
	next, err := transition(e.status, KindExpire)
	if err != nil {
		return actorerr.UnknownID(fmt.Sprintf("%s: %v", id, err))
	}
	e.status = next
	s.removeFromPendingLocked(id)
	return nil
}

func (s *MemoryStorage) TakePending(n int) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []message.Message
	taken := 0
	for _, id := range s.pendingOrder {
		if taken >= n {
			break
		}
		e := s.index[id]
		if e == nil || e.status != message.StatusInbox {
			continue
		}
		e.status = message.StatusExecuting
		out = append(out, e.msg)
		taken++
	}
	return out, nil
}

func (s *MemoryStorage) OutboxIter() ([]OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboxEntry
	for id, e := range s.index {
		if e.status != message.StatusOutbox {
			continue
		}
		var last time.Time
		if e.lastSendAt != nil {
			last = *e.lastSendAt
		}
		out = append(out, OutboxEntry{ID: id, RetryCount: e.retryCount, LastSendAt: last, Msg: e.msg})
	}
	return out, nil
}

func (s *MemoryStorage) Lookup(id message.ID) (message.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok {
		return message.State{}, false
	}
	return message.State{
		ID:         id,
		Status:     e.status,
		RetryCount: e.retryCount,
		LastSendAt: e.lastSendAt,
		AckAt:      e.ackAt,
		CreatedAt:  e.createdAt,
		Result:     e.result,
		Error:      e.errInfo,
	}, true
}

func (s *MemoryStorage) IncrementRetry(id message.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok {
		return 0
	}
	e.retryCount++
	return e.retryCount
}

func (s *MemoryStorage) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counters{
		PendingSize:    s.pendingSizeLocked(),
		DoneSize:       s.doneSizeLocked(),
		NumBeginMsgs:   s.numBegin,
		NumSendMsgs:    s.numSend,
		NumPendingMsgs: len(s.pendingOrder),
		NumDoneMsgs:    s.numDone,
		NumMessages:    uint64(len(s.index)),
	}
}

var _ Storage = (*MemoryStorage)(nil)
