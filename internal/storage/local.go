package storage

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/actorway/actorway/internal/actorerr"
	"github.com/actorway/actorway/internal/message"
)

// entry is the in-memory index record for one message id. The durable
// truth lives in the segment files; this is a cache rebuilt by Load and
// kept current by every mutating call.
type entry struct {
	msg        message.Message
	status     message.Status
	retryCount int
	lastSendAt *time.Time
	ackAt      *time.Time
	createdAt  time.Time
	result     map[string]any
	errInfo    *message.ErrorInfo
}

// LocalStorage is the disk-backed Storage implementation: an ordered list
// of append-only segment files under dir, a tail (active) segment, and the
// in-memory indices segment replay reconstructs.
type LocalStorage struct {
	dir            string
	maxPendingSize int
	maxDoneSize    int

	// writeMu is the single-writer lock shared with the compactor: only
	// one of {append a record, run a compaction pass} may be in flight at
	// a time.
	writeMu sync.Mutex

	mu             sync.Mutex
	segments       []*segment
	active         *segment
	nextSegmentSeq uint64 // next {seq:016d}.wal file number
	msgSeqCounter  uint64 // in-process-only ordinal handed out via Message.Seq; not durable
	index          map[message.ID]*entry
	pendingOrder   []message.ID // FIFO order of ids currently INBOX or EXECUTING

	numBegin uint64
	numSend  uint64
	numDone  uint64

	compactNow func() // set by AttachCompactor; nil until a compactor exists
}

// New creates or opens a LocalStorage rooted at dir. Call Load before use.
func New(dir string, maxPendingSize, maxDoneSize int) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir %s: %w", dir, err)
	}
	return &LocalStorage{
		dir:            dir,
		maxPendingSize: maxPendingSize,
		maxDoneSize:    maxDoneSize,
		index:          make(map[message.ID]*entry),
	}, nil
}

// AttachCompactor wires a synchronous compaction trigger, invoked once
// done_size reaches max_done_size (spec-mandated backpressure: the
// compactor is woken synchronously before further writes are accepted).
func (s *LocalStorage) AttachCompactor(trigger func()) {
	s.compactNow = trigger
}

// Dir returns the storage directory.
func (s *LocalStorage) Dir() string { return s.dir }

// CurrentSegmentPath returns the active segment's path.
func (s *LocalStorage) CurrentSegmentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.path
}

func (s *LocalStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seqs, err := listSegments(s.dir)
	if err != nil {
		return fmt.Errorf("storage: list segments: %w", err)
	}
	if len(seqs) == 0 {
		seqs = []uint64{1}
	}

	for _, seq := range seqs {
		if err := s.replaySegment(seq); err != nil {
			return err
		}
	}

	tailSeq := seqs[len(seqs)-1]
	active, err := openSegment(s.dir, tailSeq)
	if err != nil {
		return err
	}
	s.active = active
	s.segments = append(s.segments, active)
	if tailSeq >= s.nextSegmentSeq {
		s.nextSegmentSeq = tailSeq + 1
	}

	// EXECUTING reservations never survive a restart: anything the
	// in-memory index thinks is EXECUTING after replay was only ever an
	// in-memory state this process itself set, so after a fresh Load
	// nothing is EXECUTING yet. Nothing to reclaim here; TakePending is
	// what promotes INBOX -> EXECUTING.
	return nil
}

func (s *LocalStorage) replaySegment(seq uint64) error {
	path := segmentPath(s.dir, seq)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: open segment %s for replay: %w", path, err)
	}
	defer f.Close()

	for {
		body, err := readFrame(f)
		if err == nil {
			rec, decErr := decodeRecord(body)
			if decErr != nil {
				return actorerr.CorruptLog(fmt.Sprintf("segment %s", path), decErr)
			}
			s.applyRecord(rec)
			continue
		}
		if err == io.EOF {
			break
		}
		if err == errTruncatedFrame {
			// Partially written tail record: discard silently, per spec.
			break
		}
		return fmt.Errorf("storage: read segment %s: %w", path, err)
	}
	return nil
}

// applyRecord updates in-memory indices from a replayed (already
// checksum-verified) record. Must be called with s.mu held.
func (s *LocalStorage) applyRecord(rec Record) {
	switch rec.Kind {
	case KindBegin:
		if rec.Msg == nil {
			return
		}
		e := &entry{msg: *rec.Msg, status: message.StatusInbox, createdAt: time.Now().UTC()}
		s.index[rec.ID] = e
		s.pendingOrder = append(s.pendingOrder, rec.ID)
		s.numBegin++
	case KindSend:
		if e, ok := s.index[rec.ID]; ok {
			if next, err := transition(e.status, KindSend); err == nil {
				e.status = next
				now := time.Now().UTC()
				e.lastSendAt = &now
				s.numSend++
			}
		}
	case KindAck:
		if e, ok := s.index[rec.ID]; ok {
			if next, err := transition(e.status, KindAck); err == nil {
				e.status = next
				now := time.Now().UTC()
				e.ackAt = &now
			}
		}
	case KindDone:
		if e, ok := s.index[rec.ID]; ok {
			if next, err := transition(e.status, KindDone); err == nil {
				e.status = next
				e.result = rec.Result
				s.numDone++
				s.removeFromPending(rec.ID)
			}
		}
	case KindError:
		if e, ok := s.index[rec.ID]; ok {
			if next, err := transition(e.status, KindError); err == nil {
				e.status = next
				e.errInfo = rec.Error
				s.removeFromPending(rec.ID)
			}
		}
	case KindExpire:
		if e, ok := s.index[rec.ID]; ok {
			if next, err := transition(e.status, KindExpire); err == nil {
				e.status = next
				s.removeFromPending(rec.ID)
			}
		}
	}
}

func (s *LocalStorage) removeFromPending(id message.ID) {
	for i, pid := range s.pendingOrder {
		if pid == id {
			s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
			return
		}
	}
}

func (s *LocalStorage) pendingSize() int {
	n := 0
	for _, id := range s.pendingOrder {
		if e := s.index[id]; e != nil && !e.status.Terminal() {
			n++
		}
	}
	return n
}

func (s *LocalStorage) doneSize() int {
	n := 0
	for _, e := range s.index {
		if e.status.Terminal() {
			n++
		}
	}
	return n
}

func (s *LocalStorage) append(rec Record) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.active.appendRecord(rec)
}

func (s *LocalStorage) Begin(msg message.Message) error {
	s.mu.Lock()
	if s.pendingSize() >= s.maxPendingSize {
		s.mu.Unlock()
		return actorerr.StorageFull(fmt.Sprintf("pending size at cap %d", s.maxPendingSize))
	}
	msg.Seq = s.msgSeqCounter
	s.msgSeqCounter++
	s.mu.Unlock()

	if err := s.append(Record{Kind: KindBegin, ID: msg.ID, Msg: &msg}); err != nil {
		return err
	}

	s.mu.Lock()
	s.index[msg.ID] = &entry{msg: msg, status: message.StatusInbox, createdAt: time.Now().UTC()}
	s.pendingOrder = append(s.pendingOrder, msg.ID)
	s.numBegin++
	woke := s.doneSize() >= s.maxDoneSize
	s.mu.Unlock()

	if woke && s.compactNow != nil {
		s.compactNow()
	}
	return nil
}

// BeginExclusive is Begin's sibling for the synchronous ask fast path: the
// entry is durably recorded but indexed straight into EXECUTING and never
// added to pendingOrder, so the polling dispatchLoop's TakePending scan can
// never see it and hand it to a pool worker a second time.
func (s *LocalStorage) BeginExclusive(msg message.Message) error {
	s.mu.Lock()
	if s.pendingSize() >= s.maxPendingSize {
		s.mu.Unlock()
		return actorerr.StorageFull(fmt.Sprintf("pending size at cap %d", s.maxPendingSize))
	}
	msg.Seq = s.msgSeqCounter
	s.msgSeqCounter++
	s.mu.Unlock()

	if err := s.append(Record{Kind: KindBegin, ID: msg.ID, Msg: &msg}); err != nil {
		return err
	}

	s.mu.Lock()
	s.index[msg.ID] = &entry{msg: msg, status: message.StatusExecuting, createdAt: time.Now().UTC()}
	s.numBegin++
	s.mu.Unlock()
	return nil
}

func (s *LocalStorage) Send(id message.ID) error {
	s.mu.Lock()
	e, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return actorerr.UnknownID(string(id))
	}
	next, err := transition(e.status, KindSend)
	if err != nil {
		s.mu.Unlock()
		return actorerr.UnknownID(fmt.Sprintf("%s: %v", id, err))
	}
	s.mu.Unlock()

	if err := s.append(Record{Kind: KindSend, ID: id}); err != nil {
		return err
	}

	s.mu.Lock()
	e.status = next
	now := time.Now().UTC()
	e.lastSendAt = &now
	s.numSend++
	s.mu.Unlock()
	return nil
}

func (s *LocalStorage) Ack(id message.ID) error {
	s.mu.Lock()
	e, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return actorerr.UnknownID(string(id))
	}
	if e.status == message.StatusAcked {
		s.mu.Unlock()
		return nil // idempotent no-op
	}
	next, err := transition(e.status, KindAck)
	if err != nil {
		s.mu.Unlock()
		return actorerr.UnknownID(fmt.Sprintf("%s: %v", id, err))
	}
	s.mu.Unlock()

	if err := s.append(Record{Kind: KindAck, ID: id}); err != nil {
		return err
	}

	s.mu.Lock()
	e.status = next
	now := time.Now().UTC()
	e.ackAt = &now
	s.mu.Unlock()
	return nil
}

func (s *LocalStorage) Done(id message.ID, result map[string]any) error {
	s.mu.Lock()
	e, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return actorerr.UnknownID(string(id))
	}
	next, err := transition(e.status, KindDone)
	if err != nil {
		s.mu.Unlock()
		return actorerr.UnknownID(fmt.Sprintf("%s: %v", id, err))
	}
	s.mu.Unlock()

	if err := s.append(Record{Kind: KindDone, ID: id, Result: result}); err != nil {
		return err
	}

	s.mu.Lock()
	e.status = next
	e.result = result
	s.numDone++
	s.removeFromPending(id)
	woke := s.doneSize() >= s.maxDoneSize
	s.mu.Unlock()

	if woke && s.compactNow != nil {
		s.compactNow()
	}
	return nil
}

func (s *LocalStorage) Error(id message.ID, info message.ErrorInfo) error {
	s.mu.Lock()
	e, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return actorerr.UnknownID(string(id))
	}
	next, err := transition(e.status, KindError)
	if err != nil {
		s.mu.Unlock()
		return actorerr.UnknownID(fmt.Sprintf("%s: %v", id, err))
	}
	s.mu.Unlock()

	if err := s.append(Record{Kind: KindError, ID: id, Error: &info}); err != nil {
		return err
	}

	s.mu.Lock()
	e.status = next
	e.errInfo = &info
	s.removeFromPending(id)
	woke := s.doneSize() >= s.maxDoneSize
	s.mu.Unlock()

	if woke && s.compactNow != nil {
		s.compactNow()
	}
	return nil
}

func (s *LocalStorage) Expire(id message.ID) error {
	s.mu.Lock()
	e, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return actorerr.UnknownID(string(id))
	}
	next, err := transition(e.status, KindExpire)
	if err != nil {
		s.mu.Unlock()
		return actorerr.UnknownID(fmt.Sprintf("%s: %v", id, err))
	}
	s.mu.Unlock()

	if err := s.append(Record{Kind: KindExpire, ID: id}); err != nil {
		return err
	}

	s.mu.Lock()
	e.status = next
	s.removeFromPending(id)
	woke := s.doneSize() >= s.maxDoneSize
	s.mu.Unlock()

	if woke && s.compactNow != nil {
		s.compactNow()
	}
	return nil
}

func (s *LocalStorage) TakePending(n int) ([]message.Message, error) {
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

func (s *LocalStorage) OutboxIter() ([]OutboxEntry, error) {
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

func (s *LocalStorage) Lookup(id message.ID) (message.State, bool) {
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

// IncrementRetry bumps id's in-memory retry counter, used by Sender/Monitor
// when a delivery attempt fails. Retry counts are intentionally not a
// durable record (spec.md §4.5): only the current attempt number matters,
// not its history.
func (s *LocalStorage) IncrementRetry(id message.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.index[id]
	if !ok {
		return 0
	}
	e.retryCount++
	return e.retryCount
}

func (s *LocalStorage) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	var walSize int64
	if s.active != nil {
		walSize, _ = s.active.size()
	}
	return Counters{
		PendingSize:    s.pendingSize(),
		DoneSize:       s.doneSize(),
		CurrentWALSize: walSize,
		NumBeginMsgs:   s.numBegin,
		NumSendMsgs:    s.numSend,
		NumPendingMsgs: len(s.pendingOrder),
		NumDoneMsgs:    s.numDone,
		NumMessages:    uint64(len(s.index)),
	}
}

func (s *LocalStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, seg := range s.segments {
		if err := seg.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Storage = (*LocalStorage)(nil)
