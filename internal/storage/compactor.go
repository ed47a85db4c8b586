package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/actorway/actorway/internal/actorlog"
	"github.com/actorway/actorway/internal/message"
)

// Compactor rewrites a LocalStorage's segments into a single fresh one
// holding only the records still needed to reconstruct in-flight message
// state, then unlinks the old segments. It shares writeMu with the append
// path so at most one of {append, compact} runs at a time.
type Compactor struct {
	storage  *LocalStorage
	interval time.Duration
}

func NewCompactor(s *LocalStorage, interval time.Duration) *Compactor {
	return &Compactor{storage: s, interval: interval}
}

// Start runs a compaction pass every interval until ctx is cancelled. Errors
// are logged, not returned: a failed pass just means the log grows a little
// longer until the next tick or the next synchronous trigger.
func (c *Compactor) Start(ctx context.Context) {
	log := actorlog.New("compactor")
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Run(); err != nil {
				log.Warn().Err(err).Msg("compaction pass failed")
			}
		}
	}
}

// Run performs one compaction pass synchronously. It is also what
// LocalStorage.AttachCompactor wires up as the done_size-triggered
// backpressure hook.
func (c *Compactor) Run() error {
	s := c.storage

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	survivors := make(map[message.ID]*entry, len(s.index))
	for id, e := range s.index {
		if e.status.Terminal() {
			continue
		}
		survivors[id] = e
	}
	newSeq := s.nextSegmentSeq
	oldSegments := append([]*segment(nil), s.segments...)
	s.mu.Unlock()

	newSeg, err := openSegment(s.dir, newSeq)
	if err != nil {
		return fmt.Errorf("storage: compactor open new segment: %w", err)
	}

	// ChecksumSet guards against writing the same id twice into the
	// rewritten segment; a survivor snapshot should never contain
	// duplicates, but a cheap dedupe pass costs nothing and matches how
	// rssant's feed resync uses the same structure to skip repeats.
	seen := message.NewChecksumSet()
	for id, e := range survivors {
		if !seen.Update(string(id), string(e.status)) {
			continue
		}
		msgCopy := e.msg
		if err := newSeg.appendRecord(Record{Kind: KindBegin, ID: id, Msg: &msgCopy}); err != nil {
			newSeg.close()
			return fmt.Errorf("storage: compactor rewrite BEGIN %s: %w", id, err)
		}
		if e.status == message.StatusOutbox {
			if err := newSeg.appendRecord(Record{Kind: KindSend, ID: id}); err != nil {
				newSeg.close()
				return fmt.Errorf("storage: compactor rewrite SEND %s: %w", id, err)
			}
		}
	}

	s.mu.Lock()
	s.active = newSeg
	s.segments = []*segment{newSeg}
	s.nextSegmentSeq = newSeq + 1
	s.mu.Unlock()

	for _, old := range oldSegments {
		if old.seq == newSeg.seq {
			continue
		}
		path := old.path
		if err := old.close(); err != nil {
			return fmt.Errorf("storage: compactor close old segment %s: %w", path, err)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("storage: compactor remove old segment %s: %w", path, err)
		}
	}
	return nil
}
