// Package storage is the durable write-ahead log of in-flight messages: the
// inbox/outbox state machine, size-capped backpressure, crash recovery, and
// the compactor that keeps the log from growing without bound. All other
// components treat Storage as the single source of truth for message
// state; nothing else is allowed to mutate it directly.
package storage

import (
	"time"

	"github.com/actorway/actorway/internal/message"
)

// OutboxEntry is the snapshot Sender consumes to seed its delivery workers
// at startup and the Monitor consumes on every sweep.
type OutboxEntry struct {
	ID         message.ID
	RetryCount int
	LastSendAt time.Time
	Msg        message.Message
}

// Counters backs the numeric fields of the /health document.
type Counters struct {
	PendingSize     int
	DoneSize        int
	CurrentWALSize  int64
	NumBeginMsgs    uint64
	NumSendMsgs     uint64
	NumPendingMsgs  int
	NumDoneMsgs     uint64
	NumMessages     uint64
}

// Storage is the contract every component programs against. LocalStorage
// and MemoryStorage both implement it; which one a Node uses is decided
// purely by whether storage_dir was configured.
type Storage interface {
	// Begin durably records a freshly-received or freshly-submitted
	// message and indexes it as INBOX. Returns actorerr.StorageFull when
	// pending_size has already reached the configured cap.
	Begin(msg message.Message) error

	// BeginExclusive durably records msg already reserved as EXECUTING,
	// skipping INBOX entirely so TakePending's poll can never also claim
	// it. Used by the synchronous local ask path, where the caller is
	// about to invoke the handler itself and needs exclusive ownership
	// guaranteed atomically with the BEGIN record.
	BeginExclusive(msg message.Message) error

	// Send records that id has been (re)sent to a remote peer and is now
	// awaiting acknowledgement.
	Send(id message.ID) error

	// Ack records that id's outbound delivery was acknowledged. Acking an
	// already-acked id is a no-op (idempotent).
	Ack(id message.ID) error

	// Done records a terminal successful result for id.
	Done(id message.ID, result map[string]any) error

	// Error records a terminal failure for id.
	Error(id message.ID, info message.ErrorInfo) error

	// Expire records that id's deadline passed before it completed.
	Expire(id message.ID) error

	// TakePending returns up to n INBOX messages in FIFO order, marking
	// them EXECUTING. The reservation is not itself a durable record; a
	// crash before Done/Error is written reclaims the message as INBOX on
	// the next Load.
	TakePending(n int) ([]message.Message, error)

	// OutboxIter snapshots every OUTBOX entry for Sender/Monitor.
	OutboxIter() ([]OutboxEntry, error)

	// Lookup returns the current State for id.
	Lookup(id message.ID) (message.State, bool)

	// IncrementRetry bumps and returns id's in-memory retry counter. Retry
	// counts themselves are not durable (only the current attempt number
	// matters, never its history), so a crash resets them to zero.
	IncrementRetry(id message.ID) int

	// Load reconstructs in-memory indices from durable segments. Called
	// once at startup; LocalStorage reads segment files, MemoryStorage is
	// a no-op.
	Load() error

	// Close flushes and releases any file handles.
	Close() error

	// Counters reports the numeric state /health exposes.
	Counters() Counters
}
