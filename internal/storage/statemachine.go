package storage

import (
	"fmt"

	"github.com/actorway/actorway/internal/message"
)

// transition validates and applies one record kind to a message's current
// status, per the state machine:
//
//	initial    -> INBOX      on BEGIN
//	INBOX      -> EXECUTING  on take (not a durable record; handled by TakePending)
//	EXECUTING  -> INBOX      on executor drop / restart reclaim
//	EXECUTING  -> DONE | ERROR | OUTBOX (spawning a child outbound message)
//	OUTBOX     -> OUTBOX     on retry / SEND
//	OUTBOX     -> ACKED      on ACK (terminal)
//	any        -> EXPIRED    if expire_at has passed
//
// It returns an error if kind cannot legally follow from.
func transition(from message.Status, kind RecordKind) (message.Status, error) {
	switch kind {
	case KindBegin:
		if from != "" {
			return from, fmt.Errorf("storage: duplicate BEGIN from status %s", from)
		}
		return message.StatusInbox, nil

	case KindSend:
		switch from {
		case message.StatusInbox, message.StatusExecuting, message.StatusOutbox:
			return message.StatusOutbox, nil
		default:
			return from, fmt.Errorf("storage: SEND invalid from status %s", from)
		}

	case KindAck:
		switch from {
		case message.StatusOutbox:
			return message.StatusAcked, nil
		case message.StatusAcked:
			return message.StatusAcked, nil // idempotent: duplicate ACK is a no-op
		default:
			return from, fmt.Errorf("storage: ACK invalid from status %s", from)
		}

	case KindDone:
		switch from {
		case message.StatusInbox, message.StatusExecuting:
			return message.StatusDone, nil
		default:
			return from, fmt.Errorf("storage: DONE invalid from status %s", from)
		}

	case KindError:
		switch from {
		case message.StatusInbox, message.StatusExecuting, message.StatusOutbox:
			return message.StatusError, nil
		default:
			return from, fmt.Errorf("storage: ERROR invalid from status %s", from)
		}

	case KindExpire:
		if from.Terminal() {
			return from, fmt.Errorf("storage: EXPIRE invalid from terminal status %s", from)
		}
		return message.StatusExpired, nil

	default:
		return from, fmt.Errorf("storage: unknown record kind %v", kind)
	}
}

// validatePath replays kinds in order starting from the zero status and
// reports the first invalid transition, if any. Used by the property test
// backing "the sequence of records for m.id forms a valid path".
func validatePath(kinds []RecordKind) error {
	status := message.Status("")
	for _, k := range kinds {
		next, err := transition(status, k)
		if err != nil {
			return err
		}
		status = next
	}
	return nil
}
