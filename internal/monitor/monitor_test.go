package monitor

import (
	"testing"
	"time"

	"github.com/actorway/actorway/internal/message"
	"github.com/actorway/actorway/internal/storage"
	"github.com/stretchr/testify/require"
)

type fakeRetrier struct {
	retried []storage.OutboxEntry
}

func (f *fakeRetrier) Retry(entry storage.OutboxEntry) error {
	f.retried = append(f.retried, entry)
	return nil
}

func beginAndSend(t *testing.T, store storage.Storage, msg message.Message) {
	t.Helper()
	require.NoError(t, store.Begin(msg))
	require.NoError(t, store.Send(msg.ID))
}

func TestSweepRetriesAfterAckTimeout(t *testing.T) {
	store := storage.NewMemory(100, 100)
	msg := message.Message{ID: message.NewID(), Src: "a.x", Dst: "worker.y", Content: map[string]any{}, RequireAck: true}
	beginAndSend(t, store, msg)

	retrier := &fakeRetrier{}
	m := New(store, retrier, Config{AckTimeout: 0, MaxRetryCount: 5})
	// ackTimedOut waits for the larger of AckTimeout and the sender's
	// backoff for retry 0 (200ms with up to 30% jitter, so at most 260ms);
	// sleep past that window so the entry counts as timed out.
	time.Sleep(300 * time.Millisecond)
	m.cfg.AckTimeout = time.Nanosecond

	m.Sweep()
	require.Len(t, retrier.retried, 1)
	require.Equal(t, msg.ID, retrier.retried[0].ID)
}

func TestSweepRecordsRetryExhausted(t *testing.T) {
	store := storage.NewMemory(100, 100)
	msg := message.Message{ID: message.NewID(), Src: "a.x", Dst: "worker.y", Content: map[string]any{}, RequireAck: true}
	beginAndSend(t, store, msg)
	for i := 0; i < 6; i++ {
		store.IncrementRetry(msg.ID)
	}

	retrier := &fakeRetrier{}
	m := New(store, retrier, Config{MaxRetryCount: 5})
	m.Sweep()

	st, ok := store.Lookup(msg.ID)
	require.True(t, ok)
	require.Equal(t, message.StatusError, st.Status)
	require.Empty(t, retrier.retried)
}

func TestSweepExpiresPastDeadlineMessages(t *testing.T) {
	store := storage.NewMemory(100, 100)
	past := message.NewUnixTime(time.Now().Add(-time.Hour))
	msg := message.Message{ID: message.NewID(), Src: "a.x", Dst: "worker.y", Content: map[string]any{}, RequireAck: true, ExpireAt: past}
	beginAndSend(t, store, msg)

	retrier := &fakeRetrier{}
	m := New(store, retrier, Config{})
	m.Sweep()

	st, ok := store.Lookup(msg.ID)
	require.True(t, ok)
	require.Equal(t, message.StatusExpired, st.Status)
}
