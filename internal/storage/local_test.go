package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/actorway/actorway/internal/actorerr"
	"github.com/actorway/actorway/internal/message"
	"github.com/stretchr/testify/require"
)

func newTestLocal(t *testing.T, maxPending, maxDone int) *LocalStorage {
	t.Helper()
	s, err := New(t.TempDir(), maxPending, maxDone)
	require.NoError(t, err)
	require.NoError(t, s.Load())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleMessage() message.Message {
	return message.Message{
		ID:      message.NewID(),
		Src:     "client",
		Dst:     "worker.ping",
		Content: map[string]any{"n": 1},
	}
}

func TestLocalStorageBeginTakeDone(t *testing.T) {
	s := newTestLocal(t, 10, 10)
	msg := sampleMessage()
	require.NoError(t, s.Begin(msg))

	st, ok := s.Lookup(msg.ID)
	require.True(t, ok)
	require.Equal(t, message.StatusInbox, st.Status)

	taken, err := s.TakePending(5)
	require.NoError(t, err)
	require.Len(t, taken, 1)
	require.Equal(t, msg.ID, taken[0].ID)

	st, _ = s.Lookup(msg.ID)
	require.Equal(t, message.StatusExecuting, st.Status)

	require.NoError(t, s.Done(msg.ID, map[string]any{"ok": true}))
	st, _ = s.Lookup(msg.ID)
	require.Equal(t, message.StatusDone, st.Status)
	require.True(t, st.Status.Terminal())

	counters := s.Counters()
	require.Equal(t, 0, counters.PendingSize)
	require.Equal(t, uint64(1), counters.NumDoneMsgs)
}

func TestLocalStorageBeginExclusiveSkipsPendingOrder(t *testing.T) {
	s := newTestLocal(t, 10, 10)
	msg := sampleMessage()
	require.NoError(t, s.BeginExclusive(msg))

	st, ok := s.Lookup(msg.ID)
	require.True(t, ok)
	require.Equal(t, message.StatusExecuting, st.Status)

	// TakePending only scans pendingOrder for INBOX entries; an exclusively
	// reserved ask message must never be handed out by it.
	taken, err := s.TakePending(5)
	require.NoError(t, err)
	require.Empty(t, taken)

	require.NoError(t, s.Done(msg.ID, map[string]any{"ok": true}))
	st, _ = s.Lookup(msg.ID)
	require.Equal(t, message.StatusDone, st.Status)
}

func TestLocalStorageSendAckFlow(t *testing.T) {
	s := newTestLocal(t, 10, 10)
	msg := sampleMessage()
	msg.RequireAck = true
	require.NoError(t, s.Begin(msg))

	require.NoError(t, s.Send(msg.ID))
	st, _ := s.Lookup(msg.ID)
	require.Equal(t, message.StatusOutbox, st.Status)

	entries, err := s.OutboxIter()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, msg.ID, entries[0].ID)

	require.NoError(t, s.Ack(msg.ID))
	st, _ = s.Lookup(msg.ID)
	require.Equal(t, message.StatusAcked, st.Status)

	// A duplicate ack is a no-op, not an error.
	require.NoError(t, s.Ack(msg.ID))
}

func TestLocalStorageSendRejectsUnknownID(t *testing.T) {
	s := newTestLocal(t, 10, 10)
	unknown := message.NewID()
	require.Error(t, s.Send(unknown))
	var actorErr *actorerr.Error
	require.ErrorAs(t, s.Send(unknown), &actorErr)
	require.Equal(t, actorerr.KindUnknownID, actorErr.Kind())
}

func TestLocalStoragePendingCapReturnsStorageFull(t *testing.T) {
	s := newTestLocal(t, 1, 10)
	require.NoError(t, s.Begin(sampleMessage()))

	err := s.Begin(sampleMessage())
	require.Error(t, err)
	var actorErr *actorerr.Error
	require.ErrorAs(t, err, &actorErr)
	require.Equal(t, actorerr.KindStorageFull, actorErr.Kind())
}

func TestLocalStorageRecoversAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir, 10, 10)
	require.NoError(t, err)
	require.NoError(t, s1.Load())

	msg := sampleMessage()
	require.NoError(t, s1.Begin(msg))
	require.NoError(t, s1.Send(msg.ID))
	require.NoError(t, s1.Close())

	s2, err := New(dir, 10, 10)
	require.NoError(t, err)
	require.NoError(t, s2.Load())
	defer s2.Close()

	st, ok := s2.Lookup(msg.ID)
	require.True(t, ok)
	require.Equal(t, message.StatusOutbox, st.Status)
}

func TestLocalStorageDiscardsTruncatedTailRecord(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir, 10, 10)
	require.NoError(t, err)
	require.NoError(t, s1.Load())

	msg := sampleMessage()
	require.NoError(t, s1.Begin(msg))
	require.NoError(t, s1.Close())

	path := segmentPath(dir, 1)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xff, 0xff, 0xff, 0x7f, 0x01, 0x02, 0x03})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s2, err := New(dir, 10, 10)
	require.NoError(t, err)
	require.NoError(t, s2.Load())
	defer s2.Close()

	st, ok := s2.Lookup(msg.ID)
	require.True(t, ok)
	require.Equal(t, message.StatusInbox, st.Status)
}

func TestLocalStorageLoadCreatesDirAndFirstSegment(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "wal")
	s, err := New(dir, 10, 10)
	require.NoError(t, err)
	require.NoError(t, s.Load())
	defer s.Close()
	require.Equal(t, segmentPath(dir, 1), s.CurrentSegmentPath())
}
