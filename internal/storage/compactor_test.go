package storage

import (
	"os"
	"testing"
	"time"

	"github.com/actorway/actorway/internal/message"
	"github.com/stretchr/testify/require"
)

func TestCompactorDropsTerminalMessagesAndKeepsInFlight(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 100, 100)
	require.NoError(t, err)
	require.NoError(t, s.Load())
	defer s.Close()

	done := sampleMessage()
	require.NoError(t, s.Begin(done))
	require.NoError(t, s.Done(done.ID, map[string]any{"ok": true}))

	pending := sampleMessage()
	require.NoError(t, s.Begin(pending))

	outbox := sampleMessage()
	require.NoError(t, s.Begin(outbox))
	require.NoError(t, s.Send(outbox.ID))

	c := NewCompactor(s, time.Hour)
	require.NoError(t, c.Run())

	_, ok := s.Lookup(done.ID)
	require.True(t, ok, "compaction only rewrites the log, the in-memory index is untouched")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "compaction should leave exactly one segment file")

	// A restart from the compacted log must not resurrect the DONE message
	// as pending, and must preserve the OUTBOX message's status.
	s2, err := New(dir, 100, 100)
	require.NoError(t, err)
	require.NoError(t, s2.Load())
	defer s2.Close()

	_, ok = s2.Lookup(done.ID)
	require.False(t, ok, "terminal messages are not rewritten by compaction")

	st, ok := s2.Lookup(pending.ID)
	require.True(t, ok)
	require.Equal(t, message.StatusInbox, st.Status)

	st, ok = s2.Lookup(outbox.ID)
	require.True(t, ok)
	require.Equal(t, message.StatusOutbox, st.Status)
}

func TestCompactorRunIsIdempotentOnAnAlreadyCompactedLog(t *testing.T) {
	s := newTestLocal(t, 100, 100)
	msg := sampleMessage()
	require.NoError(t, s.Begin(msg))

	c := NewCompactor(s, time.Hour)
	require.NoError(t, c.Run())
	require.NoError(t, c.Run())

	st, ok := s.Lookup(msg.ID)
	require.True(t, ok)
	require.Equal(t, message.StatusInbox, st.Status)
}
