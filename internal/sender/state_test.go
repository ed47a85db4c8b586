package sender

import (
	"testing"

	"github.com/actorway/actorway/internal/message"
	"github.com/stretchr/testify/require"
)

func TestStateTableTransitionsToTerminalAtMostOnce(t *testing.T) {
	tbl := newStateTable(10)
	id := message.NewID()

	tbl.markSending(id)
	tbl.markFailed(id)
	tbl.markFailed(id)
	st, ok := tbl.lookup(id)
	require.True(t, ok)
	require.Equal(t, statusFailed, st.status)
	require.Equal(t, 2, st.retryCount)

	tbl.markAcked(id)
	_, ok = tbl.lookup(id)
	require.False(t, ok, "an acked id leaves the table entirely: ACKED is terminal and has nothing left to track")
}

func TestStateTableEvictsOldestFailedWhenFull(t *testing.T) {
	tbl := newStateTable(2)
	a, b, c := message.NewID(), message.NewID(), message.NewID()

	tbl.markFailed(a)
	tbl.markFailed(b)
	tbl.markFailed(c) // table is over capacity, a (oldest FAILED) should be evicted

	_, ok := tbl.lookup(a)
	require.False(t, ok)
	_, ok = tbl.lookup(b)
	require.True(t, ok)
	_, ok = tbl.lookup(c)
	require.True(t, ok)
}

func TestStateTableNeverEvictsActivelySendingEntries(t *testing.T) {
	tbl := newStateTable(1)
	sending, failed := message.NewID(), message.NewID()

	tbl.markSending(sending)
	tbl.markFailed(failed) // over capacity, but nothing FAILED to evict except itself

	_, ok := tbl.lookup(sending)
	require.True(t, ok, "an in-flight entry must never be silently dropped")
}
