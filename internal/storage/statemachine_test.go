package storage

import (
	"testing"

	"github.com/actorway/actorway/internal/message"
	"github.com/stretchr/testify/require"
)

func TestTransitionHappyPaths(t *testing.T) {
	status, err := transition("", KindBegin)
	require.NoError(t, err)
	require.Equal(t, message.StatusInbox, status)

	status, err = transition(message.StatusInbox, KindDone)
	require.NoError(t, err)
	require.Equal(t, message.StatusDone, status)

	status, err = transition(message.StatusExecuting, KindSend)
	require.NoError(t, err)
	require.Equal(t, message.StatusOutbox, status)

	status, err = transition(message.StatusOutbox, KindAck)
	require.NoError(t, err)
	require.Equal(t, message.StatusAcked, status)
}

func TestTransitionDuplicateAckIsIdempotent(t *testing.T) {
	status, err := transition(message.StatusAcked, KindAck)
	require.NoError(t, err)
	require.Equal(t, message.StatusAcked, status)
}

func TestTransitionRejectsDuplicateBegin(t *testing.T) {
	_, err := transition(message.StatusInbox, KindBegin)
	require.Error(t, err)
}

func TestTransitionRejectsExpireFromTerminal(t *testing.T) {
	_, err := transition(message.StatusDone, KindExpire)
	require.Error(t, err)
}

func TestTransitionRejectsAckWithoutSend(t *testing.T) {
	_, err := transition(message.StatusInbox, KindAck)
	require.Error(t, err)
}

func TestValidatePathValidSequences(t *testing.T) {
	require.NoError(t, validatePath([]RecordKind{KindBegin, KindDone}))
	require.NoError(t, validatePath([]RecordKind{KindBegin, KindSend, KindAck}))
	require.NoError(t, validatePath([]RecordKind{KindBegin, KindSend, KindSend, KindAck}))
	require.NoError(t, validatePath([]RecordKind{KindBegin, KindExpire}))
}

func TestValidatePathInvalidSequence(t *testing.T) {
	err := validatePath([]RecordKind{KindBegin, KindAck})
	require.Error(t, err)
}
