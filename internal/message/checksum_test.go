package message

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksumSetDumpLoadRoundTrip(t *testing.T) {
	set := NewChecksumSet()
	for i := 0; i < 300; i++ {
		id := fmt.Sprintf("msg-%d", i)
		content := fmt.Sprintf("content-%d", i%7)
		set.Update(id, content)
	}

	data := set.Dump()
	loaded, err := LoadChecksumSet(data)
	require.NoError(t, err)
	require.True(t, set.Equal(loaded), "load(dump(x)) must equal x")
	require.Equal(t, set.Size(), loaded.Size())
}

func TestChecksumSetUpdateReportsChange(t *testing.T) {
	set := NewChecksumSet()
	require.True(t, set.Update("a", "v1"), "first write is always a change")
	require.False(t, set.Update("a", "v1"), "unchanged content is not a change")
	require.True(t, set.Update("a", "v2"), "different content is a change")
}

func TestLoadChecksumSetRejectsTruncatedBlob(t *testing.T) {
	set := NewChecksumSet()
	set.Update("a", "v1")
	data := set.Dump()

	_, err := LoadChecksumSet(data[:len(data)-1])
	require.Error(t, err)
}

func TestLoadChecksumSetRejectsUnknownVersion(t *testing.T) {
	_, err := LoadChecksumSet([]byte{2, 0, 0, 0})
	require.Error(t, err)
}
