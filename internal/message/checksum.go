package message

import (
	"crypto/md5" //nolint:gosec // used only as a short, well-distributed fingerprint, not for security
	"fmt"
)

// ChecksumSet is a compact, order-preserving packed encoding of
// (id-fingerprint -> content-fingerprint) pairs.
//
// The compactor uses it to remember, within a single compaction pass,
// which ids it has already emitted a consolidated BEGIN for, without
// holding full ULID/UUID strings in memory. The layout is lifted directly
// from the source system's FeedChecksum packed-blob format:
//
//	+---------+------------------------+------------------------+
//	| 1 byte  |   keyLen * N bytes     |   valLen * N bytes     |
//	+---------+------------------------+------------------------+
//	| version |     id fingerprints    |   content fingerprints |
//	+---------+------------------------+------------------------+
type ChecksumSet struct {
	version int
	keys    [][keyLen]byte
	vals    [][valLen]byte
	index   map[[keyLen]byte]int
}

const (
	keyLen = 4
	valLen = 8
	ver1   = 1
)

// NewChecksumSet creates an empty set at version 1.
func NewChecksumSet() *ChecksumSet {
	return &ChecksumSet{version: ver1, index: make(map[[keyLen]byte]int)}
}

func fingerprint(s string, n int) []byte {
	sum := md5.Sum([]byte(s)) //nolint:gosec
	return sum[:n]
}

// Update records that id currently maps to content. It returns true if this
// changed the recorded fingerprint for id (new id, or content fingerprint
// differs from what was last recorded for id).
//
// Collisions in the truncated fingerprints are asymmetric by design: a
// missed update (two different contents hashing the same) is never
// acceptable, a spurious update (two different ids hashing the same key)
// merely costs an extra consolidated BEGIN during compaction and is fine.
func (c *ChecksumSet) Update(id, content string) bool {
	var key [keyLen]byte
	copy(key[:], fingerprint(id, keyLen))
	var val [valLen]byte
	copy(val[:], fingerprint(content, valLen))

	if i, ok := c.index[key]; ok {
		if c.vals[i] == val {
			return false
		}
		c.vals[i] = val
		return true
	}
	c.index[key] = len(c.keys)
	c.keys = append(c.keys, key)
	c.vals = append(c.vals, val)
	return true
}

// Size returns the number of tracked ids.
func (c *ChecksumSet) Size() int { return len(c.keys) }

// Dump packs the set into a byte slice suitable for Load.
func (c *ChecksumSet) Dump() []byte {
	n := len(c.keys)
	buf := make([]byte, 1+n*keyLen+n*valLen)
	buf[0] = byte(c.version)
	off := 1
	for _, k := range c.keys {
		copy(buf[off:], k[:])
		off += keyLen
	}
	for _, v := range c.vals {
		copy(buf[off:], v[:])
		off += valLen
	}
	return buf
}

// LoadChecksumSet reverses Dump.
func LoadChecksumSet(data []byte) (*ChecksumSet, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("message: empty checksum blob")
	}
	version := int(data[0])
	if version != ver1 {
		return nil, fmt.Errorf("message: unsupported checksum version %d", version)
	}
	rest := data[1:]
	n, remainder := divmod(len(rest), keyLen+valLen)
	if remainder != 0 {
		return nil, fmt.Errorf("message: unexpected checksum blob length %d", len(data))
	}

	set := NewChecksumSet()
	keysBuf := rest[:n*keyLen]
	valsBuf := rest[n*keyLen:]
	for i := 0; i < n; i++ {
		var key [keyLen]byte
		copy(key[:], keysBuf[i*keyLen:(i+1)*keyLen])
		var val [valLen]byte
		copy(val[:], valsBuf[i*valLen:(i+1)*valLen])
		set.index[key] = len(set.keys)
		set.keys = append(set.keys, key)
		set.vals = append(set.vals, val)
	}
	return set, nil
}

func divmod(a, b int) (q, r int) { return a / b, a % b }

// Equal compares two sets for exact content equality, used by the
// dump/load round-trip property test.
func (c *ChecksumSet) Equal(other *ChecksumSet) bool {
	if other == nil || c.version != other.version || len(c.keys) != len(other.keys) {
		return false
	}
	for i := range c.keys {
		if c.keys[i] != other.keys[i] || c.vals[i] != other.vals[i] {
			return false
		}
	}
	return true
}
