package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// segment wraps one {seq:016d}.wal file. The active segment is the current
// write target; all others are immutable until the compactor unlinks them.
type segment struct {
	seq  uint64
	path string
	file *os.File
}

var segmentNamePattern = regexp.MustCompile(`^(\d{16})\.wal$`)

func segmentPath(dir string, seq uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%016d.wal", seq))
}

// openSegment opens (creating if necessary) the segment file at seq for
// append + read.
func openSegment(dir string, seq uint64) (*segment, error) {
	path := segmentPath(dir, seq)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open segment %s: %w", path, err)
	}
	return &segment{seq: seq, path: path, file: f}, nil
}

// appendRecord writes rec to the segment and fsyncs before returning, so a
// crash immediately after append never loses an acknowledged write.
func (s *segment) appendRecord(rec Record) error {
	buf, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if _, err := s.file.Write(buf); err != nil {
		return fmt.Errorf("storage: write segment %s: %w", s.path, err)
	}
	return s.file.Sync()
}

func (s *segment) size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (s *segment) close() error {
	return s.file.Close()
}

// listSegments returns every segment sequence number present in dir, in
// ascending order.
func listSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var seqs []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := segmentNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		seq, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}
