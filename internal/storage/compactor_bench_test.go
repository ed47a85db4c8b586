package storage

import (
	"testing"
	"time"
)

// BenchmarkCompactorRun exercises compaction over a log where most messages
// have already completed, the steady-state shape in a long-running node:
// a handful of in-flight messages buried under a much larger number of
// DONE records that should be dropped on rewrite.
func BenchmarkCompactorRun(b *testing.B) {
	dir := b.TempDir()
	s, err := New(dir, 1_000_000, 1_000_000)
	if err != nil {
		b.Fatal(err)
	}
	if err := s.Load(); err != nil {
		b.Fatal(err)
	}
	defer s.Close()

	const doneCount = 5000
	const inFlightCount = 50

	for i := 0; i < doneCount; i++ {
		msg := sampleMessage()
		if err := s.Begin(msg); err != nil {
			b.Fatal(err)
		}
		if err := s.Done(msg.ID, map[string]any{"i": i}); err != nil {
			b.Fatal(err)
		}
	}
	for i := 0; i < inFlightCount; i++ {
		msg := sampleMessage()
		if err := s.Begin(msg); err != nil {
			b.Fatal(err)
		}
	}

	c := NewCompactor(s, time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Run(); err != nil {
			b.Fatal(err)
		}
	}
}
