// Package stats counts the outcome of bulk library writes.
package stats

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// ImportStats tracks how many videos a bulk operation created, reused or
// skipped. Safe for concurrent use.
type ImportStats struct {
	created atomic.Int64
	reused  atomic.Int64
	skipped atomic.Int64
}

// NewImportStats creates zeroed counters.
func NewImportStats() *ImportStats {
	return &ImportStats{}
}

// RecordSave counts the result of video.Repository.Save.
func (s *ImportStats) RecordSave(created bool) {
	if created {
		s.created.Add(1)
		return
	}
	s.reused.Add(1)
}

// RecordSkip counts a video that could not be saved.
func (s *ImportStats) RecordSkip() {
	s.skipped.Add(1)
}

func (s *ImportStats) Created() int64 { return s.created.Load() }
func (s *ImportStats) Reused() int64  { return s.reused.Load() }
func (s *ImportStats) Skipped() int64 { return s.skipped.Load() }

// Saved is created plus reused.
func (s *ImportStats) Saved() int64 {
	return s.Created() + s.Reused()
}

func (s *ImportStats) String() string {
	return fmt.Sprintf("created=%d reused=%d skipped=%d", s.Created(), s.Reused(), s.Skipped())
}

// LogSummary logs the counters at INFO level.
func (s *ImportStats) LogSummary(logger *slog.Logger, operation string) {
	logger.Info("import statistics",
		"operation", operation,
		"created", s.Created(),
		"reused", s.Reused(),
		"skipped", s.Skipped(),
	)
}
