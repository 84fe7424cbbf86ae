package stats

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestImportStats_RecordSave(t *testing.T) {
	s := NewImportStats()

	s.RecordSave(true)
	s.RecordSave(true)
	s.RecordSave(false)
	s.RecordSkip()

	if s.Created() != 2 {
		t.Errorf("expected 2 created, got %d", s.Created())
	}
	if s.Reused() != 1 {
		t.Errorf("expected 1 reused, got %d", s.Reused())
	}
	if s.Saved() != 3 {
		t.Errorf("expected 3 saved, got %d", s.Saved())
	}
	if got, want := s.String(), "created=2 reused=1 skipped=1"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestImportStats_Concurrent(t *testing.T) {
	s := NewImportStats()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.RecordSave(i%2 == 0)
		}(i)
	}
	wg.Wait()

	if s.Created() != 50 || s.Reused() != 50 {
		t.Errorf("expected 50/50, got %s", s)
	}
}

func TestImportStats_LogSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s := NewImportStats()
	s.RecordSave(true)
	s.LogSummary(logger, "playlist_import")

	out := buf.String()
	for _, want := range []string{"import statistics", "operation=playlist_import", "created=1", "reused=0"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log to contain %q, got %s", want, out)
		}
	}
}
