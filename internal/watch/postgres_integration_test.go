//go:build integration

package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/studyplus/tracker/internal/db/dbtest"
	"github.com/studyplus/tracker/internal/video"
)

func TestPostgresStore_ReportWatchTime(t *testing.T) {
	sqlDB := dbtest.New(t)
	videos := video.NewPostgresRepository(sqlDB)
	store := NewPostgresStore(sqlDB, nil)
	ctx := context.Background()

	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	engine := NewEngine(store, WithClock(clock.Now))

	v := &video.Video{UserID: "u1", YouTubeID: "dQw4w9WgXcQ", Title: "Lecture", Duration: 100}
	if _, err := videos.Save(ctx, v); err != nil {
		t.Fatal(err)
	}

	t.Run("merges and completes", func(t *testing.T) {
		first, err := engine.ReportWatchTime(ctx, "u1", v.ID, 50)
		if err != nil {
			t.Fatalf("ReportWatchTime() error = %v", err)
		}
		clock.Advance(10 * time.Minute)
		second, err := engine.ReportWatchTime(ctx, "u1", v.ID, 46)
		if err != nil {
			t.Fatalf("ReportWatchTime() error = %v", err)
		}
		if second.ID != first.ID || second.WatchTime != 96 {
			t.Fatalf("expected merged entry of 96s, got %+v", second)
		}

		got, _ := videos.GetByID(ctx, v.ID)
		if got.Progress != 96 || !got.Completed {
			t.Errorf("unexpected video state: %+v", got)
		}
		a, err := store.EnsureAnalytics(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if a.TotalWatchTime != 96 || a.VideosCompleted != 1 || a.CurrentStreak != 1 {
			t.Errorf("unexpected analytics: %+v", a)
		}
	})

	t.Run("manual reset does not recount", func(t *testing.T) {
		notCompleted := false
		got, err := videos.UpdateProgress(ctx, v.ID, video.ProgressUpdate{Completed: &notCompleted})
		if err != nil {
			t.Fatalf("UpdateProgress() error = %v", err)
		}
		if got.Completed || !got.CompletionCounted {
			t.Fatalf("expected completed=false with counted mark kept, got %+v", got)
		}

		if _, err := engine.ReportWatchTime(ctx, "u1", v.ID, 1); err != nil {
			t.Fatalf("ReportWatchTime() error = %v", err)
		}
		a, err := store.EnsureAnalytics(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if a.VideosCompleted != 1 {
			t.Errorf("expected videosCompleted 1, got %d", a.VideosCompleted)
		}
	})

	t.Run("foreign video", func(t *testing.T) {
		if _, err := engine.ReportWatchTime(ctx, "u2", v.ID, 10); !errors.Is(err, ErrVideoNotFound) {
			t.Errorf("expected ErrVideoNotFound, got %v", err)
		}
		if _, err := engine.ReportWatchTime(ctx, "u1", "not-a-uuid", 10); !errors.Is(err, ErrVideoNotFound) {
			t.Errorf("expected ErrVideoNotFound, got %v", err)
		}
	})

	t.Run("concurrent reports serialize on the video row", func(t *testing.T) {
		clock.Advance(2 * time.Hour)
		before, _ := store.EnsureAnalytics(ctx, "u1")

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := engine.ReportWatchTime(ctx, "u1", v.ID, 5); err != nil {
					t.Errorf("report failed: %v", err)
				}
			}()
		}
		wg.Wait()

		history, err := engine.History(ctx, "u1", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 2 || history[0].WatchTime != 100 {
			t.Fatalf("expected a new 100s session, got %+v", history)
		}
		if history[0].Video == nil || history[0].Video.ID != v.ID {
			t.Error("expected video joined onto history")
		}
		after, _ := store.EnsureAnalytics(ctx, "u1")
		if after.TotalWatchTime-before.TotalWatchTime != 100 {
			t.Errorf("expected +100s, got %d", after.TotalWatchTime-before.TotalWatchTime)
		}
	})

	t.Run("history management", func(t *testing.T) {
		history, _ := engine.History(ctx, "u1", 0)
		if err := engine.DeleteEntry(ctx, "u2", history[0].ID); !errors.Is(err, ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
		if err := engine.DeleteEntry(ctx, "u1", history[0].ID); err != nil {
			t.Errorf("DeleteEntry() error = %v", err)
		}
		n, err := engine.ClearHistory(ctx, "u1")
		if err != nil || n != 1 {
			t.Errorf("ClearHistory() = %d, %v; want 1", n, err)
		}
		if err := store.UpdateStreaks(ctx, "u1", 3, 7); err != nil {
			t.Fatal(err)
		}
		a, _ := store.EnsureAnalytics(ctx, "u1")
		if a.CurrentStreak != 3 || a.LongestStreak != 7 {
			t.Errorf("unexpected streaks: %+v", a)
		}
	})
}
