package watch

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"

	"github.com/studyplus/tracker/internal/video"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (p *recordingPublisher) Publish(userID string, ev ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

type fixture struct {
	videos *video.InMemoryRepository
	store  *InMemoryStore
	engine *Engine
	clock  *testClock
	pub    *recordingPublisher
	m      *Metrics
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		videos: video.NewInMemoryRepository(),
		clock:  &testClock{now: time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)},
		pub:    &recordingPublisher{},
		m:      NewMetrics(),
	}
	f.store = NewInMemoryStore(f.videos)
	opts = append([]Option{WithClock(f.clock.Now), WithPublisher(f.pub), WithMetrics(f.m)}, opts...)
	f.engine = NewEngine(f.store, opts...)
	return f
}

func (f *fixture) addVideo(t *testing.T, userID string, duration int) *video.Video {
	t.Helper()
	v := &video.Video{UserID: userID, YouTubeID: uuid.NewString()[:11], Duration: duration}
	if _, err := f.videos.Save(context.Background(), v); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	return v
}

func (f *fixture) video(t *testing.T, id string) *video.Video {
	t.Helper()
	v, err := f.videos.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	return v
}

func (f *fixture) analytics(t *testing.T, userID string) *UserAnalytics {
	t.Helper()
	a, err := f.store.EnsureAnalytics(context.Background(), userID)
	if err != nil {
		t.Fatalf("EnsureAnalytics() error = %v", err)
	}
	return a
}

func TestReportWatchTime_FirstReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVideo(t, "u1", 600)

	entry, err := f.engine.ReportWatchTime(ctx, "u1", v.ID, 30)
	if err != nil {
		t.Fatalf("ReportWatchTime() error = %v", err)
	}
	if entry.WatchTime != 30 || entry.VideoID != v.ID || !entry.WatchedAt.Equal(f.clock.Now()) {
		t.Errorf("unexpected entry: %+v", entry)
	}

	if got := f.video(t, v.ID); got.Progress != 5 || got.Completed {
		t.Errorf("expected progress 5, got %d (completed=%v)", got.Progress, got.Completed)
	}

	a := f.analytics(t, "u1")
	if a.TotalWatchTime != 30 || a.VideosCompleted != 0 || a.CurrentStreak != 1 || a.LongestStreak != 1 {
		t.Errorf("unexpected analytics: %+v", a)
	}
	if a.LastWatchDate == nil || !a.LastWatchDate.Equal(f.clock.Now()) {
		t.Errorf("expected lastWatchDate %v, got %v", f.clock.Now(), a.LastWatchDate)
	}

	if len(f.pub.events) != 1 || f.pub.events[0].Progress != 5 || f.pub.events[0].TotalWatchTime != 30 {
		t.Errorf("unexpected events: %+v", f.pub.events)
	}
}

func TestReportWatchTime_MergeWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVideo(t, "u1", 0)

	first, _ := f.engine.ReportWatchTime(ctx, "u1", v.ID, 10)

	f.clock.Advance(30 * time.Minute)
	second, err := f.engine.ReportWatchTime(ctx, "u1", v.ID, 20)
	if err != nil {
		t.Fatalf("ReportWatchTime() error = %v", err)
	}
	if second.ID != first.ID || second.WatchTime != 30 {
		t.Errorf("expected merge into %s with 30s, got %+v", first.ID, second)
	}
	if !second.WatchedAt.Equal(f.clock.Now()) {
		t.Error("merged entry should move watchedAt to now")
	}

	// The window is measured from the last report, not the first.
	f.clock.Advance(59 * time.Minute)
	third, _ := f.engine.ReportWatchTime(ctx, "u1", v.ID, 5)
	if third.ID != first.ID {
		t.Error("report within the window of the last merge should extend the session")
	}

	f.clock.Advance(61 * time.Minute)
	fourth, _ := f.engine.ReportWatchTime(ctx, "u1", v.ID, 5)
	if fourth.ID == first.ID || fourth.WatchTime != 5 {
		t.Errorf("report after the window should start a new entry, got %+v", fourth)
	}

	all, _ := f.store.ListAllHistory(ctx, "u1")
	if len(all) != 2 {
		t.Errorf("expected 2 entries, got %d", len(all))
	}
	if a := f.analytics(t, "u1"); a.TotalWatchTime != 40 {
		t.Errorf("expected total 40, got %d", a.TotalWatchTime)
	}
}

func TestReportWatchTime_CustomMergeWindow(t *testing.T) {
	f := newFixture(t, WithMergeWindow(5*time.Minute))
	ctx := context.Background()
	v := f.addVideo(t, "u1", 0)

	first, _ := f.engine.ReportWatchTime(ctx, "u1", v.ID, 10)
	f.clock.Advance(6 * time.Minute)
	second, _ := f.engine.ReportWatchTime(ctx, "u1", v.ID, 10)
	if second.ID == first.ID {
		t.Error("expected a new entry outside a 5 minute window")
	}
}

func TestReportWatchTime_Completion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVideo(t, "u1", 100)

	if _, err := f.engine.ReportWatchTime(ctx, "u1", v.ID, 94); err != nil {
		t.Fatal(err)
	}
	if got := f.video(t, v.ID); got.Completed {
		t.Fatal("94% should not be completed")
	}

	if _, err := f.engine.ReportWatchTime(ctx, "u1", v.ID, 1); err != nil {
		t.Fatal(err)
	}
	got := f.video(t, v.ID)
	if !got.Completed || got.Progress != 95 {
		t.Fatalf("expected completed at 95%%, got %+v", got)
	}
	if a := f.analytics(t, "u1"); a.VideosCompleted != 1 {
		t.Fatalf("expected 1 completed video, got %d", a.VideosCompleted)
	}
	if ev := f.pub.events[len(f.pub.events)-1]; !ev.JustCompleted {
		t.Error("expected justCompleted on the crossing report")
	}

	// Further reports never count the same video twice.
	for i := 0; i < 3; i++ {
		if _, err := f.engine.ReportWatchTime(ctx, "u1", v.ID, 50); err != nil {
			t.Fatal(err)
		}
	}
	got = f.video(t, v.ID)
	if got.Progress != 100 || !got.Completed {
		t.Errorf("expected capped progress 100, got %+v", got)
	}
	if a := f.analytics(t, "u1"); a.VideosCompleted != 1 {
		t.Errorf("videosCompleted changed after completion: %d", a.VideosCompleted)
	}
}

func TestReportWatchTime_CompletedOnFirstReport(t *testing.T) {
	f := newFixture(t)
	v := f.addVideo(t, "u1", 60)

	if _, err := f.engine.ReportWatchTime(context.Background(), "u1", v.ID, 60); err != nil {
		t.Fatal(err)
	}
	if a := f.analytics(t, "u1"); a.VideosCompleted != 1 {
		t.Errorf("creating analytics on a completing report should count it, got %d", a.VideosCompleted)
	}
}

func TestReportWatchTime_RecompletionAfterManualReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVideo(t, "u1", 100)

	if _, err := f.engine.ReportWatchTime(ctx, "u1", v.ID, 96); err != nil {
		t.Fatal(err)
	}

	notCompleted := false
	if _, err := f.videos.UpdateProgress(ctx, v.ID, video.ProgressUpdate{Completed: &notCompleted}); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	if got := f.video(t, v.ID); got.Completed || !got.CompletionCounted {
		t.Fatalf("manual reset should clear completed but keep the counted mark, got %+v", got)
	}

	if _, err := f.engine.ReportWatchTime(ctx, "u1", v.ID, 1); err != nil {
		t.Fatal(err)
	}
	if got := f.video(t, v.ID); !got.Completed {
		t.Error("report at 97% should complete the video again")
	}
	if a := f.analytics(t, "u1"); a.VideosCompleted != 1 {
		t.Errorf("expected videosCompleted 1 for one video, got %d", a.VideosCompleted)
	}
	m := &dto.Metric{}
	_ = f.m.completions.Write(m)
	if m.Counter.GetValue() != 1 {
		t.Errorf("expected 1 counted completion, got %v", m.Counter.GetValue())
	}
}

func TestReportWatchTime_UnknownDurationKeepsProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVideo(t, "u1", 0)

	p := 40
	if _, err := f.videos.UpdateProgress(ctx, v.ID, video.ProgressUpdate{Progress: &p}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.ReportWatchTime(ctx, "u1", v.ID, 5000); err != nil {
		t.Fatal(err)
	}
	if got := f.video(t, v.ID); got.Progress != 40 || got.Completed {
		t.Errorf("expected untouched progress 40, got %+v", got)
	}
}

func TestReportWatchTime_Clamp(t *testing.T) {
	f := newFixture(t)
	v := f.addVideo(t, "u1", 0)

	entry, err := f.engine.ReportWatchTime(context.Background(), "u1", v.ID, 1e9)
	if err != nil {
		t.Fatal(err)
	}
	if entry.WatchTime != MaxReportSeconds {
		t.Errorf("expected clamp to %d, got %d", MaxReportSeconds, entry.WatchTime)
	}
}

func TestReportWatchTime_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.addVideo(t, "u1", 600)
	theirs := f.addVideo(t, "u2", 600)

	tests := []struct {
		name    string
		userID  string
		videoID string
		seconds float64
		wantErr error
	}{
		{"zero seconds", "u1", mine.ID, 0, ErrInvalidInput},
		{"negative seconds", "u1", mine.ID, -10, ErrInvalidInput},
		{"NaN", "u1", mine.ID, math.NaN(), ErrInvalidInput},
		{"infinite", "u1", mine.ID, math.Inf(1), ErrInvalidInput},
		{"missing user", "", mine.ID, 10, ErrInvalidInput},
		{"missing video", "u1", "", 10, ErrInvalidInput},
		{"unknown video", "u1", "does-not-exist", 10, ErrVideoNotFound},
		{"foreign video", "u1", theirs.ID, 10, ErrVideoNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := f.engine.ReportWatchTime(ctx, tt.userID, tt.videoID, tt.seconds)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if entry != nil {
				t.Error("expected nil entry on error")
			}
		})
	}

	// No state was touched by any rejection.
	for _, user := range []string{"u1", "u2"} {
		if all, _ := f.store.ListAllHistory(ctx, user); len(all) != 0 {
			t.Errorf("%s: expected no history, got %d", user, len(all))
		}
		if a := f.analytics(t, user); a.TotalWatchTime != 0 {
			t.Errorf("%s: expected no watch time, got %d", user, a.TotalWatchTime)
		}
	}
	if len(f.pub.events) != 0 {
		t.Errorf("rejected reports must not publish, got %d events", len(f.pub.events))
	}

	m := &dto.Metric{}
	_ = f.m.reports.WithLabelValues(ResultInvalid).Write(m)
	if m.Counter.GetValue() != 6 {
		t.Errorf("expected 6 invalid reports, got %v", m.Counter.GetValue())
	}
}

// failingStore fails the analytics write after every other write has been staged.
type failingStore struct {
	*InMemoryStore
}

func (s failingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.InMemoryStore.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, failingTx{tx})
	})
}

type failingTx struct {
	Tx
}

func (failingTx) AddToAnalytics(context.Context, string, int64, int, time.Time) (*UserAnalytics, error) {
	return nil, errors.New("connection reset")
}

func TestReportWatchTime_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVideo(t, "u1", 100)

	engine := NewEngine(failingStore{f.store}, WithClock(f.clock.Now), WithPublisher(f.pub))
	_, err := engine.ReportWatchTime(ctx, "u1", v.ID, 99)
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}

	if all, _ := f.store.ListAllHistory(ctx, "u1"); len(all) != 0 {
		t.Errorf("history entry leaked from failed report: %d", len(all))
	}
	if got := f.video(t, v.ID); got.Progress != 0 || got.Completed {
		t.Errorf("video progress leaked from failed report: %+v", got)
	}
	if len(f.pub.events) != 0 {
		t.Error("failed report must not publish")
	}
}

func TestReportWatchTime_ConcurrentReportsSerialize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.addVideo(t, "u1", 1000)

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.ReportWatchTime(ctx, "u1", v.ID, 10); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent report failed: %v", err)
	}

	all, _ := f.store.ListAllHistory(ctx, "u1")
	if len(all) != 1 || all[0].WatchTime != workers*10 {
		t.Fatalf("expected one entry of %ds, got %+v", workers*10, all)
	}
	if got := f.video(t, v.ID); got.Progress != 50 {
		t.Errorf("expected progress 50, got %d", got.Progress)
	}
	if a := f.analytics(t, "u1"); a.TotalWatchTime != workers*10 {
		t.Errorf("expected total %d, got %d", workers*10, a.TotalWatchTime)
	}
}

func TestReportWatchTime_TotalsAcrossVideos(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addVideo(t, "u1", 100)
	b := f.addVideo(t, "u1", 100)

	var wg sync.WaitGroup
	for _, id := range []string{a.ID, b.ID, a.ID, b.ID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.engine.ReportWatchTime(ctx, "u1", id, 50); err != nil {
				t.Errorf("report failed: %v", err)
			}
		}(id)
	}
	wg.Wait()

	got := f.analytics(t, "u1")
	if got.TotalWatchTime != 200 || got.VideosCompleted != 2 {
		t.Errorf("expected 200s and 2 completed, got %+v", got)
	}
}

func TestHistoryOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.addVideo(t, "u1", 600)
	theirs := f.addVideo(t, "u2", 600)

	e1, _ := f.engine.ReportWatchTime(ctx, "u1", mine.ID, 10)
	f.clock.Advance(2 * time.Hour)
	e2, _ := f.engine.ReportWatchTime(ctx, "u1", mine.ID, 20)
	other, _ := f.engine.ReportWatchTime(ctx, "u2", theirs.ID, 30)

	list, err := f.engine.History(ctx, "u1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != e2.ID || list[1].ID != e1.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if list[0].Video == nil || list[0].Video.ID != mine.ID {
		t.Error("expected video attached to history entries")
	}

	if err := f.engine.DeleteEntry(ctx, "u1", other.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if err := f.engine.DeleteEntry(ctx, "u1", "missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
	if err := f.engine.DeleteEntry(ctx, "u1", e1.ID); err != nil {
		t.Errorf("DeleteEntry() error = %v", err)
	}

	n, err := f.engine.ClearHistory(ctx, "u1")
	if err != nil || n != 1 {
		t.Errorf("ClearHistory() = %d, %v; want 1", n, err)
	}
	if left, _ := f.engine.History(ctx, "u2", 0); len(left) != 1 {
		t.Error("other users' history must survive")
	}

	// Deleting a video drops its history.
	if err := f.videos.Delete(ctx, theirs.ID); err != nil {
		t.Fatal(err)
	}
	if left, _ := f.engine.History(ctx, "u2", 0); len(left) != 0 {
		t.Errorf("expected cascade on video delete, got %d", len(left))
	}
}
