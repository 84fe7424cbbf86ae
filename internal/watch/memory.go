package watch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/studyplus/tracker/internal/video"
)

// InMemoryStore implements Store in memory on top of the in-memory video repository.
//
// Transactions hold a store-wide lock and stage their writes; staged writes are
// applied only when fn succeeds, video progress first.
type InMemoryStore struct {
	mu        sync.RWMutex
	videos    video.Repository
	entries   map[string]*HistoryEntry // id -> entry
	analytics map[string]*UserAnalytics
}

// NewInMemoryStore creates a store. Entries of deleted videos are dropped.
func NewInMemoryStore(videos *video.InMemoryRepository) *InMemoryStore {
	s := &InMemoryStore{
		videos:    videos,
		entries:   make(map[string]*HistoryEntry),
		analytics: make(map[string]*UserAnalytics),
	}
	videos.OnDelete(s.dropVideo)
	return s
}

func (s *InMemoryStore) dropVideo(videoID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.VideoID == videoID {
			delete(s.entries, id)
		}
	}
}

func cloneEntry(e *HistoryEntry) *HistoryEntry {
	c := *e
	c.Video = nil
	return &c
}

func cloneAnalytics(a *UserAnalytics) *UserAnalytics {
	c := *a
	if a.LastWatchDate != nil {
		t := *a.LastWatchDate
		c.LastWatchDate = &t
	}
	return &c
}

type progressWrite struct {
	videoID   string
	progress  int
	completed bool
	counted   bool
}

// memTx stages writes over the committed maps. The store lock is held for its lifetime.
type memTx struct {
	s         *InMemoryStore
	inserted  map[string]*HistoryEntry
	updated   map[string]*HistoryEntry
	progress  []progressWrite
	analytics map[string]*UserAnalytics
}

// WithinTx implements Store.
func (s *InMemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:         s,
		inserted:  make(map[string]*HistoryEntry),
		updated:   make(map[string]*HistoryEntry),
		analytics: make(map[string]*UserAnalytics),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit(ctx)
}

func (tx *memTx) commit(ctx context.Context) error {
	for _, p := range tx.progress {
		progress, completed, counted := p.progress, p.completed, p.counted
		if _, err := tx.s.videos.UpdateProgress(ctx, p.videoID, video.ProgressUpdate{
			Progress:          &progress,
			Completed:         &completed,
			CompletionCounted: &counted,
		}); err != nil {
			return err
		}
	}
	for id, e := range tx.inserted {
		tx.s.entries[id] = e
	}
	for id, e := range tx.updated {
		tx.s.entries[id] = e
	}
	for userID, a := range tx.analytics {
		tx.s.analytics[userID] = a
	}
	return nil
}

// entry resolves an entry through the staged writes.
func (tx *memTx) entry(id string) (*HistoryEntry, bool) {
	if e, ok := tx.updated[id]; ok {
		return e, true
	}
	if e, ok := tx.inserted[id]; ok {
		return e, true
	}
	e, ok := tx.s.entries[id]
	return e, ok
}

func (tx *memTx) eachEntry(fn func(*HistoryEntry)) {
	for id := range tx.s.entries {
		if e, ok := tx.entry(id); ok {
			fn(e)
		}
	}
	for _, e := range tx.inserted {
		fn(e)
	}
}

func (tx *memTx) LockVideo(ctx context.Context, videoID string) (*video.Video, error) {
	return tx.s.videos.GetByID(ctx, videoID)
}

func (tx *memTx) LatestEntrySince(ctx context.Context, userID, videoID string, since time.Time) (*HistoryEntry, error) {
	var latest *HistoryEntry
	tx.eachEntry(func(e *HistoryEntry) {
		if e.UserID != userID || e.VideoID != videoID || e.WatchedAt.Before(since) {
			return
		}
		if latest == nil || e.WatchedAt.After(latest.WatchedAt) {
			latest = e
		}
	})
	if latest == nil {
		return nil, nil
	}
	return cloneEntry(latest), nil
}

func (tx *memTx) InsertEntry(ctx context.Context, e *HistoryEntry) error {
	tx.inserted[e.ID] = cloneEntry(e)
	return nil
}

func (tx *memTx) UpdateEntry(ctx context.Context, id string, watchTime int64, watchedAt time.Time) error {
	e, ok := tx.entry(id)
	if !ok {
		return ErrEntryNotFound
	}
	c := cloneEntry(e)
	c.WatchTime = watchTime
	c.WatchedAt = watchedAt
	if _, staged := tx.inserted[id]; staged {
		tx.inserted[id] = c
		return nil
	}
	tx.updated[id] = c
	return nil
}

func (tx *memTx) SumWatchTime(ctx context.Context, userID, videoID string) (int64, error) {
	var total int64
	tx.eachEntry(func(e *HistoryEntry) {
		if e.UserID == userID && e.VideoID == videoID {
			total += e.WatchTime
		}
	})
	return total, nil
}

func (tx *memTx) UpdateVideoProgress(ctx context.Context, videoID string, progress int, completed, counted bool) error {
	tx.progress = append(tx.progress, progressWrite{videoID: videoID, progress: progress, completed: completed, counted: counted})
	return nil
}

func (tx *memTx) AddToAnalytics(ctx context.Context, userID string, seconds int64, completed int, at time.Time) (*UserAnalytics, error) {
	a, ok := tx.analytics[userID]
	if !ok {
		if committed, exists := tx.s.analytics[userID]; exists {
			a = cloneAnalytics(committed)
		} else {
			a = &UserAnalytics{UserID: userID, CurrentStreak: 1, LongestStreak: 1}
		}
		tx.analytics[userID] = a
	}
	a.TotalWatchTime += seconds
	a.VideosCompleted += completed
	last := at
	a.LastWatchDate = &last
	return cloneAnalytics(a), nil
}

// ListHistory implements Store.
func (s *InMemoryStore) ListHistory(ctx context.Context, userID string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	s.mu.RLock()
	var out []*HistoryEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, cloneEntry(e))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].WatchedAt.After(out[j].WatchedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	for _, e := range out {
		v, err := s.videos.GetByID(ctx, e.VideoID)
		if err == nil {
			e.Video = v
		}
	}
	return out, nil
}

// ListAllHistory implements Store.
func (s *InMemoryStore) ListAllHistory(ctx context.Context, userID string) ([]*HistoryEntry, error) {
	s.mu.RLock()
	var out []*HistoryEntry
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, cloneEntry(e))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].WatchedAt.Before(out[j].WatchedAt) })
	return out, nil
}

// GetEntry implements Store.
func (s *InMemoryStore) GetEntry(ctx context.Context, id string) (*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return cloneEntry(e), nil
}

// DeleteEntry implements Store.
func (s *InMemoryStore) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

// ClearHistory implements Store.
func (s *InMemoryStore) ClearHistory(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, e := range s.entries {
		if e.UserID == userID {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// EnsureAnalytics implements Store.
func (s *InMemoryStore) EnsureAnalytics(ctx context.Context, userID string) (*UserAnalytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.analytics[userID]
	if !ok {
		a = &UserAnalytics{UserID: userID}
		s.analytics[userID] = a
	}
	return cloneAnalytics(a), nil
}

// UpdateStreaks implements Store.
func (s *InMemoryStore) UpdateStreaks(ctx context.Context, userID string, current, longest int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.analytics[userID]
	if !ok {
		a = &UserAnalytics{UserID: userID}
		s.analytics[userID] = a
	}
	a.CurrentStreak = current
	a.LongestStreak = longest
	return nil
}
