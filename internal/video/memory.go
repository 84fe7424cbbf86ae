package video

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex; all reads return copies.
type InMemoryRepository struct {
	mu      sync.RWMutex
	videos  map[string]*Video // id -> video
	byOwner map[string]string // userID\x00youtubeID -> id
	now     func() time.Time

	hooksMu  sync.Mutex
	onDelete []func(videoID string)
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		videos:  make(map[string]*Video),
		byOwner: make(map[string]string),
		now:     time.Now,
	}
}

func ownerKey(userID, youtubeID string) string {
	return userID + "\x00" + youtubeID
}

func clone(v *Video) *Video {
	c := *v
	return &c
}

// Save implements Repository.
func (r *InMemoryRepository) Save(ctx context.Context, v *Video) (bool, error) {
	if v.YouTubeID == "" {
		return false, ErrMissingYouTubeID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if id, ok := r.byOwner[ownerKey(v.UserID, v.YouTubeID)]; ok {
		existing := r.videos[id]
		if !existing.InLibrary {
			existing.InLibrary = true
			existing.UpdatedAt = now
		}
		*v = *existing
		return false, nil
	}

	stored := clone(v)
	stored.ID = uuid.New().String()
	stored.InLibrary = true
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.videos[stored.ID] = stored
	r.byOwner[ownerKey(stored.UserID, stored.YouTubeID)] = stored.ID
	*v = *stored
	return true, nil
}

// GetByID implements Repository.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.videos[id]
	if !ok {
		return nil, ErrVideoNotFound
	}
	return clone(v), nil
}

// FindByYouTubeID implements Repository.
func (r *InMemoryRepository) FindByYouTubeID(ctx context.Context, userID, youtubeID string) (*Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOwner[ownerKey(userID, youtubeID)]
	if !ok {
		return nil, ErrVideoNotFound
	}
	return clone(r.videos[id]), nil
}

func (r *InMemoryRepository) filter(keep func(*Video) bool) []*Video {
	var out []*Video
	for _, v := range r.videos {
		if keep(v) {
			out = append(out, clone(v))
		}
	}
	return out
}

// ListLibrary implements Repository.
func (r *InMemoryRepository) ListLibrary(ctx context.Context, userID string) ([]*Video, error) {
	r.mu.RLock()
	out := r.filter(func(v *Video) bool { return v.UserID == userID && v.InLibrary })
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListByUser implements Repository.
func (r *InMemoryRepository) ListByUser(ctx context.Context, userID string) ([]*Video, error) {
	r.mu.RLock()
	out := r.filter(func(v *Video) bool { return v.UserID == userID })
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListByIDs implements Repository.
func (r *InMemoryRepository) ListByIDs(ctx context.Context, ids []string) ([]*Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := r.videos[id]; ok {
			out = append(out, clone(v))
		}
	}
	return out, nil
}

// ListMissingDuration implements Repository.
func (r *InMemoryRepository) ListMissingDuration(ctx context.Context, userID string, limit int) ([]*Video, error) {
	r.mu.RLock()
	out := r.filter(func(v *Video) bool {
		return v.Duration == 0 && (userID == "" || v.UserID == userID)
	})
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateProgress implements Repository.
func (r *InMemoryRepository) UpdateProgress(ctx context.Context, id string, u ProgressUpdate) (*Video, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.videos[id]
	if !ok {
		return nil, ErrVideoNotFound
	}
	if u.Progress != nil {
		v.Progress = *u.Progress
	}
	if u.Completed != nil {
		v.Completed = *u.Completed
	}
	if u.CompletionCounted != nil {
		v.CompletionCounted = *u.CompletionCounted
	}
	v.UpdatedAt = r.now()
	return clone(v), nil
}

// SetDuration implements Repository.
func (r *InMemoryRepository) SetDuration(ctx context.Context, id string, seconds int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.videos[id]
	if !ok {
		return ErrVideoNotFound
	}
	v.Duration = seconds
	v.UpdatedAt = r.now()
	return nil
}

// OnDelete registers fn to run after a video is deleted. In-memory stores holding
// rows that reference videos use it to mirror ON DELETE CASCADE.
func (r *InMemoryRepository) OnDelete(fn func(videoID string)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.onDelete = append(r.onDelete, fn)
}

// Delete implements Repository.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	v, ok := r.videos[id]
	if !ok {
		r.mu.Unlock()
		return ErrVideoNotFound
	}
	delete(r.byOwner, ownerKey(v.UserID, v.YouTubeID))
	delete(r.videos, id)
	r.mu.Unlock()

	r.hooksMu.Lock()
	hooks := append([]func(string){}, r.onDelete...)
	r.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(id)
	}
	return nil
}

// ClearLibrary implements Repository.
func (r *InMemoryRepository) ClearLibrary(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	now := r.now()
	for _, v := range r.videos {
		if v.UserID == userID && v.InLibrary {
			v.InLibrary = false
			v.UpdatedAt = now
			n++
		}
	}
	return n, nil
}
