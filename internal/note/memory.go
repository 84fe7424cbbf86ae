package note

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studyplus/tracker/internal/video"
)

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	notes map[string]*Note
	now   func() time.Time
}

// NewInMemoryRepository creates an empty repository. Notes are dropped when
// their video is deleted from videos.
func NewInMemoryRepository(videos *video.InMemoryRepository) *InMemoryRepository {
	r := &InMemoryRepository{
		notes: make(map[string]*Note),
		now:   time.Now,
	}
	if videos != nil {
		videos.OnDelete(r.dropVideo)
	}
	return r
}

func (r *InMemoryRepository) dropVideo(videoID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, n := range r.notes {
		if n.VideoID == videoID {
			delete(r.notes, id)
		}
	}
}

func clone(n *Note) *Note {
	c := *n
	return &c
}

// Create implements Repository.
func (r *InMemoryRepository) Create(ctx context.Context, n *Note) error {
	if n.Timestamp < 0 {
		return ErrInvalidTimestamp
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n.ID = uuid.New().String()
	n.CreatedAt = now
	n.UpdatedAt = now
	r.notes[n.ID] = clone(n)
	return nil
}

// GetByID implements Repository.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.notes[id]
	if !ok {
		return nil, ErrNoteNotFound
	}
	return clone(n), nil
}

// List implements Repository.
func (r *InMemoryRepository) List(ctx context.Context, userID, videoID string) ([]*Note, error) {
	r.mu.RLock()
	out := make([]*Note, 0)
	for _, n := range r.notes {
		if n.UserID == userID && (videoID == "" || n.VideoID == videoID) {
			out = append(out, clone(n))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListByVideos implements Repository.
func (r *InMemoryRepository) ListByVideos(ctx context.Context, videoIDs []string) (map[string][]*Note, error) {
	want := make(map[string]bool, len(videoIDs))
	for _, id := range videoIDs {
		want[id] = true
	}

	r.mu.RLock()
	out := make(map[string][]*Note)
	for _, n := range r.notes {
		if want[n.VideoID] {
			out[n.VideoID] = append(out[n.VideoID], clone(n))
		}
	}
	r.mu.RUnlock()

	for _, notes := range out {
		sort.Slice(notes, func(i, j int) bool {
			if notes[i].Timestamp != notes[j].Timestamp {
				return notes[i].Timestamp < notes[j].Timestamp
			}
			return notes[i].CreatedAt.Before(notes[j].CreatedAt)
		})
	}
	return out, nil
}

// UpdateContent implements Repository.
func (r *InMemoryRepository) UpdateContent(ctx context.Context, id, content string) (*Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notes[id]
	if !ok {
		return nil, ErrNoteNotFound
	}
	n.Content = content
	n.UpdatedAt = r.now()
	return clone(n), nil
}

// Delete implements Repository.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.notes[id]; !ok {
		return ErrNoteNotFound
	}
	delete(r.notes, id)
	return nil
}
