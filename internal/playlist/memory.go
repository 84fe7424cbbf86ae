package playlist

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studyplus/tracker/internal/video"
)

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu        sync.RWMutex
	playlists map[string]*Playlist
	items     map[string][]*Item // playlistID -> items by position
	now       func() time.Time
}

// NewInMemoryRepository creates an empty repository. Items are dropped when
// their video is deleted from videos.
func NewInMemoryRepository(videos *video.InMemoryRepository) *InMemoryRepository {
	r := &InMemoryRepository{
		playlists: make(map[string]*Playlist),
		items:     make(map[string][]*Item),
		now:       time.Now,
	}
	if videos != nil {
		videos.OnDelete(r.dropVideo)
	}
	return r
}

func (r *InMemoryRepository) dropVideo(videoID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, items := range r.items {
		r.items[id] = slices.DeleteFunc(items, func(it *Item) bool { return it.VideoID == videoID })
	}
}

func clonePlaylist(p *Playlist) *Playlist {
	c := *p
	return &c
}

func cloneItem(it *Item) *Item {
	c := *it
	c.Video = nil
	return &c
}

// Create implements Repository.
func (r *InMemoryRepository) Create(ctx context.Context, p *Playlist) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	p.ID = uuid.New().String()
	p.CreatedAt, p.UpdatedAt = now, now
	r.playlists[p.ID] = clonePlaylist(p)
	return nil
}

// GetByID implements Repository.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Playlist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.playlists[id]
	if !ok {
		return nil, ErrPlaylistNotFound
	}
	return clonePlaylist(p), nil
}

// ListByUser implements Repository.
func (r *InMemoryRepository) ListByUser(ctx context.Context, userID string) ([]*Playlist, error) {
	r.mu.RLock()
	out := make([]*Playlist, 0)
	for _, p := range r.playlists {
		if p.UserID == userID {
			out = append(out, clonePlaylist(p))
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

// Update implements Repository.
func (r *InMemoryRepository) Update(ctx context.Context, id string, u Update) (*Playlist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.playlists[id]
	if !ok {
		return nil, ErrPlaylistNotFound
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	p.UpdatedAt = r.now()
	return clonePlaylist(p), nil
}

// Delete implements Repository.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.playlists[id]; !ok {
		return ErrPlaylistNotFound
	}
	delete(r.playlists, id)
	delete(r.items, id)
	return nil
}

// ListItems implements Repository.
func (r *InMemoryRepository) ListItems(ctx context.Context, playlistID string) ([]*Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.playlists[playlistID]; !ok {
		return nil, ErrPlaylistNotFound
	}
	out := make([]*Item, 0, len(r.items[playlistID]))
	for _, it := range r.items[playlistID] {
		out = append(out, cloneItem(it))
	}
	return out, nil
}

// AddItem implements Repository.
func (r *InMemoryRepository) AddItem(ctx context.Context, playlistID, videoID string) (*Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.playlists[playlistID]
	if !ok {
		return nil, ErrPlaylistNotFound
	}
	items := r.items[playlistID]
	position := 0
	for _, it := range items {
		if it.VideoID == videoID {
			return nil, ErrDuplicateItem
		}
		position = max(position, it.Position+1)
	}

	now := r.now()
	it := &Item{PlaylistID: playlistID, VideoID: videoID, Position: position, AddedAt: now}
	r.items[playlistID] = append(items, it)
	p.UpdatedAt = now
	return cloneItem(it), nil
}

// RemoveItem implements Repository.
func (r *InMemoryRepository) RemoveItem(ctx context.Context, playlistID, videoID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.playlists[playlistID]
	if !ok {
		return ErrPlaylistNotFound
	}
	items := r.items[playlistID]
	idx := slices.IndexFunc(items, func(it *Item) bool { return it.VideoID == videoID })
	if idx < 0 {
		return ErrItemNotFound
	}
	r.items[playlistID] = slices.Delete(items, idx, idx+1)
	p.UpdatedAt = r.now()
	return nil
}
