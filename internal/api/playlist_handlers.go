package api

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/studyplus/tracker/internal/middleware"
	"github.com/studyplus/tracker/internal/playlist"
	"github.com/studyplus/tracker/internal/validate"
	"github.com/studyplus/tracker/internal/video"
)

// CreatePlaylistRequest is the body of POST /playlists.
type CreatePlaylistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdatePlaylistRequest is the body of PATCH /playlists/{id}.
type UpdatePlaylistRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// ImportPlaylistRequest is the body of POST /playlists/import.
type ImportPlaylistRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// AddPlaylistVideoRequest is the body of POST /playlists/{id}/videos.
type AddPlaylistVideoRequest struct {
	VideoID string `json:"videoId"`
}

// PlaylistView is a playlist with its items and their videos.
type PlaylistView struct {
	*playlist.Playlist
	Items []*playlist.Item `json:"items"`
	playlist.Stats
}

// PlaylistHandlers serves playlists and their items.
type PlaylistHandlers struct {
	playlists playlist.Repository
	videos    video.Repository
	importer  LibraryImporter
}

// NewPlaylistHandlers creates a new PlaylistHandlers instance.
func NewPlaylistHandlers(playlists playlist.Repository, videos video.Repository, importer LibraryImporter) *PlaylistHandlers {
	return &PlaylistHandlers{playlists: playlists, videos: videos, importer: importer}
}

func (h *PlaylistHandlers) owned(ctx context.Context, userID, id string) (*playlist.Playlist, error) {
	p, err := h.playlists.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, playlist.ErrPlaylistNotFound
	}
	return p, nil
}

// itemsWithVideos loads a playlist's items and attaches their videos.
func (h *PlaylistHandlers) itemsWithVideos(ctx context.Context, playlistID string) ([]*playlist.Item, []*video.Video, error) {
	items, err := h.playlists.ListItems(ctx, playlistID)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.VideoID
	}
	videos, err := h.videos.ListByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]*video.Video, len(videos))
	for _, v := range videos {
		byID[v.ID] = v
	}
	for _, it := range items {
		it.Video = byID[it.VideoID]
	}
	if items == nil {
		items = []*playlist.Item{}
	}
	return items, videos, nil
}

func (h *PlaylistHandlers) view(ctx context.Context, p *playlist.Playlist) (*PlaylistView, error) {
	items, videos, err := h.itemsWithVideos(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &PlaylistView{Playlist: p, Items: items, Stats: playlist.Summarize(videos)}, nil
}

// ListPlaylists handles GET /playlists, most recently updated first.
func (h *PlaylistHandlers) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	playlists, err := h.playlists.ListByUser(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	slices.SortStableFunc(playlists, func(a, b *playlist.Playlist) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})

	out := make([]*PlaylistView, 0, len(playlists))
	for _, p := range playlists {
		v, err := h.view(ctx, p)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		out = append(out, v)
	}
	writeJSON(w, r, http.StatusOK, out)
}

// CreatePlaylist handles POST /playlists.
func (h *PlaylistHandlers) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req CreatePlaylistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name, err := validate.PlaylistName(req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	desc, err := validate.Description(req.Description)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	p := &playlist.Playlist{
		UserID:      middleware.GetUserID(r.Context()),
		Name:        name,
		Description: desc,
	}
	if err := h.playlists.Create(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, p)
}

// ImportPlaylist handles POST /playlists/import.
func (h *PlaylistHandlers) ImportPlaylist(w http.ResponseWriter, r *http.Request) {
	var req ImportPlaylistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	source, err := validate.YouTubeSource(req.URL)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var name string
	if strings.TrimSpace(req.Name) != "" {
		if name, err = validate.PlaylistName(req.Name); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	res, err := h.importer.ImportPlaylist(r.Context(), middleware.GetUserID(r.Context()), source, name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, res)
}

// GetPlaylist handles GET /playlists/{id}.
func (h *PlaylistHandlers) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.owned(ctx, middleware.GetUserID(ctx), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	v, err := h.view(ctx, p)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}

// UpdatePlaylist handles PATCH /playlists/{id}.
func (h *PlaylistHandlers) UpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req UpdatePlaylistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var update playlist.Update
	if req.Name != nil {
		name, err := validate.PlaylistName(*req.Name)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		update.Name = &name
	}
	if req.Description != nil {
		desc, err := validate.Description(*req.Description)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		update.Description = &desc
	}

	ctx := r.Context()
	p, err := h.owned(ctx, middleware.GetUserID(ctx), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err = h.playlists.Update(ctx, p.ID, update)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// DeletePlaylist handles DELETE /playlists/{id}.
func (h *PlaylistHandlers) DeletePlaylist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.owned(ctx, middleware.GetUserID(ctx), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.playlists.Delete(ctx, p.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}

// ListPlaylistVideos handles GET /playlists/{id}/videos.
func (h *PlaylistHandlers) ListPlaylistVideos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.owned(ctx, middleware.GetUserID(ctx), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	items, _, err := h.itemsWithVideos(ctx, p.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, items)
}

// AddPlaylistVideo handles POST /playlists/{id}/videos.
func (h *PlaylistHandlers) AddPlaylistVideo(w http.ResponseWriter, r *http.Request) {
	var req AddPlaylistVideoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.VideoID) == "" {
		writeFailure(w, r, http.StatusBadRequest, ErrCodeValidation, "Missing required fields")
		return
	}

	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	p, err := h.owned(ctx, userID, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	v, err := ownedVideo(ctx, h.videos, userID, strings.TrimSpace(req.VideoID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	item, err := h.playlists.AddItem(ctx, p.ID, v.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	item.Video = v
	writeJSON(w, r, http.StatusCreated, item)
}

// RemovePlaylistVideo handles DELETE /playlists/{id}/videos?videoId=.
func (h *PlaylistHandlers) RemovePlaylistVideo(w http.ResponseWriter, r *http.Request) {
	videoID := r.URL.Query().Get("videoId")
	if videoID == "" {
		writeFailure(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Missing parameters")
		return
	}

	ctx := r.Context()
	p, err := h.owned(ctx, middleware.GetUserID(ctx), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.playlists.RemoveItem(ctx, p.ID, videoID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}
