// Package library adds YouTube videos and playlists to a user's study library.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/studyplus/tracker/internal/playlist"
	"github.com/studyplus/tracker/internal/stats"
	"github.com/studyplus/tracker/internal/tracing"
	"github.com/studyplus/tracker/internal/video"
	"github.com/studyplus/tracker/internal/youtube"
)

var (
	// ErrInvalidURL is returned when no video or playlist ID can be extracted.
	ErrInvalidURL = errors.New("invalid youtube url")
	// ErrAlreadyAdded is returned when the video is already in the user's library.
	ErrAlreadyAdded = errors.New("video already added")
	// ErrEmptyPlaylist is returned when a playlist has no readable items.
	ErrEmptyPlaylist = errors.New("playlist is empty or not accessible")
)

// MaxPlaylistVideos is how many videos of an imported playlist are saved.
const MaxPlaylistVideos = 50

// playlistDateLayout formats the default playlist name.
const playlistDateLayout = "1/2/2006"

// Source reads video and playlist metadata. *youtube.Client implements it.
type Source interface {
	GetVideo(ctx context.Context, id string) (*youtube.Video, error)
	GetVideos(ctx context.Context, ids []string) ([]youtube.Video, error)
	PlaylistItems(ctx context.Context, playlistID string, maxPages int) ([]youtube.PlaylistItem, error)
}

// Importer writes YouTube content into the video and playlist stores.
type Importer struct {
	videos    video.Repository
	playlists playlist.Repository
	source    Source
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the logger used for import summaries.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) {
		i.logger = logger
	}
}

// WithClock overrides the clock used for default playlist names.
func WithClock(now func() time.Time) Option {
	return func(i *Importer) {
		i.now = now
	}
}

// NewImporter creates an Importer.
func NewImporter(videos video.Repository, playlists playlist.Repository, source Source, opts ...Option) *Importer {
	i := &Importer{
		videos:    videos,
		playlists: playlists,
		source:    source,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// AddByURL saves the video named by rawURL. A video the user cleared from the
// library is put back without refetching metadata.
func (i *Importer) AddByURL(ctx context.Context, userID, rawURL string) (v *video.Video, created bool, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "library.add_by_url")
	defer func() { endSpan(err) }()

	youtubeID, ok := youtube.ExtractVideoID(rawURL)
	if !ok {
		return nil, false, ErrInvalidURL
	}
	tracing.SetAttributes(ctx, attribute.String("youtube.video_id", youtubeID))

	existing, err := i.videos.FindByYouTubeID(ctx, userID, youtubeID)
	switch {
	case err == nil && existing.InLibrary:
		return nil, false, ErrAlreadyAdded
	case err == nil:
		if _, err := i.videos.Save(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("failed to restore video: %w", err)
		}
		return existing, false, nil
	case !errors.Is(err, video.ErrVideoNotFound):
		return nil, false, fmt.Errorf("failed to look up video: %w", err)
	}

	meta, err := i.source.GetVideo(ctx, youtubeID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch video metadata: %w", err)
	}

	v = &video.Video{
		UserID:      userID,
		YouTubeID:   meta.ID,
		Title:       meta.Title,
		Description: meta.Description,
		Thumbnail:   meta.Thumbnail,
		Channel:     meta.Channel,
		Duration:    meta.Duration,
	}
	created, err = i.videos.Save(ctx, v)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save video: %w", err)
	}
	return v, created, nil
}

// ImportResult is the outcome of ImportPlaylist.
type ImportResult struct {
	Playlist    *playlist.Playlist `json:"playlist"`
	VideosAdded int                `json:"videosAdded"`
}

// ImportPlaylist creates a playlist from a YouTube playlist. Up to
// MaxPlaylistVideos videos are saved, reusing ones the user already has.
// An empty name defaults to "Playlist - <date>".
func (i *Importer) ImportPlaylist(ctx context.Context, userID, rawURL, name string) (res *ImportResult, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "library.import_playlist")
	defer func() { endSpan(err) }()

	playlistID, ok := youtube.ExtractPlaylistID(rawURL)
	if !ok {
		return nil, ErrInvalidURL
	}
	tracing.SetAttributes(ctx, attribute.String("youtube.playlist_id", playlistID))

	items, err := i.source.PlaylistItems(ctx, playlistID, youtube.DefaultPlaylistPages)
	if errors.Is(err, youtube.ErrNotFound) {
		return nil, ErrEmptyPlaylist
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	items = playableItems(items)
	if len(items) == 0 {
		return nil, ErrEmptyPlaylist
	}
	if len(items) > MaxPlaylistVideos {
		items = items[:MaxPlaylistVideos]
	}

	durations := i.durations(ctx, items)

	if name == "" {
		name = "Playlist - " + i.now().Format(playlistDateLayout)
	}
	p := &playlist.Playlist{
		UserID:      userID,
		Name:        name,
		Description: "Imported from YouTube - " + playlistID,
	}
	if err := i.playlists.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	counts := stats.NewImportStats()
	for _, item := range items {
		v := &video.Video{
			UserID:      userID,
			YouTubeID:   item.VideoID,
			Title:       item.Title,
			Description: item.Description,
			Thumbnail:   item.Thumbnail,
			Channel:     item.Channel,
			Duration:    durations[item.VideoID],
		}
		created, err := i.videos.Save(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("failed to save video %s: %w", item.VideoID, err)
		}

		// Playlists may list a video twice; the second copy is dropped.
		if _, err := i.playlists.AddItem(ctx, p.ID, v.ID); err != nil {
			if errors.Is(err, playlist.ErrDuplicateItem) {
				counts.RecordSkip()
				continue
			}
			return nil, fmt.Errorf("failed to add playlist item: %w", err)
		}
		counts.RecordSave(created)
	}
	counts.LogSummary(i.logger, "playlist_import")

	return &ImportResult{Playlist: p, VideosAdded: int(counts.Saved())}, nil
}

// playableItems drops entries without a video ID (deleted or private videos).
func playableItems(items []youtube.PlaylistItem) []youtube.PlaylistItem {
	out := items[:0:0]
	for _, item := range items {
		if item.VideoID != "" {
			out = append(out, item)
		}
	}
	return out
}

// durations fetches video lengths. Failures leave durations at 0 for the
// refresh job to fill in later.
func (i *Importer) durations(ctx context.Context, items []youtube.PlaylistItem) map[string]int {
	ids := make([]string, len(items))
	for n, item := range items {
		ids[n] = item.VideoID
	}

	out := make(map[string]int, len(ids))
	meta, err := i.source.GetVideos(ctx, ids)
	if err != nil {
		i.logger.WarnContext(ctx, "failed to fetch playlist durations", "error", err)
		return out
	}
	for _, m := range meta {
		out[m.ID] = m.Duration
	}
	return out
}
