package library

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/studyplus/tracker/internal/playlist"
	"github.com/studyplus/tracker/internal/video"
	"github.com/studyplus/tracker/internal/youtube"
)

// fakeSource serves metadata from maps.
type fakeSource struct {
	videos       map[string]youtube.Video
	playlists    map[string][]youtube.PlaylistItem
	getVideosErr error
	calls        [][]string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		videos:    make(map[string]youtube.Video),
		playlists: make(map[string][]youtube.PlaylistItem),
	}
}

func (f *fakeSource) GetVideo(ctx context.Context, id string) (*youtube.Video, error) {
	v, ok := f.videos[id]
	if !ok {
		return nil, youtube.ErrNotFound
	}
	return &v, nil
}

func (f *fakeSource) GetVideos(ctx context.Context, ids []string) ([]youtube.Video, error) {
	f.calls = append(f.calls, ids)
	if f.getVideosErr != nil {
		return nil, f.getVideosErr
	}
	var out []youtube.Video
	for _, id := range ids {
		if v, ok := f.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeSource) PlaylistItems(ctx context.Context, id string, maxPages int) ([]youtube.PlaylistItem, error) {
	items, ok := f.playlists[id]
	if !ok {
		return nil, youtube.ErrNotFound
	}
	return items, nil
}

type fixture struct {
	videos    *video.InMemoryRepository
	playlists *playlist.InMemoryRepository
	source    *fakeSource
	importer  *Importer
}

func newFixture() *fixture {
	videos := video.NewInMemoryRepository()
	playlists := playlist.NewInMemoryRepository(videos)
	source := newFakeSource()
	clock := func() time.Time { return time.Date(2024, 3, 7, 10, 0, 0, 0, time.UTC) }
	return &fixture{
		videos:    videos,
		playlists: playlists,
		source:    source,
		importer:  NewImporter(videos, playlists, source, WithClock(clock)),
	}
}

// ytID returns a distinct 11-character video ID.
func ytID(n int) string {
	return fmt.Sprintf("vid%08d", n)
}

func TestAddByURL(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.source.videos["dQw4w9WgXcQ"] = youtube.Video{
		ID: "dQw4w9WgXcQ", Title: "Lecture 1", Channel: "MIT OpenCourseWare", Duration: 2940,
	}

	v, created, err := f.importer.AddByURL(ctx, "u1", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42")
	if err != nil {
		t.Fatalf("AddByURL() error = %v", err)
	}
	if !created || v.ID == "" || v.Title != "Lecture 1" || v.Duration != 2940 || !v.InLibrary {
		t.Errorf("unexpected video: created=%v %+v", created, v)
	}

	if _, _, err := f.importer.AddByURL(ctx, "u1", "https://youtu.be/dQw4w9WgXcQ"); !errors.Is(err, ErrAlreadyAdded) {
		t.Errorf("expected ErrAlreadyAdded, got %v", err)
	}

	// Another user gets their own copy.
	other, created, err := f.importer.AddByURL(ctx, "u2", "dQw4w9WgXcQ")
	if err != nil || !created || other.ID == v.ID {
		t.Errorf("expected a separate video for u2, got %+v created=%v err=%v", other, created, err)
	}
}

func TestAddByURL_RestoresClearedVideo(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.source.videos["dQw4w9WgXcQ"] = youtube.Video{ID: "dQw4w9WgXcQ", Title: "Lecture 1"}

	first, _, err := f.importer.AddByURL(ctx, "u1", "dQw4w9WgXcQ")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.videos.ClearLibrary(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	delete(f.source.videos, "dQw4w9WgXcQ")

	restored, created, err := f.importer.AddByURL(ctx, "u1", "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("AddByURL() error = %v", err)
	}
	if created || restored.ID != first.ID || !restored.InLibrary {
		t.Errorf("expected the cleared video back in the library, got %+v created=%v", restored, created)
	}
}

func TestAddByURL_Errors(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name string
		url  string
		want error
	}{
		{"not a youtube link", "https://vimeo.com/123", ErrInvalidURL},
		{"empty", "", ErrInvalidURL},
		{"unknown video", "https://youtu.be/aaaaaaaaaaa", youtube.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.importer.AddByURL(context.Background(), "u1", tt.url)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestImportPlaylist(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	var items []youtube.PlaylistItem
	for n := 0; n < 60; n++ {
		id := ytID(n)
		items = append(items, youtube.PlaylistItem{VideoID: id, Title: "Part " + id})
		f.source.videos[id] = youtube.Video{ID: id, Duration: 600 + n}
	}
	// Deleted videos come back without an ID.
	items = append(items[:3], append([]youtube.PlaylistItem{{Title: "Deleted video"}}, items[3:]...)...)
	f.source.playlists["PLstudy"] = items

	// One video is already saved and must be reused.
	existing := &video.Video{UserID: "u1", YouTubeID: ytID(1), Title: "Saved earlier"}
	if _, err := f.videos.Save(ctx, existing); err != nil {
		t.Fatal(err)
	}

	res, err := f.importer.ImportPlaylist(ctx, "u1", "https://www.youtube.com/playlist?list=PLstudy", "")
	if err != nil {
		t.Fatalf("ImportPlaylist() error = %v", err)
	}
	if res.VideosAdded != MaxPlaylistVideos {
		t.Errorf("expected %d videos added, got %d", MaxPlaylistVideos, res.VideosAdded)
	}
	if res.Playlist.Name != "Playlist - 3/7/2024" {
		t.Errorf("unexpected default name %q", res.Playlist.Name)
	}
	if res.Playlist.Description != "Imported from YouTube - PLstudy" {
		t.Errorf("unexpected description %q", res.Playlist.Description)
	}

	playlistItems, err := f.playlists.ListItems(ctx, res.Playlist.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(playlistItems) != MaxPlaylistVideos {
		t.Fatalf("expected %d items, got %d", MaxPlaylistVideos, len(playlistItems))
	}
	for n, it := range playlistItems {
		if it.Position != n {
			t.Errorf("item %d has position %d", n, it.Position)
		}
	}
	if playlistItems[1].VideoID != existing.ID {
		t.Error("expected the saved video to be reused")
	}

	library, _ := f.videos.ListByUser(ctx, "u1")
	if len(library) != MaxPlaylistVideos {
		t.Errorf("expected %d videos, got %d", MaxPlaylistVideos, len(library))
	}
	v, _ := f.videos.FindByYouTubeID(ctx, "u1", ytID(10))
	if v.Duration != 610 {
		t.Errorf("expected duration 610, got %d", v.Duration)
	}
}

func TestImportPlaylist_NamedAndDuplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.source.playlists["PLdup"] = []youtube.PlaylistItem{
		{VideoID: ytID(1)}, {VideoID: ytID(2)}, {VideoID: ytID(1)},
	}

	res, err := f.importer.ImportPlaylist(ctx, "u1", "PLdup", "Calculus")
	if err != nil {
		t.Fatalf("ImportPlaylist() error = %v", err)
	}
	if res.Playlist.Name != "Calculus" || res.VideosAdded != 2 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestImportPlaylist_DurationFailureStillImports(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.source.playlists["PLx"] = []youtube.PlaylistItem{{VideoID: ytID(1)}}
	f.source.getVideosErr = youtube.ErrQuotaExceeded

	res, err := f.importer.ImportPlaylist(ctx, "u1", "PLx", "")
	if err != nil || res.VideosAdded != 1 {
		t.Fatalf("expected import to succeed without durations, got %+v, %v", res, err)
	}
	missing, _ := f.videos.ListMissingDuration(ctx, "u1", 0)
	if len(missing) != 1 {
		t.Errorf("expected 1 video pending a duration, got %d", len(missing))
	}
}

func TestImportPlaylist_Errors(t *testing.T) {
	f := newFixture()
	f.source.playlists["PLempty"] = nil
	f.source.playlists["PLgone"] = []youtube.PlaylistItem{{Title: "Private video"}}

	tests := []struct {
		name string
		url  string
		want error
	}{
		{"invalid", "https://example.com/a b", ErrInvalidURL},
		{"empty", "PLempty", ErrEmptyPlaylist},
		{"only unavailable videos", "PLgone", ErrEmptyPlaylist},
		{"missing playlist", "PLnothing", ErrEmptyPlaylist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.importer.ImportPlaylist(context.Background(), "u1", tt.url, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	playlists, _ := f.playlists.ListByUser(context.Background(), "u1")
	if len(playlists) != 0 {
		t.Errorf("failed imports must not create playlists, got %d", len(playlists))
	}
}

// TestImportPlaylist_YouTubeClient runs an import against a fake Data API.
func TestImportPlaylist_YouTubeClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/playlistItems":
			fmt.Fprint(w, `{"items":[
				{"snippet":{"title":"Intro","channelTitle":"Prof","thumbnails":{"high":{"url":"https://i.ytimg.com/a.jpg"}}},
				 "contentDetails":{"videoId":"aaaaaaaaaaa"}},
				{"snippet":{"title":"Limits","resourceId":{"videoId":"bbbbbbbbbbb"}},"contentDetails":{}}
			]}`)
		case "/videos":
			if got := r.URL.Query().Get("id"); got != "aaaaaaaaaaa,bbbbbbbbbbb" {
				t.Errorf("unexpected ids %q", got)
			}
			fmt.Fprint(w, `{"items":[
				{"id":"aaaaaaaaaaa","snippet":{"title":"Intro"},"contentDetails":{"duration":"PT10M"}},
				{"id":"bbbbbbbbbbb","snippet":{"title":"Limits"},"contentDetails":{"duration":"PT1H2S"}}
			]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	videos := video.NewInMemoryRepository()
	playlists := playlist.NewInMemoryRepository(videos)
	client := youtube.NewClient("test-key", youtube.WithBaseURL(server.URL))
	importer := NewImporter(videos, playlists, client)

	res, err := importer.ImportPlaylist(context.Background(), "u1", "https://www.youtube.com/watch?v=aaaaaaaaaaa&list=PLcalc", "Calc")
	if err != nil {
		t.Fatalf("ImportPlaylist() error = %v", err)
	}
	if res.VideosAdded != 2 {
		t.Fatalf("expected 2 videos, got %d", res.VideosAdded)
	}

	a, _ := videos.FindByYouTubeID(context.Background(), "u1", "aaaaaaaaaaa")
	b, _ := videos.FindByYouTubeID(context.Background(), "u1", "bbbbbbbbbbb")
	if a.Duration != 600 || b.Duration != 3602 {
		t.Errorf("unexpected durations %d, %d", a.Duration, b.Duration)
	}
	if !strings.HasSuffix(a.Thumbnail, "a.jpg") || a.Channel != "Prof" {
		t.Errorf("unexpected metadata %+v", a)
	}
}
