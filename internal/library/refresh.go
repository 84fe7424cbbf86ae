package library

import (
	"context"
	"fmt"

	"github.com/studyplus/tracker/internal/tracing"
	"github.com/studyplus/tracker/internal/video"
	"github.com/studyplus/tracker/internal/youtube"
)

// RefreshResult reports a duration refresh.
type RefreshResult struct {
	Updated int `json:"updated"`
	Total   int `json:"total"`
}

// RefreshDurations fills in the duration of the user's videos that have none.
func (i *Importer) RefreshDurations(ctx context.Context, userID string) (RefreshResult, error) {
	return i.refresh(ctx, userID, 0)
}

// RefreshAllDurations does the same across every user, at most limit videos.
func (i *Importer) RefreshAllDurations(ctx context.Context, limit int) (RefreshResult, error) {
	return i.refresh(ctx, "", limit)
}

func (i *Importer) refresh(ctx context.Context, userID string, limit int) (res RefreshResult, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "library.refresh_durations")
	defer func() { endSpan(err) }()

	pending, err := i.videos.ListMissingDuration(ctx, userID, limit)
	if err != nil {
		return res, fmt.Errorf("failed to list videos: %w", err)
	}
	res.Total = len(pending)

	// Several users can save the same YouTube video.
	byYouTubeID := make(map[string][]*video.Video)
	var ids []string
	for _, v := range pending {
		if _, seen := byYouTubeID[v.YouTubeID]; !seen {
			ids = append(ids, v.YouTubeID)
		}
		byYouTubeID[v.YouTubeID] = append(byYouTubeID[v.YouTubeID], v)
	}

	// Chunks are fetched one at a time so a failing chunk only skips its own videos.
	for start := 0; start < len(ids); start += youtube.MaxIDsPerRequest {
		chunk := ids[start:min(start+youtube.MaxIDsPerRequest, len(ids))]
		meta, err := i.source.GetVideos(ctx, chunk)
		if err != nil {
			i.logger.WarnContext(ctx, "failed to fetch video durations", "error", err, "videos", len(chunk))
			continue
		}
		for _, m := range meta {
			if m.Duration <= 0 {
				continue
			}
			for _, v := range byYouTubeID[m.ID] {
				if err := i.videos.SetDuration(ctx, v.ID, m.Duration); err != nil {
					return res, fmt.Errorf("failed to set duration: %w", err)
				}
				res.Updated++
			}
		}
	}
	return res, nil
}
