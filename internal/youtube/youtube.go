// Package youtube provides a client for the YouTube Data API v3 and helpers
// for parsing YouTube links and durations.
package youtube

import (
	"regexp"
	"strconv"
)

// Video is the metadata kept for a YouTube video.
type Video struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
	Duration    int    `json:"duration"` // seconds
	Channel     string `json:"channel"`
}

// PlaylistItem is one entry of a YouTube playlist. Playlist items carry no duration.
type PlaylistItem struct {
	VideoID     string
	Title       string
	Description string
	Thumbnail   string
	Channel     string
}

var (
	videoIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/)([^&\n?#]+)`),
		regexp.MustCompile(`youtube\.com/embed/([^&\n?#]+)`),
		regexp.MustCompile(`youtube\.com/v/([^&\n?#]+)`),
	}
	bareVideoID = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

	playlistIDPattern = regexp.MustCompile(`[?&]list=([a-zA-Z0-9_-]+)`)
	barePlaylistID    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)
)

// ExtractVideoID returns the video ID from a watch, youtu.be, embed or /v/ link,
// or s itself if it is a bare 11 character ID. ok is false otherwise.
func ExtractVideoID(s string) (id string, ok bool) {
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(s); m != nil && m[1] != "" {
			return m[1], true
		}
	}
	if bareVideoID.MatchString(s) {
		return s, true
	}
	return "", false
}

// ExtractPlaylistID returns the list= parameter of a link, or s itself if it
// looks like a bare playlist ID.
func ExtractPlaylistID(s string) (id string, ok bool) {
	if m := playlistIDPattern.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if barePlaylistID.MatchString(s) {
		return s, true
	}
	return "", false
}

// ParseDuration converts an ISO 8601 duration such as PT1H2M3S to seconds.
// Unparseable input yields 0.
func ParseDuration(s string) int {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	total := 0
	for i, unit := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0
		}
		total += n * unit
	}
	return total
}
