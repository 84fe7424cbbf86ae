// Package analytics derives streaks, weekly activity and channel breakdowns
// from a user's watch history.
package analytics

import (
	"sort"
	"time"

	"github.com/studyplus/tracker/internal/video"
	"github.com/studyplus/tracker/internal/watch"
)

// DayLayout is the format of day keys and DayActivity.Date.
const DayLayout = "2006-01-02"

const (
	// WeeklyWindow is the trailing window covered by WeeklyActivity.
	WeeklyWindow = 7 * 24 * time.Hour
	// DefaultTopCategories is how many channels GetAnalytics reports.
	DefaultTopCategories = 5
	// UnknownChannel groups videos without a channel name.
	UnknownChannel = "Unknown"
)

// Streaks holds consecutive-day counts.
type Streaks struct {
	Current int `json:"currentStreak"`
	Longest int `json:"longestStreak"`
}

// DayActivity is the watch time recorded on one UTC day.
type DayActivity struct {
	Date      string `json:"date"`
	WatchTime int64  `json:"watchTime"`
	Count     int    `json:"count"`
}

// Category is the study time spent on one channel.
type Category struct {
	Name      string `json:"name"`
	TotalTime int64  `json:"totalTime"`
	Count     int    `json:"count"`
}

func dayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ActiveDays returns the distinct UTC days on which entries were recorded.
func ActiveDays(entries []*watch.HistoryEntry) map[string]struct{} {
	days := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		days[dayKey(e.WatchedAt)] = struct{}{}
	}
	return days
}

// ComputeStreaks walks back one day at a time from today while days are active.
// With allowYesterday, an inactive today does not break a streak that reached
// yesterday. Longest is never less than Current.
func ComputeStreaks(activeDays map[string]struct{}, today time.Time, allowYesterday bool) Streaks {
	var s Streaks
	if len(activeDays) == 0 {
		return s
	}

	y, m, d := today.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if _, ok := activeDays[dayKey(day)]; !ok && allowYesterday {
		day = day.AddDate(0, 0, -1)
	}
	for {
		if _, ok := activeDays[dayKey(day)]; !ok {
			break
		}
		s.Current++
		day = day.AddDate(0, 0, -1)
	}

	sorted := make([]time.Time, 0, len(activeDays))
	for k := range activeDays {
		d, err := time.Parse(DayLayout, k)
		if err != nil {
			continue
		}
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	run := 0
	for i, d := range sorted {
		if i > 0 && d.Sub(sorted[i-1]) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		s.Longest = max(s.Longest, run)
	}
	s.Longest = max(s.Longest, s.Current)
	return s
}

// WeeklyActivity sums watch time per UTC day for entries in the trailing
// WeeklyWindow before now, oldest day first.
func WeeklyActivity(entries []*watch.HistoryEntry, now time.Time) []DayActivity {
	since := now.Add(-WeeklyWindow)
	byDay := make(map[string]*DayActivity)
	for _, e := range entries {
		if e.WatchedAt.Before(since) {
			continue
		}
		key := dayKey(e.WatchedAt)
		d, ok := byDay[key]
		if !ok {
			d = &DayActivity{Date: key}
			byDay[key] = d
		}
		d.WatchTime += e.WatchTime
		d.Count++
	}

	out := make([]DayActivity, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// TopCategories groups videos by channel and returns the n with the most
// total duration. Ties are broken by name.
func TopCategories(videos []*video.Video, n int) []Category {
	byName := make(map[string]*Category)
	for _, v := range videos {
		name := v.Channel
		if name == "" {
			name = UnknownChannel
		}
		c, ok := byName[name]
		if !ok {
			c = &Category{Name: name}
			byName[name] = c
		}
		c.TotalTime += int64(v.Duration)
		c.Count++
	}

	out := make([]Category, 0, len(byName))
	for _, c := range byName {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalTime != out[j].TotalTime {
			return out[i].TotalTime > out[j].TotalTime
		}
		return out[i].Name < out[j].Name
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
