package watch

import (
	"math"

	"github.com/studyplus/tracker/internal/video"
)

// MaxReportSeconds caps a single report at 12 hours.
const MaxReportSeconds = 12 * 60 * 60

// NormalizeSeconds validates a reported duration and converts it to whole
// seconds: clamped to MaxReportSeconds, rounded, at least 1.
func NormalizeSeconds(seconds float64) (int64, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds <= 0 {
		return 0, ErrInvalidInput
	}
	if seconds > MaxReportSeconds {
		seconds = MaxReportSeconds
	}
	n := int64(math.Round(seconds))
	if n < 1 {
		n = 1
	}
	return n, nil
}

// ComputeProgress returns the percentage of duration covered by totalWatch,
// capped at 100. Without a known duration the previous value is kept.
func ComputeProgress(totalWatch int64, duration, previous int) int {
	if duration <= 0 {
		return previous
	}
	p := int(math.Round(float64(totalWatch) / float64(duration) * 100))
	if p > 100 {
		p = 100
	}
	if p < 0 {
		p = 0
	}
	return p
}

// IsCompleted reports completion. Once completed, a video stays completed.
func IsCompleted(previouslyCompleted bool, progress int) bool {
	return previouslyCompleted || progress >= video.CompletionThreshold
}
