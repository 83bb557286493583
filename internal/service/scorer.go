package service

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/resonance/api/internal/model"
)

const (
	minTokenLen       = 3
	artistBonus       = 20.0
	positiveBonus     = 15.0
	negativePenalty   = 10.0
	durationWindowSec = 30.0
	durationWeight    = 1.5
)

var positiveKeywords = []string{
	"instrumental",
	"karaoke",
	"no vocals",
	"backing track",
	"minus one",
}

var negativeKeywords = []string{
	"lyrics",
	"lyric video",
	"official video",
	"official music video",
	"live",
	"cover",
	"remix",
	"reaction",
	"full album",
}

// ScoreTarget is what a candidate is scored against
type ScoreTarget struct {
	Song            string
	Artist          string
	DurationSeconds *float64
}

// NewScoreTarget converts an optional millisecond duration into a target
func NewScoreTarget(song, artist string, durationMs *int64) ScoreTarget {
	t := ScoreTarget{Song: song, Artist: artist}
	if durationMs != nil && *durationMs > 0 {
		secs := float64(*durationMs) / 1000
		t.DurationSeconds = &secs
	}
	return t
}

func significantTokens(s string) []string {
	return lo.Filter(strings.Fields(strings.ToLower(s)), func(w string, _ int) bool {
		return utf8.RuneCountInString(w) >= minTokenLen
	})
}

// ScoreCandidate rates how likely entry is an instrumental of the target.
// ok is false when the entry is disqualified.
func ScoreCandidate(entry model.CandidateEntry, target ScoreTarget) (score float64, ok bool) {
	title := strings.ToLower(entry.Title)

	if !lo.EveryBy(significantTokens(target.Song), func(w string) bool {
		return strings.Contains(title, w)
	}) {
		return 0, false
	}

	if lo.SomeBy(significantTokens(target.Artist), func(w string) bool {
		return strings.Contains(title, w)
	}) {
		score += artistBonus
	}

	contained := func(kw string) bool { return strings.Contains(title, kw) }
	score += positiveBonus * float64(lo.CountBy(positiveKeywords, contained))
	score -= negativePenalty * float64(lo.CountBy(negativeKeywords, contained))

	if target.DurationSeconds != nil && *target.DurationSeconds > 0 && entry.HasDuration() {
		diff := math.Abs(*entry.DurationSeconds - *target.DurationSeconds)
		score += math.Max(0, durationWindowSec-diff) * durationWeight
	}

	return score, true
}
