package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/samber/lo"

	"github.com/resonance/api/internal/config"
	"github.com/resonance/api/internal/model"
)

// SearchBackend queries the public video index
type SearchBackend interface {
	Search(ctx context.Context, query string, limit int) ([]model.CandidateEntry, error)
}

// SearchService runs the query-variant loop and keeps the best candidate
type SearchService struct {
	backend   SearchBackend
	limit     int
	threshold float64
}

// SearchResult is the winning candidate plus what every tried variant returned
type SearchResult struct {
	Best     model.ScoredCandidate
	Outcomes []model.VariantOutcome
}

// NewSearchService creates a new search service
func NewSearchService(backend SearchBackend, cfg *config.SearchConfig) *SearchService {
	limit := cfg.ResultsPerQuery
	if limit <= 0 {
		limit = 5
	}
	return &SearchService{
		backend:   backend,
		limit:     limit,
		threshold: cfg.ConfidenceThreshold,
	}
}

// QueryVariants lists the queries to try, most specific first
func QueryVariants(song, artist string) []string {
	song = strings.TrimSpace(song)
	artist = strings.TrimSpace(artist)
	variants := []string{
		song + " " + artist + " instrumental no vocals",
		song + " " + artist + " instrumental",
		song + " " + artist + " karaoke",
		song + " instrumental",
	}
	variants = lo.Map(variants, func(q string, _ int) string {
		return strings.Join(strings.Fields(q), " ")
	})
	return lo.Uniq(variants)
}

// FindBest searches until a candidate reaches the confidence threshold or
// the variants run out. A failing variant is logged and skipped.
func (s *SearchService) FindBest(ctx context.Context, song, artist string, durationMs *int64) (*SearchResult, error) {
	target := NewScoreTarget(song, artist, durationMs)
	result := &SearchResult{}
	found := false

	for _, query := range QueryVariants(song, artist) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("search interrupted: %w", err)
		}

		entries, err := s.backend.Search(ctx, query, s.limit)
		result.Outcomes = append(result.Outcomes, model.VariantOutcome{Query: query, Entries: entries, Err: err})
		if err != nil {
			log.Printf("[search] variant %q failed: %v", query, err)
			continue
		}

		for _, entry := range entries {
			score, ok := ScoreCandidate(entry, target)
			if !ok {
				continue
			}
			if !found || score > result.Best.Score {
				result.Best = model.ScoredCandidate{Entry: entry, Score: score}
				found = true
			}
		}

		if found && result.Best.Score >= s.threshold {
			break
		}
	}

	if !found {
		return nil, model.NewNotFoundError("No suitable instrumental found for '%s' by '%s'", song, artist)
	}
	log.Printf("[search] selected %q (%s) score=%.1f after %d variant(s)",
		result.Best.Entry.Title, result.Best.Entry.SourceID, result.Best.Score, len(result.Outcomes))
	return result, nil
}
