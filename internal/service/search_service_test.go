package service

import (
	"context"
	"errors"
	"testing"

	"github.com/resonance/api/internal/config"
	"github.com/resonance/api/internal/model"
)

type fakeBackend struct {
	results map[string][]model.CandidateEntry
	errs    map[string]error
	queries []string
	limits  []int
}

func (f *fakeBackend) Search(_ context.Context, query string, limit int) ([]model.CandidateEntry, error) {
	f.queries = append(f.queries, query)
	f.limits = append(f.limits, limit)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

func newSearch(backend SearchBackend) *SearchService {
	return NewSearchService(backend, &config.SearchConfig{ResultsPerQuery: 5, ConfidenceThreshold: 15})
}

func TestQueryVariants(t *testing.T) {
	got := QueryVariants("Hello", "Adele")
	want := []string{
		"Hello Adele instrumental no vocals",
		"Hello Adele instrumental",
		"Hello Adele karaoke",
		"Hello instrumental",
	}
	if len(got) != len(want) {
		t.Fatalf("variants = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("variant %d = %q, want %q", i, got[i], want[i])
		}
	}

	noArtist := QueryVariants("Hello", "")
	if len(noArtist) != 3 {
		t.Errorf("empty artist should collapse duplicate variants, got %v", noArtist)
	}
}

func TestFindBestStopsAtThreshold(t *testing.T) {
	backend := &fakeBackend{results: map[string][]model.CandidateEntry{
		"Hello Adele instrumental no vocals": {
			{Title: "Hello Adele Instrumental", SourceID: "strong"},
		},
		"Hello Adele instrumental": {
			{Title: "Hello Adele Instrumental Karaoke", SourceID: "stronger"},
		},
	}}

	res, err := newSearch(backend).FindBest(context.Background(), "Hello", "Adele", nil)
	if err != nil {
		t.Fatalf("find best: %v", err)
	}
	if len(backend.queries) != 1 {
		t.Errorf("queries issued = %v, want 1", backend.queries)
	}
	if res.Best.Entry.SourceID != "strong" {
		t.Errorf("best = %s, want strong", res.Best.Entry.SourceID)
	}
	if backend.limits[0] != 5 {
		t.Errorf("limit = %d, want 5", backend.limits[0])
	}
}

func TestFindBestContinuesBelowThreshold(t *testing.T) {
	backend := &fakeBackend{results: map[string][]model.CandidateEntry{
		"Hello Adele instrumental no vocals": {
			{Title: "Hello (lyrics)", SourceID: "weak"},
		},
		"Hello Adele instrumental": {
			{Title: "Hello Instrumental", SourceID: "better"},
		},
	}}

	res, err := newSearch(backend).FindBest(context.Background(), "Hello", "Adele", nil)
	if err != nil {
		t.Fatalf("find best: %v", err)
	}
	if len(backend.queries) != 2 {
		t.Errorf("queries issued = %v, want 2", backend.queries)
	}
	if res.Best.Entry.SourceID != "better" {
		t.Errorf("best = %s, want better", res.Best.Entry.SourceID)
	}
}

func TestFindBestSwallowsVariantFailures(t *testing.T) {
	backend := &fakeBackend{
		errs: map[string]error{
			"Hello Adele instrumental no vocals": errors.New("network down"),
			"Hello Adele instrumental":           errors.New("network down"),
		},
		results: map[string][]model.CandidateEntry{
			"Hello Adele karaoke": {{Title: "Hello Karaoke", SourceID: "k"}},
		},
	}

	res, err := newSearch(backend).FindBest(context.Background(), "Hello", "Adele", nil)
	if err != nil {
		t.Fatalf("find best: %v", err)
	}
	if res.Best.Entry.SourceID != "k" {
		t.Errorf("best = %s, want k", res.Best.Entry.SourceID)
	}
	if len(res.Outcomes) != 3 || res.Outcomes[0].Err == nil {
		t.Errorf("outcomes = %+v", res.Outcomes)
	}
}

func TestFindBestNotFound(t *testing.T) {
	backend := &fakeBackend{
		errs: map[string]error{"Hello Adele karaoke": errors.New("boom")},
		results: map[string][]model.CandidateEntry{
			"Hello Adele instrumental": {{Title: "Goodbye Instrumental", SourceID: "x"}},
		},
	}

	_, err := newSearch(backend).FindBest(context.Background(), "Hello", "Adele", nil)
	if !model.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	if len(backend.queries) != 4 {
		t.Errorf("queries issued = %d, want all 4", len(backend.queries))
	}
}

func TestFindBestKeepsFirstOnTie(t *testing.T) {
	backend := &fakeBackend{results: map[string][]model.CandidateEntry{
		"Hello Adele instrumental no vocals": {
			{Title: "Hello", SourceID: "first"},
			{Title: "Hello", SourceID: "second"},
		},
	}}

	res, err := newSearch(backend).FindBest(context.Background(), "Hello", "Adele", nil)
	if err != nil {
		t.Fatalf("find best: %v", err)
	}
	if res.Best.Entry.SourceID != "first" {
		t.Errorf("best = %s, want first", res.Best.Entry.SourceID)
	}
}
