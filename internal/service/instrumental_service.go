package service

import (
	"context"
	"io/fs"
	"log"
	"os"

	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/progress"
	"github.com/resonance/api/internal/storage"
)

// InstrumentalService finds, fetches and serves cached instrumentals
type InstrumentalService struct {
	search  *SearchService
	fetcher *Fetcher
	prober  MediaProber
	store   *storage.CacheStore
}

func NewInstrumentalService(search *SearchService, fetcher *Fetcher, prober MediaProber, store *storage.CacheStore) *InstrumentalService {
	return &InstrumentalService{
		search:  search,
		fetcher: fetcher,
		prober:  prober,
		store:   store,
	}
}

// Acquire searches for the song and downloads the best candidate. The
// returned asset is fresh and owned by the caller.
func (s *InstrumentalService) Acquire(ctx context.Context, em *progress.Emitter, song, artist string, durationMs *int64) (model.AudioAsset, error) {
	em.Advance(model.StageSearching, 10, "Searching for instrumental…")
	res, err := s.search.FindBest(ctx, song, artist, durationMs)
	if err != nil {
		return model.AudioAsset{}, err
	}

	em.Advance(model.StageFetching, 35, "Downloading instrumental…")
	return s.fetcher.Fetch(ctx, res.Best.Entry)
}

// Find runs the find-instrumental job. The downloaded file stays in the
// cache under the returned id.
func (s *InstrumentalService) Find(ctx context.Context, em *progress.Emitter, req *model.FindInstrumentalRequest) (*model.FindInstrumentalResult, error) {
	asset, err := s.Acquire(ctx, em, req.Song, req.Artist, req.DurationMs)
	if err != nil {
		return nil, err
	}

	em.Advance(model.StageFetching, 85, "Reading duration…")
	info, err := s.prober.Probe(ctx, asset.Path)
	if err != nil {
		if _, derr := s.store.Delete(model.AssetKindInstrumental, asset.ID); derr != nil {
			log.Printf("[instrumental] failed to remove unreadable %s: %v", asset.ID, derr)
		}
		return nil, err
	}

	return &model.FindInstrumentalResult{
		InstrumentalID: asset.ID,
		DurationMs:     info.DurationMs,
	}, nil
}

// Open returns the cached instrumental for streaming
func (s *InstrumentalService) Open(id string) (*os.File, fs.FileInfo, error) {
	return s.store.Open(model.AssetKindInstrumental, id)
}
