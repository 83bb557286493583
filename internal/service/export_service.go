package service

import (
	"context"
	"log"

	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/progress"
	"github.com/resonance/api/internal/storage"
)

const defaultVolume = 1.0

// ExportService mixes an instrumental into an uploaded video
type ExportService struct {
	instrumentals *InstrumentalService
	mixer         *MixEngine
	store         *storage.CacheStore
}

func NewExportService(instrumentals *InstrumentalService, mixer *MixEngine, store *storage.CacheStore) *ExportService {
	return &ExportService{
		instrumentals: instrumentals,
		mixer:         mixer,
		store:         store,
	}
}

// Export runs the export job. A cached instrumental is reused read-only;
// a freshly fetched one is deleted when the job ends, whatever the outcome.
func (s *ExportService) Export(ctx context.Context, em *progress.Emitter, req *model.ExportRequest) (*model.ExportResult, error) {
	videoPath, err := s.store.Path(model.AssetKindVideo, req.VideoID)
	if err != nil {
		return nil, err
	}
	if ok, _ := s.store.Exists(model.AssetKindVideo, req.VideoID); !ok {
		return nil, model.NewNotFoundError("Video not found")
	}

	audio, err := s.acquireAudio(ctx, em, req)
	if err != nil {
		return nil, err
	}
	if audio.Origin == model.AssetOriginFresh {
		defer func() {
			if _, err := s.store.Delete(model.AssetKindInstrumental, audio.ID); err != nil {
				log.Printf("[export] failed to remove fetched instrumental %s: %v", audio.ID, err)
			}
		}()
	}

	em.Advance(model.StageMixing, 70, "Mixing audio…")
	art, err := s.mixer.Mix(ctx, model.MixRequest{
		Video:       model.VideoAsset{ID: req.VideoID, Path: videoPath},
		Audio:       audio,
		StartMs:     req.StartMs,
		VideoVolume: volumeOrDefault(req.VideoVolume),
		MusicVolume: volumeOrDefault(req.MusicVolume),
	})
	if err != nil {
		return nil, err
	}

	return &model.ExportResult{ExportID: art.ID}, nil
}

func (s *ExportService) acquireAudio(ctx context.Context, em *progress.Emitter, req *model.ExportRequest) (model.AudioAsset, error) {
	if req.InstrumentalID != "" {
		path, err := s.store.Path(model.AssetKindInstrumental, req.InstrumentalID)
		if err != nil {
			return model.AudioAsset{}, err
		}
		if ok, _ := s.store.Exists(model.AssetKindInstrumental, req.InstrumentalID); ok {
			return model.AudioAsset{ID: req.InstrumentalID, Path: path, Origin: model.AssetOriginCached}, nil
		}
		log.Printf("[export] cached instrumental %s is gone, searching again", req.InstrumentalID)
	}
	return s.instrumentals.Acquire(ctx, em, req.Song, req.Artist, nil)
}

// Claim takes the export out of the store for its single download
func (s *ExportService) Claim(id string) (*storage.Claim, error) {
	return s.store.Claim(model.AssetKindExport, id)
}

func volumeOrDefault(v *float64) float64 {
	if v == nil {
		return defaultVolume
	}
	return *v
}
