package service

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/storage"
)

// UploadService stores and removes source videos
type UploadService struct {
	store *storage.CacheStore
}

func NewUploadService(store *storage.CacheStore) *UploadService {
	return &UploadService{store: store}
}

// SaveVideo copies an uploaded video into the cache under a fresh id
func (s *UploadService) SaveVideo(src io.Reader) (*model.SubmitVideoResponse, error) {
	id, f, err := s.store.Create(model.AssetKindVideo)
	if err != nil {
		return nil, err
	}

	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		s.store.Delete(model.AssetKindVideo, id)
		return nil, fmt.Errorf("failed to write video: %w", err)
	}
	if err := f.Close(); err != nil {
		s.store.Delete(model.AssetKindVideo, id)
		return nil, fmt.Errorf("failed to write video: %w", err)
	}

	log.Printf("[upload] stored video %s", id)
	return &model.SubmitVideoResponse{VideoID: id}, nil
}

// SaveTemp stores an upload that only lives for one job. The returned
// cleanup removes it.
func (s *UploadService) SaveTemp(src io.Reader) (model.VideoAsset, func(), error) {
	res, err := s.SaveVideo(src)
	if err != nil {
		return model.VideoAsset{}, func() {}, err
	}
	path, _ := s.store.Path(model.AssetKindVideo, res.VideoID)
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("[upload] failed to remove temp video %s: %v", res.VideoID, err)
		}
	}
	return model.VideoAsset{ID: res.VideoID, Path: path}, cleanup, nil
}

// DeleteVideo removes a source video. Deleting an absent video is not an
// error.
func (s *UploadService) DeleteVideo(id string) error {
	if err := storage.ValidateID(id); err != nil {
		return err
	}
	removed, err := s.store.Delete(model.AssetKindVideo, id)
	if err != nil {
		return err
	}
	if removed {
		log.Printf("[upload] deleted video %s", id)
	}
	return nil
}
