package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/storage"
)

// AudioDownloader fetches a remote media URL into a local mp3 at
// outputStem + ".mp3"
type AudioDownloader interface {
	Download(ctx context.Context, url, outputStem string) error
}

// MediaProber reads duration and stream layout of a local file
type MediaProber interface {
	Probe(ctx context.Context, path string) (model.MediaInfo, error)
}

// Fetcher downloads the winning candidate under a fresh identifier
type Fetcher struct {
	downloader AudioDownloader
	store      *storage.CacheStore
}

func NewFetcher(downloader AudioDownloader, store *storage.CacheStore) *Fetcher {
	return &Fetcher{downloader: downloader, store: store}
}

// ResolveURL prefers the entry's own http(s) link and otherwise builds a
// watch URL from the source id
func ResolveURL(entry model.CandidateEntry) string {
	if strings.HasPrefix(entry.URL, "http") {
		return entry.URL
	}
	return "https://www.youtube.com/watch?v=" + entry.SourceID
}

// Fetch downloads entry and returns the fresh asset. Partial outputs are
// removed when the download fails.
func (f *Fetcher) Fetch(ctx context.Context, entry model.CandidateEntry) (model.AudioAsset, error) {
	id := storage.NewID()
	path, err := f.store.Path(model.AssetKindInstrumental, id)
	if err != nil {
		return model.AudioAsset{}, err
	}
	stem := strings.TrimSuffix(path, ".mp3")

	url := ResolveURL(entry)
	log.Printf("[fetch] downloading %s as %s", url, id)
	if err := f.downloader.Download(ctx, url, stem); err != nil {
		f.store.RemovePartials(model.AssetKindInstrumental, id)
		return model.AudioAsset{}, wrapToolError(err, model.ToolKindDownload)
	}

	ok, err := f.store.Exists(model.AssetKindInstrumental, id)
	if err != nil || !ok {
		f.store.RemovePartials(model.AssetKindInstrumental, id)
		return model.AudioAsset{}, model.NewDownloadError("download succeeded but mp3 file not found", err)
	}

	return model.AudioAsset{ID: id, Path: path, Origin: model.AssetOriginFresh}, nil
}

// wrapToolError tags err with kind unless it already carries it
func wrapToolError(err error, kind model.ToolKind) error {
	var te *model.ToolError
	if errors.As(err, &te) && te.Kind == kind {
		return err
	}
	return &model.ToolError{Kind: kind, Err: err}
}
