package service

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/storage"
)

// Encoder runs an ffmpeg invocation
type Encoder interface {
	Encode(ctx context.Context, args []string) error
}

// MixPlan is a fully resolved ffmpeg invocation
type MixPlan struct {
	FilterComplex string
	Args          []string
	OutputPath    string
}

// MixEngine overlays an instrumental onto a video's audio
type MixEngine struct {
	prober  MediaProber
	encoder Encoder
	store   *storage.CacheStore
	bitrate string
}

func NewMixEngine(prober MediaProber, encoder Encoder, store *storage.CacheStore, bitrate string) *MixEngine {
	if bitrate == "" {
		bitrate = "192k"
	}
	return &MixEngine{prober: prober, encoder: encoder, store: store, bitrate: bitrate}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// BuildMixPlan derives the filter graph and argument list for req against
// the probed video. The instrumental is trimmed to the video's length and
// the video stream is copied untouched.
func BuildMixPlan(req model.MixRequest, video model.MediaInfo, outputPath, bitrate string) MixPlan {
	startSec := float64(req.StartMs) / 1000
	durationSec := float64(video.DurationMs) / 1000

	music := fmt.Sprintf("[1:a]atrim=start=%s:duration=%s,asetpts=PTS-STARTPTS,volume=%s[ma]",
		formatNumber(startSec), formatNumber(durationSec), formatNumber(req.MusicVolume))

	var filter string
	if video.HasAudio && req.VideoVolume > 0 {
		filter = fmt.Sprintf("[0:a]volume=%s[va]; %s; [va][ma]amix=inputs=2:duration=first:normalize=0[aout]",
			formatNumber(req.VideoVolume), music)
	} else {
		filter = music + "; [ma]anull[aout]"
	}

	args := []string{
		"-y",
		"-i", req.Video.Path,
		"-i", req.Audio.Path,
		"-filter_complex", filter,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", bitrate,
		"-movflags", "+faststart",
		"-shortest",
		outputPath,
	}
	return MixPlan{FilterComplex: filter, Args: args, OutputPath: outputPath}
}

// Mix probes the video, encodes the export and returns the new artifact.
// No input file is modified.
func (m *MixEngine) Mix(ctx context.Context, req model.MixRequest) (model.ExportArtifact, error) {
	info, err := m.prober.Probe(ctx, req.Video.Path)
	if err != nil {
		return model.ExportArtifact{}, err
	}

	id := storage.NewID()
	out, err := m.store.Path(model.AssetKindExport, id)
	if err != nil {
		return model.ExportArtifact{}, err
	}

	if err := m.store.Seal(model.AssetKindExport, id); err != nil {
		return model.ExportArtifact{}, err
	}

	plan := BuildMixPlan(req, info, out, m.bitrate)
	log.Printf("[mix] video=%s audio=%s export=%s filter=%q", req.Video.ID, req.Audio.ID, id, plan.FilterComplex)

	if err := m.encoder.Encode(ctx, plan.Args); err != nil {
		if _, derr := m.store.Delete(model.AssetKindExport, id); derr != nil {
			log.Printf("[mix] failed to remove partial export %s: %v", id, derr)
		}
		return model.ExportArtifact{}, wrapToolError(err, model.ToolKindMix)
	}

	if ok, _ := m.store.Exists(model.AssetKindExport, id); !ok {
		m.store.Delete(model.AssetKindExport, id)
		return model.ExportArtifact{}, model.NewMixError("encoder produced no output", nil)
	}
	return model.ExportArtifact{ID: id, Path: out}, nil
}
