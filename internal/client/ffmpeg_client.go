package client

import (
	"context"

	"github.com/resonance/api/internal/config"
	"github.com/resonance/api/internal/model"
)

// FfmpegClient runs encode jobs
type FfmpegClient struct {
	runner Runner
	bin    string
}

func NewFfmpegClient(runner Runner, tools *config.ToolsConfig) *FfmpegClient {
	return &FfmpegClient{runner: runner, bin: tools.FfmpegPath}
}

// Encode runs ffmpeg with args. A failed run is returned as a MixError.
func (c *FfmpegClient) Encode(ctx context.Context, args []string) error {
	res := c.runner.Run(ctx, ExecSpec{Bin: c.bin, Args: args})
	if !res.OK() {
		return model.NewMixError(describe("ffmpeg", res), res.Err)
	}
	return nil
}

// ExtractSpeech writes the audio track of videoPath as 16kHz mono PCM wav,
// the input format speech recognizers expect.
func (c *FfmpegClient) ExtractSpeech(ctx context.Context, videoPath, wavPath string) error {
	res := c.runner.Run(ctx, ExecSpec{
		Bin: c.bin,
		Args: []string{
			"-y", "-i", videoPath,
			"-vn", "-acodec", "pcm_s16le",
			"-ar", "16000", "-ac", "1",
			wavPath,
		},
	})
	if !res.OK() {
		return model.NewExtractError(describe("ffmpeg", res), res.Err)
	}
	return nil
}
