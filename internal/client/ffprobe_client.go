package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/resonance/api/internal/config"
	"github.com/resonance/api/internal/model"
)

// FfprobeClient reads container metadata
type FfprobeClient struct {
	runner Runner
	bin    string
}

func NewFfprobeClient(runner Runner, tools *config.ToolsConfig) *FfprobeClient {
	return &FfprobeClient{runner: runner, bin: tools.FfprobePath}
}

// Probe returns the duration of path and whether it carries an audio stream
func (c *FfprobeClient) Probe(ctx context.Context, path string) (model.MediaInfo, error) {
	res := c.runner.Run(ctx, ExecSpec{
		Bin:           c.bin,
		Args:          []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path},
		CaptureStdout: true,
	})
	if !res.OK() {
		return model.MediaInfo{}, model.NewProbeError(describe("ffprobe", res), res.Err)
	}
	return parseProbeOutput(res.Stdout)
}

func parseProbeOutput(out string) (model.MediaInfo, error) {
	if !gjson.Valid(out) {
		return model.MediaInfo{}, model.NewProbeError("ffprobe returned invalid json", nil)
	}
	doc := gjson.Parse(out)

	raw := doc.Get("format.duration")
	if !raw.Exists() {
		return model.MediaInfo{}, model.NewProbeError("no duration in ffprobe output", nil)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(raw.String()), 64)
	if err != nil || seconds < 0 {
		return model.MediaInfo{}, model.NewProbeError(fmt.Sprintf("invalid duration %q", raw.String()), err)
	}

	return model.MediaInfo{
		DurationMs: int64(seconds * 1000),
		HasAudio:   doc.Get(`streams.#(codec_type=="audio")`).Exists(),
	}, nil
}
