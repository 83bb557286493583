package client

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/resonance/api/internal/config"
	"github.com/resonance/api/internal/model"
)

type stubRunner struct {
	specs  []ExecSpec
	result ExecResult
}

func (s *stubRunner) Run(_ context.Context, spec ExecSpec) ExecResult {
	s.specs = append(s.specs, spec)
	return s.result
}

func TestParseProbeOutput(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		wantMs   int64
		hasAudio bool
		wantErr  bool
	}{
		{
			name:     "video with audio",
			out:      `{"streams":[{"codec_type":"video"},{"codec_type":"audio"}],"format":{"duration":"12.3456"}}`,
			wantMs:   12345,
			hasAudio: true,
		},
		{
			name:   "silent video",
			out:    `{"streams":[{"codec_type":"video"}],"format":{"duration":"60.000000"}}`,
			wantMs: 60000,
		},
		{
			name:   "no streams key",
			out:    `{"format":{"duration":"1.5"}}`,
			wantMs: 1500,
		},
		{name: "missing duration", out: `{"streams":[],"format":{}}`, wantErr: true},
		{name: "non numeric duration", out: `{"format":{"duration":"N/A"}}`, wantErr: true},
		{name: "not json", out: `garbage`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := parseProbeOutput(tt.out)
			if tt.wantErr {
				var te *model.ToolError
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.As(err, &te) || te.Kind != model.ToolKindProbe {
					t.Errorf("error = %v, want probe error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.DurationMs != tt.wantMs || info.HasAudio != tt.hasAudio {
				t.Errorf("info = %+v, want {%d %v}", info, tt.wantMs, tt.hasAudio)
			}
		})
	}
}

func TestProbeArgsAndFailure(t *testing.T) {
	runner := &stubRunner{result: ExecResult{ExitCode: 1, StderrTail: "moov atom not found"}}
	probe := NewFfprobeClient(runner, &config.ToolsConfig{FfprobePath: "ffprobe"})

	_, err := probe.Probe(context.Background(), "/tmp/in.mp4")
	if err == nil {
		t.Fatal("expected probe error on non-zero exit")
	}
	if model.PublicMessage(err) != "Could not read media" {
		t.Errorf("public message = %q", model.PublicMessage(err))
	}

	want := []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", "/tmp/in.mp4"}
	got := runner.specs[0].Args
	if len(got) != len(want) {
		t.Fatalf("args = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestProbeParsesOutputBeyondTail(t *testing.T) {
	// Many tagged streams push the document well past the tail limit
	var b strings.Builder
	b.WriteString(`{"streams":[{"codec_type":"video"},{"codec_type":"audio"}`)
	for b.Len() < 3*tailLimit {
		b.WriteString(`,{"codec_type":"data","tags":{"comment":"` + strings.Repeat("x", 512) + `"}}`)
	}
	b.WriteString(`],"format":{"duration":"12.5"}}`)
	out := b.String()

	runner := &stubRunner{result: ExecResult{Stdout: out, StdoutTail: out[len(out)-tailLimit:]}}
	probe := NewFfprobeClient(runner, &config.ToolsConfig{FfprobePath: "ffprobe"})

	info, err := probe.Probe(context.Background(), "/tmp/in.mp4")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.DurationMs != 12500 || !info.HasAudio {
		t.Errorf("info = %+v", info)
	}
	if !runner.specs[0].CaptureStdout {
		t.Error("probe should request the full stdout")
	}
}
