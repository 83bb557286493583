package service

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/progress"
)

const maxSuggestions = 5

const vibeSystemPrompt = `You pick background music for short vertical videos. You'll receive a video transcript, its duration, word count and speaking pace.

Assess:
- Pacing: words per minute. Low reads as calm or atmospheric, mid as conversational, high as upbeat and confident.
- Mood: the emotional tone of the speaker.
- Content type: quick tip, story, hot take, list, personal share.

The track plays as an instrumental underneath the voice. It supports the speaker and never competes.

Rules:
Suggest 5 tracks ranked by fit.
Recognizable songs are welcome; their instrumentals connect with viewers.
Avoid generic stock or corporate library music.

Return your response in this exact format:
Vibe read: [One sentence on the video's energy and what music it needs.]

[Song] — [Artist] — [Genre] — [One line reason it fits]
[Song] — [Artist] — [Genre] — [One line reason it fits]
[Song] — [Artist] — [Genre] — [One line reason it fits]
[Song] — [Artist] — [Genre] — [One line reason it fits]
[Song] — [Artist] — [Genre] — [One line reason it fits]`

// Only em and en dashes separate fields; hyphens occur inside names.
var trackSeparator = regexp.MustCompile(`\s*[—–]\s*`)

// SpeechExtractor pulls the speech track out of a video
type SpeechExtractor interface {
	ExtractSpeech(ctx context.Context, videoPath, wavPath string) error
}

// Transcriber turns speech audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*model.Transcript, error)
}

// ChatCompleter is an LLM chat endpoint
type ChatCompleter interface {
	ChatCompletion(ctx context.Context, system, user string) (string, error)
	IsConfigured() bool
}

// TrackRecommender resolves suggestions against a music catalog
type TrackRecommender interface {
	Recommend(ctx context.Context, suggestions []model.TrackSuggestion) []model.CatalogTrack
}

// AnalysisService suggests tracks that fit a video's spoken content
type AnalysisService struct {
	extractor   SpeechExtractor
	transcriber Transcriber
	llm         ChatCompleter
	catalog     TrackRecommender
}

func NewAnalysisService(extractor SpeechExtractor, transcriber Transcriber, llm ChatCompleter, catalog TrackRecommender) *AnalysisService {
	return &AnalysisService{
		extractor:   extractor,
		transcriber: transcriber,
		llm:         llm,
		catalog:     catalog,
	}
}

// IsConfigured reports whether the language model backend is usable
func (s *AnalysisService) IsConfigured() bool {
	return s.llm != nil && s.llm.IsConfigured()
}

// Analyze runs the analyze job on an uploaded video
func (s *AnalysisService) Analyze(ctx context.Context, em *progress.Emitter, video model.VideoAsset) (*model.AnalyzeResult, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("analysis backend not configured")
	}

	em.Advance(model.StageExtracting, 8, "Extracting audio…")
	wav, err := os.CreateTemp("", "speech-*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp audio: %w", err)
	}
	wav.Close()
	defer os.Remove(wav.Name())

	if err := s.extractor.ExtractSpeech(ctx, video.Path, wav.Name()); err != nil {
		return nil, err
	}

	em.Advance(model.StageTranscribing, 25, "Transcribing speech…")
	transcript, err := s.transcriber.Transcribe(ctx, wav.Name())
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}
	text := strings.TrimSpace(transcript.Text)
	if text == "" {
		return nil, model.NewValidationError("", "No speech detected in the video")
	}

	em.Advance(model.StageAnalyzing, 45, "Analyzing vibe…")
	vibe, err := s.Suggest(ctx, text, transcript.Duration, nil)
	if err != nil {
		return nil, err
	}

	em.Advance(model.StageMatching, 78, "Finding matching songs…")
	return &model.AnalyzeResult{
		Transcript: text,
		VibeRead:   vibe.VibeRead,
		Tracks:     s.Recommend(ctx, vibe.Tracks),
		Duration:   transcript.Duration,
	}, nil
}

// Recommend resolves suggestions to catalog tracks. The list is empty,
// never nil, when no catalog is available.
func (s *AnalysisService) Recommend(ctx context.Context, suggestions []model.TrackSuggestion) []model.CatalogTrack {
	if s.catalog == nil {
		return []model.CatalogTrack{}
	}
	if tracks := s.catalog.Recommend(ctx, suggestions); tracks != nil {
		return tracks
	}
	return []model.CatalogTrack{}
}

// Suggest asks the model for tracks matching transcript, skipping any
// listed in exclude
func (s *AnalysisService) Suggest(ctx context.Context, transcript string, duration *float64, exclude []string) (*model.VibeAnalysis, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("analysis backend not configured")
	}
	raw, err := s.llm.ChatCompletion(ctx, vibeSystemPrompt, buildVibePrompt(transcript, duration, exclude))
	if err != nil {
		return nil, fmt.Errorf("vibe analysis failed: %w", err)
	}
	vibe := ParseVibeResponse(raw)
	return &vibe, nil
}

func buildVibePrompt(text string, duration *float64, exclude []string) string {
	words := len(strings.Fields(text))
	durationStr, wpm := "unknown", "unknown"
	if duration != nil && *duration > 0 {
		durationStr = fmt.Sprintf("%d seconds", int(*duration))
		wpm = fmt.Sprintf("%.0f", float64(words)/(*duration/60))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Video duration: %s\nWord count: %d\nEstimated WPM: %s\n\nTranscript:\n%s", durationStr, words, wpm, text)
	if len(exclude) > 0 {
		fmt.Fprintf(&b, "\n\nDo not suggest any of these previously shown tracks: %s", strings.Join(exclude, ", "))
	}
	return b.String()
}

// ParseVibeResponse reads the "Vibe read:" line and up to five
// dash-separated track lines
func ParseVibeResponse(raw string) model.VibeAnalysis {
	var out model.VibeAnalysis
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "vibe read:") {
			out.VibeRead = strings.TrimSpace(line[len("vibe read:"):])
			continue
		}

		parts := trackSeparator.Split(line, 4)
		if len(parts) < 2 || parts[0] == "" {
			continue
		}
		track := model.TrackSuggestion{
			Song:   strings.TrimSpace(parts[0]),
			Artist: strings.TrimSpace(parts[1]),
		}
		if len(parts) > 2 {
			track.Genre = strings.TrimSpace(parts[2])
		}
		if len(parts) > 3 {
			track.Reason = strings.TrimSpace(parts[3])
		}
		out.Tracks = append(out.Tracks, track)
	}
	if len(out.Tracks) > maxSuggestions {
		out.Tracks = out.Tracks[:maxSuggestions]
	}
	return out
}
