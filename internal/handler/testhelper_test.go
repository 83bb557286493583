package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/resonance/api/internal/config"
	"github.com/resonance/api/internal/handler"
	"github.com/resonance/api/internal/middleware"
	"github.com/resonance/api/internal/model"
	"github.com/resonance/api/internal/service"
	"github.com/resonance/api/internal/storage"
	"github.com/resonance/api/internal/worker"
)

// fakeSearch returns the same entries for every query
type fakeSearch struct {
	mu      sync.Mutex
	entries []model.CandidateEntry
	queries []string
}

func (f *fakeSearch) Search(ctx context.Context, query string, limit int) ([]model.CandidateEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.entries, nil
}

func (f *fakeSearch) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// fakeDownloader writes an mp3 next to the requested stem
type fakeDownloader struct{}

func (fakeDownloader) Download(ctx context.Context, url, outputStem string) error {
	return os.WriteFile(outputStem+".mp3", []byte("mp3data"), 0o644)
}

type fakeProber struct {
	info model.MediaInfo
}

func (f fakeProber) Probe(ctx context.Context, path string) (model.MediaInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return model.MediaInfo{}, model.NewProbeError("missing input", err)
	}
	return f.info, nil
}

// fakeEncoder writes the output file named by the last argument, or
// leaves a partial file and fails when err is set
type fakeEncoder struct {
	err error
}

func (f fakeEncoder) Encode(ctx context.Context, args []string) error {
	if f.err != nil {
		_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0o644)
		return model.NewMixError("encoder exited 1", f.err)
	}
	return os.WriteFile(args[len(args)-1], []byte("mp4data"), 0o644)
}

type fakeExtractor struct{}

func (fakeExtractor) ExtractSpeech(ctx context.Context, videoPath, wavPath string) error {
	return os.WriteFile(wavPath, []byte("wav"), 0o644)
}

type fakeTranscriber struct {
	text string
}

func (f fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (*model.Transcript, error) {
	d := 30.0
	return &model.Transcript{Text: f.text, Duration: &d}, nil
}

type fakeLLM struct {
	reply      string
	configured bool
}

func (f fakeLLM) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	return f.reply, nil
}

func (f fakeLLM) IsConfigured() bool {
	return f.configured
}

// fakeCatalog echoes suggestions back as catalog tracks
type fakeCatalog struct{}

func (fakeCatalog) Recommend(ctx context.Context, suggestions []model.TrackSuggestion) []model.CatalogTrack {
	tracks := []model.CatalogTrack{}
	for _, s := range suggestions {
		tracks = append(tracks, model.CatalogTrack{
			Name:   s.Song,
			Artist: s.Artist,
			URI:    "spotify:track:" + strings.ReplaceAll(strings.ToLower(s.Song), " ", "-"),
			Genre:  s.Genre,
			Reason: s.Reason,
		})
	}
	return tracks
}

const vibeReply = `Vibe read: Upbeat and chatty.
Walking on Sunshine — Katrina and the Waves — Pop — Bright energy
Lovely Day — Bill Withers — Soul — Warm and easy`

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	store     *storage.CacheStore
	uploadDir string
	exportDir string
	search    *fakeSearch
	runner    *worker.JobRunner
}

type appOptions struct {
	llm       fakeLLM
	encodeErr error
	noCatalog bool
}

// setupApp creates a Fiber app wired like main.go with fake media tools
func setupApp(t *testing.T, opts ...appOptions) *testApp {
	t.Helper()

	var opt appOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	root := t.TempDir()
	uploadDir := filepath.Join(root, "uploads")
	exportDir := filepath.Join(root, "exports")
	store, err := storage.NewCacheStore(uploadDir, exportDir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	search := &fakeSearch{entries: []model.CandidateEntry{
		{Title: "Yesterday - The Beatles (Instrumental)", SourceID: "abc123"},
	}}
	prober := fakeProber{info: model.MediaInfo{DurationMs: 180000, HasAudio: true}}

	validate := handler.NewValidator()

	// Services
	jobService := service.NewJobService(nil)
	searchService := service.NewSearchService(search, &config.SearchConfig{ResultsPerQuery: 5, ConfidenceThreshold: 15})
	fetcher := service.NewFetcher(fakeDownloader{}, store)
	instrumentalService := service.NewInstrumentalService(searchService, fetcher, prober, store)
	mixEngine := service.NewMixEngine(prober, fakeEncoder{err: opt.encodeErr}, store, "192k")
	exportService := service.NewExportService(instrumentalService, mixEngine, store)
	uploadService := service.NewUploadService(store)
	var catalog service.TrackRecommender = fakeCatalog{}
	if opt.noCatalog {
		catalog = nil
	}
	analysisService := service.NewAnalysisService(fakeExtractor{}, fakeTranscriber{text: "hello there everyone"}, opt.llm, catalog)

	runner := worker.NewJobRunner(&config.JobsConfig{MaxConcurrent: 2}, jobService.Sink)
	t.Cleanup(func() { _ = runner.Wait(context.Background()) })

	// Handlers
	uploadHandler := handler.NewUploadHandler(uploadService, validate)
	instrumentalHandler := handler.NewInstrumentalHandler(instrumentalService, runner, validate)
	exportHandler := handler.NewExportHandler(exportService, runner, validate)
	analyzeHandler := handler.NewAnalyzeHandler(analysisService, uploadService, runner, validate)
	jobsHandler := handler.NewJobsHandler(jobService)
	healthHandler := handler.NewHealthHandler(&config.ToolsConfig{YtdlpPath: "yt-dlp", FfmpegPath: "ffmpeg", FfprobePath: "ffprobe"}, nil)

	// Nil redis disables limiting
	rateLimiter := middleware.NewRateLimiter(nil)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/health", healthHandler.Check)

	api := app.Group("/api")

	api.Post("/videos", rateLimiter.UploadLimit(10000), uploadHandler.Submit)
	api.Delete("/videos/:videoId", uploadHandler.Delete)

	api.Post("/instrumentals/search", rateLimiter.SearchLimit(10000), instrumentalHandler.Search)
	api.Get("/instrumentals/:id", instrumentalHandler.Audio)

	api.Post("/exports", rateLimiter.ExportLimit(10000), exportHandler.Start)
	api.Get("/exports/:id", exportHandler.Download)

	api.Post("/analyze", rateLimiter.UploadLimit(10000), analyzeHandler.Analyze)
	api.Post("/analyze/reroll", analyzeHandler.Reroll)

	api.Get("/jobs/:jobId", jobsHandler.Status)

	return &testApp{
		app:       app,
		store:     store,
		uploadDir: uploadDir,
		exportDir: exportDir,
		search:    search,
		runner:    runner,
	}
}

// putFile creates a cached file of the given kind and returns its id
func (ta *testApp) putFile(t *testing.T, kind model.AssetKind, content string) string {
	t.Helper()
	id, f, err := ta.store.Create(kind)
	if err != nil {
		t.Fatalf("failed to create %s: %v", kind, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("failed to write %s: %v", kind, err)
	}
	return id
}

func (ta *testApp) exists(t *testing.T, kind model.AssetKind, id string) bool {
	t.Helper()
	ok, err := ta.store.Exists(kind, id)
	if err != nil {
		t.Fatalf("exists(%s, %s): %v", kind, id, err)
	}
	return ok
}

func countFiles(t *testing.T, dir, pattern string) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return len(matches)
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doMultipart posts content as the "video" field under filename
func doMultipart(t *testing.T, app *fiber.App, path, filename, content string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := writer.CreateFormFile("video", filename)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		_, _ = part.Write([]byte(content))
	} else {
		_ = writer.WriteField("title", "no file here")
	}
	writer.Close()

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// parseEvents splits a server-sent event body into its JSON payloads
func parseEvents(t *testing.T, resp *http.Response) []map[string]interface{} {
	t.Helper()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	body := readBody(t, resp)
	var events []map[string]interface{}
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("malformed event %q", block)
		}
		var ev map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(block, "data: ")), &ev); err != nil {
			t.Fatalf("failed to parse event %q: %v", block, err)
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		t.Fatal("stream carried no events")
	}
	return events
}

// lastEvent returns the terminal event of a stream
func lastEvent(events []map[string]interface{}) map[string]interface{} {
	return events[len(events)-1]
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body := readBody(t, resp)
		t.Fatalf("expected status %d, got %d\nbody: %s", expected, resp.StatusCode, body)
	}
}

// assertErrorCode checks the error envelope code.
func assertErrorCode(t *testing.T, body map[string]interface{}, code string) {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %q, got %v", code, errObj["code"])
	}
}

func jsonBody(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("jsonBody: %v", err))
	}
	return string(b)
}
