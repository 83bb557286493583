package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"github.com/tidwall/gjson"

	"github.com/resonance/api/internal/config"
	"github.com/resonance/api/internal/model"
)

// searchTemplate prints one JSON object per search hit
const searchTemplate = "%(.{id,title,url,duration})j"

// YtdlpClient searches and downloads audio through yt-dlp
type YtdlpClient struct {
	executable string
	quality    string
}

// NewYtdlpClient creates a yt-dlp adapter
func NewYtdlpClient(tools *config.ToolsConfig, audio *config.AudioConfig) *YtdlpClient {
	return &YtdlpClient{
		executable: tools.YtdlpPath,
		quality:    audio.DownloadQuality,
	}
}

func (c *YtdlpClient) command() *ytdlp.Command {
	cmd := ytdlp.New()
	if c.executable != "" {
		cmd = cmd.SetExecutable(c.executable)
	}
	return cmd
}

// Search returns at most limit entries for query from the YouTube index
func (c *YtdlpClient) Search(ctx context.Context, query string, limit int) ([]model.CandidateEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	res, err := c.command().
		FlatPlaylist().
		Print(searchTemplate).
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		NoWarnings().
		IgnoreConfig().
		Run(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		detail := ""
		if res != nil {
			detail = strings.TrimSpace(res.Stderr)
		}
		return nil, &model.ToolError{Kind: model.ToolKindSearch, Detail: detail, Err: err}
	}
	return parseSearchOutput(res.Stdout), nil
}

// Download fetches the best audio of url and transcodes it to mp3 at
// outputStem + ".mp3".
func (c *YtdlpClient) Download(ctx context.Context, url, outputStem string) error {
	res, err := c.command().
		Format("bestaudio/best").
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality(c.quality).
		Output(outputStem + ".%(ext)s").
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		Quiet().
		Run(ctx, url)
	if err != nil {
		detail := ""
		if res != nil {
			detail = strings.TrimSpace(res.Stderr)
		}
		return model.NewDownloadError(detail, err)
	}
	return nil
}

// parseSearchOutput turns yt-dlp's line-delimited JSON into entries.
// Lines without both a title and an id are dropped.
func parseSearchOutput(stdout string) []model.CandidateEntry {
	var entries []model.CandidateEntry
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !gjson.Valid(line) {
			continue
		}
		doc := gjson.Parse(line)
		title := strings.TrimSpace(doc.Get("title").String())
		id := strings.TrimSpace(doc.Get("id").String())
		if title == "" || id == "" {
			continue
		}
		entry := model.CandidateEntry{
			Title:    title,
			SourceID: id,
			URL:      doc.Get("url").String(),
		}
		if d := doc.Get("duration"); d.Type == gjson.Number && d.Float() > 0 {
			secs := d.Float()
			entry.DurationSeconds = &secs
		}
		entries = append(entries, entry)
	}
	return entries
}
