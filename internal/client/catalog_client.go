package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/resonance/api/internal/config"
	"github.com/resonance/api/internal/model"
)

// tokenSlack renews the access token this long before it expires
const tokenSlack = 30 * time.Second

// CatalogClient resolves suggested songs against the Spotify Web API
// using the client credentials grant
type CatalogClient struct {
	httpClient   *http.Client
	authURL      string
	apiURL       string
	clientID     string
	clientSecret string

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewCatalogClient creates a new catalog client
func NewCatalogClient(cfg *config.CatalogConfig) *CatalogClient {
	return &CatalogClient{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		authURL:      cfg.AuthURL,
		apiURL:       strings.TrimRight(cfg.APIURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
	}
}

// IsConfigured returns true if both credentials are set
func (c *CatalogClient) IsConfigured() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// Recommend looks up each suggestion and returns the matches found.
// Lookups that fail are logged and skipped; without credentials the
// result is empty.
func (c *CatalogClient) Recommend(ctx context.Context, suggestions []model.TrackSuggestion) []model.CatalogTrack {
	tracks := []model.CatalogTrack{}
	if !c.IsConfigured() {
		return tracks
	}

	for _, s := range suggestions {
		if s.Song == "" {
			continue
		}

		item, ok := c.search(ctx, fmt.Sprintf(`track:"%s" artist:"%s"`, s.Song, s.Artist))
		if !ok {
			item, ok = c.search(ctx, s.Song+" "+s.Artist)
		}
		if !ok {
			continue
		}

		var artists []string
		for _, a := range item.Get("artists.#.name").Array() {
			artists = append(artists, a.String())
		}

		track := model.CatalogTrack{
			Name:   item.Get("name").String(),
			Artist: strings.Join(artists, ", "),
			Album:  item.Get("album.name").String(),
			URL:    item.Get("external_urls.spotify").String(),
			URI:    item.Get("uri").String(),
			Genre:  s.Genre,
			Reason: s.Reason,
		}
		if art := item.Get("album.images.0.url"); art.Exists() {
			u := art.String()
			track.AlbumArt = &u
		}
		// The artist's own genres beat the model's label
		if id := item.Get("artists.0.id").String(); id != "" {
			if genre := c.artistGenre(ctx, id); genre != "" {
				track.Genre = genre
			}
		}
		tracks = append(tracks, track)
	}
	return tracks
}

func (c *CatalogClient) search(ctx context.Context, query string) (gjson.Result, bool) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	q.Set("limit", "1")

	body, err := c.get(ctx, "/search?"+q.Encode())
	if err != nil {
		log.Printf("[catalog] search failed for %q: %v", query, err)
		return gjson.Result{}, false
	}
	item := gjson.GetBytes(body, "tracks.items.0")
	return item, item.Exists()
}

func (c *CatalogClient) artistGenre(ctx context.Context, id string) string {
	body, err := c.get(ctx, "/artists/"+url.PathEscape(id))
	if err != nil {
		log.Printf("[catalog] artist lookup failed for %s: %v", id, err)
		return ""
	}
	return gjson.GetBytes(body, "genres.0").String()
}

func (c *CatalogClient) get(ctx context.Context, path string) ([]byte, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.do(req)
}

// accessToken returns a cached token, fetching a new one when it is
// missing or about to expire
func (c *CatalogClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expires) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", fmt.Errorf("no access token in response")
	}

	ttl := time.Duration(gjson.GetBytes(body, "expires_in").Int()) * time.Second
	c.token = token
	c.expires = time.Now().Add(ttl - tokenSlack)
	return token, nil
}

func (c *CatalogClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
