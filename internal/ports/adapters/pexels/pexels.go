package pexels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/forPelevin/scenecut/internal/domain/rendition"
	"github.com/forPelevin/scenecut/internal/domain/rotation"
	"github.com/forPelevin/scenecut/internal/platform/redact"
	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/types"
)

const (
	defaultBaseURL  = "https://api.pexels.com"
	searchTimeout   = 30 * time.Second
	defaultPageSize = 15
	maxPageSize     = 80
)

type Client struct {
	keys    *rotation.KeyPool
	baseURL string
	client  *http.Client
}

func New(keys *rotation.KeyPool, baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{keys: keys, baseURL: baseURL, client: &http.Client{}}
}

func (c *Client) Name() types.Source { return types.SourcePexels }

func (c *Client) Ready() bool { return c.keys.Ready() }

type searchResponse struct {
	Videos []video `json:"videos"`
}

type video struct {
	ID       int         `json:"id"`
	Width    int         `json:"width"`
	Height   int         `json:"height"`
	Duration float64     `json:"duration"`
	URL      string      `json:"url"`
	Image    string      `json:"image"`
	Tags     []string    `json:"tags"`
	Files    []videoFile `json:"video_files"`
}

type videoFile struct {
	Quality  string `json:"quality"`
	FileType string `json:"file_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Link     string `json:"link"`
}

func (c *Client) Search(ctx context.Context, q types.Query) ([]types.FootageResult, error) {
	key := c.keys.Next()
	if key == "" {
		return nil, types.NewError(types.KindProviderUnavailable, "search", string(types.SourcePexels), fmt.Errorf("no api key configured"))
	}

	params := url.Values{}
	params.Set("query", q.Text)
	params.Set("per_page", strconv.Itoa(pageSize(q.PageSize)))
	params.Set("page", strconv.Itoa(max(q.Page, 1)))
	if q.Orientation.Valid() {
		params.Set("orientation", string(q.Orientation))
	}

	reqCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/videos/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", key)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := reqCtx.Err(); ctxErr != nil {
			return nil, types.NewError(types.KindTimeout, "search", string(types.SourcePexels), ctxErr)
		}
		return nil, fmt.Errorf("pexels request: %s", redact.Secrets(err.Error(), key))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		body := redact.Truncate(redact.Secrets(string(rb), key), 300)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, types.NewError(types.KindProviderUnavailable, "search", string(types.SourcePexels), fmt.Errorf("status %d: %s", resp.StatusCode, body))
		}
		return nil, fmt.Errorf("pexels status %d: %s", resp.StatusCode, body)
	}

	var raw searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("pexels decode: %w", err)
	}
	return normalize(raw.Videos), nil
}

func normalize(videos []video) []types.FootageResult {
	out := make([]types.FootageResult, 0, len(videos))
	for _, v := range videos {
		mp4 := lo.Filter(v.Files, func(f videoFile, _ int) bool {
			return f.FileType == "" || f.FileType == "video/mp4"
		})
		files := lo.Map(mp4, func(f videoFile, _ int) rendition.File {
			return rendition.File{URL: f.Link, Width: f.Width, Height: f.Height}
		})
		best, ok := rendition.Choose(files)
		if !ok {
			continue
		}
		preview := smallest(files)
		r := types.FootageResult{
			ID:              strconv.Itoa(v.ID),
			Source:          types.SourcePexels,
			ThumbnailURL:    v.Image,
			PreviewURL:      preview.URL,
			DownloadURL:     best.URL,
			Width:           best.Width,
			Height:          best.Height,
			DurationSeconds: v.Duration,
			Title:           titleFromURL(v.URL),
			Tags:            v.Tags,
		}
		if r.Width == 0 || r.Height == 0 {
			r.Width, r.Height = v.Width, v.Height
		}
		out = append(out, r)
	}
	return out
}

func smallest(files []rendition.File) rendition.File {
	var s rendition.File
	for _, f := range files {
		if f.URL == "" {
			continue
		}
		if s.URL == "" || f.Width*f.Height < s.Width*s.Height {
			s = f
		}
	}
	return s
}

// titleFromURL turns ".../video/ocean-waves-at-dusk-1234/" into
// "ocean waves at dusk".
func titleFromURL(u string) string {
	slug := path.Base(strings.TrimRight(u, "/"))
	if slug == "." || slug == "/" {
		return ""
	}
	parts := strings.Split(slug, "-")
	if len(parts) > 1 {
		if _, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			parts = parts[:len(parts)-1]
		}
	}
	return strings.Join(parts, " ")
}

func pageSize(n int) int {
	switch {
	case n <= 0:
		return defaultPageSize
	case n > maxPageSize:
		return maxPageSize
	default:
		return n
	}
}

var _ ports.FootageProvider = (*Client)(nil)
