package pixabay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
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
	defaultBaseURL  = "https://pixabay.com"
	searchTimeout   = 30 * time.Second
	defaultPageSize = 15
	minPageSize     = 3
	maxPageSize     = 200
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

func (c *Client) Name() types.Source { return types.SourcePixabay }

func (c *Client) Ready() bool { return c.keys.Ready() }

type searchResponse struct {
	Hits []hit `json:"hits"`
}

type hit struct {
	ID       int    `json:"id"`
	PageURL  string `json:"pageURL"`
	Tags     string `json:"tags"`
	Duration int    `json:"duration"`
	Videos   struct {
		Large  file `json:"large"`
		Medium file `json:"medium"`
		Small  file `json:"small"`
		Tiny   file `json:"tiny"`
	} `json:"videos"`
}

type file struct {
	URL       string `json:"url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Size      int64  `json:"size"`
	Thumbnail string `json:"thumbnail"`
}

// Search queries the video endpoint. The API has no orientation filter for
// videos, so results are filtered by aspect ratio after normalization.
func (c *Client) Search(ctx context.Context, q types.Query) ([]types.FootageResult, error) {
	key := c.keys.Next()
	if key == "" {
		return nil, types.NewError(types.KindProviderUnavailable, "search", string(types.SourcePixabay), fmt.Errorf("no api key configured"))
	}

	params := url.Values{}
	params.Set("key", key)
	params.Set("q", q.Text)
	params.Set("per_page", strconv.Itoa(pageSize(q.PageSize)))
	params.Set("page", strconv.Itoa(max(q.Page, 1)))
	params.Set("safesearch", "true")

	reqCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/api/videos/?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := reqCtx.Err(); ctxErr != nil {
			return nil, types.NewError(types.KindTimeout, "search", string(types.SourcePixabay), ctxErr)
		}
		// url.Error embeds the request URL, key included.
		return nil, fmt.Errorf("pixabay request: %s", redact.Secrets(err.Error(), key))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		body := redact.Truncate(redact.Secrets(string(rb), key), 300)
		if isAuthFailure(resp.StatusCode, body) {
			return nil, types.NewError(types.KindProviderUnavailable, "search", string(types.SourcePixabay), fmt.Errorf("status %d: %s", resp.StatusCode, body))
		}
		return nil, fmt.Errorf("pixabay status %d: %s", resp.StatusCode, body)
	}

	var raw searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("pixabay decode: %w", err)
	}
	return lo.Filter(normalize(raw.Hits), func(r types.FootageResult, _ int) bool {
		return matchesOrientation(r, q.Orientation)
	}), nil
}

// isAuthFailure also covers the API's habit of answering a bad key with 400.
func isAuthFailure(status int, body string) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	case http.StatusBadRequest:
		return strings.Contains(strings.ToLower(body), "api key")
	}
	return false
}

func normalize(hits []hit) []types.FootageResult {
	out := make([]types.FootageResult, 0, len(hits))
	for _, h := range hits {
		all := []file{h.Videos.Large, h.Videos.Medium, h.Videos.Small, h.Videos.Tiny}
		best, ok := rendition.Choose(lo.Map(all, func(f file, _ int) rendition.File {
			return rendition.File{URL: f.URL, Width: f.Width, Height: f.Height}
		}))
		if !ok {
			continue
		}
		thumb := ""
		for _, f := range all {
			if f.Thumbnail != "" {
				thumb = f.Thumbnail
				break
			}
		}
		preview := h.Videos.Tiny.URL
		if preview == "" {
			preview = h.Videos.Small.URL
		}
		out = append(out, types.FootageResult{
			ID:              strconv.Itoa(h.ID),
			Source:          types.SourcePixabay,
			ThumbnailURL:    thumb,
			PreviewURL:      preview,
			DownloadURL:     best.URL,
			Width:           best.Width,
			Height:          best.Height,
			DurationSeconds: float64(h.Duration),
			Title:           h.Tags,
			Tags:            splitTags(h.Tags),
		})
	}
	return out
}

func matchesOrientation(r types.FootageResult, o types.Orientation) bool {
	if r.Width == 0 || r.Height == 0 {
		return true
	}
	switch o {
	case types.Landscape:
		return r.Width >= r.Height
	case types.Portrait:
		return r.Height > r.Width
	default:
		return true
	}
}

func splitTags(s string) []string {
	return lo.Compact(lo.Map(strings.Split(s, ","), func(t string, _ int) string {
		return strings.TrimSpace(t)
	}))
}

func pageSize(n int) int {
	switch {
	case n <= 0:
		return defaultPageSize
	case n < minPageSize:
		return minPageSize
	case n > maxPageSize:
		return maxPageSize
	default:
		return n
	}
}

var _ ports.FootageProvider = (*Client)(nil)
