package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/types"
)

const (
	headerTimeout  = 30 * time.Second
	baseBodyBudget = 30 * time.Second
	perMBBudget    = time.Second
	maxBodyBudget  = 120 * time.Second
)

var errFetchDeadline = errors.New("fetch deadline exceeded")

// HTTPFetcher downloads clips over plain HTTP(S).
type HTTPFetcher struct {
	client        *http.Client
	headerTimeout time.Duration
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{}, headerTimeout: headerTimeout}
}

// bodyBudget scales with the announced size: 30s plus 1s per MB, capped at
// 120s. An unknown size gets the cap.
func bodyBudget(contentLength int64) time.Duration {
	if contentLength < 0 {
		return maxBodyBudget
	}
	d := baseBodyBudget + time.Duration(contentLength/(1<<20))*perMBBudget
	if d > maxBodyBudget {
		return maxBodyBudget
	}
	return d
}

// Fetch writes url to dst, truncating any existing file. A zero-byte body
// is a failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dst string) (int64, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	timer := time.AfterFunc(f.headerTimeout, func() { cancel(errFetchDeadline) })
	defer timer.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, types.NewError(types.KindDownloadFailed, "fetch", "", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fetchError(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, types.NewError(types.KindDownloadFailed, "fetch", "", fmt.Errorf("status %d", resp.StatusCode))
	}
	timer.Reset(bodyBudget(resp.ContentLength))

	out, err := os.Create(dst)
	if err != nil {
		return 0, types.NewError(types.KindDownloadFailed, "fetch", "", err)
	}
	n, copyErr := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if copyErr != nil {
		return n, fetchError(ctx, copyErr)
	}
	if closeErr != nil {
		return n, types.NewError(types.KindDownloadFailed, "fetch", "", closeErr)
	}
	if n == 0 {
		return 0, types.NewError(types.KindDownloadFailed, "fetch", "", errors.New("empty body"))
	}
	return n, nil
}

func fetchError(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), errFetchDeadline) {
		return types.NewError(types.KindTimeout, "fetch", "", fmt.Errorf("%w: %w", context.DeadlineExceeded, err))
	}
	return types.NewError(types.KindDownloadFailed, "fetch", "", err)
}

var _ ports.Fetcher = (*HTTPFetcher)(nil)
