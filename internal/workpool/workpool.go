// Package workpool bounds how many external media processes run at once.
package workpool

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/types"
)

const DefaultSize = 2

type Pool struct {
	sem  *semaphore.Weighted
	size int
}

func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (p *Pool) Size() int { return p.size }

// Do waits for a free slot and runs fn in the caller's goroutine. Waiting
// honours ctx; fn itself is expected to watch ctx too.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// VideoTool routes every call of the wrapped tool through a pool.
type VideoTool struct {
	pool *Pool
	tool ports.VideoTool
}

func Wrap(pool *Pool, tool ports.VideoTool) *VideoTool {
	return &VideoTool{pool: pool, tool: tool}
}

func (v *VideoTool) ProbeDuration(ctx context.Context, path string) (float64, error) {
	var d float64
	err := v.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		d, err = v.tool.ProbeDuration(ctx, path)
		return err
	})
	return d, err
}

func (v *VideoTool) Cut(ctx context.Context, req ports.CutRequest) error {
	return v.pool.Do(ctx, func(ctx context.Context) error {
		return v.tool.Cut(ctx, req)
	})
}

func (v *VideoTool) JoinClips(ctx context.Context, clips []string, out string) error {
	return v.pool.Do(ctx, func(ctx context.Context) error {
		return v.tool.JoinClips(ctx, clips, out)
	})
}

func (v *VideoTool) Mux(ctx context.Context, video, audio string, audioSeconds float64, out string) error {
	return v.pool.Do(ctx, func(ctx context.Context) error {
		return v.tool.Mux(ctx, video, audio, audioSeconds, out)
	})
}

func (v *VideoTool) Concat(ctx context.Context, scenes []string, preset types.Preset, out string) error {
	return v.pool.Do(ctx, func(ctx context.Context) error {
		return v.tool.Concat(ctx, scenes, preset, out)
	})
}

func (v *VideoTool) ExtractFrames(ctx context.Context, src string, timestamps []float64, outDir string) ([]string, error) {
	var frames []string
	err := v.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		frames, err = v.tool.ExtractFrames(ctx, src, timestamps, outDir)
		return err
	})
	return frames, err
}

var _ ports.VideoTool = (*VideoTool)(nil)
