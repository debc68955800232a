package ports

import (
	"context"

	"github.com/forPelevin/scenecut/internal/types"
)

// FootageProvider searches one stock-footage service. Callers treat an error
// and an empty result identically for flow purposes.
type FootageProvider interface {
	Name() types.Source
	// Ready reports whether the provider holds a usable credential.
	Ready() bool
	Search(ctx context.Context, q types.Query) ([]types.FootageResult, error)
}

type CutRequest struct {
	Source        string
	SourceSeconds float64
	TargetSeconds float64
	Output        string
	Width         int
	Height        int
}

type VideoTool interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	Cut(ctx context.Context, req CutRequest) error
	JoinClips(ctx context.Context, clips []string, out string) error
	Mux(ctx context.Context, video, audio string, audioSeconds float64, out string) error
	Concat(ctx context.Context, scenes []string, preset types.Preset, out string) error
	ExtractFrames(ctx context.Context, src string, timestamps []float64, outDir string) ([]string, error)
}

// Fetcher downloads url to dst and returns the number of bytes written.
type Fetcher interface {
	Fetch(ctx context.Context, url, dst string) (int64, error)
}

type CacheEntry struct {
	LocalPath       string
	DurationSeconds float64
}

type FootageCache interface {
	Ensure(ctx context.Context, key types.Key, downloadURL string) (CacheEntry, error)
}

// VideoJudge scores one whole clip against a prompt. It returns the raw model
// text; parsing is the caller's concern.
type VideoJudge interface {
	JudgeVideo(ctx context.Context, videoPath, prompt string) (string, error)
}

type FrameSet struct {
	// Frames are base64-encoded JPEG images.
	Frames []string
}

// FrameRanker ranks several candidates, each represented by still frames,
// in one model call.
type FrameRanker interface {
	RankFrames(ctx context.Context, prompt string, sets []FrameSet) (string, error)
}

// EventSink receives the job's outward events. Implementations must be safe
// for concurrent use and must not block the pipeline for long.
type EventSink interface {
	Progress(ev types.ProgressEvent)
	SceneResult(res types.SceneResult)
	JobResult(res types.JobResult)
}
