// Package ranking re-orders search candidates with a vision-capable model
// before scoring. Two strategies exist: native-video uploads whole clips,
// keyframe-proxy sends a few stills per clip. Neither ever fails a scene;
// when both are unavailable or fail the original order is kept.
package ranking

import (
	"context"
	"os"

	"github.com/forPelevin/scenecut/internal/domain/llmjson"
	"github.com/forPelevin/scenecut/internal/platform/logger"
	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/types"
)

type Strategy string

const (
	NativeVideo   Strategy = "native_video"
	KeyframeProxy Strategy = "keyframe_proxy"
	None          Strategy = "none"
)

const (
	// NativeCap bounds how many clips are uploaded per ranking.
	NativeCap      = 6
	framesPerClip  = 3
	proxyDownloads = 4
)

// Plan is the strategy order resolved once per job from what is configured.
type Plan struct {
	Primary  Strategy
	Fallback Strategy
}

func Resolve(judge ports.VideoJudge, frames ports.FrameRanker) Plan {
	switch {
	case judge != nil && frames != nil:
		return Plan{Primary: NativeVideo, Fallback: KeyframeProxy}
	case judge != nil:
		return Plan{Primary: NativeVideo, Fallback: None}
	case frames != nil:
		return Plan{Primary: KeyframeProxy, Fallback: None}
	default:
		return Plan{Primary: None, Fallback: None}
	}
}

type Request struct {
	SceneID       int
	Keyword       string
	Description   string
	ScriptContext string
	Candidates    []types.FootageResult
}

type Entry struct {
	Candidate types.FootageResult
	// Score is 0..100 and meaningful only when Scored is set.
	Score  float64
	Scored bool
	Reason string
}

type Ranking struct {
	Strategy Strategy
	Entries  []Entry
	Reason   string
	Outcome  llmjson.Outcome
}

// Candidates returns the ranked order.
func (r Ranking) Candidates() []types.FootageResult {
	out := make([]types.FootageResult, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Candidate
	}
	return out
}

// FrameTool is the slice of the media tool the proxy strategy needs.
type FrameTool interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	ExtractFrames(ctx context.Context, src string, timestamps []float64, outDir string) ([]string, error)
}

type Ranker struct {
	plan    Plan
	judge   ports.VideoJudge
	frames  ports.FrameRanker
	fetcher ports.Fetcher
	tool    FrameTool
	workDir string
	log     *logger.Logger
}

// New builds a ranker whose plan follows from which model adapters are
// non-nil. workDir holds per-call temporary downloads; "" means the OS temp
// directory.
func New(judge ports.VideoJudge, frames ports.FrameRanker, fetcher ports.Fetcher, tool FrameTool, workDir string, log *logger.Logger) *Ranker {
	if log == nil {
		log = logger.Nop()
	}
	return &Ranker{
		plan:    Resolve(judge, frames),
		judge:   judge,
		frames:  frames,
		fetcher: fetcher,
		tool:    tool,
		workDir: workDir,
		log:     log.With("component", "ranking"),
	}
}

func (r *Ranker) Plan() Plan { return r.plan }

// Rank tries the primary strategy, then the fallback, then keeps the input
// order. It never returns an error.
func (r *Ranker) Rank(ctx context.Context, req Request) Ranking {
	if len(req.Candidates) == 0 {
		return Ranking{Strategy: None}
	}
	for _, s := range []Strategy{r.plan.Primary, r.plan.Fallback} {
		if s == None {
			continue
		}
		res, err := r.run(ctx, s, req)
		if err == nil {
			return res
		}
		r.log.Warn("ranking strategy failed", "scene_id", req.SceneID, "keyword", req.Keyword, "strategy", string(s), "error", err)
	}
	return Ranking{Strategy: None, Entries: unscored(req.Candidates)}
}

func (r *Ranker) run(ctx context.Context, s Strategy, req Request) (Ranking, error) {
	if s == NativeVideo {
		return r.native(ctx, req)
	}
	return r.proxy(ctx, req)
}

func (r *Ranker) tempDir(prefix string) (string, error) {
	if r.workDir != "" {
		if err := os.MkdirAll(r.workDir, 0o755); err != nil {
			return "", err
		}
	}
	return os.MkdirTemp(r.workDir, prefix)
}

func unscored(cands []types.FootageResult) []Entry {
	out := make([]Entry, len(cands))
	for i, c := range cands {
		out[i] = Entry{Candidate: c}
	}
	return out
}

// sourceURL prefers the lighter preview rendition for judging.
func sourceURL(c types.FootageResult) string {
	if c.PreviewURL != "" {
		return c.PreviewURL
	}
	return c.DownloadURL
}
