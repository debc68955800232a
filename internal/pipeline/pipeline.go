package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/forPelevin/scenecut/internal/cache"
	"github.com/forPelevin/scenecut/internal/domain/rotation"
	"github.com/forPelevin/scenecut/internal/events"
	"github.com/forPelevin/scenecut/internal/platform/logger"
	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/scenecut/internal/ports/adapters/gemini"
	"github.com/forPelevin/scenecut/internal/ports/adapters/openrouter"
	"github.com/forPelevin/scenecut/internal/ports/adapters/pexels"
	"github.com/forPelevin/scenecut/internal/ports/adapters/pixabay"
	"github.com/forPelevin/scenecut/internal/ports/adapters/redisbus"
	"github.com/forPelevin/scenecut/internal/ranking"
	"github.com/forPelevin/scenecut/internal/types"
	"github.com/forPelevin/scenecut/internal/usecase"
	"github.com/forPelevin/scenecut/internal/workpool"
)

type Config struct {
	JobFile string
	OutDir  string
	// Quality and Orientation override the job file when set.
	Quality     types.Quality
	Orientation types.Orientation

	// CacheDir holds downloaded clips and their metadata. If empty,
	// defaults to ".cache".
	CacheDir    string
	CacheMaxAge time.Duration

	// Workers bounds concurrent ffmpeg processes.
	Workers          int
	SceneConcurrency int

	FFmpegPath  string
	FFprobePath string

	PexelsKeys     *rotation.KeyPool
	PexelsBaseURL  string
	PixabayKeys    *rotation.KeyPool
	PixabayBaseURL string

	OpenRouterAPIKey       string
	OpenRouterModel        string
	OpenRouterBaseURL      string
	OpenRouterAllowedHosts []string

	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	GeminiAllowedHosts []string

	RedisAddr    string
	RedisChannel string

	Log *logger.Logger
	// Sink receives events in addition to the log and the redis bus.
	Sink ports.EventSink
}

func (c Config) Validate() error {
	if c.JobFile == "" {
		return errors.New("job file is empty")
	}
	if _, err := os.Stat(c.JobFile); err != nil {
		return fmt.Errorf("stat job file: %w", err)
	}
	if !c.PexelsKeys.Ready() && !c.PixabayKeys.Ready() {
		return errors.New("no footage provider key configured (set PEXELS_API_KEYS or PIXABAY_API_KEYS)")
	}
	if c.Quality != "" && !c.Quality.Valid() {
		return fmt.Errorf("unknown quality %q (want 480p, 720p or 1080p)", c.Quality)
	}
	if c.Orientation != "" && !c.Orientation.Valid() {
		return fmt.Errorf("unknown orientation %q (want landscape or portrait)", c.Orientation)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if c.SceneConcurrency < 0 {
		return fmt.Errorf("scene concurrency must be >= 0")
	}
	if c.CacheMaxAge < 0 {
		return fmt.Errorf("cache max age must be >= 0")
	}
	if c.GeminiAPIKey != "" {
		if err := gemini.ValidateBaseURL(c.GeminiBaseURL, c.GeminiAllowedHosts); err != nil {
			return err
		}
	}
	if c.OpenRouterAPIKey == "" {
		return nil
	}
	return openrouter.ValidateBaseURL(
		c.OpenRouterBaseURL,
		c.OpenRouterAllowedHosts,
	)
}

// Run loads the job, assembles it and writes manifest.json next to the final
// video. The job result is returned even when the job fails.
func Run(ctx context.Context, cfg Config) (types.JobResult, error) {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	job, err := LoadJob(cfg.JobFile)
	if err != nil {
		return types.JobResult{}, err
	}
	if cfg.Quality != "" {
		job.Quality = cfg.Quality
	}
	if cfg.Orientation != "" {
		job.Orientation = cfg.Orientation
	}
	if job.Quality == "" {
		job.Quality = types.Quality720p
	}

	// adapters
	video := workpool.Wrap(workpool.New(cfg.Workers), ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath))
	fetcher := cache.NewHTTPFetcher()

	cacheDir := cacheDirOf(cfg)
	footage, err := cache.Open(cacheDir, fetcher, video, log)
	if err != nil {
		return types.JobResult{}, fmt.Errorf("open cache: %w", err)
	}
	defer footage.Close()
	sweep(ctx, footage, maxAgeOf(cfg), log)

	providers := rotation.NewState(
		pexels.New(cfg.PexelsKeys, cfg.PexelsBaseURL),
		pixabay.New(cfg.PixabayKeys, cfg.PixabayBaseURL),
	)

	// Unconfigured models stay untyped nil so the ranking plan skips them.
	var (
		judge       ports.VideoJudge
		frames      ports.FrameRanker
		judgeModel  string
		framesModel string
	)
	if cfg.GeminiAPIKey != "" {
		a := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
		judge, judgeModel = a, a.Model()
	}
	if cfg.OpenRouterAPIKey != "" {
		a := openrouter.New(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.OpenRouterBaseURL)
		frames, framesModel = a, a.Model()
	}
	ranker := ranking.New(judge, frames, fetcher, video, filepath.Join(cacheDir, "ranking"), log)
	plan := ranker.Plan()
	log.Info("ranking plan",
		"primary", string(plan.Primary),
		"fallback", string(plan.Fallback),
		"video_model", judgeModel,
		"frames_model", framesModel,
	)

	sinks := []ports.EventSink{events.NewLogSink(log)}
	if cfg.RedisAddr != "" {
		bus, err := redisbus.New(ctx, cfg.RedisAddr, cfg.RedisChannel, log)
		if err != nil {
			return types.JobResult{}, err
		}
		defer bus.Close()
		log.Info("publishing events", "redis", cfg.RedisAddr, "channel", bus.Channel())
		sinks = append(sinks, bus)
	}
	if cfg.Sink != nil {
		sinks = append(sinks, cfg.Sink)
	}

	uc := usecase.New(usecase.Deps{
		Providers: providers,
		Ranker:    ranker,
		Cache:     footage,
		Video:     video,
		Sink:      events.Multi(sinks...),
		Log:       log,
	})

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	runOutDir := buildRunOutDir(outDir, job.Name, time.Now().UTC())
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return types.JobResult{}, err
	}
	log.Info("output run dir", "path", runOutDir)

	res, runErr := uc.Run(ctx, usecase.Input{
		Scenes:           job.Scenes,
		ScriptContext:    job.ScriptContext,
		Quality:          job.Quality,
		Orientation:      job.Orientation,
		OutDir:           runOutDir,
		SceneConcurrency: cfg.SceneConcurrency,
	})
	if res.Job.JobID == "" {
		// Input was rejected before any scene ran.
		return res.Job, runErr
	}

	manifestPath, err := writeManifest(runOutDir, job, res.Job)
	if err != nil {
		return res.Job, err
	}
	log.Info("manifest written", "scenes", len(res.Job.Scenes), "path", manifestPath)
	return res.Job, runErr
}

// Sweep removes cache entries older than the configured age.
func Sweep(ctx context.Context, cfg Config) (cache.SweepReport, error) {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	c, err := cache.Open(cacheDirOf(cfg), cache.NewHTTPFetcher(), ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath), log)
	if err != nil {
		return cache.SweepReport{}, fmt.Errorf("open cache: %w", err)
	}
	defer c.Close()
	return c.Sweep(ctx, maxAgeOf(cfg))
}

// Watch hands every event published on the channel to onMsg until ctx is
// done.
func Watch(ctx context.Context, cfg Config, onMsg func(redisbus.Envelope)) error {
	if cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required to watch events")
	}
	bus, err := redisbus.New(ctx, cfg.RedisAddr, cfg.RedisChannel, cfg.Log)
	if err != nil {
		return err
	}
	defer bus.Close()
	if err := bus.Subscribe(ctx, onMsg); err != nil {
		return err
	}
	if cfg.Log != nil {
		cfg.Log.Info("watching events", "redis", cfg.RedisAddr, "channel", bus.Channel())
	}
	<-ctx.Done()
	return nil
}

func sweep(ctx context.Context, c *cache.Cache, maxAge time.Duration, log *logger.Logger) {
	rep, err := c.Sweep(ctx, maxAge)
	if err != nil {
		log.Warn("cache sweep failed", "error", err)
		return
	}
	if rep.Removed > 0 || rep.Failed > 0 || rep.PartialFiles > 0 {
		log.Info("cache swept", "removed", rep.Removed, "failed", rep.Failed, "partial_files", rep.PartialFiles)
	}
}

func cacheDirOf(cfg Config) string {
	if cfg.CacheDir == "" {
		return ".cache"
	}
	return cfg.CacheDir
}

func maxAgeOf(cfg Config) time.Duration {
	if cfg.CacheMaxAge == 0 {
		return cache.DefaultMaxAge
	}
	return cfg.CacheMaxAge
}

type manifestScene struct {
	SceneID   int              `json:"scene_id"`
	Success   bool             `json:"success"`
	File      string           `json:"file,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind types.ErrorKind  `json:"error_kind,omitempty"`
	Step      types.SceneState `json:"failed_step,omitempty"`
	Footage   []types.Key      `json:"footage,omitempty"`
	Ranking   string           `json:"ranking_strategy,omitempty"`
}

type manifest struct {
	JobID           string          `json:"job_id"`
	Name            string          `json:"name"`
	Status          types.JobStatus `json:"status"`
	Quality         types.Quality   `json:"quality"`
	Orientation     string          `json:"orientation,omitempty"`
	ScenesTotal     int             `json:"scenes_total"`
	ScenesSucceeded int             `json:"scenes_succeeded"`
	FinalVideo      string          `json:"final_video,omitempty"`
	Scenes          []manifestScene `json:"scenes"`
}

func writeManifest(runOutDir string, job Job, res types.JobResult) (string, error) {
	m := manifest{
		JobID:           res.JobID,
		Name:            job.Name,
		Status:          res.Status,
		Quality:         job.Quality,
		Orientation:     string(job.Orientation),
		ScenesTotal:     res.ScenesTotal,
		ScenesSucceeded: res.ScenesSucceeded,
		FinalVideo:      relPath(runOutDir, res.FinalVideoPath),
	}
	for _, s := range res.Scenes {
		ms := manifestScene{
			SceneID:   s.SceneID,
			Success:   s.Success,
			File:      relPath(runOutDir, s.FootagePath),
			ErrorKind: s.ErrorKind,
			Step:      s.FailedStep,
			Footage:   s.Footage,
			Ranking:   s.Strategy,
		}
		if s.Error != nil {
			ms.Error = *s.Error
		}
		m.Scenes = append(m.Scenes, ms)
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(runOutDir, "manifest.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func relPath(base string, p *string) string {
	if p == nil {
		return ""
	}
	if rel, err := filepath.Rel(base, *p); err == nil {
		return filepath.ToSlash(rel)
	}
	return *p
}

func buildRunOutDir(outRoot, jobName string, now time.Time) string {
	name := normalizePathSegment(jobName)
	if name == "" {
		name = "job"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", jobName, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.VideoTool = (*workpool.VideoTool)(nil)
var _ ports.FootageProvider = (*pexels.Client)(nil)
var _ ports.FootageProvider = (*pixabay.Client)(nil)
var _ ports.VideoJudge = (*gemini.Adapter)(nil)
var _ ports.FrameRanker = (*openrouter.Adapter)(nil)
var _ ports.FootageCache = (*cache.Cache)(nil)
var _ ports.EventSink = (*redisbus.Bus)(nil)
