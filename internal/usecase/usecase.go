package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/scenecut/internal/domain/rotation"
	"github.com/forPelevin/scenecut/internal/domain/selection"
	"github.com/forPelevin/scenecut/internal/events"
	"github.com/forPelevin/scenecut/internal/platform/logger"
	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/ranking"
	"github.com/forPelevin/scenecut/internal/types"
)

const (
	DefaultSceneConcurrency = 2
	DefaultPageSize         = 15

	FinalVideoName = "final_video.mp4"
	workDirName    = ".work"
)

// ErrNoScenesDone is returned when no scene reached Done, so there is nothing
// to concatenate.
var ErrNoScenesDone = errors.New("no scene succeeded")

// Ranker re-orders candidates before scoring. *ranking.Ranker implements it.
type Ranker interface {
	Rank(ctx context.Context, req ranking.Request) ranking.Ranking
}

type Deps struct {
	// Providers is the job's rotation, built from the Ready providers.
	Providers rotation.State
	// Ranker is optional; nil keeps search order.
	Ranker Ranker
	Cache  ports.FootageCache
	Video  ports.VideoTool
	// Sink is optional.
	Sink ports.EventSink
	Log  *logger.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Sink == nil {
		d.Sink = events.Multi()
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return Usecase{d: d}
}

type Input struct {
	// JobID tags every event; a random one is generated when empty.
	JobID         string
	Scenes        []types.SceneAssemblyRequest
	ScriptContext string
	Quality       types.Quality
	// Orientation applies to scenes that do not set their own.
	Orientation      types.Orientation
	OutDir           string
	SceneConcurrency int
	PageSize         int
}

func (in Input) Validate() error {
	if len(in.Scenes) == 0 {
		return errors.New("job has no scenes")
	}
	if strings.TrimSpace(in.OutDir) == "" {
		return errors.New("output directory is empty")
	}
	seen := make(map[int]bool, len(in.Scenes))
	for _, s := range in.Scenes {
		if seen[s.SceneID] {
			return fmt.Errorf("duplicate scene id %d", s.SceneID)
		}
		seen[s.SceneID] = true
		if strings.TrimSpace(s.NarrationAudioPath) == "" {
			return fmt.Errorf("scene %d: narration audio is required", s.SceneID)
		}
		if len(s.SearchKeywords) == 0 {
			return fmt.Errorf("scene %d: at least one search keyword is required", s.SceneID)
		}
		for _, kw := range s.SearchKeywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("scene %d: empty search keyword", s.SceneID)
			}
		}
		if s.TargetClipDuration < 0 {
			return fmt.Errorf("scene %d: clip duration must be >= 0", s.SceneID)
		}
		if s.Orientation != "" && !s.Orientation.Valid() {
			return fmt.Errorf("scene %d: unknown orientation %q", s.SceneID, s.Orientation)
		}
	}
	if in.Orientation != "" && !in.Orientation.Valid() {
		return fmt.Errorf("unknown orientation %q", in.Orientation)
	}
	if in.Quality != "" && !in.Quality.Valid() {
		return fmt.Errorf("unknown quality %q", in.Quality)
	}
	return nil
}

type Result struct {
	Job types.JobResult
}

// Run assembles every scene and concatenates the successful ones. A failing
// scene never stops the others. Cancelling ctx stops new scenes and new steps;
// a step already running is allowed to finish.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	jobID := in.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	conc := in.SceneConcurrency
	if conc <= 0 {
		conc = DefaultSceneConcurrency
	}
	log := u.d.Log.With("job_id", jobID)

	scenes := make([]types.SceneAssemblyRequest, len(in.Scenes))
	copy(scenes, in.Scenes)
	sort.SliceStable(scenes, func(i, j int) bool { return scenes[i].SceneID < scenes[j].SceneID })

	workDir := filepath.Join(in.OutDir, workDirName)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("prepare work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	job := &job{
		u:        u,
		id:       jobID,
		in:       in,
		ledger:   selection.NewLedger(),
		workDir:  workDir,
		log:      log,
		unitBase: unitBases(scenes),
	}

	log.Info("job started", "scenes", len(scenes), "providers", u.d.Providers.Len(), "scene_concurrency", conc)

	results := make([]types.SceneResult, len(scenes))
	var g errgroup.Group
	g.SetLimit(conc)
	for i, s := range scenes {
		if ctx.Err() != nil {
			results[i] = job.aborted(s)
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = job.aborted(s)
				return nil
			}
			results[i] = job.runScene(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	res := types.JobResult{
		JobID:       jobID,
		ScenesTotal: len(scenes),
		Scenes:      results,
	}
	var done []string
	for _, r := range results {
		if r.Success && r.FootagePath != nil {
			done = append(done, *r.FootagePath)
		}
	}
	res.ScenesSucceeded = len(done)
	res.Status = types.StatusFor(len(done), len(scenes)-len(done))

	var jobErr error
	if len(done) == 0 {
		jobErr = ErrNoScenesDone
	} else {
		final := filepath.Join(in.OutDir, FinalVideoName)
		preset := in.Quality.Preset(job.orientation(types.SceneAssemblyRequest{}))
		// Completed scenes are concatenated even after an abort.
		if err := u.d.Video.Concat(context.WithoutCancel(ctx), done, preset, final); err != nil {
			jobErr = fmt.Errorf("concat: %w", err)
			res.Status = types.JobFailed
		} else {
			res.FinalVideoPath = &final
		}
	}
	res.Success = res.Status != types.JobFailed

	log.Info("job finished",
		"status", string(res.Status),
		"scenes_succeeded", res.ScenesSucceeded,
		"scenes_failed", res.ScenesTotal-res.ScenesSucceeded,
		"footage_used", job.ledger.Len(),
	)
	u.d.Sink.JobResult(res)
	return Result{Job: res}, jobErr
}

// unitBases numbers the search units of a job: one unit per keyword, in
// ascending scene id order, then keyword order. scenes must be sorted.
func unitBases(scenes []types.SceneAssemblyRequest) map[int]int {
	out := make(map[int]int, len(scenes))
	n := 0
	for _, s := range scenes {
		out[s.SceneID] = n
		n += len(s.SearchKeywords)
	}
	return out
}

// job is the state shared by the scenes of one Run.
type job struct {
	u        Usecase
	id       string
	in       Input
	ledger   *selection.Ledger
	workDir  string
	log      *logger.Logger
	unitBase map[int]int
}

func (j *job) orientation(s types.SceneAssemblyRequest) types.Orientation {
	switch {
	case s.Orientation.Valid():
		return s.Orientation
	case j.in.Orientation.Valid():
		return j.in.Orientation
	default:
		return types.Landscape
	}
}

func (j *job) pageSize() int {
	if j.in.PageSize > 0 {
		return j.in.PageSize
	}
	return DefaultPageSize
}

func (j *job) aborted(s types.SceneAssemblyRequest) types.SceneResult {
	msg := "job aborted before scene started"
	res := types.SceneResult{
		JobID:      j.id,
		SceneID:    s.SceneID,
		Error:      &msg,
		ErrorKind:  types.KindCancelled,
		FailedStep: types.ScenePending,
	}
	j.log.Warn("scene skipped", "scene_id", s.SceneID, "reason", msg)
	j.u.d.Sink.SceneResult(res)
	return res
}

func sceneFileName(id int) string {
	return fmt.Sprintf("scene_%03d.mp4", id)
}
