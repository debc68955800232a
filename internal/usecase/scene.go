package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/forPelevin/scenecut/internal/domain/selection"
	"github.com/forPelevin/scenecut/internal/domain/timing"
	"github.com/forPelevin/scenecut/internal/platform/logger"
	"github.com/forPelevin/scenecut/internal/platform/redact"
	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/ranking"
	"github.com/forPelevin/scenecut/internal/types"
)

const (
	// minDurationFraction sets the prefilter floor relative to a sub-clip's
	// target length.
	minDurationFraction = 0.5
	maxErrorLen         = 300
)

// stepError is a failed scene step.
type stepError struct {
	step types.SceneState
	err  error
}

func (e *stepError) Error() string { return fmt.Sprintf("%s: %v", e.step, e.err) }
func (e *stepError) Unwrap() error { return e.err }

func fail(step types.SceneState, err error) *stepError {
	return &stepError{step: step, err: err}
}

// scene carries one scene through its steps.
type scene struct {
	j       *job
	req     types.SceneAssemblyRequest
	log     *logger.Logger
	abort   context.Context
	workDir string

	footage    []types.Key
	strategies []string
	keywords   int
}

func (j *job) runScene(ctx context.Context, req types.SceneAssemblyRequest) types.SceneResult {
	s := &scene{
		j:        j,
		req:      req,
		log:      j.log.With("scene_id", req.SceneID),
		abort:    ctx,
		workDir:  filepath.Join(j.workDir, fmt.Sprintf("scene_%03d", req.SceneID)),
		keywords: len(req.SearchKeywords),
	}
	defer os.RemoveAll(s.workDir)

	// Steps run detached so an abort never interrupts a running tool.
	out, err := s.run(context.WithoutCancel(ctx))
	if err != nil {
		return s.failed(err)
	}
	res := types.SceneResult{
		JobID:       j.id,
		SceneID:     req.SceneID,
		Success:     true,
		FootagePath: &out,
		Footage:     s.footage,
		Strategy:    strings.Join(lo.Uniq(s.strategies), ","),
	}
	s.progress(types.SceneDone, 100, "scene ready: "+filepath.Base(out))
	s.log.Info("scene done", "path", out, "footage", len(s.footage))
	j.u.d.Sink.SceneResult(res)
	return res
}

func (s *scene) run(ctx context.Context) (string, error) {
	d := s.j.u.d
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return "", fail(types.ScenePending, err)
	}
	s.progress(types.ScenePending, 0, "measuring narration")
	audioSeconds, err := d.Video.ProbeDuration(ctx, s.req.NarrationAudioPath)
	if err != nil {
		return "", fail(types.ScenePending, err)
	}
	subs := timing.SplitDurations(audioSeconds, len(s.req.SearchKeywords), s.req.TargetClipDuration)
	s.log.Debug("narration measured", "seconds", audioSeconds, "sub_clips", len(subs))

	clips := make([]string, 0, len(subs))
	for i, kw := range s.req.SearchKeywords {
		clip, err := s.subClip(ctx, i, kw, subs[i])
		if err != nil {
			return "", err
		}
		clips = append(clips, clip)
	}

	video := clips[0]
	if len(clips) > 1 {
		if err := s.checkAbort(types.SceneCutting); err != nil {
			return "", err
		}
		video = filepath.Join(s.workDir, "joined.mp4")
		s.progress(types.SceneCutting, 88, fmt.Sprintf("joining %d sub-clips", len(clips)))
		if err := d.Video.JoinClips(ctx, clips, video); err != nil {
			return "", fail(types.SceneCutting, err)
		}
	}

	if err := s.checkAbort(types.SceneMuxed); err != nil {
		return "", err
	}
	out := filepath.Join(s.j.in.OutDir, sceneFileName(s.req.SceneID))
	if err := d.Video.Mux(ctx, video, s.req.NarrationAudioPath, audioSeconds, out); err != nil {
		return "", fail(types.SceneMuxed, err)
	}
	s.progress(types.SceneMuxed, 95, "narration muxed")
	return out, nil
}

// subClip takes one keyword from search to a cut clip of exactly seconds.
func (s *scene) subClip(ctx context.Context, i int, kw string, seconds float64) (string, error) {
	d := s.j.u.d
	orient := s.j.orientation(s.req)

	if err := s.checkAbort(types.SceneSearching); err != nil {
		return "", err
	}
	s.progress(types.SceneSearching, s.pct(i, 0), fmt.Sprintf("searching %q", kw))
	cands, err := s.j.search(ctx, s.j.unitBase[s.req.SceneID]+i, types.Query{
		Text:        kw,
		Orientation: orient,
		PageSize:    s.j.pageSize(),
		Page:        1,
	})
	if err != nil {
		return "", fail(types.SceneSearching, err)
	}

	if d.Ranker != nil {
		if err := s.checkAbort(types.SceneRanking); err != nil {
			return "", err
		}
		s.progress(types.SceneRanking, s.pct(i, 20), fmt.Sprintf("ranking %d candidates", len(cands)))
		r := d.Ranker.Rank(ctx, ranking.Request{
			SceneID:       s.req.SceneID,
			Keyword:       kw,
			Description:   s.req.Description,
			ScriptContext: s.j.in.ScriptContext,
			Candidates:    cands,
		})
		s.strategies = append(s.strategies, string(r.Strategy))
		if len(r.Entries) > 0 {
			cands = r.Candidates()
		}
	}

	if err := s.checkAbort(types.SceneSelecting); err != nil {
		return "", err
	}
	pool := selection.Prefilter(cands, seconds*minDurationFraction)
	claim, ok := s.j.ledger.Claim(selection.Rank(pool, seconds, s.j.ledger))
	if !ok {
		return "", fail(types.SceneSelecting, types.NewError(types.KindNoResults, "select", "", fmt.Errorf("no candidate for %q", kw)))
	}
	pick := claim.Candidate.Result
	s.progress(types.SceneSelecting, s.pct(i, 40), fmt.Sprintf("selected %s (score %.0f)", pick.Key(), claim.Candidate.Score))
	if claim.Reused {
		s.log.Warn("every candidate already used, reusing best", "keyword", kw, "footage", pick.Key().String())
	}

	if err := s.checkAbort(types.SceneDownloading); err != nil {
		s.j.ledger.Release(claim)
		return "", err
	}
	s.progress(types.SceneDownloading, s.pct(i, 50), "downloading "+pick.Key().String())
	entry, err := d.Cache.Ensure(ctx, pick.Key(), pick.DownloadURL)
	if err != nil {
		s.j.ledger.Release(claim)
		return "", fail(types.SceneDownloading, err)
	}
	s.footage = append(s.footage, pick.Key())

	if err := s.checkAbort(types.SceneCutting); err != nil {
		return "", err
	}
	preset := s.j.in.Quality.Preset(orient)
	clip := filepath.Join(s.workDir, fmt.Sprintf("part_%02d.mp4", i+1))
	s.progress(types.SceneCutting, s.pct(i, 80), fmt.Sprintf("cutting %.2fs from %.2fs source", seconds, entry.DurationSeconds))
	err = d.Video.Cut(ctx, ports.CutRequest{
		Source:        entry.LocalPath,
		SourceSeconds: entry.DurationSeconds,
		TargetSeconds: seconds,
		Output:        clip,
		Width:         preset.Width,
		Height:        preset.Height,
	})
	if err != nil {
		return "", fail(types.SceneCutting, err)
	}
	return clip, nil
}

// checkAbort fails the step about to start when the job was cancelled.
func (s *scene) checkAbort(next types.SceneState) error {
	if err := s.abort.Err(); err != nil {
		return fail(next, types.NewError(types.KindCancelled, "abort", "", err))
	}
	return nil
}

// pct maps a position inside keyword i (0..100) onto 5..85 of the scene.
func (s *scene) pct(i, within int) int {
	span := 80 / s.keywords
	return 5 + i*span + within*span/100
}

func (s *scene) progress(step types.SceneState, pct int, msg string) {
	s.j.u.d.Sink.Progress(types.ProgressEvent{
		JobID:      s.j.id,
		SceneID:    s.req.SceneID,
		Step:       step,
		Percentage: pct,
		Message:    msg,
	})
}

func (s *scene) failed(err error) types.SceneResult {
	step := types.ScenePending
	if se, ok := err.(*stepError); ok {
		step = se.step
		err = se.err
	}
	kind := types.KindOf(err)
	if kind == "" {
		kind = defaultKind(step)
	}
	msg := fmt.Sprintf("%s failed: %s", step, redact.Truncate(err.Error(), maxErrorLen))
	res := types.SceneResult{
		JobID:      s.j.id,
		SceneID:    s.req.SceneID,
		Error:      &msg,
		ErrorKind:  kind,
		FailedStep: step,
		Footage:    s.footage,
		Strategy:   strings.Join(lo.Uniq(s.strategies), ","),
	}
	s.progress(types.SceneFailed, 100, msg)
	s.log.Error("scene failed", "step", string(step), "kind", string(kind), "error", err)
	s.j.u.d.Sink.SceneResult(res)
	return res
}

func defaultKind(step types.SceneState) types.ErrorKind {
	switch step {
	case types.SceneSearching, types.SceneSelecting:
		return types.KindNoResults
	case types.SceneDownloading:
		return types.KindDownloadFailed
	case types.ScenePending:
		return types.KindProbeFailed
	default:
		return types.KindTranscodeFailed
	}
}
