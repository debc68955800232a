package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/forPelevin/scenecut/internal/domain/rotation"
	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/ranking"
	"github.com/forPelevin/scenecut/internal/types"
)

func TestRun_FailedDownloadLeavesOtherScenes(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	provider := &fakeProvider{name: types.SourcePexels, byQuery: map[string][]types.FootageResult{}}
	var scenes []types.SceneAssemblyRequest
	for id := 5; id >= 1; id-- {
		kw := fmt.Sprintf("kw%d", id)
		provider.byQuery[kw] = []types.FootageResult{clip(types.SourcePexels, fmt.Sprintf("c%d", id), 20)}
		scenes = append(scenes, sceneReq(id, kw))
	}
	cache := &fakeCache{fail: map[types.Key]bool{{Source: types.SourcePexels, ID: "c3"}: true}}
	video := newFakeVideo()
	sink := &recordingSink{}

	uc := New(Deps{
		Providers: rotation.NewState(provider),
		Cache:     cache,
		Video:     video,
		Sink:      sink,
	})
	res, err := uc.Run(context.Background(), Input{
		JobID:            "job-d",
		Scenes:           scenes,
		Quality:          types.Quality720p,
		OutDir:           tmp,
		SceneConcurrency: 3,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	job := res.Job
	if job.Status != types.JobPartialSuccess || !job.Success {
		t.Fatalf("expected partial success, got %s success=%v", job.Status, job.Success)
	}
	if job.ScenesTotal != 5 || job.ScenesSucceeded != 4 {
		t.Fatalf("unexpected counts %d/%d", job.ScenesSucceeded, job.ScenesTotal)
	}

	wantConcat := []string{"scene_001.mp4", "scene_002.mp4", "scene_004.mp4", "scene_005.mp4"}
	if len(video.concats) != 1 {
		t.Fatalf("expected one concat call, got %d", len(video.concats))
	}
	got := video.concats[0]
	if len(got) != len(wantConcat) {
		t.Fatalf("concat inputs = %v, want %v", got, wantConcat)
	}
	for i := range wantConcat {
		if filepath.Base(got[i]) != wantConcat[i] {
			t.Fatalf("concat inputs = %v, want %v", got, wantConcat)
		}
	}
	if job.FinalVideoPath == nil || *job.FinalVideoPath != filepath.Join(tmp, FinalVideoName) {
		t.Fatalf("unexpected final path %v", job.FinalVideoPath)
	}

	s3 := job.Scenes[2]
	if s3.SceneID != 3 || s3.Success {
		t.Fatalf("expected scene 3 to fail, got %+v", s3)
	}
	if s3.ErrorKind != types.KindDownloadFailed || s3.FailedStep != types.SceneDownloading {
		t.Fatalf("scene 3 kind=%s step=%s", s3.ErrorKind, s3.FailedStep)
	}
	if s3.Error == nil || !strings.Contains(*s3.Error, "downloading") {
		t.Fatalf("expected operator message naming the step, got %v", s3.Error)
	}
	if s3.FootagePath != nil {
		t.Fatalf("failed scene must not report a path")
	}

	if n := sink.count("job"); n != 1 {
		t.Fatalf("expected one job result event, got %d", n)
	}
	if n := sink.count("scene"); n != 5 {
		t.Fatalf("expected five scene results, got %d", n)
	}
}

func TestRun_NoSceneDoneIsJobError(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{name: types.SourcePexels}
	video := newFakeVideo()
	uc := New(Deps{
		Providers: rotation.NewState(provider),
		Cache:     &fakeCache{},
		Video:     video,
	})
	res, err := uc.Run(context.Background(), Input{
		Scenes: []types.SceneAssemblyRequest{sceneReq(1, "nothing"), sceneReq(2, "nada")},
		OutDir: t.TempDir(),
	})
	if !errors.Is(err, ErrNoScenesDone) {
		t.Fatalf("expected ErrNoScenesDone, got %v", err)
	}
	if res.Job.Status != types.JobFailed || res.Job.Success {
		t.Fatalf("unexpected status %s", res.Job.Status)
	}
	if res.Job.FinalVideoPath != nil || len(video.concats) != 0 {
		t.Fatalf("no concat expected")
	}
	for _, s := range res.Job.Scenes {
		if s.ErrorKind != types.KindNoResults || s.FailedStep != types.SceneSearching {
			t.Fatalf("scene %d kind=%s step=%s", s.SceneID, s.ErrorKind, s.FailedStep)
		}
	}
	if res.Job.JobID == "" {
		t.Fatalf("expected generated job id")
	}
}

func TestRun_RotationAndFallback(t *testing.T) {
	t.Parallel()

	a := &fakeProvider{name: types.SourcePexels, byQuery: map[string][]types.FootageResult{
		"one": {clip(types.SourcePexels, "a1", 20)},
	}}
	b := &fakeProvider{name: types.SourcePixabay, byQuery: map[string][]types.FootageResult{
		"one": {clip(types.SourcePixabay, "b1", 20)},
		"two": {clip(types.SourcePixabay, "b2", 20)},
	}}
	video := newFakeVideo()
	uc := New(Deps{
		Providers: rotation.NewState(a, b),
		Cache:     &fakeCache{},
		Video:     video,
	})
	res, err := uc.Run(context.Background(), Input{
		Scenes: []types.SceneAssemblyRequest{
			sceneReq(2, "two"),
			sceneReq(1, "one"),
			sceneReq(3, "three"),
		},
		OutDir:           t.TempDir(),
		SceneConcurrency: 1,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Scene 1 is unit 0 and goes to pexels; scene 2 is unit 1 and goes to
	// pixabay; scene 3 is unit 2, back on pexels, which finds nothing and
	// falls through to pixabay, which finds nothing either.
	if got := a.queries(); strings.Join(got, ",") != "one,three" {
		t.Fatalf("pexels queries = %v", got)
	}
	if got := b.queries(); strings.Join(got, ",") != "two,three" {
		t.Fatalf("pixabay queries = %v", got)
	}
	if res.Job.Scenes[0].Footage[0].ID != "a1" || res.Job.Scenes[1].Footage[0].ID != "b2" {
		t.Fatalf("unexpected footage %+v / %+v", res.Job.Scenes[0].Footage, res.Job.Scenes[1].Footage)
	}
	if res.Job.Scenes[2].ErrorKind != types.KindNoResults {
		t.Fatalf("scene 3 kind = %s", res.Job.Scenes[2].ErrorKind)
	}
}

func TestRun_FallsThroughOnProviderError(t *testing.T) {
	t.Parallel()

	broken := &fakeProvider{name: types.SourcePexels, err: types.NewError(types.KindProviderUnavailable, "search", "pexels", errors.New("401"))}
	good := &fakeProvider{name: types.SourcePixabay, byQuery: map[string][]types.FootageResult{
		"sea": {clip(types.SourcePixabay, "s1", 20)},
	}}
	uc := New(Deps{
		Providers: rotation.NewState(broken, good),
		Cache:     &fakeCache{},
		Video:     newFakeVideo(),
	})
	res, err := uc.Run(context.Background(), Input{
		Scenes: []types.SceneAssemblyRequest{sceneReq(1, "sea")},
		OutDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Job.Status != types.JobSuccess {
		t.Fatalf("status = %s", res.Job.Status)
	}
}

func TestRun_SplitsKeywordsIntoSubClips(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{name: types.SourcePexels, byQuery: map[string][]types.FootageResult{
		"city":   {clip(types.SourcePexels, "city", 3)},
		"forest": {clip(types.SourcePexels, "forest", 30)},
	}}
	video := newFakeVideo()
	video.audio["/audio/1.wav"] = 10

	uc := New(Deps{
		Providers: rotation.NewState(provider),
		Cache:     &fakeCache{},
		Video:     video,
	})
	req := sceneReq(1, "city", "forest")
	req.TargetClipDuration = 4
	req.Orientation = types.Portrait
	res, err := uc.Run(context.Background(), Input{
		Scenes:  []types.SceneAssemblyRequest{req},
		Quality: types.Quality1080p,
		OutDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(video.cuts) != 2 {
		t.Fatalf("expected two cuts, got %d", len(video.cuts))
	}
	first, second := video.cuts[0], video.cuts[1]
	if first.TargetSeconds != 4 || second.TargetSeconds != 6 {
		t.Fatalf("sub-clip targets = %v, %v", first.TargetSeconds, second.TargetSeconds)
	}
	if first.SourceSeconds != 3 || first.Width != 1080 || first.Height != 1920 {
		t.Fatalf("unexpected cut request %+v", first)
	}
	if len(video.joins) != 1 || len(video.joins[0]) != 2 {
		t.Fatalf("expected one join of two clips, got %v", video.joins)
	}
	if len(video.muxes) != 1 || video.muxes[0].seconds != 10 {
		t.Fatalf("mux must use narration length, got %+v", video.muxes)
	}
	if video.muxes[0].video != filepath.Join(filepath.Dir(video.joins[0][0]), "joined.mp4") {
		t.Fatalf("mux input = %s", video.muxes[0].video)
	}
	if got := res.Job.Scenes[0].Footage; len(got) != 2 || got[0].ID != "city" || got[1].ID != "forest" {
		t.Fatalf("footage = %+v", got)
	}
}

func TestRun_ScenesNeverShareFootage(t *testing.T) {
	t.Parallel()

	same := []types.FootageResult{
		clip(types.SourcePexels, "x", 20),
		clip(types.SourcePexels, "y", 20),
		clip(types.SourcePexels, "z", 20),
	}
	provider := &fakeProvider{name: types.SourcePexels, byQuery: map[string][]types.FootageResult{"ocean": same}}
	uc := New(Deps{
		Providers: rotation.NewState(provider),
		Cache:     &fakeCache{},
		Video:     newFakeVideo(),
	})
	res, err := uc.Run(context.Background(), Input{
		Scenes:           []types.SceneAssemblyRequest{sceneReq(1, "ocean"), sceneReq(2, "ocean"), sceneReq(3, "ocean")},
		OutDir:           t.TempDir(),
		SceneConcurrency: 3,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	seen := map[string]bool{}
	for _, s := range res.Job.Scenes {
		id := s.Footage[0].ID
		if seen[id] {
			t.Fatalf("clip %s used twice", id)
		}
		seen[id] = true
	}
}

func TestRun_RankerOrderFeedsSelection(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{name: types.SourcePexels, byQuery: map[string][]types.FootageResult{
		"dog": {clip(types.SourcePexels, "first", 20), clip(types.SourcePexels, "second", 20)},
	}}
	ranker := &reverseRanker{}
	uc := New(Deps{
		Providers: rotation.NewState(provider),
		Ranker:    ranker,
		Cache:     &fakeCache{},
		Video:     newFakeVideo(),
	})
	req := sceneReq(1, "dog")
	req.Description = "a dog on a beach"
	res, err := uc.Run(context.Background(), Input{
		Scenes:        []types.SceneAssemblyRequest{req},
		ScriptContext: "pets",
		OutDir:        t.TempDir(),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Job.Scenes[0].Footage[0].ID != "second" {
		t.Fatalf("expected ranker order to win ties, got %s", res.Job.Scenes[0].Footage[0].ID)
	}
	if res.Job.Scenes[0].Strategy != string(ranking.KeyframeProxy) {
		t.Fatalf("strategy = %q", res.Job.Scenes[0].Strategy)
	}
	if ranker.last.Description != "a dog on a beach" || ranker.last.ScriptContext != "pets" || ranker.last.Keyword != "dog" {
		t.Fatalf("unexpected ranking request %+v", ranker.last)
	}
}

func TestRun_AbortedBeforeStart(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{name: types.SourcePexels, byQuery: map[string][]types.FootageResult{
		"a": {clip(types.SourcePexels, "a", 20)},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	uc := New(Deps{
		Providers: rotation.NewState(provider),
		Cache:     &fakeCache{},
		Video:     newFakeVideo(),
	})
	res, err := uc.Run(ctx, Input{
		Scenes: []types.SceneAssemblyRequest{sceneReq(1, "a"), sceneReq(2, "a")},
		OutDir: t.TempDir(),
	})
	if !errors.Is(err, ErrNoScenesDone) {
		t.Fatalf("expected ErrNoScenesDone, got %v", err)
	}
	for _, s := range res.Job.Scenes {
		if s.ErrorKind != types.KindCancelled {
			t.Fatalf("scene %d kind = %s", s.SceneID, s.ErrorKind)
		}
	}
	if len(provider.queries()) != 0 {
		t.Fatalf("no search expected after abort")
	}
}

func TestRun_AbortMidSceneFinishesCurrentStep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	provider := &fakeProvider{
		name:    types.SourcePexels,
		byQuery: map[string][]types.FootageResult{"a": {clip(types.SourcePexels, "a", 20)}},
		onSearch: func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		},
	}
	video := newFakeVideo()
	uc := New(Deps{
		Providers: rotation.NewState(provider),
		Cache:     &fakeCache{},
		Video:     video,
	})
	res, _ := uc.Run(ctx, Input{
		Scenes: []types.SceneAssemblyRequest{sceneReq(1, "a")},
		OutDir: t.TempDir(),
	})
	s := res.Job.Scenes[0]
	if s.ErrorKind != types.KindCancelled || s.FailedStep != types.SceneSelecting {
		t.Fatalf("expected cancel before selecting, got kind=%s step=%s", s.ErrorKind, s.FailedStep)
	}
	if len(video.cuts) != 0 {
		t.Fatalf("no cut expected after abort")
	}
}

func TestInput_Validate(t *testing.T) {
	t.Parallel()

	ok := sceneReq(1, "a")
	cases := []struct {
		name string
		in   Input
		want string
	}{
		{"no scenes", Input{OutDir: "out"}, "no scenes"},
		{"no out dir", Input{Scenes: []types.SceneAssemblyRequest{ok}}, "output directory"},
		{"duplicate id", Input{OutDir: "out", Scenes: []types.SceneAssemblyRequest{ok, ok}}, "duplicate"},
		{"no audio", Input{OutDir: "out", Scenes: []types.SceneAssemblyRequest{{SceneID: 1, SearchKeywords: []string{"a"}}}}, "narration"},
		{"no keywords", Input{OutDir: "out", Scenes: []types.SceneAssemblyRequest{{SceneID: 1, NarrationAudioPath: "x.wav"}}}, "keyword"},
		{"blank keyword", Input{OutDir: "out", Scenes: []types.SceneAssemblyRequest{sceneReq(1, " ")}}, "empty search keyword"},
		{"bad quality", Input{OutDir: "out", Quality: "4k", Scenes: []types.SceneAssemblyRequest{ok}}, "quality"},
		{"bad orientation", Input{OutDir: "out", Orientation: "square", Scenes: []types.SceneAssemblyRequest{ok}}, "orientation"},
		{"valid", Input{OutDir: "out", Scenes: []types.SceneAssemblyRequest{ok}}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestUnitBases(t *testing.T) {
	t.Parallel()

	got := unitBases([]types.SceneAssemblyRequest{
		sceneReq(1, "a", "b"),
		sceneReq(4, "c"),
		sceneReq(7, "d", "e", "f"),
	})
	want := map[int]int{1: 0, 4: 2, 7: 3}
	for id, w := range want {
		if got[id] != w {
			t.Fatalf("unit base of scene %d = %d, want %d", id, got[id], w)
		}
	}
}

func sceneReq(id int, keywords ...string) types.SceneAssemblyRequest {
	return types.SceneAssemblyRequest{
		SceneID:            id,
		NarrationAudioPath: fmt.Sprintf("/audio/%d.wav", id),
		SearchKeywords:     keywords,
	}
}

func clip(src types.Source, id string, seconds float64) types.FootageResult {
	return types.FootageResult{
		ID:              id,
		Source:          src,
		DownloadURL:     "https://example.test/" + id + ".mp4",
		Width:           1920,
		Height:          1080,
		DurationSeconds: seconds,
	}
}

type fakeProvider struct {
	name     types.Source
	byQuery  map[string][]types.FootageResult
	err      error
	onSearch func(ctx context.Context) error

	mu    sync.Mutex
	calls []string
}

func (f *fakeProvider) Name() types.Source { return f.name }

func (f *fakeProvider) Ready() bool { return true }

func (f *fakeProvider) Search(ctx context.Context, q types.Query) ([]types.FootageResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, q.Text)
	f.mu.Unlock()
	if f.onSearch != nil {
		_ = f.onSearch(ctx)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.byQuery[q.Text], nil
}

func (f *fakeProvider) queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeCache struct {
	fail map[types.Key]bool
}

func (f *fakeCache) Ensure(_ context.Context, key types.Key, url string) (ports.CacheEntry, error) {
	if f.fail[key] {
		return ports.CacheEntry{}, types.NewError(types.KindDownloadFailed, "download", "", fmt.Errorf("GET %s: status 500", url))
	}
	dur := 20.0
	switch key.ID {
	case "city":
		dur = 3
	case "forest":
		dur = 30
	}
	return ports.CacheEntry{LocalPath: "/cache/" + key.String() + ".mp4", DurationSeconds: dur}, nil
}

type muxCall struct {
	video   string
	seconds float64
	out     string
}

type fakeVideo struct {
	mu      sync.Mutex
	audio   map[string]float64
	cuts    []ports.CutRequest
	joins   [][]string
	muxes   []muxCall
	concats [][]string
}

func newFakeVideo() *fakeVideo {
	return &fakeVideo{audio: map[string]float64{}}
}

func (f *fakeVideo) ProbeDuration(_ context.Context, path string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.audio[path]; ok {
		return d, nil
	}
	return 10, nil
}

func (f *fakeVideo) Cut(_ context.Context, req ports.CutRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cuts = append(f.cuts, req)
	return nil
}

func (f *fakeVideo) JoinClips(_ context.Context, clips []string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, append([]string(nil), clips...))
	return nil
}

func (f *fakeVideo) Mux(_ context.Context, video, _ string, audioSeconds float64, out string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muxes = append(f.muxes, muxCall{video: video, seconds: audioSeconds, out: out})
	return nil
}

func (f *fakeVideo) Concat(_ context.Context, scenes []string, _ types.Preset, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.concats = append(f.concats, append([]string(nil), scenes...))
	return nil
}

func (f *fakeVideo) ExtractFrames(context.Context, string, []float64, string) ([]string, error) {
	return nil, errors.New("not used")
}

type reverseRanker struct {
	last ranking.Request
}

func (r *reverseRanker) Rank(_ context.Context, req ranking.Request) ranking.Ranking {
	r.last = req
	out := ranking.Ranking{Strategy: ranking.KeyframeProxy}
	for i := len(req.Candidates) - 1; i >= 0; i-- {
		out.Entries = append(out.Entries, ranking.Entry{Candidate: req.Candidates[i]})
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) add(kind string) {
	s.mu.Lock()
	s.events = append(s.events, kind)
	s.mu.Unlock()
}

func (s *recordingSink) Progress(types.ProgressEvent)  { s.add("progress") }
func (s *recordingSink) SceneResult(types.SceneResult) { s.add("scene") }
func (s *recordingSink) JobResult(types.JobResult)     { s.add("job") }

func (s *recordingSink) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e == kind {
			n++
		}
	}
	return n
}
