package ranking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/forPelevin/scenecut/internal/domain/llmjson"
	"github.com/forPelevin/scenecut/internal/platform/redact"
	"github.com/forPelevin/scenecut/internal/types"
)

var errNothingJudged = errors.New("no candidate could be judged")

// native uploads up to NativeCap candidates one at a time. A candidate that
// fails scores 0 with the failure as its reason and the loop moves on.
// Candidates past the cap keep their order below the judged ones.
func (r *Ranker) native(ctx context.Context, req Request) (Ranking, error) {
	dir, err := r.tempDir("native-*")
	if err != nil {
		return Ranking{}, fmt.Errorf("native workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	n := min(len(req.Candidates), NativeCap)
	judged := make([]Entry, 0, n)
	ok := 0
	for i, c := range req.Candidates[:n] {
		if err := ctx.Err(); err != nil {
			return Ranking{}, err
		}
		e, err := r.judgeOne(ctx, dir, i, c, req)
		if err != nil {
			r.log.Warn("native judge failed", "scene_id", req.SceneID, "candidate", c.Key().String(), "error", err)
			e = Entry{Candidate: c, Score: 0, Scored: true, Reason: err.Error()}
		} else {
			ok++
		}
		judged = append(judged, e)
	}
	if ok == 0 {
		return Ranking{}, errNothingJudged
	}

	sort.SliceStable(judged, func(i, j int) bool { return judged[i].Score > judged[j].Score })
	entries := append(judged, unscored(req.Candidates[n:])...)
	return Ranking{Strategy: NativeVideo, Entries: entries, Outcome: llmjson.Parsed}, nil
}

func (r *Ranker) judgeOne(ctx context.Context, dir string, i int, c types.FootageResult, req Request) (Entry, error) {
	path := filepath.Join(dir, fmt.Sprintf("candidate_%02d.mp4", i))
	defer os.Remove(path)

	if _, err := r.fetcher.Fetch(ctx, sourceURL(c), path); err != nil {
		return Entry{}, err
	}
	text, err := r.judge.JudgeVideo(ctx, path, nativePrompt(req, c))
	if err != nil {
		return Entry{}, err
	}
	s := llmjson.ParseScore(text)
	if s.Outcome == llmjson.Unparsed {
		return Entry{}, types.NewError(types.KindRankingParseFailed, "judge video", "", fmt.Errorf("reply %q", redact.Truncate(text, 200)))
	}
	return Entry{Candidate: c, Score: s.Score, Scored: true, Reason: s.Reason}, nil
}

func nativePrompt(req Request, c types.FootageResult) string {
	var b strings.Builder
	b.WriteString("You are choosing stock footage for one scene of a narrated short video. ")
	b.WriteString("Watch the attached clip and rate how well it visually fits the scene on a 0-100 scale. ")
	b.WriteString("Return strictly valid JSON (no markdown, no code fences): {\"score\": <0-100>, \"reason\": \"<one sentence>\"}.")
	fmt.Fprintf(&b, "\n\nSearch keyword: %s", req.Keyword)
	if req.Description != "" {
		fmt.Fprintf(&b, "\nScene: %s", req.Description)
	}
	if req.ScriptContext != "" {
		fmt.Fprintf(&b, "\nScript context: %s", redact.Truncate(req.ScriptContext, 1500))
	}
	if c.Title != "" {
		fmt.Fprintf(&b, "\nClip title: %s", c.Title)
	}
	return b.String()
}
