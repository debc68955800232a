package ranking

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/scenecut/internal/domain/llmjson"
	"github.com/forPelevin/scenecut/internal/domain/timing"
	"github.com/forPelevin/scenecut/internal/platform/redact"
	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/types"
)

// proxy downloads every candidate concurrently, pulls a few stills from
// each and asks for one best-to-worst ordering of all of them.
func (r *Ranker) proxy(ctx context.Context, req Request) (Ranking, error) {
	dir, err := r.tempDir("proxy-*")
	if err != nil {
		return Ranking{}, fmt.Errorf("proxy workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	sets := make([][]string, len(req.Candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(proxyDownloads)
	for i, c := range req.Candidates {
		g.Go(func() error {
			frames, err := r.framesFor(gctx, dir, i, c)
			if err != nil {
				r.log.Warn("keyframes unavailable", "scene_id", req.SceneID, "candidate", c.Key().String(), "error", err)
				return nil
			}
			sets[i] = frames
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Ranking{}, err
	}

	usable := make([]int, 0, len(sets))
	for i, s := range sets {
		if len(s) > 0 {
			usable = append(usable, i)
		}
	}
	if len(usable) < 2 {
		return Ranking{
			Strategy: KeyframeProxy,
			Entries:  unscored(req.Candidates),
			Reason:   fmt.Sprintf("only %d candidate(s) yielded frames", len(usable)),
			Outcome:  llmjson.Unparsed,
		}, nil
	}

	frameSets := make([]ports.FrameSet, len(usable))
	for j, i := range usable {
		frameSets[j] = ports.FrameSet{Frames: sets[i]}
	}
	text, err := r.frames.RankFrames(ctx, proxyPrompt(req, len(usable)), frameSets)
	if err != nil {
		return Ranking{}, err
	}

	parsed := llmjson.ParseRanking(text, len(usable))
	if parsed.Outcome == llmjson.Unparsed {
		perr := types.NewError(types.KindRankingParseFailed, "rank frames", "", fmt.Errorf("reply %q", redact.Truncate(text, 200)))
		r.log.Warn("ranking reply unparseable", "scene_id", req.SceneID, "error", perr)
		return Ranking{Strategy: KeyframeProxy, Entries: unscored(req.Candidates), Reason: perr.Error(), Outcome: llmjson.Unparsed}, nil
	}

	placed := make([]bool, len(req.Candidates))
	entries := make([]Entry, 0, len(req.Candidates))
	for pos, e := range parsed.Entries {
		orig := usable[e.Index]
		score := e.Score
		if !e.Scored {
			score = positionalScore(pos, len(usable))
		}
		entries = append(entries, Entry{Candidate: req.Candidates[orig], Score: score, Scored: true, Reason: parsed.Reason})
		placed[orig] = true
	}
	for i, c := range req.Candidates {
		if !placed[i] {
			entries = append(entries, Entry{Candidate: c})
		}
	}
	return Ranking{Strategy: KeyframeProxy, Entries: entries, Reason: parsed.Reason, Outcome: parsed.Outcome}, nil
}

// positionalScore spreads 100..(100/n) over a ranking that carried no
// explicit scores.
func positionalScore(pos, n int) float64 {
	if n <= 0 {
		return 0
	}
	return 100 * float64(n-pos) / float64(n)
}

func (r *Ranker) framesFor(ctx context.Context, dir string, i int, c types.FootageResult) ([]string, error) {
	url := sourceURL(c)
	if url == "" {
		return nil, errors.New("no url")
	}
	clip := filepath.Join(dir, fmt.Sprintf("candidate_%02d.mp4", i))
	if _, err := r.fetcher.Fetch(ctx, url, clip); err != nil {
		return nil, err
	}
	dur, err := r.tool.ProbeDuration(ctx, clip)
	if err != nil {
		return nil, err
	}
	outDir := filepath.Join(dir, fmt.Sprintf("frames_%02d", i))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	paths, err := r.tool.ExtractFrames(ctx, clip, timing.FrameTimestamps(dur, framesPerClip), outDir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil || len(b) == 0 {
			continue
		}
		out = append(out, base64.StdEncoding.EncodeToString(b))
	}
	if len(out) == 0 {
		return nil, errors.New("no frames extracted")
	}
	return out, nil
}

func proxyPrompt(req Request, n int) string {
	var b strings.Builder
	b.WriteString("You are choosing stock footage for one scene of a narrated short video. ")
	fmt.Fprintf(&b, "Below are %d candidate clips numbered 0 to %d, each shown as %d still frames taken across the clip. ", n, n-1, framesPerClip)
	b.WriteString("Rank all candidates from best to worst visual fit for the scene and give each a 0-100 relevance score. ")
	b.WriteString("Return strictly valid JSON (no markdown, no code fences): ")
	b.WriteString("{\"ranking\": [{\"index\": <candidate number>, \"score\": <0-100>}, ...], \"reason\": \"<one sentence>\"}.")
	fmt.Fprintf(&b, "\n\nSearch keyword: %s", req.Keyword)
	if req.Description != "" {
		fmt.Fprintf(&b, "\nScene: %s", req.Description)
	}
	if req.ScriptContext != "" {
		fmt.Fprintf(&b, "\nScript context: %s", redact.Truncate(req.ScriptContext, 1500))
	}
	return b.String()
}
