package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/scenecut/internal/domain/timing"
	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/types"
)

const (
	probeTimeout  = 60 * time.Second
	cutTimeout    = 300 * time.Second
	joinTimeout   = 300 * time.Second
	muxTimeout    = 300 * time.Second
	concatTimeout = 600 * time.Second
	framesTimeout = 60 * time.Second

	frameWidth = 512
	maxOutput  = 2000
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, toolError(ctx, types.KindProbeFailed, "ffprobe duration", "ffprobe", err, b)
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, types.NewError(types.KindProbeFailed, "ffprobe duration", "ffprobe", fmt.Errorf("parse duration %q: %w", s, err))
	}
	if sec <= 0 {
		return 0, types.NewError(types.KindProbeFailed, "ffprobe duration", "ffprobe", fmt.Errorf("non-positive duration %q in %s", s, path))
	}
	return sec, nil
}

// Cut re-encodes req.Source to exactly req.TargetSeconds of silent video,
// looping the source when it is too short.
func (a *Adapter) Cut(ctx context.Context, req ports.CutRequest) error {
	if req.TargetSeconds <= 0 {
		return types.NewError(types.KindTranscodeFailed, "ffmpeg cut", "ffmpeg", fmt.Errorf("target duration %.3f must be positive", req.TargetSeconds))
	}
	return a.run(ctx, "cut", cutTimeout, cutArgs(req))
}

func (a *Adapter) JoinClips(ctx context.Context, clips []string, out string) error {
	if len(clips) == 0 {
		return types.NewError(types.KindTranscodeFailed, "ffmpeg join", "ffmpeg", errors.New("no clips to join"))
	}
	return a.run(ctx, "join", joinTimeout, joinArgs(clips, out))
}

func (a *Adapter) Mux(ctx context.Context, video, audio string, audioSeconds float64, out string) error {
	return a.run(ctx, "mux", muxTimeout, muxArgs(video, audio, audioSeconds, out))
}

func (a *Adapter) Concat(ctx context.Context, scenes []string, preset types.Preset, out string) error {
	if len(scenes) == 0 {
		return types.NewError(types.KindTranscodeFailed, "ffmpeg concat", "ffmpeg", errors.New("no scenes to concatenate"))
	}
	return a.run(ctx, "concat", concatTimeout, concatArgs(scenes, preset, out))
}

// ExtractFrames writes one JPEG per timestamp into outDir and returns their
// paths in timestamp order.
func (a *Adapter) ExtractFrames(ctx context.Context, src string, timestamps []float64, outDir string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, framesTimeout)
	defer cancel()
	out := make([]string, 0, len(timestamps))
	for i, ts := range timestamps {
		dst := filepath.Join(outDir, fmt.Sprintf("frame_%02d.jpg", i))
		cmd := exec.CommandContext(ctx, a.ffmpeg, frameArgs(src, ts, dst)...)
		b, err := cmd.CombinedOutput()
		if err != nil {
			return out, toolError(ctx, types.KindTranscodeFailed, "ffmpeg frames", "ffmpeg", err, b)
		}
		out = append(out, dst)
	}
	return out, nil
}

func (a *Adapter) run(ctx context.Context, op string, timeout time.Duration, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return toolError(ctx, types.KindTranscodeFailed, "ffmpeg "+op, "ffmpeg", err, b)
	}
	return nil
}

// toolError keeps the tail of the tool output, where ffmpeg prints the
// actual failure.
func toolError(ctx context.Context, kind types.ErrorKind, op, tool string, err error, output []byte) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return types.NewError(kind, op, tool, fmt.Errorf("%w\n%s", err, tail(string(output), maxOutput)))
}

func cutArgs(req ports.CutRequest) []string {
	args := []string{"-y"}
	if loops := timing.LoopCount(req.SourceSeconds, req.TargetSeconds); loops > 1 {
		args = append(args, "-stream_loop", strconv.Itoa(loops-1))
	}
	args = append(args,
		"-i", req.Source,
		"-t", fmtSeconds(req.TargetSeconds),
		"-an",
		"-vf", videoFilter(req.Width, req.Height),
		"-r", strconv.Itoa(timing.FPS),
	)
	args = append(args, x264Args()...)
	return append(args, req.Output)
}

func joinArgs(clips []string, out string) []string {
	args := []string{"-y"}
	for _, c := range clips {
		args = append(args, "-i", c)
	}
	var fc strings.Builder
	for i := range clips {
		fmt.Fprintf(&fc, "[%d:v]fps=%d,setsar=1[v%d];", i, timing.FPS, i)
	}
	for i := range clips {
		fmt.Fprintf(&fc, "[v%d]", i)
	}
	fmt.Fprintf(&fc, "concat=n=%d:v=1:a=0[outv]", len(clips))
	args = append(args,
		"-filter_complex", fc.String(),
		"-map", "[outv]",
		"-an",
		"-r", strconv.Itoa(timing.FPS),
	)
	args = append(args, x264Args()...)
	return append(args, out)
}

// muxArgs caps the output at the narration length rather than at the
// shorter stream.
func muxArgs(video, audio string, audioSeconds float64, out string) []string {
	return []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", fmtSeconds(audioSeconds),
		out,
	}
}

func concatArgs(scenes []string, p types.Preset, out string) []string {
	args := []string{"-y"}
	for _, s := range scenes {
		args = append(args, "-i", s)
	}
	var fc strings.Builder
	for i := range scenes {
		fmt.Fprintf(&fc, "[%d:v]%s[v%d];[%d:a]aresample=48000[a%d];", i, videoFilter(p.Width, p.Height), i, i, i)
	}
	for i := range scenes {
		fmt.Fprintf(&fc, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&fc, "concat=n=%d:v=1:a=1[outv][outa]", len(scenes))
	args = append(args,
		"-filter_complex", fc.String(),
		"-map", "[outv]",
		"-map", "[outa]",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-b:v", p.Bitrate,
		"-maxrate", p.Bitrate,
		"-bufsize", doubleRate(p.Bitrate),
		"-r", strconv.Itoa(timing.FPS),
		"-fps_mode", "cfr",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		out,
	)
	return args
}

func frameArgs(src string, ts float64, dst string) []string {
	return []string{
		"-y",
		"-ss", fmtSeconds(ts),
		"-i", src,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", frameWidth),
		"-q:v", "3",
		dst,
	}
}

// videoFilter letterboxes into w x h at the fixed frame rate. Without a
// geometry only the frame rate is normalized.
func videoFilter(w, h int) string {
	if w <= 0 || h <= 0 {
		return fmt.Sprintf("fps=%d,setsar=1", timing.FPS)
	}
	return fmt.Sprintf(
		"fps=%d,scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		timing.FPS, w, h, w, h,
	)
}

func x264Args() []string {
	return []string{
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-pix_fmt", "yuv420p",
	}
}

func doubleRate(rate string) string {
	num := strings.TrimSuffix(rate, "k")
	n, err := strconv.Atoi(num)
	if err != nil || num == rate {
		return rate
	}
	return strconv.Itoa(2*n) + "k"
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

var _ ports.VideoTool = (*Adapter)(nil)
