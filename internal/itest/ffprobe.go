//go:build integration

package itest

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

func probeDurationSeconds(mp4Path string) (float64, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mp4Path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

// probeVideoStream returns the first video stream's size and frame rate.
func probeVideoStream(mp4Path string) (int, int, string, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mp4Path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, 0, "", fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	lines := strings.Fields(strings.TrimSpace(string(b)))
	if len(lines) != 3 {
		return 0, 0, "", fmt.Errorf("unexpected ffprobe output %q", string(b))
	}
	w, err := strconv.Atoi(lines[0])
	if err != nil {
		return 0, 0, "", err
	}
	h, err := strconv.Atoi(lines[1])
	if err != nil {
		return 0, 0, "", err
	}
	return w, h, lines[2], nil
}
