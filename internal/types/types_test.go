package types

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("scene 3: %w", NewError(KindDownloadFailed, "download", "pexels", errors.New("status 500")))
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected DownloadFailed to match")
	}
	if errors.Is(err, ErrProbeFailed) {
		t.Fatalf("kinds must not cross-match")
	}
	if got := KindOf(err); got != KindDownloadFailed {
		t.Fatalf("KindOf = %s", got)
	}
	want := "DownloadFailed: download [pexels]: status 500"
	var te *Error
	if !errors.As(err, &te) || te.Error() != want {
		t.Fatalf("message = %q, want %q", te.Error(), want)
	}
}

func TestNewError_ContextOverridesKind(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{context.DeadlineExceeded, KindTimeout},
		{fmt.Errorf("wrapped: %w", context.Canceled), KindCancelled},
		{errors.New("boom"), KindTranscodeFailed},
	}
	for _, tc := range cases {
		if got := NewError(KindTranscodeFailed, "cut", "ffmpeg", tc.err).Kind; got != tc.want {
			t.Fatalf("NewError(%v).Kind = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ""},
		{errors.New("plain"), ""},
		{context.DeadlineExceeded, KindTimeout},
		{context.Canceled, KindCancelled},
		{&Error{Kind: KindNoResults}, KindNoResults},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		ok, failed int
		want       JobStatus
	}{
		{5, 0, JobSuccess},
		{4, 1, JobPartialSuccess},
		{0, 5, JobFailed},
		{0, 0, JobFailed},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.ok, tc.failed); got != tc.want {
			t.Fatalf("StatusFor(%d, %d) = %s, want %s", tc.ok, tc.failed, got, tc.want)
		}
	}
}

func TestQualityPreset(t *testing.T) {
	p := Quality1080p.Preset(Landscape)
	if p.Width != 1920 || p.Height != 1080 || p.Bitrate != "6000k" {
		t.Fatalf("1080p landscape = %+v", p)
	}
	p = Quality720p.Preset(Portrait)
	if p.Width != 720 || p.Height != 1280 {
		t.Fatalf("720p portrait = %+v", p)
	}
	if Quality("4k").Valid() {
		t.Fatalf("4k must be invalid")
	}
	if p := Quality("").Preset(Landscape); p.Height != 720 {
		t.Fatalf("unknown quality should fall back to 720p, got %+v", p)
	}
}

func TestKeyString(t *testing.T) {
	r := FootageResult{ID: "42", Source: SourcePixabay}
	if got := r.Key().String(); got != "pixabay_42" {
		t.Fatalf("key = %q", got)
	}
}
