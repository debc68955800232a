package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/types"
)

func TestRankFrames_SendsImagesAndReturnsText(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Content []map[string]any `json:"content"`
		} `json:"messages"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ranking\":[1,0],\"reason\":\"ok\"}"}}]}`))
	}))
	defer srv.Close()

	a := New("sk-test", "vision/model", srv.URL)
	out, err := a.RankFrames(context.Background(), "rank these", []ports.FrameSet{
		{Frames: []string{"AAA", "BBB"}},
		{Frames: []string{"CCC"}},
	})
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if out != `{"ranking":[1,0],"reason":"ok"}` {
		t.Fatalf("content = %q", out)
	}
	if auth != "Bearer sk-test" || got.Model != "vision/model" {
		t.Fatalf("auth=%q model=%q", auth, got.Model)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("expected one message")
	}
	parts := got.Messages[0].Content
	// prompt, label 0, 2 images, label 1, 1 image
	if len(parts) != 6 {
		t.Fatalf("expected 6 content parts, got %d", len(parts))
	}
	if parts[0]["text"] != "rank these" || parts[1]["text"] != "Candidate 0:" || parts[4]["text"] != "Candidate 1:" {
		t.Fatalf("unexpected text parts: %v", parts)
	}
	img, _ := parts[2]["image_url"].(map[string]any)
	if img["url"] != "data:image/jpeg;base64,AAA" {
		t.Fatalf("unexpected image part: %v", parts[2])
	}
}

func TestRankFrames_AuthErrorIsRedactedAndTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`invalid key sk-or-v1-super-secret`))
	}))
	defer srv.Close()

	_, err := New("sk-or-v1-super-secret", "", srv.URL).RankFrames(context.Background(), "p", nil)
	if !errors.Is(err, types.ErrProviderUnavailable) {
		t.Fatalf("expected ProviderUnavailable, got %v", err)
	}
	if strings.Contains(err.Error(), "super-secret") {
		t.Fatalf("key leaked: %v", err)
	}
}

func TestRankFrames_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if _, err := New("k", "", srv.URL).RankFrames(context.Background(), "p", nil); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestMessageContentToString(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    string
		wantErr bool
	}{
		{"string", "hello", "hello", false},
		{"parts", []any{map[string]any{"type": "text", "text": "a"}, map[string]any{"type": "text", "text": "b"}}, "ab", false},
		{"blank", "  ", "", true},
		{"number", 3.0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := messageContentToString(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Fatalf("got %q, %v", got, err)
			}
		})
	}
}

func TestNew_DefaultModel(t *testing.T) {
	if got := New("k", "", "").Model(); got != defaultModel {
		t.Fatalf("Model() = %q, want %q", got, defaultModel)
	}
	if got := New("k", "openai/gpt-4o", "").Model(); got != "openai/gpt-4o" {
		t.Fatalf("Model() = %q", got)
	}
}
