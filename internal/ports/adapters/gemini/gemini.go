package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/forPelevin/scenecut/internal/platform/redact"
	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/types"
)

const (
	defaultModel   = "gemini-2.0-flash"
	requestTimeout = 120 * time.Second

	// MaxInlineBytes is the largest request the inline upload path accepts.
	MaxInlineBytes = 20 << 20
)

// Adapter judges whole video clips with a video-capable Gemini model.
type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

func New(apiKey, model, baseURL string) *Adapter {
	if model == "" {
		model = defaultModel
	}
	baseURL = baseURLRule.Normalize(baseURL)
	return &Adapter{key: apiKey, model: model, baseURL: baseURL, client: &http.Client{Timeout: 5 * time.Minute}}
}

func (a *Adapter) Model() string { return a.model }

func (a *Adapter) JudgeVideo(ctx context.Context, videoPath, prompt string) (string, error) {
	st, err := os.Stat(videoPath)
	if err != nil {
		return "", fmt.Errorf("stat video: %w", err)
	}
	// base64 grows the payload by a third.
	if st.Size()*4/3 > MaxInlineBytes {
		return "", fmt.Errorf("gemini: video %s is %d bytes, too large for inline upload", videoPath, st.Size())
	}
	raw, err := os.ReadFile(videoPath)
	if err != nil {
		return "", fmt.Errorf("read video: %w", err)
	}

	payload := map[string]any{
		"contents": []map[string]any{{
			"role": "user",
			"parts": []map[string]any{
				{"inline_data": map[string]any{"mime_type": "video/mp4", "data": base64.StdEncoding.EncodeToString(raw)}},
				{"text": prompt},
			},
		}},
		"generationConfig": map[string]any{
			"temperature":      0.2,
			"responseMimeType": "application/json",
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", a.baseURL, url.PathEscape(a.model))

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctxErr := reqCtx.Err(); ctxErr != nil {
			return "", types.NewError(types.KindTimeout, "judge video", "gemini", ctxErr)
		}
		return "", fmt.Errorf("gemini request: %s", redact.Secrets(err.Error(), a.key))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		err := fmt.Errorf("gemini status %d: %s", resp.StatusCode, redact.Truncate(redact.Secrets(string(rb), a.key), 400))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", types.NewError(types.KindProviderUnavailable, "judge video", "gemini", err)
		}
		return "", err
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gemini decode: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", errors.New("gemini: no candidates")
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("gemini: empty content (finish=%s)", out.Candidates[0].FinishReason)
	}
	return b.String(), nil
}

var _ ports.VideoJudge = (*Adapter)(nil)
