package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/scenecut/internal/domain/rotation"
	"github.com/forPelevin/scenecut/internal/pipeline"
)

// configFromEnv fills everything that does not come from flags.
func configFromEnv() (pipeline.Config, error) {
	workers, err := getenvInt("SCENECUT_WORKERS", 0)
	if err != nil {
		return pipeline.Config{}, err
	}
	scenes, err := getenvInt("SCENECUT_SCENE_CONCURRENCY", 0)
	if err != nil {
		return pipeline.Config{}, err
	}
	maxAge, err := getenvDuration("SCENECUT_CACHE_MAX_AGE", 0)
	if err != nil {
		return pipeline.Config{}, err
	}

	return pipeline.Config{
		CacheDir:         getenvDefault("SCENECUT_CACHE_DIR", ".cache"),
		CacheMaxAge:      maxAge,
		Workers:          workers,
		SceneConcurrency: scenes,

		FFmpegPath:  getenvDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getenvDefault("FFPROBE_PATH", "ffprobe"),

		PexelsKeys:     rotation.ParseKeyPool(os.Getenv("PEXELS_API_KEYS")),
		PexelsBaseURL:  os.Getenv("PEXELS_BASE_URL"),
		PixabayKeys:    rotation.ParseKeyPool(os.Getenv("PIXABAY_API_KEYS")),
		PixabayBaseURL: os.Getenv("PIXABAY_BASE_URL"),

		OpenRouterAPIKey:       os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:        os.Getenv("OPENROUTER_MODEL"),
		OpenRouterBaseURL:      getenvDefault("OPENROUTER_BASE_URL", "https://openrouter.ai"),
		OpenRouterAllowedHosts: splitList(os.Getenv("OPENROUTER_ALLOWED_HOSTS")),

		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        os.Getenv("GEMINI_MODEL"),
		GeminiBaseURL:      os.Getenv("GEMINI_BASE_URL"),
		GeminiAllowedHosts: splitList(os.Getenv("GEMINI_ALLOWED_HOSTS")),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisChannel: os.Getenv("REDIS_CHANNEL"),
	}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getenvDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
