package openrouter

import "github.com/forPelevin/scenecut/internal/platform/baseurl"

var baseURLRule = baseurl.Rule{
	Env:          "OPENROUTER_BASE_URL",
	AllowEnv:     "OPENROUTER_ALLOWED_HOSTS",
	Default:      "https://openrouter.ai",
	DefaultHosts: []string{"openrouter.ai", "api.openrouter.ai"},
}

func normalizeBaseURL(baseURL string) string {
	return baseURLRule.Normalize(baseURL)
}

func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	return baseURLRule.Validate(baseURL, allowedHosts)
}
