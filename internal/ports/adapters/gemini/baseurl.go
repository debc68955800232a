package gemini

import "github.com/forPelevin/scenecut/internal/platform/baseurl"

var baseURLRule = baseurl.Rule{
	Env:          "GEMINI_BASE_URL",
	AllowEnv:     "GEMINI_ALLOWED_HOSTS",
	Default:      "https://generativelanguage.googleapis.com",
	DefaultHosts: []string{"generativelanguage.googleapis.com"},
}

func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	return baseURLRule.Validate(baseURL, allowedHosts)
}
