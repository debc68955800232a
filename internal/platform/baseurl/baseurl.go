// Package baseurl checks operator-supplied API base URLs before any
// credential is sent to them.
package baseurl

import (
	"fmt"
	"net/url"
	"strings"
)

// Rule describes the acceptable base URLs of one API.
type Rule struct {
	// Env names the setting in error messages, e.g. "OPENROUTER_BASE_URL".
	Env string
	// AllowEnv names the allow-list setting, e.g. "OPENROUTER_ALLOWED_HOSTS".
	AllowEnv string
	Default  string
	// DefaultHosts apply when the operator allow-list is empty.
	DefaultHosts []string
}

// Normalize trims the URL and its trailing slashes, falling back to the
// rule's default.
func (r Rule) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = r.Default
	}
	return strings.TrimRight(raw, "/")
}

// Validate accepts only absolute https URLs without userinfo, query or
// fragment whose host is allowed.
func (r Rule) Validate(raw string, allowedHosts []string) error {
	raw = r.Normalize(raw)

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", r.Env, err)
	}
	switch {
	case !u.IsAbs() || u.Host == "":
		return r.invalid(raw, "absolute URL with host is required")
	case u.User != nil:
		return r.invalid(raw, "userinfo is not allowed")
	case u.RawQuery != "" || u.Fragment != "":
		return r.invalid(raw, "query and fragment are not allowed")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return r.invalid(raw, "host is required")
	}
	if strings.ToLower(u.Scheme) != "https" {
		return r.invalid(raw, "https is required")
	}
	if _, ok := r.allowed(allowedHosts)[host]; !ok {
		return r.invalid(raw, fmt.Sprintf("host %q is not in %s", host, r.AllowEnv))
	}
	return nil
}

func (r Rule) invalid(raw, reason string) error {
	return fmt.Errorf("invalid %s %q: %s", r.Env, raw, reason)
}

func (r Rule) allowed(hosts []string) map[string]struct{} {
	if out := NormalizeHosts(hosts); len(out) > 0 {
		return out
	}
	return NormalizeHosts(r.DefaultHosts)
}

// NormalizeHosts lowercases hosts and strips schemes, ports and slashes.
// Blank entries are dropped.
func NormalizeHosts(hosts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if i := strings.Index(v, ":"); i >= 0 {
			v = v[:i]
		}
		if v == "" {
			continue
		}
		out[v] = struct{}{}
	}
	return out
}
