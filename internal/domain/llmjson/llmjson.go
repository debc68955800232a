// Package llmjson pulls small JSON objects out of free-form model replies.
//
// Decoding walks a fixed chain: strict parse, then fence stripping with
// bracket repair, then field-level regex extraction. Every result reports
// which stage produced it so callers never mistake a default for an answer.
package llmjson

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

type Outcome int

const (
	Unparsed Outcome = iota
	PartiallyExtracted
	Parsed
)

func (o Outcome) String() string {
	switch o {
	case Parsed:
		return "parsed"
	case PartiallyExtracted:
		return "partially_extracted"
	default:
		return "unparsed"
	}
}

// Decode fills v from the JSON object embedded in text. It reports Parsed
// when either the raw text or its repaired form unmarshals, Unparsed
// otherwise. Field-level extraction is left to ParseScore and ParseRanking.
func Decode(text string, v any) Outcome {
	t := strings.TrimSpace(text)
	if t == "" {
		return Unparsed
	}
	if json.Unmarshal([]byte(t), v) == nil {
		return Parsed
	}
	obj, ok := extractObject(t)
	if !ok {
		return Unparsed
	}
	if json.Unmarshal([]byte(obj), v) == nil {
		return Parsed
	}
	if json.Unmarshal([]byte(repair(obj)), v) == nil {
		return Parsed
	}
	return Unparsed
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "```"); i >= 0 {
			t = t[i:]
		} else {
			return t
		}
	}
	if i := strings.Index(t, "\n"); i >= 0 {
		t = t[i+1:]
	}
	if j := strings.LastIndex(t, "```"); j >= 0 {
		t = t[:j]
	}
	return strings.TrimSpace(t)
}

// extractObject returns the first balanced {...} span. An object cut off
// before its closing brace is returned up to the end of the text so repair
// can close it.
func extractObject(s string) (string, bool) {
	t := stripFences(s)
	start := strings.Index(t, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(t); i++ {
		c := t[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return t[start : i+1], true
			}
		}
	}
	return t[start:], true
}

var trailingCommaRE = regexp.MustCompile(`,\s*([}\]])`)

// repair drops trailing commas and closes whatever brackets and string are
// still open at the end of s.
func repair(s string) string {
	var stack []byte
	inStr, esc := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(s, " \t\r\n,"))
	if inStr {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return trailingCommaRE.ReplaceAllString(b.String(), "$1")
}

var (
	scoreFieldRE  = regexp.MustCompile(`(?i)"?score"?\s*[:=]\s*"?(-?\d+(?:\.\d+)?)`)
	reasonFieldRE = regexp.MustCompile(`(?is)"?reason"?\s*[:=]\s*"((?:[^"\\]|\\.)*)"?`)
	rankingListRE = regexp.MustCompile(`(?is)"?ranking"?\s*[:=]\s*\[(.*?)(?:\]|$)`)
	indexFieldRE  = regexp.MustCompile(`(?i)"?index"?\s*[:=]\s*(\d+)`)
	bareIntRE     = regexp.MustCompile(`^\s*(\d+)\s*$`)
)

func reasonField(text string) string {
	m := reasonFieldRE.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if s, err := strconv.Unquote(`"` + m[1] + `"`); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(m[1])
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
