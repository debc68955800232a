package llmjson

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Score is a single-clip verdict on a 0..100 scale.
type Score struct {
	Outcome Outcome
	Score   float64
	Reason  string
}

// ParseScore reads a {"score": n, "reason": "..."} reply.
func ParseScore(text string) Score {
	var raw struct {
		Score  *float64 `json:"score"`
		Reason string   `json:"reason"`
	}
	if Decode(text, &raw) == Parsed && raw.Score != nil {
		return Score{Outcome: Parsed, Score: clamp(*raw.Score, 0, 100), Reason: strings.TrimSpace(raw.Reason)}
	}
	m := scoreFieldRE.FindStringSubmatch(text)
	if m == nil {
		return Score{Outcome: Unparsed}
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Score{Outcome: Unparsed}
	}
	return Score{Outcome: PartiallyExtracted, Score: clamp(v, 0, 100), Reason: reasonField(text)}
}

type RankEntry struct {
	Index int
	// Score is meaningful only when Scored is set.
	Score  float64
	Scored bool
}

// Ranking is a best-to-worst ordering of candidate indexes with one shared
// reason.
type Ranking struct {
	Outcome Outcome
	Entries []RankEntry
	Reason  string
}

// ParseRanking reads a {"ranking": [...], "reason": "..."} reply where each
// ranking element is either a bare index or {"index": i, "score": s}.
// Indexes outside [0,n) and repeats are dropped.
func ParseRanking(text string, n int) Ranking {
	var raw struct {
		Ranking []json.RawMessage `json:"ranking"`
		Reason  string            `json:"reason"`
	}
	if Decode(text, &raw) == Parsed && raw.Ranking != nil {
		entries := make([]RankEntry, 0, len(raw.Ranking))
		for _, item := range raw.Ranking {
			if e, ok := decodeEntry(item); ok {
				entries = append(entries, e)
			}
		}
		entries = dedupe(entries, n)
		if len(entries) > 0 {
			return Ranking{Outcome: Parsed, Entries: entries, Reason: strings.TrimSpace(raw.Reason)}
		}
	}

	m := rankingListRE.FindStringSubmatch(text)
	if m == nil {
		return Ranking{Outcome: Unparsed}
	}
	entries := extractEntries(m[1])
	entries = dedupe(entries, n)
	if len(entries) == 0 {
		return Ranking{Outcome: Unparsed}
	}
	return Ranking{Outcome: PartiallyExtracted, Entries: entries, Reason: reasonField(text)}
}

func decodeEntry(item json.RawMessage) (RankEntry, bool) {
	var idx int
	if json.Unmarshal(item, &idx) == nil {
		return RankEntry{Index: idx}, true
	}
	var obj struct {
		Index *int     `json:"index"`
		Score *float64 `json:"score"`
	}
	if json.Unmarshal(item, &obj) != nil || obj.Index == nil {
		return RankEntry{}, false
	}
	e := RankEntry{Index: *obj.Index}
	if obj.Score != nil {
		e.Score, e.Scored = clamp(*obj.Score, 0, 100), true
	}
	return e, true
}

// extractEntries scans the body of a ranking array that failed to decode.
func extractEntries(body string) []RankEntry {
	var out []RankEntry
	if strings.Contains(body, "{") {
		for _, part := range strings.Split(body, "}") {
			im := indexFieldRE.FindStringSubmatch(part)
			if im == nil {
				continue
			}
			idx, _ := strconv.Atoi(im[1])
			e := RankEntry{Index: idx}
			if sm := scoreFieldRE.FindStringSubmatch(part); sm != nil {
				if v, err := strconv.ParseFloat(sm[1], 64); err == nil {
					e.Score, e.Scored = clamp(v, 0, 100), true
				}
			}
			out = append(out, e)
		}
		return out
	}
	for _, part := range strings.Split(body, ",") {
		if im := bareIntRE.FindStringSubmatch(part); im != nil {
			idx, _ := strconv.Atoi(im[1])
			out = append(out, RankEntry{Index: idx})
		}
	}
	return out
}

func dedupe(entries []RankEntry, n int) []RankEntry {
	seen := make(map[int]bool, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if e.Index < 0 || e.Index >= n || seen[e.Index] {
			continue
		}
		seen[e.Index] = true
		out = append(out, e)
	}
	return out
}
