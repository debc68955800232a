package selection

import (
	"sort"

	"github.com/samber/lo"

	"github.com/forPelevin/scenecut/internal/types"
)

// DurationScore rates how well a clip length fits the target (0..40).
// A target of 0 means unknown and scores a flat 20.
func DurationScore(durationSeconds, targetSeconds float64) float64 {
	if targetSeconds <= 0 {
		return 20
	}
	ratio := durationSeconds / targetSeconds
	switch {
	case ratio >= 1.0 && ratio <= 2.0:
		return 40
	case ratio >= 0.8 && ratio < 1.0:
		return 30
	case ratio > 2.0 && ratio <= 3.0:
		return 25
	case ratio > 3.0:
		return 15
	default:
		s := 20 * ratio
		if s < 0 {
			return 0
		}
		return s
	}
}

// ResolutionScore rates the frame height (5..30).
func ResolutionScore(height int) float64 {
	switch {
	case height >= 1080:
		return 30
	case height >= 720:
		return 25
	case height >= 480:
		return 15
	default:
		return 5
	}
}

const noveltyPoints = 30

// Score totals duration fit, resolution and novelty. A nil ledger counts
// every candidate as unseen.
func Score(c types.FootageResult, targetSeconds float64, ledger *Ledger) float64 {
	s := DurationScore(c.DurationSeconds, targetSeconds) + ResolutionScore(c.Height)
	if !ledger.Contains(c.Key()) {
		s += noveltyPoints
	}
	return s
}

// Rank scores every candidate and orders them best first. Equal scores keep
// their input order.
func Rank(cands []types.FootageResult, targetSeconds float64, ledger *Ledger) []types.ScoredCandidate {
	out := lo.Map(cands, func(c types.FootageResult, _ int) types.ScoredCandidate {
		return types.ScoredCandidate{Result: c, Score: Score(c, targetSeconds, ledger)}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Select returns the single best candidate without touching the ledger.
func Select(cands []types.FootageResult, targetSeconds float64, ledger *Ledger) (types.ScoredCandidate, bool) {
	ranked := Rank(cands, targetSeconds, ledger)
	if len(ranked) == 0 {
		return types.ScoredCandidate{}, false
	}
	return ranked[0], true
}

// Prefilter drops candidates shorter than minSeconds. When fewer than two
// survive, every original candidate is returned longest first so the scene
// still gets footage that can be trimmed. Equal lengths keep their incoming
// (ranked) order.
func Prefilter(cands []types.FootageResult, minSeconds float64) []types.FootageResult {
	if minSeconds <= 0 {
		return cands
	}
	kept := lo.Filter(cands, func(c types.FootageResult, _ int) bool {
		return c.DurationSeconds >= minSeconds
	})
	if len(kept) >= 2 {
		return kept
	}
	all := make([]types.FootageResult, len(cands))
	copy(all, cands)
	sort.SliceStable(all, func(i, j int) bool { return all[i].DurationSeconds > all[j].DurationSeconds })
	return all
}
