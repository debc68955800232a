package usecase

import (
	"context"
	"fmt"

	"github.com/forPelevin/scenecut/internal/types"
)

// search asks the unit's assigned provider first and falls through the
// remaining providers while they return nothing. Provider errors count as
// empty results but are logged.
func (j *job) search(ctx context.Context, unit int, q types.Query) ([]types.FootageResult, error) {
	providers := j.u.d.Providers.Order(unit)
	if len(providers) == 0 {
		return nil, types.NewError(types.KindProviderUnavailable, "search", "", fmt.Errorf("no footage provider configured"))
	}
	var lastErr error
	for _, p := range providers {
		res, err := p.Search(ctx, q)
		if err != nil {
			lastErr = err
			j.log.Warn("provider search failed",
				"provider", string(p.Name()),
				"query", q.Text,
				"kind", string(types.KindOf(err)),
				"error", err,
			)
			continue
		}
		if len(res) == 0 {
			j.log.Info("provider returned no results", "provider", string(p.Name()), "query", q.Text)
			continue
		}
		j.log.Debug("provider results", "provider", string(p.Name()), "query", q.Text, "count", len(res))
		return res, nil
	}
	err := fmt.Errorf("no footage for %q from %d providers", q.Text, len(providers))
	if lastErr != nil {
		err = fmt.Errorf("%w (last error: %v)", err, lastErr)
	}
	return nil, &types.Error{Kind: types.KindNoResults, Op: "search", Err: err}
}
