package extractor

import (
	"context"
	"math"

	"survey-collector/deduplicator"
	"survey-collector/logger"
	"survey-collector/types"
)

// Threshold is the pool size at which the expander stops pulling issues
func (e *Extractor) Threshold(target int) int {
	return int(math.Ceil(e.cfg.QuotaMargin * float64(target)))
}

// AccumulateUntilEnough expands issues in order until the unique link pool
// reaches Threshold(target). It returns the pool and the number of issues read.
func (e *Extractor) AccumulateUntilEnough(ctx context.Context, issues []types.IssueRef, target int) ([]types.ArticleLink, int, error) {
	return e.accumulate(ctx, e.logger, issues, target)
}

func (e *Extractor) accumulate(ctx context.Context, log *logger.Logger, issues []types.IssueRef, target int) ([]types.ArticleLink, int, error) {
	threshold := e.Threshold(target)
	pool := deduplicator.NewLinkSet()
	scanned := 0

	for _, issue := range issues {
		if pool.Len() >= threshold {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, scanned, logger.NewAppError(logger.ErrorTypeIssueFetch, "expansion cancelled", err)
		}

		links, err := e.source.IssueLinks(ctx, issue)
		if err != nil {
			return nil, scanned, err
		}
		scanned++

		added := pool.Add(links...)
		log.Debug("Issue expanded", map[string]interface{}{
			"issue": issue.String(),
			"links": len(links),
			"added": added,
			"pool":  pool.Len(),
		})
	}

	log.InfoWithCount("Link pool built", pool.Len(), map[string]interface{}{
		"event":            "expansion_complete",
		"threshold":        threshold,
		"issues_scanned":   scanned,
		"issues_available": len(issues),
		"duplicate_links":  pool.Duplicates(),
	})

	return pool.Links(), scanned, nil
}
