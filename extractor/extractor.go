package extractor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"survey-collector/config"
	"survey-collector/deduplicator"
	"survey-collector/logger"
	"survey-collector/types"
)

// Source is the upstream the extractor reads from. *ieee.Client implements it.
type Source interface {
	MagazineName(ctx context.Context) (string, error)
	ListIssues(ctx context.Context, cutoffYear int) ([]types.IssueRef, error)
	IssueLinks(ctx context.Context, issue types.IssueRef) ([]types.ArticleLink, error)
	FetchArticle(ctx context.Context, link types.ArticleLink, position int) (types.ParsedArticle, error)
}

// Extractor runs the resolve, expand, fetch and finalize stages
type Extractor struct {
	source Source
	cfg    config.ExtractionConfig
	dedup  *deduplicator.Deduplicator
	logger *logger.Logger
	now    func() time.Time
}

// NewExtractor creates an extractor over source
func NewExtractor(source Source, cfg config.ExtractionConfig, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.New("extractor")
	}
	if cfg.QuotaMargin < 1 {
		cfg.QuotaMargin = config.DefaultQuotaMargin
	}
	if cfg.LookaheadYears < 0 {
		cfg.LookaheadYears = 0
	}

	return &Extractor{
		source: source,
		cfg:    cfg,
		dedup:  deduplicator.NewDeduplicator(log),
		logger: log,
		now:    time.Now,
	}
}

// Extract runs one extraction. Catalog and issue level failures abort the run;
// per-article failures are logged and counted in the result stats.
func (e *Extractor) Extract(ctx context.Context, req types.ExtractionRequest) (*types.ExtractionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, logger.NewAppError(logger.ErrorTypeRequest, "invalid extraction request", err)
	}

	startTime := e.now()
	req = req.WithDefaults(startTime)
	workers := e.workerCount(req.Parallelism)
	cutoff := types.EffectiveCutoff(req.Since, e.cfg.LookaheadYears)

	traceID := uuid.New().String()
	log := e.logger.WithTraceID(traceID)
	log.Info("Starting extraction", map[string]interface{}{
		"event":   "extraction_start",
		"count":   req.Count,
		"since":   req.Since.Format("2006-01-02"),
		"cutoff":  cutoff.Format("2006-01-02"),
		"workers": workers,
	})

	magazine, err := e.source.MagazineName(ctx)
	if err != nil {
		return nil, err
	}

	issues, err := e.source.ListIssues(ctx, cutoff.Year())
	if err != nil {
		return nil, err
	}

	links, scanned, err := e.accumulate(ctx, log, issues, req.Count)
	if err != nil {
		return nil, err
	}

	records, fetchStats := e.fetchAll(ctx, log, links, magazine, cutoff, workers)

	unique, dedupStats := e.dedup.DeduplicateWithStats(records)
	final := Finalize(unique, req.Count)

	result := &types.ExtractionResult{
		TraceID:  traceID,
		Magazine: magazine,
		Request:  req,
		Cutoff:   cutoff,
		Records:  final,
		Count:    len(final),
		Stats: types.ExtractionStats{
			IssuesAvailable:   len(issues),
			IssuesScanned:     scanned,
			LinksCollected:    len(links),
			DuplicatesRemoved: dedupStats.DuplicateCount,
			Fetch:             fetchStats,
		},
		Timestamp: startTime,
	}

	log.InfoWithDuration("Extraction completed", e.now().Sub(startTime), map[string]interface{}{
		"event":    "extraction_complete",
		"magazine": magazine,
		"returned": result.Count,
		"stats":    result.Stats,
	})

	return result, nil
}

// workerCount resolves the fan-out width: request, then config, then the CPU default
func (e *Extractor) workerCount(requested int) int {
	if requested > 0 {
		return requested
	}
	if e.cfg.Parallelism > 0 {
		return e.cfg.Parallelism
	}
	return DefaultParallelism()
}
