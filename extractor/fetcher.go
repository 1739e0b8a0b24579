package extractor

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"survey-collector/ieee"
	"survey-collector/logger"
	"survey-collector/types"
)

type positioned struct {
	pos    int
	record types.ArticleRecord
}

// collector is the append-only destination shared by all shard workers
type collector struct {
	mu      sync.Mutex
	entries []positioned
}

func (c *collector) add(pos int, record types.ArticleRecord) {
	c.mu.Lock()
	c.entries = append(c.entries, positioned{pos: pos, record: record})
	c.mu.Unlock()
}

// records returns the collected records in link pool order.
// Only call it after every worker has returned.
func (c *collector) records() []types.ArticleRecord {
	sort.Slice(c.entries, func(i, j int) bool { return c.entries[i].pos < c.entries[j].pos })

	records := make([]types.ArticleRecord, len(c.entries))
	for i, entry := range c.entries {
		records[i] = entry.record
	}
	return records
}

type fetchCounters struct {
	fetched  atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64
	excluded atomic.Int64
}

// FetchAll fetches every link, one goroutine per non-empty shard, and returns
// once all of them have finished. Records dated after cutoff are excluded.
// Records are returned in link pool order whatever order the workers finish in.
func (e *Extractor) FetchAll(ctx context.Context, links []types.ArticleLink, magazine string, cutoff time.Time, workers int) ([]types.ArticleRecord, types.FetchStats) {
	return e.fetchAll(ctx, e.logger, links, magazine, cutoff, workers)
}

func (e *Extractor) fetchAll(ctx context.Context, log *logger.Logger, links []types.ArticleLink, magazine string, cutoff time.Time, workers int) ([]types.ArticleRecord, types.FetchStats) {
	startTime := time.Now()
	shards := Partition(len(links), workers)

	dest := &collector{}
	counters := &fetchCounters{}

	var wg sync.WaitGroup
	active := 0
	for _, shard := range shards {
		if shard.Len() == 0 {
			continue
		}
		active++

		wg.Add(1)
		go func(shard Shard) {
			defer wg.Done()
			e.fetchShard(ctx, log, shard, links, magazine, cutoff, dest, counters)
		}(shard)
	}
	wg.Wait()

	stats := types.FetchStats{
		Workers:  active,
		Fetched:  int(counters.fetched.Load()),
		Skipped:  int(counters.skipped.Load()),
		Failed:   int(counters.failed.Load()),
		Excluded: int(counters.excluded.Load()),
	}

	log.InfoWithDuration("Article fetch completed", time.Since(startTime), map[string]interface{}{
		"event":    "fetch_complete",
		"links":    len(links),
		"workers":  stats.Workers,
		"fetched":  stats.Fetched,
		"skipped":  stats.Skipped,
		"failed":   stats.Failed,
		"excluded": stats.Excluded,
	})

	return dest.records(), stats
}

func (e *Extractor) fetchShard(ctx context.Context, log *logger.Logger, shard Shard, links []types.ArticleLink, magazine string, cutoff time.Time, dest *collector, counters *fetchCounters) {
	log.Debug("Shard started", map[string]interface{}{
		"shard": shard.Index,
		"start": shard.Start,
		"end":   shard.End,
	})

	for pos := shard.Start; pos < shard.End; pos++ {
		if ctx.Err() != nil {
			log.Warn("Shard cancelled", map[string]interface{}{
				"shard":     shard.Index,
				"remaining": shard.End - pos,
			})
			counters.failed.Add(int64(shard.End - pos))
			return
		}

		link := links[pos]
		article, err := e.source.FetchArticle(ctx, link, pos)
		if err != nil {
			e.recordFailure(log, shard, pos, link, err, counters)
			continue
		}

		record := types.NewArticleRecord(magazine, link, article)
		if record.PublishedDate.After(cutoff) {
			counters.excluded.Add(1)
			log.Debug("Article newer than cutoff excluded", map[string]interface{}{
				"shard":    shard.Index,
				"position": pos,
				"date":     record.DisplayDate(),
			})
			continue
		}

		dest.add(pos, record)
		counters.fetched.Add(1)
	}
}

func (e *Extractor) recordFailure(log *logger.Logger, shard Shard, pos int, link types.ArticleLink, err error, counters *fetchCounters) {
	metadata := map[string]interface{}{
		"shard":      shard.Index,
		"offset":     pos - shard.Start,
		"position":   pos,
		"link":       string(link),
		"error_type": string(logger.TypeOf(err)),
		"error":      err.Error(),
	}

	switch {
	case logger.IsErrorType(err, logger.ErrorTypeArticleFetch):
		counters.failed.Add(1)
		log.Warn("Article fetch failed, skipping", metadata)
	case ieee.IsRecoverable(err):
		counters.skipped.Add(1)
		log.Warn("Article skipped", metadata)
	default:
		counters.failed.Add(1)
		log.Error("Unexpected article error, skipping", err, metadata)
	}
}
