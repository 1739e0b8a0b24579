package deduplicator

import (
	"strings"

	"survey-collector/logger"
	"survey-collector/types"
)

// Stats contains statistics about the deduplication process
type Stats struct {
	OriginalCount  int `json:"original_count"`
	UniqueCount    int `json:"unique_count"`
	DuplicateCount int `json:"duplicate_count"`
	InvalidCount   int `json:"invalid_count"`
}

// Deduplicator removes repeated article records
type Deduplicator struct {
	logger *logger.Logger
}

// NewDeduplicator creates a new deduplicator instance
func NewDeduplicator(log *logger.Logger) *Deduplicator {
	if log == nil {
		log = logger.New("deduplicator")
	}
	return &Deduplicator{
		logger: log,
	}
}

// Deduplicate removes duplicate records, keeping the first occurrence
func (d *Deduplicator) Deduplicate(records []types.ArticleRecord) []types.ArticleRecord {
	deduplicated, _ := d.DeduplicateWithStats(records)
	return deduplicated
}

// DeduplicateWithStats returns deduplicated records along with statistics.
// Records are identified by magazine, title and publication date; records
// without a title are dropped as invalid.
func (d *Deduplicator) DeduplicateWithStats(records []types.ArticleRecord) ([]types.ArticleRecord, Stats) {
	stats := Stats{
		OriginalCount: len(records),
	}

	if len(records) == 0 {
		return records, stats
	}

	seen := make(map[string]bool, len(records))
	deduplicated := make([]types.ArticleRecord, 0, len(records))

	for _, record := range records {
		if strings.TrimSpace(record.Title) == "" {
			stats.InvalidCount++
			d.logger.Warn("Skipping record with empty title", map[string]interface{}{
				"link": record.Link,
			})
			continue
		}

		key := record.Key()
		if seen[key] {
			stats.DuplicateCount++
			d.logger.Debug("Duplicate record found and removed", map[string]interface{}{
				"key":  key,
				"link": record.Link,
			})
			continue
		}

		seen[key] = true
		deduplicated = append(deduplicated, record)
	}

	stats.UniqueCount = len(deduplicated)

	d.logger.Info("Deduplication completed with stats", map[string]interface{}{
		"original_count":  stats.OriginalCount,
		"unique_count":    stats.UniqueCount,
		"duplicate_count": stats.DuplicateCount,
		"invalid_count":   stats.InvalidCount,
	})

	return deduplicated, stats
}
