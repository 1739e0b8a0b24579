package extractor

import (
	"sort"

	"survey-collector/types"
)

// Finalize orders records newest first and keeps at most n of them.
// Records with the same date are ordered by title, then abstract, so the
// result does not depend on the order the workers finished in.
func Finalize(records []types.ArticleRecord, n int) []types.ArticleRecord {
	if n <= 0 {
		return []types.ArticleRecord{}
	}

	sorted := make([]types.ArticleRecord, len(records))
	copy(sorted, records)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.PublishedDate.Equal(b.PublishedDate) {
			return a.PublishedDate.After(b.PublishedDate)
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.Abstract < b.Abstract
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
