package deduplicator

import "survey-collector/types"

// LinkSet is an insertion-ordered set of article links
type LinkSet struct {
	seen       map[types.ArticleLink]struct{}
	links      []types.ArticleLink
	duplicates int
}

// NewLinkSet creates an empty link set
func NewLinkSet() *LinkSet {
	return &LinkSet{
		seen: make(map[types.ArticleLink]struct{}),
	}
}

// Add appends the links not seen before and returns how many were new
func (s *LinkSet) Add(links ...types.ArticleLink) int {
	added := 0
	for _, link := range links {
		if _, ok := s.seen[link]; ok {
			s.duplicates++
			continue
		}
		s.seen[link] = struct{}{}
		s.links = append(s.links, link)
		added++
	}
	return added
}

// Len returns the number of unique links
func (s *LinkSet) Len() int {
	return len(s.links)
}

// Duplicates returns how many repeated links were dropped
func (s *LinkSet) Duplicates() int {
	return s.duplicates
}

// Links returns a copy of the links in insertion order
func (s *LinkSet) Links() []types.ArticleLink {
	return append([]types.ArticleLink(nil), s.links...)
}
