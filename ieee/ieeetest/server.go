// Package ieeetest provides a fake IEEE Xplore upstream for tests.
package ieeetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"survey-collector/config"
)

// Article is one TOC entry and the page served for its link
type Article struct {
	Title string // TOC articleTitle
	Link  string // served as htmlLink
	// DocumentLink is the fallback link field. A record with neither carries no link.
	DocumentLink string
	Page         string
	Status       int // 0 means 200
}

// Issue is one issue of the fake magazine
type Issue struct {
	PublicationID string
	IssueID       string
	Year          int
	Articles      []Article
	TOCStatus     int // 0 means 200
}

// Upstream describes what the fake server returns
type Upstream struct {
	Magazine      string
	Issues        []Issue // catalog order, newest first
	CatalogStatus int
	CatalogBody   string // overrides the generated catalog when set
	TitleStatus   int
}

// Server is a running fake upstream
type Server struct {
	*httptest.Server

	upstream Upstream
	pages    map[string]Article
	issues   map[string]Issue

	mu           sync.Mutex
	tocRequests  []string
	pageRequests map[string]int
	titleHits    int
}

// NewServer starts a fake upstream. Close it with t.Cleanup or defer.
func NewServer(upstream Upstream) *Server {
	s := &Server{
		upstream:     upstream,
		pages:        make(map[string]Article),
		issues:       make(map[string]Issue),
		pageRequests: make(map[string]int),
	}

	upstream.Issues = append([]Issue(nil), upstream.Issues...)
	for i, issue := range upstream.Issues {
		if issue.PublicationID == "" {
			issue.PublicationID = config.DefaultPublicationID
			upstream.Issues[i] = issue
		}
		s.issues[issue.IssueID] = issue
		for _, a := range issue.Articles {
			if a.Link != "" {
				s.pages[a.Link] = a
			}
			if a.DocumentLink != "" {
				s.pages[a.DocumentLink] = a
			}
		}
	}
	s.upstream = upstream

	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/publication/{pub}/regular-issues", s.handleCatalog)
	mux.HandleFunc("GET /rest/publication/{pub}/title-history", s.handleTitle)
	mux.HandleFunc("POST /rest/search/pub/{pub}/issue/{issue}/toc", s.handleTOC)
	mux.HandleFunc("GET /", s.handlePage)

	s.Server = httptest.NewServer(mux)
	return s
}

// SourceConfig points a source configuration at the fake server
func (s *Server) SourceConfig() config.SourceConfig {
	src := config.GetDefaultConfig().Source
	src.BaseURL = s.URL + "/"
	src.IssuesURL = fmt.Sprintf("%srest/publication/%s/regular-issues", src.BaseURL, src.PublicationID)
	src.MagazineURL = fmt.Sprintf("%srest/publication/%s/title-history", src.BaseURL, src.PublicationID)
	src.Headers["Referer"] = src.IssuesURL
	src.RequestTimeoutSec = 5
	return src
}

// TOCRequests returns the issue ids whose TOC was requested, in order
func (s *Server) TOCRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tocRequests...)
}

// PageRequests returns how often link was requested
func (s *Server) PageRequests(link string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageRequests[link]
}

// TitleRequests returns how often the title endpoint was hit
func (s *Server) TitleRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.titleHits
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if s.upstream.CatalogStatus != 0 && s.upstream.CatalogStatus != http.StatusOK {
		w.WriteHeader(s.upstream.CatalogStatus)
		return
	}
	if s.upstream.CatalogBody != "" {
		writeRaw(w, s.upstream.CatalogBody)
		return
	}
	writeJSON(w, Catalog(s.upstream.Issues))
}

func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.titleHits++
	s.mu.Unlock()

	if s.upstream.TitleStatus != 0 && s.upstream.TitleStatus != http.StatusOK {
		w.WriteHeader(s.upstream.TitleStatus)
		return
	}
	writeJSON(w, []map[string]string{{"title": s.upstream.Magazine}})
}

func (s *Server) handleTOC(w http.ResponseWriter, r *http.Request) {
	issueID := r.PathValue("issue")

	s.mu.Lock()
	s.tocRequests = append(s.tocRequests, issueID)
	s.mu.Unlock()

	var payload map[string]string
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload["isnumber"] != issueID {
		http.Error(w, "bad toc request", http.StatusBadRequest)
		return
	}

	issue, ok := s.issues[issueID]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if issue.TOCStatus != 0 && issue.TOCStatus != http.StatusOK {
		w.WriteHeader(issue.TOCStatus)
		return
	}

	records := make([]map[string]string, 0, len(issue.Articles))
	for _, a := range issue.Articles {
		record := map[string]string{"articleTitle": a.Title}
		if a.Link != "" {
			record["htmlLink"] = a.Link
		}
		if a.DocumentLink != "" {
			record["documentLink"] = a.DocumentLink
		}
		records = append(records, record)
	}
	writeJSON(w, map[string]interface{}{"records": records})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.pageRequests[r.URL.Path]++
	s.mu.Unlock()

	article, ok := s.pages[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if article.Status != 0 && article.Status != http.StatusOK {
		w.WriteHeader(article.Status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(article.Page))
}

// Catalog builds the regular-issues document for issues, grouping consecutive
// issues by decade and year in the order given.
func Catalog(issues []Issue) map[string]interface{} {
	decades := make([]map[string]interface{}, 0)
	var years []map[string]interface{}
	var entries []map[string]interface{}
	lastDecade, lastYear := -1, -1

	flushYear := func() {
		if lastYear >= 0 {
			years = append(years, map[string]interface{}{
				"year":   fmt.Sprintf("%d", lastYear),
				"issues": entries,
			})
		}
		entries = nil
	}
	flushDecade := func() {
		flushYear()
		if lastDecade >= 0 {
			decades = append(decades, map[string]interface{}{
				"decade": fmt.Sprintf("%d", lastDecade),
				"years":  years,
			})
		}
		years = nil
	}

	for _, issue := range issues {
		decade := issue.Year / 10 * 10
		if decade != lastDecade {
			flushDecade()
			lastDecade, lastYear = decade, -1
		}
		if issue.Year != lastYear {
			flushYear()
			lastYear = issue.Year
		}
		entries = append(entries, map[string]interface{}{
			"publicationNumber": issue.PublicationID,
			"issueNumber":       issue.IssueID,
		})
	}
	flushDecade()

	return map[string]interface{}{"issuelist": decades}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}
