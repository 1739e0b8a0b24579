package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is how publication dates are rendered in output files.
const DateLayout = "2 January 2006"

// IssueRef identifies one issue of the magazine
type IssueRef struct {
	PublicationID string `json:"publication_id"`
	IssueID       string `json:"issue_id"`
}

func (r IssueRef) String() string {
	return fmt.Sprintf("%s/%s", r.PublicationID, r.IssueID)
}

// ArticleLink is the relative URL of one article's detail page
type ArticleLink string

// ParsedArticle holds the fields extracted from one article page
type ParsedArticle struct {
	Title         string    `json:"title"`
	Abstract      string    `json:"abstract"`
	PublishedDate time.Time `json:"published_date"`
	Keywords      []string  `json:"keywords"`
}

// ArticleRecord is the unit of output
type ArticleRecord struct {
	Magazine      string    `json:"magazine"`
	Title         string    `json:"title"`
	Abstract      string    `json:"abstract"`
	PublishedDate time.Time `json:"published_date"`
	Keywords      []string  `json:"keywords"`
	Link          string    `json:"link,omitempty"`
}

// NewArticleRecord attaches the magazine name and source link to a parsed article
func NewArticleRecord(magazine string, link ArticleLink, article ParsedArticle) ArticleRecord {
	return ArticleRecord{
		Magazine:      magazine,
		Title:         article.Title,
		Abstract:      article.Abstract,
		PublishedDate: article.PublishedDate,
		Keywords:      article.Keywords,
		Link:          string(link),
	}
}

// DisplayDate renders the publication date as "2 January 2006"
func (r ArticleRecord) DisplayDate() string {
	return r.PublishedDate.Format(DateLayout)
}

// Key identifies a record independently of the link it was fetched from.
// Titles are compared case-insensitively with whitespace collapsed.
func (r ArticleRecord) Key() string {
	title := strings.ToLower(strings.Join(strings.Fields(r.Title), " "))
	return fmt.Sprintf("%s|%s|%s", strings.TrimSpace(r.Magazine), title, r.PublishedDate.Format("2006-01-02"))
}

// Request validation errors.
var (
	ErrInvalidCount       = errors.New("count must be greater than 0")
	ErrInvalidParallelism = errors.New("parallelism must not be negative")
)

// ExtractionRequest is the input contract for one extraction run
type ExtractionRequest struct {
	Count       int       `json:"count"`
	Since       time.Time `json:"since"`
	Parallelism int       `json:"parallelism,omitempty"` // 0 selects the default width
}

// Validate checks the request bounds
func (r ExtractionRequest) Validate() error {
	if r.Count <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCount, r.Count)
	}
	if r.Parallelism < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidParallelism, r.Parallelism)
	}
	return nil
}

// WithDefaults fills Since with now when unset.
func (r ExtractionRequest) WithDefaults(now time.Time) ExtractionRequest {
	if r.Since.IsZero() {
		r.Since = now
	}
	return r
}

// EffectiveCutoff moves since forward by lookaheadYears. Articles dated after the
// result are excluded from a run.
func EffectiveCutoff(since time.Time, lookaheadYears int) time.Time {
	return since.AddDate(lookaheadYears, 0, 0)
}

// FetchStats counts the outcome of the fan-out stage
type FetchStats struct {
	Workers  int `json:"workers"`
	Fetched  int `json:"fetched"`
	Skipped  int `json:"skipped"`  // fetched but unparseable
	Failed   int `json:"failed"`   // article page could not be fetched
	Excluded int `json:"excluded"` // newer than the cutoff
}

// ExtractionStats summarises one run
type ExtractionStats struct {
	IssuesAvailable   int        `json:"issues_available"`
	IssuesScanned     int        `json:"issues_scanned"`
	LinksCollected    int        `json:"links_collected"`
	DuplicatesRemoved int        `json:"duplicates_removed"`
	Fetch             FetchStats `json:"fetch"`
}

// ExtractionResult represents the result of one extraction run
type ExtractionResult struct {
	TraceID   string            `json:"trace_id"`
	Magazine  string            `json:"magazine"`
	Request   ExtractionRequest `json:"request"`
	Cutoff    time.Time         `json:"cutoff"`
	Records   []ArticleRecord   `json:"records"`
	Count     int               `json:"count"`
	Stats     ExtractionStats   `json:"stats"`
	Timestamp time.Time         `json:"timestamp"`
}
