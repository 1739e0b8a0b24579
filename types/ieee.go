package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FlexString accepts either a JSON string or a JSON number.
// The IEEE REST API is not consistent about which one it sends for identifiers and years.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// IssueIndex represents the root of the regular-issues response
type IssueIndex struct {
	IssueList []IssueDecade `json:"issuelist"`
}

// IssueDecade groups the years of one decade
type IssueDecade struct {
	Decade FlexString  `json:"decade"`
	Years  []IssueYear `json:"years"`
}

// IssueYear groups the issues published in one year
type IssueYear struct {
	Year   FlexString   `json:"year"`
	Issues []IssueEntry `json:"issues"`
}

// IssueEntry is one issue in the catalog
type IssueEntry struct {
	PublicationNumber FlexString `json:"publicationNumber"`
	IssueNumber       FlexString `json:"issueNumber"`
}

// MagazineTitle is one element of the title-history response
type MagazineTitle struct {
	Title string `json:"title"`
}

// TOCRequest is the payload of the per-issue table of contents query
type TOCRequest struct {
	IsNumber string `json:"isnumber"`
	PuNumber string `json:"punumber"`
	SortType string `json:"sortType"`
}

// TOCResponse represents the per-issue table of contents
type TOCResponse struct {
	Records []TOCRecord `json:"records"`
}

// TOCRecord is one entry in an issue's table of contents
type TOCRecord struct {
	ArticleTitle string `json:"articleTitle"`
	HTMLLink     string `json:"htmlLink,omitempty"`
	DocumentLink string `json:"documentLink,omitempty"`
}

// Link returns the html link if present, else the document link
func (r TOCRecord) Link() (ArticleLink, bool) {
	if r.HTMLLink != "" {
		return ArticleLink(r.HTMLLink), true
	}
	if r.DocumentLink != "" {
		return ArticleLink(r.DocumentLink), true
	}
	return "", false
}

// ArticleMetadata is the JSON assigned to xplGlobal.document.metadata on an article page.
// Pointer fields distinguish absent keys from empty values.
type ArticleMetadata struct {
	Title                  *string        `json:"title"`
	DisplayDocTitle        *string        `json:"displayDocTitle"`
	Abstract               *string        `json:"abstract"`
	DisplayPublicationDate *string        `json:"displayPublicationDate"`
	DateOfInsertion        *string        `json:"dateOfInsertion"`
	Keywords               []KeywordGroup `json:"keywords"`
}

// KeywordGroup is one keyword vocabulary (IEEE, INSPEC, author) of an article
type KeywordGroup struct {
	Type string   `json:"type"`
	Kwd  []string `json:"kwd"`
}
