package ieee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"survey-collector/logger"
	"survey-collector/types"
)

var (
	// metadataPattern matches the JSON assigned to the page's document metadata,
	// terminated by a semicolon at the end of a line.
	metadataPattern = regexp.MustCompile(`(?ms)xplGlobal\.document\.metadata=(.*?);$`)
	escapePattern   = regexp.MustCompile(`\\x[0-9a-fA-F]{2}`)
)

// FetchArticle downloads one article page and parses its metadata.
// position is the article's index in the link pool and is carried into errors.
func (c *Client) FetchArticle(ctx context.Context, link types.ArticleLink, position int) (types.ParsedArticle, error) {
	target, err := c.resolve(string(link))
	if err != nil {
		return types.ParsedArticle{}, articleFetchError(link, position, "invalid article link", err, 0)
	}

	resp, err := c.get(ctx, target)
	if err != nil {
		return types.ParsedArticle{}, articleFetchError(link, position, "article request failed", err, 0)
	}
	if resp.status != http.StatusOK {
		return types.ParsedArticle{}, articleFetchError(link, position,
			fmt.Sprintf("article page returned status %d", resp.status), nil, resp.status)
	}

	return ParseArticleData(resp.body, position)
}

// ParseArticleData extracts title, keywords, abstract and publication date
// from the metadata block embedded in an article page.
func ParseArticleData(body []byte, position int) (types.ParsedArticle, error) {
	block, ok := findMetadataBlock(body)
	if !ok {
		return types.ParsedArticle{}, articleError(logger.ErrorTypeMetadataMissing, position,
			"metadata block not found", nil)
	}

	block = escapePattern.ReplaceAllString(block, "")

	var meta types.ArticleMetadata
	if err := json.Unmarshal([]byte(block), &meta); err != nil {
		return types.ParsedArticle{}, articleError(logger.ErrorTypeMetadataParse, position,
			"metadata block is not valid JSON", err)
	}

	title, ok := firstPresent(meta.Title, meta.DisplayDocTitle)
	if !ok {
		return types.ParsedArticle{}, articleError(logger.ErrorTypeMissingTitle, position, "no title", nil)
	}

	keywords := keywordsOf(meta.Keywords)
	if len(keywords) == 0 {
		return types.ParsedArticle{}, articleError(logger.ErrorTypeMissingKeywords, position, "no keywords", nil)
	}

	abstract, ok := firstPresent(meta.Abstract)
	if !ok {
		return types.ParsedArticle{}, articleError(logger.ErrorTypeMissingAbstract, position, "no abstract", nil)
	}

	rawDate, ok := firstPresent(meta.DisplayPublicationDate, meta.DateOfInsertion)
	if !ok {
		return types.ParsedArticle{}, articleError(logger.ErrorTypeMissingDate, position, "no publication date", nil)
	}

	published, err := NormalizeDate(rawDate)
	if err != nil {
		return types.ParsedArticle{}, articleError(logger.ErrorTypeInvalidDate, position,
			fmt.Sprintf("invalid publication date %q", rawDate), err)
	}

	return types.ParsedArticle{
		Title:         title,
		Abstract:      abstract,
		PublishedDate: published,
		Keywords:      keywords,
	}, nil
}

// findMetadataBlock looks for the assignment inside <script> elements first and
// falls back to scanning the raw body.
func findMetadataBlock(body []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err == nil {
		var block string
		doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if m := metadataPattern.FindStringSubmatch(s.Text()); m != nil {
				block = m[1]
				return false
			}
			return true
		})
		if block != "" {
			return block, true
		}
	}

	if m := metadataPattern.FindSubmatch(body); m != nil {
		return string(m[1]), true
	}

	return "", false
}

// firstPresent returns the first non-blank value
func firstPresent(values ...*string) (string, bool) {
	for _, v := range values {
		if v == nil {
			continue
		}
		if s := strings.TrimSpace(*v); s != "" {
			return s, true
		}
	}
	return "", false
}

// keywordsOf returns the non-blank keywords of the first keyword group
func keywordsOf(groups []types.KeywordGroup) []string {
	if len(groups) == 0 {
		return nil
	}

	keywords := make([]string, 0, len(groups[0].Kwd))
	for _, kwd := range groups[0].Kwd {
		if s := strings.TrimSpace(kwd); s != "" {
			keywords = append(keywords, s)
		}
	}
	return keywords
}

func articleError(errorType logger.ErrorType, position int, message string, cause error) error {
	return logger.NewAppErrorWithMetadata(errorType,
		fmt.Sprintf("article %d: %s", position, message), cause,
		map[string]interface{}{"position": position})
}

func articleFetchError(link types.ArticleLink, position int, message string, cause error, status int) error {
	metadata := map[string]interface{}{
		"position": position,
		"link":     string(link),
	}
	if status != 0 {
		metadata["status"] = status
	}
	return logger.NewAppErrorWithMetadata(logger.ErrorTypeArticleFetch,
		fmt.Sprintf("article %d: %s", position, message), cause, metadata)
}
