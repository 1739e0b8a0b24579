package ieee

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"survey-collector/logger"
	"survey-collector/types"
)

// SortType is the TOC ordering the site uses for regular issues
const SortType = "vol-only-seq"

// IssueLinks returns the article links of one issue's table of contents.
// Records without a link and non-article entries are skipped.
func (c *Client) IssueLinks(ctx context.Context, issue types.IssueRef) ([]types.ArticleLink, error) {
	endpoint, err := c.resolve(fmt.Sprintf("rest/search/pub/%s/issue/%s/toc", issue.PublicationID, issue.IssueID))
	if err != nil {
		return nil, logger.NewAppError(logger.ErrorTypeIssueFetch, "failed to build TOC URL", err)
	}

	payload := types.TOCRequest{
		IsNumber: issue.IssueID,
		PuNumber: issue.PublicationID,
		SortType: SortType,
	}

	resp, err := c.postJSON(ctx, endpoint, payload)
	if err != nil {
		return nil, upstreamError("issue TOC", endpoint, err)
	}
	if resp.status != http.StatusOK {
		return nil, logger.NewAppErrorWithMetadata(logger.ErrorTypeIssueFetch,
			fmt.Sprintf("TOC for issue %s returned status %d", issue, resp.status), nil,
			map[string]interface{}{"endpoint": endpoint, "status": resp.status})
	}

	var toc types.TOCResponse
	if err := json.Unmarshal(resp.body, &toc); err != nil {
		return nil, logger.NewAppErrorWithMetadata(logger.ErrorTypeIssueFetch,
			fmt.Sprintf("TOC for issue %s is not valid JSON", issue), err,
			map[string]interface{}{"endpoint": endpoint})
	}

	if toc.Records == nil {
		c.logger.Warn("Issue TOC has no records", map[string]interface{}{
			"issue": issue.String(),
		})
		return []types.ArticleLink{}, nil
	}

	links := make([]types.ArticleLink, 0, len(toc.Records))
	for i, record := range toc.Records {
		if c.skipTitle(record.ArticleTitle) {
			continue
		}

		link, ok := record.Link()
		if !ok {
			c.logger.Warn("TOC record has no link", map[string]interface{}{
				"issue":  issue.String(),
				"record": i,
				"title":  record.ArticleTitle,
			})
			continue
		}
		links = append(links, link)
	}

	c.logger.Debug("Expanded issue", map[string]interface{}{
		"issue": issue.String(),
		"links": len(links),
	})

	return links, nil
}
