package ieee

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"survey-collector/logger"
	"survey-collector/types"
)

// MagazineName returns the display name of the magazine.
// The first successful lookup is cached for the lifetime of the client.
func (c *Client) MagazineName(ctx context.Context) (string, error) {
	c.nameMu.Lock()
	defer c.nameMu.Unlock()

	if c.magazine != "" {
		return c.magazine, nil
	}

	resp, err := c.get(ctx, c.magazineURL)
	if err != nil {
		return "", upstreamError("magazine title", c.magazineURL, err)
	}
	if resp.status != http.StatusOK {
		return "", upstreamStatusError("magazine title", c.magazineURL, resp.status)
	}

	var titles []types.MagazineTitle
	if err := json.Unmarshal(resp.body, &titles); err != nil {
		return "", malformedCatalog(c.magazineURL, "title history is not a JSON array", err)
	}
	if len(titles) == 0 {
		return "", malformedCatalog(c.magazineURL, "title history is empty", nil)
	}

	name := strings.TrimSpace(titles[0].Title)
	if name == "" {
		return "", malformedCatalog(c.magazineURL, "title history has no title", nil)
	}

	c.magazine = name
	c.logger.Debug("Resolved magazine name", map[string]interface{}{
		"magazine": name,
	})

	return name, nil
}

// ListIssues returns every issue published in cutoffYear or earlier, in the
// order of the upstream catalog (newest decade first).
func (c *Client) ListIssues(ctx context.Context, cutoffYear int) ([]types.IssueRef, error) {
	resp, err := c.get(ctx, c.issuesURL)
	if err != nil {
		return nil, upstreamError("issue catalog", c.issuesURL, err)
	}
	if resp.status != http.StatusOK {
		return nil, upstreamStatusError("issue catalog", c.issuesURL, resp.status)
	}

	var index types.IssueIndex
	if err := json.Unmarshal(resp.body, &index); err != nil {
		return nil, malformedCatalog(c.issuesURL, "catalog is not valid JSON", err)
	}

	issues, err := flattenCatalog(index, cutoffYear)
	if err != nil {
		return nil, malformedCatalog(c.issuesURL, err.Error(), nil)
	}

	c.logger.InfoWithCount("Resolved issue catalog", len(issues), map[string]interface{}{
		"cutoff_year": cutoffYear,
	})

	return issues, nil
}

// flattenCatalog walks decades, years and issues in source order
func flattenCatalog(index types.IssueIndex, cutoffYear int) ([]types.IssueRef, error) {
	if index.IssueList == nil {
		return nil, fmt.Errorf("missing issuelist")
	}

	issues := make([]types.IssueRef, 0)
	for d, decade := range index.IssueList {
		if decade.Years == nil {
			return nil, fmt.Errorf("decade %d (%s) has no years", d, decade.Decade)
		}

		for _, year := range decade.Years {
			if year.Issues == nil {
				return nil, fmt.Errorf("year %s has no issues", year.Year)
			}

			y, err := strconv.Atoi(strings.TrimSpace(string(year.Year)))
			if err != nil {
				return nil, fmt.Errorf("invalid year %q", year.Year)
			}
			if y > cutoffYear {
				continue
			}

			for _, entry := range year.Issues {
				ref := types.IssueRef{
					PublicationID: strings.TrimSpace(string(entry.PublicationNumber)),
					IssueID:       strings.TrimSpace(string(entry.IssueNumber)),
				}
				if ref.PublicationID == "" || ref.IssueID == "" {
					return nil, fmt.Errorf("issue in year %d has no identifiers", y)
				}
				issues = append(issues, ref)
			}
		}
	}

	return issues, nil
}

func upstreamError(what, endpoint string, err error) error {
	return logger.NewAppErrorWithMetadata(logger.ErrorTypeUpstream,
		fmt.Sprintf("%s endpoint unreachable", what), err,
		map[string]interface{}{"endpoint": endpoint})
}

func upstreamStatusError(what, endpoint string, status int) error {
	return logger.NewAppErrorWithMetadata(logger.ErrorTypeUpstream,
		fmt.Sprintf("%s endpoint returned status %d", what, status), nil,
		map[string]interface{}{"endpoint": endpoint, "status": status})
}

func malformedCatalog(endpoint, message string, err error) error {
	return logger.NewAppErrorWithMetadata(logger.ErrorTypeMalformedCatalog, message, err,
		map[string]interface{}{"endpoint": endpoint})
}
