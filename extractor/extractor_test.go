package extractor

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest/observer"

	"survey-collector/config"
	"survey-collector/ieee"
	"survey-collector/ieee/ieeetest"
	"survey-collector/logger"
	"survey-collector/types"
)

const testMagazine = "IEEE Communications Surveys & Tutorials"

var testSince = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

func newTestExtractor(t *testing.T, server *ieeetest.Server, cfg config.ExtractionConfig) (*Extractor, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(logger.ParseLevel("debug"))
	log := logger.NewWithCore("extractor-test", core)

	client, err := ieee.NewClient(server.SourceConfig(), log)
	require.NoError(t, err)

	return NewExtractor(client, cfg, log), logs
}

func defaultExtractionConfig() config.ExtractionConfig {
	return config.GetDefaultConfig().Extraction
}

// threeIssues is a catalog of 3 issues with 5 articles each, newest first
func threeIssues() []ieeetest.Issue {
	return []ieeetest.Issue{
		ieeetest.SimpleIssue("300", 2022, 5, "1 March 2022"),
		ieeetest.SimpleIssue("200", 2021, 5, "1 March 2021"),
		ieeetest.SimpleIssue("100", 2020, 5, "1 March 2020"),
	}
}

func TestExtractMarginTwoReadsAllIssues(t *testing.T) {
	server := ieeetest.NewServer(ieeetest.Upstream{Magazine: testMagazine, Issues: threeIssues()})
	defer server.Close()

	extractor, _ := newTestExtractor(t, server, defaultExtractionConfig())

	result, err := extractor.Extract(context.Background(), types.ExtractionRequest{Count: 10, Since: testSince, Parallelism: 3})
	require.NoError(t, err)

	// 15 links never reach the threshold of 20, so every issue is expanded
	assert.Equal(t, []string{"300", "200", "100"}, server.TOCRequests())
	assert.Equal(t, 3, result.Stats.IssuesScanned)
	assert.Equal(t, 15, result.Stats.LinksCollected)
	assert.Equal(t, 15, result.Stats.Fetch.Fetched)
	assert.Equal(t, 3, result.Stats.Fetch.Workers)

	require.Len(t, result.Records, 10)
	assert.Equal(t, 10, result.Count)
	assert.Equal(t, testMagazine, result.Magazine)
	assert.NotEmpty(t, result.TraceID)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), result.Cutoff)

	for i := 0; i < 5; i++ {
		assert.Equal(t, fmt.Sprintf("Survey 300-%d", i), result.Records[i].Title)
		assert.Equal(t, fmt.Sprintf("Survey 200-%d", i), result.Records[i+5].Title)
	}
	for _, record := range result.Records {
		assert.Equal(t, testMagazine, record.Magazine)
		assert.False(t, record.PublishedDate.IsZero())
	}
}

func TestExtractMarginOneStopsEarly(t *testing.T) {
	server := ieeetest.NewServer(ieeetest.Upstream{Magazine: testMagazine, Issues: threeIssues()})
	defer server.Close()

	cfg := defaultExtractionConfig()
	cfg.QuotaMargin = 1
	extractor, _ := newTestExtractor(t, server, cfg)

	result, err := extractor.Extract(context.Background(), types.ExtractionRequest{Count: 10, Since: testSince, Parallelism: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"300", "200"}, server.TOCRequests())
	assert.Equal(t, 2, result.Stats.IssuesScanned)
	assert.Equal(t, 3, result.Stats.IssuesAvailable)
	assert.Equal(t, 10, result.Stats.LinksCollected)
	assert.Len(t, result.Records, 10)
	assert.Equal(t, 0, server.PageRequests("/document/100-0/"))
}

func TestExtractTruncatesToCount(t *testing.T) {
	server := ieeetest.NewServer(ieeetest.Upstream{Magazine: testMagazine, Issues: threeIssues()})
	defer server.Close()

	extractor, _ := newTestExtractor(t, server, defaultExtractionConfig())

	result, err := extractor.Extract(context.Background(), types.ExtractionRequest{Count: 3, Since: testSince, Parallelism: 4})
	require.NoError(t, err)

	// threshold 6 is reached after two issues
	assert.Equal(t, 2, result.Stats.IssuesScanned)
	require.Len(t, result.Records, 3)
	assert.Equal(t, "Survey 300-0", result.Records[0].Title)
	assert.Equal(t, "Survey 300-2", result.Records[2].Title)
}

func TestExtractIsIdempotent(t *testing.T) {
	server := ieeetest.NewServer(ieeetest.Upstream{Magazine: testMagazine, Issues: threeIssues()})
	defer server.Close()

	extractor, _ := newTestExtractor(t, server, defaultExtractionConfig())
	req := types.ExtractionRequest{Count: 12, Since: testSince, Parallelism: 5}

	first, err := extractor.Extract(context.Background(), req)
	require.NoError(t, err)
	second, err := extractor.Extract(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	assert.NotEqual(t, first.TraceID, second.TraceID)
}

func TestExtractFiltersByCutoff(t *testing.T) {
	issues := []ieeetest.Issue{
		ieeetest.SimpleIssue("400", 2023, 2, "1 March 2023"),
		ieeetest.SimpleIssue("300", 2022, 2, "1 December 2022"),
		ieeetest.SimpleIssue("200", 2021, 2, "1 March 2021"),
	}
	server := ieeetest.NewServer(ieeetest.Upstream{Magazine: testMagazine, Issues: issues})
	defer server.Close()

	extractor, _ := newTestExtractor(t, server, defaultExtractionConfig())

	since := time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)
	result, err := extractor.Extract(context.Background(), types.ExtractionRequest{Count: 10, Since: since, Parallelism: 2})
	require.NoError(t, err)

	// cutoff is 1 June 2022: the 2023 issue is not listed, December 2022 is excluded by date
	assert.Equal(t, []string{"300", "200"}, server.TOCRequests())
	assert.Equal(t, 2, result.Stats.Fetch.Excluded)
	require.Len(t, result.Records, 2)
	for _, record := range result.Records {
		assert.False(t, record.PublishedDate.After(result.Cutoff))
	}
}

func TestExtractZeroLookahead(t *testing.T) {
	issues := []ieeetest.Issue{
		ieeetest.SimpleIssue("300", 2022, 2, "1 December 2022"),
		ieeetest.SimpleIssue("200", 2021, 2, "1 March 2021"),
	}
	server := ieeetest.NewServer(ieeetest.Upstream{Magazine: testMagazine, Issues: issues})
	defer server.Close()

	cfg := defaultExtractionConfig()
	cfg.LookaheadYears = 0
	extractor, _ := newTestExtractor(t, server, cfg)

	since := time.Date(2021, time.June, 1, 0, 0, 0, 0, time.UTC)
	result, err := extractor.Extract(context.Background(), types.ExtractionRequest{Count: 10, Since: since, Parallelism: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"200"}, server.TOCRequests())
	assert.Len(t, result.Records, 2)
}

func TestExtractIssueFailureAbortsBeforeFetch(t *testing.T) {
	issues := threeIssues()
	issues[1].TOCStatus = http.StatusInternalServerError

	server := ieeetest.NewServer(ieeetest.Upstream{Magazine: testMagazine, Issues: issues})
	defer server.Close()

	extractor, _ := newTestExtractor(t, server, defaultExtractionConfig())

	_, err := extractor.Extract(context.Background(), types.ExtractionRequest{Count: 10, Since: testSince})
	require.Error(t, err)
	assert.True(t, logger.IsErrorType(err, logger.ErrorTypeIssueFetch))
	assert.Equal(t, 0, server.PageRequests("/document/300-0/"))
}

func TestExtractCatalogFailure(t *testing.T) {
	server := ieeetest.NewServer(ieeetest.Upstream{Magazine: testMagazine, CatalogStatus: http.StatusServiceUnavailable})
	defer server.Close()

	extractor, _ := newTestExtractor(t, server, defaultExtractionConfig())

	_, err := extractor.Extract(context.Background(), types.ExtractionRequest{Count: 1, Since: testSince})
	assert.True(t, logger.IsErrorType(err, logger.ErrorTypeUpstream))
}

func TestExtractInvalidRequest(t *testing.T) {
	server := ieeetest.NewServer(ieeetest.Upstream{Magazine: testMagazine})
	defer server.Close()

	extractor, _ := newTestExtractor(t, server, defaultExtractionConfig())

	_, err := extractor.Extract(context.Background(), types.ExtractionRequest{Count: 0})
	assert.True(t, logger.IsErrorType(err, logger.ErrorTypeRequest))
	assert.ErrorIs(t, err, types.ErrInvalidCount)
	assert.Equal(t, 0, server.TitleRequests())
}

func TestExtractDefaultsSinceToNow(t *testing.T) {
	server := ieeetest.NewServer(ieeetest.Upstream{Magazine: testMagazine, Issues: threeIssues()})
	defer server.Close()

	extractor, _ := newTestExtractor(t, server, defaultExtractionConfig())
	fixed := time.Date(2021, time.July, 1, 12, 0, 0, 0, time.UTC)
	extractor.now = func() time.Time { return fixed }

	result, err := extractor.Extract(context.Background(), types.ExtractionRequest{Count: 2})
	require.NoError(t, err)

	assert.Equal(t, fixed, result.Request.Since)
	assert.Equal(t, fixed.AddDate(1, 0, 0), result.Cutoff)
	assert.Equal(t, fixed, result.Timestamp)
}

func TestAccumulateUntilEnoughDeduplicatesLinks(t *testing.T) {
	first := ieeetest.SimpleIssue("300", 2022, 3, "1 March 2022")
	second := ieeetest.SimpleIssue("200", 2022, 2, "1 March 2022")
	second.Articles = append(second.Articles, first.Articles[0])

	server := ieeetest.NewServer(ieeetest.Upstream{Magazine: testMagazine, Issues: []ieeetest.Issue{first, second}})
	defer server.Close()

	extractor, _ := newTestExtractor(t, server, defaultExtractionConfig())
	refs := []types.IssueRef{{PublicationID: "9739", IssueID: "300"}, {PublicationID: "9739", IssueID: "200"}}

	links, scanned, err := extractor.AccumulateUntilEnough(context.Background(), refs, 5)
	require.NoError(t, err)

	assert.Equal(t, 2, scanned)
	assert.Equal(t, []types.ArticleLink{
		"/document/300-0/", "/document/300-1/", "/document/300-2/",
		"/document/200-0/", "/document/200-1/",
	}, links)
}

func TestThreshold(t *testing.T) {
	testCases := []struct {
		margin   float64
		target   int
		expected int
	}{
		{2, 10, 20},
		{1, 10, 10},
		{1.5, 3, 5},
		{0, 4, 8}, // invalid margin falls back to the default
	}

	for _, tc := range testCases {
		e := NewExtractor(nil, config.ExtractionConfig{QuotaMargin: tc.margin}, nil)
		assert.Equal(t, tc.expected, e.Threshold(tc.target), "margin %v target %d", tc.margin, tc.target)
	}
}

func TestWorkerCount(t *testing.T) {
	e := NewExtractor(nil, config.ExtractionConfig{}, nil)
	assert.Equal(t, 7, e.workerCount(7))
	assert.Equal(t, DefaultParallelism(), e.workerCount(0))

	e = NewExtractor(nil, config.ExtractionConfig{Parallelism: 3}, nil)
	assert.Equal(t, 3, e.workerCount(0))
	assert.Equal(t, 5, e.workerCount(5))

	assert.GreaterOrEqual(t, DefaultParallelism(), 1)
}
