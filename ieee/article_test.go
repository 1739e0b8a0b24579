package ieee

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"survey-collector/ieee/ieeetest"
	"survey-collector/logger"
)

func TestParseArticleData(t *testing.T) {
	page := ieeetest.ArticlePage(ieeetest.Metadata(
		"A Survey on Edge Caching",
		"We survey edge caching.",
		"Fourth Quarter 2021",
		"edge computing", "caching",
	))

	article, err := ParseArticleData([]byte(page), 3)
	require.NoError(t, err)

	assert.Equal(t, "A Survey on Edge Caching", article.Title)
	assert.Equal(t, "We survey edge caching.", article.Abstract)
	assert.Equal(t, []string{"edge computing", "caching"}, article.Keywords)
	assert.Equal(t, time.Date(2021, time.October, 1, 0, 0, 0, 0, time.UTC), article.PublishedDate)
}

func TestParseArticleDataFallbacks(t *testing.T) {
	meta := map[string]interface{}{
		"title":           "   ",
		"displayDocTitle": "Display Title",
		"abstract":        "Abstract",
		"dateOfInsertion": "14 February 2020",
		"keywords": []map[string]interface{}{
			{"type": "IEEE Keywords", "kwd": []string{"first", " ", "second"}},
			{"type": "Author Keywords", "kwd": []string{"ignored"}},
		},
	}

	article, err := ParseArticleData([]byte(ieeetest.ArticlePage(meta)), 0)
	require.NoError(t, err)

	assert.Equal(t, "Display Title", article.Title)
	assert.Equal(t, []string{"first", "second"}, article.Keywords)
	assert.Equal(t, time.Date(2020, time.February, 14, 0, 0, 0, 0, time.UTC), article.PublishedDate)
}

func TestParseArticleDataStripsEscapeArtifacts(t *testing.T) {
	block := `{"title":"Caching\x27s Survey","abstract":"A","displayPublicationDate":"1 May 2020","keywords":[{"kwd":["k"]}]}`

	article, err := ParseArticleData([]byte(ieeetest.RawArticlePage(block)), 0)
	require.NoError(t, err)
	assert.Equal(t, "Cachings Survey", article.Title)
}

func TestParseArticleDataOutsideScript(t *testing.T) {
	body := "xplGlobal.document.metadata={\"title\":\"T\",\"abstract\":\"A\",\"displayPublicationDate\":\"1 May 2020\",\"keywords\":[{\"kwd\":[\"k\"]}]};\n"

	article, err := ParseArticleData([]byte(body), 0)
	require.NoError(t, err)
	assert.Equal(t, "T", article.Title)
}

func TestParseArticleDataErrors(t *testing.T) {
	complete := func() map[string]interface{} {
		return ieeetest.Metadata("Title", "Abstract", "1 May 2020", "keyword")
	}
	without := func(key string) string {
		meta := complete()
		delete(meta, key)
		return ieeetest.ArticlePage(meta)
	}

	testCases := []struct {
		name     string
		page     string
		expected logger.ErrorType
	}{
		{"no metadata block", "<html><body>nothing here</body></html>", logger.ErrorTypeMetadataMissing},
		{"invalid json", ieeetest.RawArticlePage(`{"title": "unterminated`), logger.ErrorTypeMetadataParse},
		{"no title", without("title"), logger.ErrorTypeMissingTitle},
		{"no keywords", without("keywords"), logger.ErrorTypeMissingKeywords},
		{"no abstract", without("abstract"), logger.ErrorTypeMissingAbstract},
		{"no date", without("displayPublicationDate"), logger.ErrorTypeMissingDate},
		{"bad date", ieeetest.ArticlePage(ieeetest.Metadata("T", "A", "sometime", "k")), logger.ErrorTypeInvalidDate},
		{"empty keyword list", ieeetest.ArticlePage(ieeetest.Metadata("T", "A", "1 May 2020")), logger.ErrorTypeMissingKeywords},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseArticleData([]byte(tc.page), 7)
			require.Error(t, err)
			assert.True(t, logger.IsErrorType(err, tc.expected), "expected %s, got %v", tc.expected, err)
			assert.True(t, IsRecoverable(err))

			appErr, ok := logger.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, 7, appErr.Metadata["position"])
		})
	}
}

func TestParseArticleDataQuarterWithoutTitle(t *testing.T) {
	meta := ieeetest.Metadata("", "Abstract", "Fourth Quarter 2021", "k")
	delete(meta, "title")

	_, err := ParseArticleData([]byte(ieeetest.ArticlePage(meta)), 4)
	assert.True(t, logger.IsErrorType(err, logger.ErrorTypeMissingTitle))
	assert.Contains(t, err.Error(), "article 4")
}
