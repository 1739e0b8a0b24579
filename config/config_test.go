package config

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3Client struct {
	s3iface.S3API
	mock.Mock
}

func (m *mockS3Client) GetObjectWithContext(ctx aws.Context, input *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func TestParseConfig(t *testing.T) {
	yamlData := `
source:
  base_url: "http://localhost:8080"
  publication_id: "1234"
  request_timeout_sec: 5
  rate_limit: 4
  headers:
    User-Agent: "survey-collector-test"
extraction:
  quota_margin: 1.5
  lookahead_years: 0
  parallelism: 3
output:
  save_to_file: true
  directory: "/tmp/out"
  format: "XLSX"
aws:
  region: "eu-west-1"
  s3:
    upload: true
    archive_bucket: "archive"
    archive_prefix: "runs"
  dynamodb:
    store: true
    articles_table: "Articles"
logging:
  level: "debug"
`

	manager := &Manager{}
	config, err := manager.parseConfig([]byte(yamlData))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/", config.Source.BaseURL)
	assert.Equal(t, "http://localhost:8080/rest/publication/1234/regular-issues", config.Source.IssuesURL)
	assert.Equal(t, "http://localhost:8080/rest/publication/1234/title-history", config.Source.MagazineURL)
	assert.Equal(t, "survey-collector-test", config.Source.Headers["User-Agent"])
	assert.Equal(t, config.Source.IssuesURL, config.Source.Headers["Referer"])
	assert.Equal(t, "application/json", config.Source.Headers["Content-Type"], "default headers are kept")
	assert.Equal(t, 5, config.Source.RequestTimeoutSec)
	assert.Equal(t, 4, config.Source.RateLimit)
	assert.Equal(t, []string{"Table of Contents"}, config.Source.SkipTitles)

	assert.Equal(t, 1.5, config.Extraction.QuotaMargin)
	assert.Equal(t, 0, config.Extraction.LookaheadYears)
	assert.Equal(t, 3, config.Extraction.Parallelism)

	assert.True(t, config.Output.SaveToFile)
	assert.Equal(t, "xlsx", config.Output.Format)

	assert.Equal(t, "eu-west-1", config.AWS.Region)
	assert.Equal(t, "archive", config.AWS.S3.ArchiveBucket)
	assert.True(t, config.AWS.DynamoDB.Store)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestParseConfigEmptyDocumentUsesDefaults(t *testing.T) {
	manager := &Manager{}
	config, err := manager.parseConfig([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, GetDefaultConfig(), config)
}

func TestParseConfigInvalidYAML(t *testing.T) {
	manager := &Manager{}
	_, err := manager.parseConfig([]byte("source: [unclosed"))
	assert.Error(t, err)
}

func TestParseConfigValidationErrors(t *testing.T) {
	testCases := []struct {
		name     string
		yaml     string
		expected error
	}{
		{"margin below one", "extraction:\n  quota_margin: 0.5\n", ErrInvalidQuotaMargin},
		{"negative lookahead", "extraction:\n  lookahead_years: -1\n", ErrInvalidLookahead},
		{"negative parallelism", "extraction:\n  parallelism: -2\n", ErrInvalidParallelism},
		{"negative rate limit", "source:\n  rate_limit: -1\n", ErrInvalidRateLimit},
		{"bad timeout", "source:\n  request_timeout_sec: -5\n", ErrInvalidTimeout},
		{"bad format", "output:\n  format: parquet\n", ErrInvalidOutputFormat},
		{"save without dir", "output:\n  save_to_file: true\n  directory: \"\"\n", ErrMissingOutputDir},
		{"upload without bucket", "aws:\n  s3:\n    upload: true\n    archive_bucket: \"\"\n", ErrMissingArchiveBucket},
		{"store without table", "aws:\n  dynamodb:\n    store: true\n    articles_table: \"\"\n", ErrMissingArticlesTable},
		{"bad log level", "logging:\n  level: loud\n", ErrInvalidLogLevel},
		{"no base url", "source:\n  base_url: \"\"\n", ErrMissingBaseURL},
	}

	manager := &Manager{}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := manager.parseConfig([]byte(tc.yaml))
			assert.True(t, errors.Is(err, tc.expected), "expected %v, got %v", tc.expected, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("extraction:\n  quota_margin: 3\n"), 0o644))

	config, err := (&Manager{}).LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, config.Extraction.QuotaMargin)

	_, err = (&Manager{}).LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFromS3(t *testing.T) {
	client := &mockS3Client{}
	client.On("GetObjectWithContext", mock.Anything, mock.MatchedBy(func(input *s3.GetObjectInput) bool {
		return aws.StringValue(input.Bucket) == "cfg-bucket" && aws.StringValue(input.Key) == "collector.yaml"
	})).Return(&s3.GetObjectOutput{
		Body: io.NopCloser(bytes.NewReader([]byte("logging:\n  level: warn\n"))),
	}, nil)

	config, err := NewManagerWithClient(client).LoadFromS3(context.Background(), "cfg-bucket", "collector.yaml")
	require.NoError(t, err)
	assert.Equal(t, "warn", config.Logging.Level)
	client.AssertExpectations(t)
}

func TestLoadFromS3Error(t *testing.T) {
	client := &mockS3Client{}
	client.On("GetObjectWithContext", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	_, err := NewManagerWithClient(client).LoadFromS3(context.Background(), "cfg-bucket", "collector.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestGetDefaultConfig(t *testing.T) {
	config := GetDefaultConfig()

	require.NoError(t, config.Validate())
	assert.Equal(t, "https://ieeexplore.ieee.org/rest/publication/9739/regular-issues", config.Source.IssuesURL)
	assert.Equal(t, "https://ieeexplore.ieee.org/rest/publication/9739/title-history", config.Source.MagazineURL)
	assert.Equal(t, config.Source.IssuesURL, config.Source.Headers["Referer"])
	assert.Equal(t, DefaultQuotaMargin, config.Extraction.QuotaMargin)
	assert.Equal(t, DefaultLookaheadYears, config.Extraction.LookaheadYears)
	assert.Equal(t, 30, int(config.Source.RequestTimeout().Seconds()))
	assert.False(t, config.Output.SaveToFile)
}
