package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrMissingBaseURL       = errors.New("source.base_url is required")
	ErrMissingIssuesURL     = errors.New("source.issues_url is required")
	ErrMissingMagazineURL   = errors.New("source.magazine_url is required")
	ErrInvalidTimeout       = errors.New("source.request_timeout_sec must be at least 1")
	ErrInvalidRateLimit     = errors.New("source.rate_limit must not be negative")
	ErrInvalidQuotaMargin   = errors.New("extraction.quota_margin must be >= 1.0")
	ErrInvalidLookahead     = errors.New("extraction.lookahead_years must not be negative")
	ErrInvalidParallelism   = errors.New("extraction.parallelism must not be negative")
	ErrInvalidOutputFormat  = errors.New("output.format must be 'csv' or 'xlsx'")
	ErrMissingOutputDir     = errors.New("output.directory is required when save_to_file is set")
	ErrMissingArchiveBucket = errors.New("aws.s3.archive_bucket is required when upload is set")
	ErrMissingArticlesTable = errors.New("aws.dynamodb.articles_table is required when store is set")
	ErrInvalidLogLevel      = errors.New("logging.level must be one of: debug, info, warn, error")
)

// Defaults
const (
	DefaultBaseURL           = "https://ieeexplore.ieee.org/"
	DefaultPublicationID     = "9739"
	DefaultRequestTimeoutSec = 30
	DefaultMaxBodyKb         = 10 * 1024
	DefaultQuotaMargin       = 2.0
	DefaultLookaheadYears    = 1
	DefaultOutputFormat      = "csv"
	DefaultRegion            = "us-east-1"
)

// Config represents the complete collector configuration
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Output     OutputConfig     `yaml:"output"`
	AWS        AWSConfig        `yaml:"aws"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SourceConfig describes the upstream magazine endpoints
type SourceConfig struct {
	BaseURL           string            `yaml:"base_url"`
	PublicationID     string            `yaml:"publication_id"`
	IssuesURL         string            `yaml:"issues_url"`
	MagazineURL       string            `yaml:"magazine_url"`
	Headers           map[string]string `yaml:"headers"`
	RequestTimeoutSec int               `yaml:"request_timeout_sec"`
	RateLimit         int               `yaml:"rate_limit"` // requests per second, 0 disables
	MaxBodyKb         int               `yaml:"max_body_kb"`
	SkipTitles        []string          `yaml:"skip_titles"` // TOC entries that are not articles
}

// RequestTimeout returns the per-request deadline
func (s SourceConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}

// ExtractionConfig tunes the pipeline
type ExtractionConfig struct {
	// QuotaMargin multiplies the requested count to decide when enough links were collected.
	QuotaMargin float64 `yaml:"quota_margin"`
	// LookaheadYears moves the cutoff forward from the requested since date.
	LookaheadYears int `yaml:"lookahead_years"`
	// Parallelism overrides the worker count; 0 uses NumCPU-1.
	Parallelism int `yaml:"parallelism"`
}

// OutputConfig controls the tabular output file
type OutputConfig struct {
	SaveToFile bool   `yaml:"save_to_file"`
	Directory  string `yaml:"directory"`
	Format     string `yaml:"format"`
}

// AWSConfig represents AWS service configuration
type AWSConfig struct {
	Region   string         `yaml:"region"`
	S3       S3Config       `yaml:"s3"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// S3Config represents S3 configuration
type S3Config struct {
	Upload        bool   `yaml:"upload"`
	ArchiveBucket string `yaml:"archive_bucket"`
	ArchivePrefix string `yaml:"archive_prefix"`
	ConfigBucket  string `yaml:"config_bucket"`
}

// DynamoDBConfig represents DynamoDB configuration
type DynamoDBConfig struct {
	Store         bool   `yaml:"store"`
	ArticlesTable string `yaml:"articles_table"`
	// TraceIndex is a global secondary index keyed on trace_id, used to read back one run.
	TraceIndex string `yaml:"trace_index"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Manager handles configuration loading and management
type Manager struct {
	s3Client s3iface.S3API
}

// NewManager creates a new configuration manager
func NewManager(region string) (*Manager, error) {
	if region == "" {
		region = DefaultRegion
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &Manager{
		s3Client: s3.New(sess),
	}, nil
}

// NewManagerWithClient creates a configuration manager with a custom S3 client (for testing)
func NewManagerWithClient(client s3iface.S3API) *Manager {
	return &Manager{s3Client: client}
}

// LoadFromS3 loads configuration from S3
func (m *Manager) LoadFromS3(ctx context.Context, bucket, key string) (*Config, error) {
	if m.s3Client == nil {
		return nil, fmt.Errorf("no S3 client configured")
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}

	result, err := m.s3Client.GetObjectWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get config from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	return m.parseConfig(data)
}

// LoadFromFile loads configuration from a local YAML file
func (m *Manager) LoadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	return m.parseConfig(data)
}

// LoadFromBytes loads configuration from byte data
func (m *Manager) LoadFromBytes(data []byte) (*Config, error) {
	return m.parseConfig(data)
}

// parseConfig parses YAML on top of the defaults, so omitted keys keep their default values.
// Endpoint URLs and the Referer header are derived from base_url unless set explicitly.
func (m *Manager) parseConfig(data []byte) (*Config, error) {
	config := GetDefaultConfig()
	config.Source.IssuesURL = ""
	config.Source.MagazineURL = ""
	delete(config.Source.Headers, "Referer")

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// applyDefaults fills zero values and the fields derived from others
func (c *Config) applyDefaults() {
	if c.Source.BaseURL != "" && !strings.HasSuffix(c.Source.BaseURL, "/") {
		c.Source.BaseURL += "/"
	}
	if c.Source.PublicationID == "" {
		c.Source.PublicationID = DefaultPublicationID
	}
	if c.Source.IssuesURL == "" {
		c.Source.IssuesURL = fmt.Sprintf("%srest/publication/%s/regular-issues", c.Source.BaseURL, c.Source.PublicationID)
	}
	if c.Source.MagazineURL == "" {
		c.Source.MagazineURL = fmt.Sprintf("%srest/publication/%s/title-history", c.Source.BaseURL, c.Source.PublicationID)
	}
	if c.Source.Headers == nil {
		c.Source.Headers = map[string]string{}
	}
	if _, ok := c.Source.Headers["Referer"]; !ok {
		c.Source.Headers["Referer"] = c.Source.IssuesURL
	}
	if c.Source.RequestTimeoutSec == 0 {
		c.Source.RequestTimeoutSec = DefaultRequestTimeoutSec
	}
	if c.Source.MaxBodyKb == 0 {
		c.Source.MaxBodyKb = DefaultMaxBodyKb
	}
	if c.Extraction.QuotaMargin == 0 {
		c.Extraction.QuotaMargin = DefaultQuotaMargin
	}
	if c.Output.Format == "" {
		c.Output.Format = DefaultOutputFormat
	}
	c.Output.Format = strings.ToLower(c.Output.Format)
	if c.AWS.Region == "" {
		c.AWS.Region = DefaultRegion
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	switch {
	case c.Source.BaseURL == "":
		return ErrMissingBaseURL
	case c.Source.IssuesURL == "":
		return ErrMissingIssuesURL
	case c.Source.MagazineURL == "":
		return ErrMissingMagazineURL
	case c.Source.RequestTimeoutSec < 1:
		return ErrInvalidTimeout
	case c.Source.RateLimit < 0:
		return ErrInvalidRateLimit
	case c.Extraction.QuotaMargin < 1:
		return ErrInvalidQuotaMargin
	case c.Extraction.LookaheadYears < 0:
		return ErrInvalidLookahead
	case c.Extraction.Parallelism < 0:
		return ErrInvalidParallelism
	}

	if c.Output.Format != "csv" && c.Output.Format != "xlsx" {
		return ErrInvalidOutputFormat
	}
	if c.Output.SaveToFile && c.Output.Directory == "" {
		return ErrMissingOutputDir
	}
	if c.AWS.S3.Upload && c.AWS.S3.ArchiveBucket == "" {
		return ErrMissingArchiveBucket
	}
	if c.AWS.DynamoDB.Store && c.AWS.DynamoDB.ArticlesTable == "" {
		return ErrMissingArticlesTable
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return ErrInvalidLogLevel
	}

	return nil
}

// GetDefaultConfig returns a default configuration for fallback scenarios
func GetDefaultConfig() *Config {
	config := &Config{
		Source: SourceConfig{
			BaseURL:       DefaultBaseURL,
			PublicationID: DefaultPublicationID,
			Headers: map[string]string{
				"User-Agent":          "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/109.0",
				"Accept":              "application/json;q=0.9,*/*;q=0.8",
				"Cache-Http-Response": "false",
				"Content-Type":        "application/json",
			},
			RequestTimeoutSec: DefaultRequestTimeoutSec,
			MaxBodyKb:         DefaultMaxBodyKb,
			SkipTitles:        []string{"Table of Contents"},
		},
		Extraction: ExtractionConfig{
			QuotaMargin:    DefaultQuotaMargin,
			LookaheadYears: DefaultLookaheadYears,
		},
		Output: OutputConfig{
			Directory: ".",
			Format:    DefaultOutputFormat,
		},
		AWS: AWSConfig{
			Region: DefaultRegion,
			S3: S3Config{
				ArchiveBucket: "survey-collector-archive",
				ArchivePrefix: "articles",
				ConfigBucket:  "survey-collector-config",
			},
			DynamoDB: DynamoDBConfig{
				ArticlesTable: "SurveyArticles",
				TraceIndex:    "trace_id-index",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
	config.applyDefaults()

	return config
}
