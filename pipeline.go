package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"survey-collector/config"
	"survey-collector/deduplicator"
	"survey-collector/dynamodb"
	"survey-collector/extractor"
	"survey-collector/ieee"
	"survey-collector/logger"
	"survey-collector/output"
	"survey-collector/processor"
	"survey-collector/s3"
	"survey-collector/types"
)

// SinceLayout is the accepted format of the since parameter
const SinceLayout = "2006-01-02"

// archiver stores a run result. *s3.Uploader implements it.
type archiver interface {
	UploadCompressedData(ctx context.Context, result *types.ExtractionResult) (*s3.UploadResult, error)
}

// overrides are the per-run settings given on the command line or in a lambda event.
// Nil pointers keep the configured value.
type overrides struct {
	Parallelism int
	Save        *bool
	Format      string
	OutputDir   string
	Upload      *bool
	Store       *bool
	LogLevel    string
}

// apply copies the overrides into cfg and re-validates it
func (o overrides) apply(cfg *config.Config) error {
	if o.Parallelism > 0 {
		cfg.Extraction.Parallelism = o.Parallelism
	}
	if o.Save != nil {
		cfg.Output.SaveToFile = *o.Save
	}
	if o.Format != "" {
		cfg.Output.Format = o.Format
	}
	if o.OutputDir != "" {
		cfg.Output.Directory = o.OutputDir
	}
	if o.Upload != nil {
		cfg.AWS.S3.Upload = *o.Upload
	}
	if o.Store != nil {
		cfg.AWS.DynamoDB.Store = *o.Store
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return logger.NewAppError(logger.ErrorTypeConfig, "invalid configuration", err)
	}
	return nil
}

// pipelineReport is what one extract run produced
type pipelineReport struct {
	TraceID    string                `json:"trace_id"`
	Magazine   string                `json:"magazine"`
	Count      int                   `json:"count"`
	Records    []types.ArticleRecord `json:"records"`
	Stats      types.ExtractionStats `json:"stats"`
	OutputPath string                `json:"output_path,omitempty"`
	Archive    *s3.UploadResult      `json:"archive,omitempty"`
	Upsert     *dynamodb.UpsertStats `json:"upsert,omitempty"`
	Duration   string                `json:"duration"`
}

// pipeline runs an extraction and hands the result to the configured sinks
type pipeline struct {
	cfg      *config.Config
	source   extractor.Source
	archiver archiver
	store    processor.ArticleStore
	logger   *logger.Logger
}

// newPipeline builds the source client and the sinks enabled in cfg
var newPipeline = func(cfg *config.Config, log *logger.Logger) (*pipeline, error) {
	client, err := ieee.NewClient(cfg.Source, log)
	if err != nil {
		return nil, logger.NewAppError(logger.ErrorTypeConfig, "failed to create source client", err)
	}

	p := &pipeline{cfg: cfg, source: client, logger: log}

	if cfg.AWS.S3.Upload {
		uploader, err := s3.NewUploader(cfg.AWS.Region, cfg.AWS.S3.ArchiveBucket, cfg.AWS.S3.ArchivePrefix)
		if err != nil {
			return nil, logger.NewAppError(logger.ErrorTypeS3, "failed to initialize S3 uploader", err)
		}
		p.archiver = uploader
	}

	if cfg.AWS.DynamoDB.Store {
		writer, err := dynamodb.NewWriter(cfg.AWS.Region, cfg.AWS.DynamoDB.ArticlesTable, log)
		if err != nil {
			return nil, logger.NewAppError(logger.ErrorTypeDynamoDB, "failed to initialize DynamoDB writer", err)
		}
		p.store = writer
	}

	return p, nil
}

// Run extracts articles for req and writes them to every enabled sink
func (p *pipeline) Run(ctx context.Context, req types.ExtractionRequest) (*pipelineReport, error) {
	start := time.Now()

	result, err := extractor.NewExtractor(p.source, p.cfg.Extraction, p.logger).Extract(ctx, req)
	if err != nil {
		return nil, err
	}

	log := p.logger.WithTraceID(result.TraceID)
	report := &pipelineReport{
		TraceID:  result.TraceID,
		Magazine: result.Magazine,
		Count:    result.Count,
		Records:  result.Records,
		Stats:    result.Stats,
	}

	if p.cfg.Output.SaveToFile {
		writer, err := output.NewWriter(p.cfg.Output.Format)
		if err != nil {
			return nil, logger.NewAppError(logger.ErrorTypeConfig, "invalid output format", err)
		}
		path, err := output.SaveToFile(p.cfg.Output.Directory, writer, result.Request.Count, result.Request.Since, result.Timestamp, result.Records)
		if err != nil {
			return nil, err
		}
		report.OutputPath = path
		log.Info("Output file written", map[string]interface{}{"path": path, "format": writer.Extension()})
	}

	if p.archiver != nil {
		uploadStart := time.Now()
		upload, err := p.archiver.UploadCompressedData(ctx, result)
		if err != nil {
			return nil, err
		}
		report.Archive = upload
		log.InfoWithDuration("S3 upload completed", time.Since(uploadStart), map[string]interface{}{
			"s3_key":          upload.S3Key,
			"compressed_size": upload.CompressedSize,
			"original_size":   upload.OriginalSize,
		})
	}

	if p.store != nil {
		stats, err := p.store.BatchUpsertWithStats(ctx, result.TraceID, result.Records)
		if err != nil {
			return nil, logger.WrapError(err, logger.ErrorTypeDynamoDB, "DynamoDB upsert failed")
		}
		report.Upsert = stats
		if stats.FailedBatches > 0 {
			return report, logger.NewAppErrorWithMetadata(logger.ErrorTypeDynamoDB,
				fmt.Sprintf("%d items failed to upsert", stats.FailedItems), nil,
				map[string]interface{}{"failed_batches": stats.FailedBatches})
		}
	}

	report.Duration = time.Since(start).String()
	log.InfoWithDuration("Pipeline finished", time.Since(start), map[string]interface{}{
		"count": report.Count,
	})
	return report, nil
}

// newArchiveProcessor wires the S3 loader, deduplicator and DynamoDB writer for loading archives
var newArchiveProcessor = func(cfg *config.Config, log *logger.Logger) (*processor.ArchiveProcessor, error) {
	downloader, err := s3.NewDownloader(cfg.AWS.Region)
	if err != nil {
		return nil, logger.NewAppError(logger.ErrorTypeS3, "failed to initialize S3 downloader", err)
	}
	writer, err := dynamodb.NewWriter(cfg.AWS.Region, cfg.AWS.DynamoDB.ArticlesTable, log)
	if err != nil {
		return nil, logger.NewAppError(logger.ErrorTypeDynamoDB, "failed to initialize DynamoDB writer", err)
	}
	return processor.NewArchiveProcessor(downloader, deduplicator.NewDeduplicator(log), writer, log), nil
}

// articleReader reads one stored run back. *dynamodb.Reader implements it.
type articleReader interface {
	ArticlesByTraceID(ctx context.Context, traceID string) ([]types.ArticleRecord, error)
}

var newArticleReader = func(cfg *config.Config, log *logger.Logger) (articleReader, error) {
	reader, err := dynamodb.NewReader(cfg.AWS.Region, cfg.AWS.DynamoDB.ArticlesTable, cfg.AWS.DynamoDB.TraceIndex, log)
	if err != nil {
		return nil, logger.NewAppError(logger.ErrorTypeDynamoDB, "failed to initialize DynamoDB reader", err)
	}
	return reader, nil
}

// exportRun writes the stored articles of one run, newest first, to w or into
// dir when dir is set. It returns the file path, if any, and the record count.
func exportRun(ctx context.Context, reader articleReader, traceID, format, dir string, w io.Writer) (string, int, error) {
	records, err := reader.ArticlesByTraceID(ctx, traceID)
	if err != nil {
		return "", 0, err
	}
	records = extractor.Finalize(records, len(records))

	writer, err := output.NewWriter(format)
	if err != nil {
		return "", 0, logger.NewAppError(logger.ErrorTypeConfig, "invalid output format", err)
	}

	if dir == "" {
		if err := writer.Write(w, records); err != nil {
			return "", 0, logger.NewAppError(logger.ErrorTypeOutput, "failed to write export", err)
		}
		return "", len(records), nil
	}

	var newest time.Time
	if len(records) > 0 {
		newest = records[0].PublishedDate
	}
	path, err := output.SaveToFile(dir, writer, len(records), newest, time.Now(), records)
	if err != nil {
		return "", 0, err
	}
	return path, len(records), nil
}

// loadConfiguration reads the config file at path, else the S3 object named by
// CONFIG_BUCKET and CONFIG_KEY, else falls back to the defaults.
func loadConfiguration(ctx context.Context, path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.NewManagerWithClient(nil).LoadFromFile(path)
		if err != nil {
			return nil, logger.NewAppError(logger.ErrorTypeConfig, "failed to load configuration file", err)
		}
		return cfg, nil
	}

	configBucket := os.Getenv("CONFIG_BUCKET")
	configKey := os.Getenv("CONFIG_KEY")

	if configBucket != "" && configKey != "" {
		configManager, err := config.NewManager(os.Getenv("AWS_REGION"))
		if err != nil {
			return nil, logger.NewAppError(logger.ErrorTypeConfig, "failed to create config manager", err)
		}
		cfg, err := configManager.LoadFromS3(ctx, configBucket, configKey)
		if err != nil {
			appLogger.Warn("Failed to load config from S3, using default config", map[string]interface{}{
				"bucket": configBucket,
				"key":    configKey,
				"error":  err.Error(),
			})
			return config.GetDefaultConfig(), nil
		}
		return cfg, nil
	}

	appLogger.Debug("Using default configuration")
	return config.GetDefaultConfig(), nil
}

// parseSince parses a YYYY-MM-DD date; empty means unset
func parseSince(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	since, err := time.Parse(SinceLayout, value)
	if err != nil {
		return time.Time{}, logger.NewAppError(logger.ErrorTypeRequest,
			fmt.Sprintf("since must be formatted as YYYY-MM-DD, got %q", value), err)
	}
	return since, nil
}

// applyLogLevel sets the level from cfg unless LOG_LEVEL chose one and no flag overrides it
func applyLogLevel(cfg *config.Config, flag string) {
	if flag == "" && os.Getenv("LOG_LEVEL") != "" {
		return
	}
	appLogger.SetLevel(cfg.Logging.Level)
}
