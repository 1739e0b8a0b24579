package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"survey-collector/deduplicator"
	"survey-collector/dynamodb"
	"survey-collector/logger"
	"survey-collector/types"
)

// Result statuses
const (
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
	StatusFailed         = "failed"
)

// ResultLoader reads an archived extraction result. *s3.Downloader implements it.
type ResultLoader interface {
	LoadResult(ctx context.Context, bucket, key string) (*types.ExtractionResult, error)
}

// Deduplicator removes repeated records across archives
type Deduplicator interface {
	DeduplicateWithStats(records []types.ArticleRecord) ([]types.ArticleRecord, deduplicator.Stats)
}

// ArticleStore persists records. *dynamodb.Writer implements it.
type ArticleStore interface {
	BatchUpsertWithStats(ctx context.Context, traceID string, records []types.ArticleRecord) (*dynamodb.UpsertStats, error)
}

// ProcessResult represents the result of loading one or more archives
type ProcessResult struct {
	TraceID            string                `json:"trace_id"`
	ArchiveCount       int                   `json:"archive_count"`
	ProcessedCount     int                   `json:"processed_count"`
	Timestamp          time.Time             `json:"timestamp"`
	Status             string                `json:"status"`
	ErrorMessage       string                `json:"error_message,omitempty"`
	DeduplicationStats *deduplicator.Stats   `json:"deduplication_stats,omitempty"`
	UpsertStats        *dynamodb.UpsertStats `json:"upsert_stats,omitempty"`
}

// ArchiveLocation names one archived result in S3
type ArchiveLocation struct {
	Bucket string
	Key    string
}

// ArchiveProcessor loads archived extraction results into the article store
type ArchiveProcessor struct {
	loader       ResultLoader
	deduplicator Deduplicator
	store        ArticleStore
	logger       *logger.Logger
	now          func() time.Time
}

// NewArchiveProcessor creates a new archive processor
func NewArchiveProcessor(loader ResultLoader, dedup Deduplicator, store ArticleStore, log *logger.Logger) *ArchiveProcessor {
	if log == nil {
		log = logger.New("archive-processor")
	}
	return &ArchiveProcessor{
		loader:       loader,
		deduplicator: dedup,
		store:        store,
		logger:       log,
		now:          time.Now,
	}
}

// ProcessS3Event loads every object named in an S3 notification
func (p *ArchiveProcessor) ProcessS3Event(ctx context.Context, s3Event events.S3Event) (*ProcessResult, error) {
	if len(s3Event.Records) == 0 {
		return nil, logger.NewAppError(logger.ErrorTypeRequest, "no S3 records to process", nil)
	}

	locations := make([]ArchiveLocation, 0, len(s3Event.Records))
	for _, record := range s3Event.Records {
		// keys arrive URL-encoded in notifications
		key := record.S3.Object.URLDecodedKey
		if key == "" {
			key = record.S3.Object.Key
		}
		locations = append(locations, ArchiveLocation{Bucket: record.S3.Bucket.Name, Key: key})
	}

	return p.ProcessArchives(ctx, locations)
}

// ProcessArchives loads the given archives, deduplicates their records and upserts them.
// Archives that cannot be read are logged and skipped; the status reports whether
// everything, something or nothing was stored.
func (p *ArchiveProcessor) ProcessArchives(ctx context.Context, locations []ArchiveLocation) (*ProcessResult, error) {
	if len(locations) == 0 {
		return nil, logger.NewAppError(logger.ErrorTypeRequest, "no archives to process", nil)
	}

	traceID := uuid.New().String()
	startTime := p.now()
	log := p.logger.WithTraceID(traceID)

	log.InfoWithCount("Starting archive load", len(locations), map[string]interface{}{
		"event": "processing_start",
	})

	result := &ProcessResult{
		TraceID:      traceID,
		ArchiveCount: len(locations),
		Timestamp:    startTime,
		Status:       StatusSuccess,
	}

	var (
		allRecords []types.ArticleRecord
		lastError  error
	)

	for _, loc := range locations {
		archived, err := p.loader.LoadResult(ctx, loc.Bucket, loc.Key)
		if err != nil {
			lastError = fmt.Errorf("failed to load %s/%s: %w", loc.Bucket, loc.Key, err)
			log.Error("Error occurred during processing", lastError, map[string]interface{}{
				"event":      "error",
				"error_type": "s3_download",
				"bucket":     loc.Bucket,
				"key":        loc.Key,
			})
			continue
		}

		log.InfoWithCount("Archive loaded", len(archived.Records), map[string]interface{}{
			"event":        "archive_loaded",
			"bucket":       loc.Bucket,
			"key":          loc.Key,
			"run_trace_id": archived.TraceID,
		})
		allRecords = append(allRecords, archived.Records...)
	}

	if len(allRecords) == 0 {
		log.Warn("No records found in archives", map[string]interface{}{
			"event":         "warning",
			"warning_type":  "no_records",
			"archive_count": len(locations),
		})
	} else {
		unique, dedupStats := p.deduplicator.DeduplicateWithStats(allRecords)
		result.DeduplicationStats = &dedupStats

		log.Info("Deduplication completed", map[string]interface{}{
			"event":               "deduplication",
			"deduplication_stats": dedupStats,
		})

		if len(unique) > 0 {
			upsertStats, err := p.store.BatchUpsertWithStats(ctx, traceID, unique)
			if err != nil {
				lastError = fmt.Errorf("failed to upsert records: %w", err)
				log.Error("Error occurred during processing", lastError, map[string]interface{}{
					"event":        "error",
					"error_type":   "dynamodb_upsert",
					"record_count": len(unique),
				})
				result.Status = StatusFailed
				result.ErrorMessage = lastError.Error()
			} else {
				result.UpsertStats = upsertStats
				result.ProcessedCount = upsertStats.SuccessItems
				if upsertStats.FailedItems > 0 {
					result.Status = StatusPartialSuccess
					result.ErrorMessage = fmt.Sprintf("%d items failed to upsert", upsertStats.FailedItems)
				}
				log.Info("DynamoDB upsert completed", map[string]interface{}{
					"event":        "dynamodb_upsert",
					"upsert_stats": upsertStats,
				})
			}
		}
	}

	if lastError != nil && result.ErrorMessage == "" {
		result.ErrorMessage = lastError.Error()
	}
	if lastError != nil || (result.UpsertStats != nil && result.UpsertStats.FailedItems > 0) {
		if result.ProcessedCount == 0 {
			result.Status = StatusFailed
		} else {
			result.Status = StatusPartialSuccess
		}
	}

	log.InfoWithDuration("Archive load completed", p.now().Sub(startTime), map[string]interface{}{
		"event":           "processing_complete",
		"status":          result.Status,
		"processed_count": result.ProcessedCount,
	})

	return result, nil
}
