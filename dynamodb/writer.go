package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/google/uuid"

	"survey-collector/logger"
	"survey-collector/types"
)

const (
	// MaxBatchSize is the maximum number of items per batch write request
	MaxBatchSize = 25

	// maxAttempts bounds the resubmission of unprocessed items per batch
	maxAttempts = 3
)

// Item is the stored form of an article record
type Item struct {
	ArticleID     string   `dynamodbav:"article_id"`
	Magazine      string   `dynamodbav:"magazine"`
	Title         string   `dynamodbav:"title"`
	Abstract      string   `dynamodbav:"abstract"`
	PublishedDate string   `dynamodbav:"published_date"`
	Keywords      []string `dynamodbav:"keywords"`
	Link          string   `dynamodbav:"link,omitempty"`
	TraceID       string   `dynamodbav:"trace_id"`
	UpdatedAt     string   `dynamodbav:"updated_at"`
}

// ArticleID derives a stable id from the record's magazine, title and date,
// so storing the same article again overwrites the previous item.
func ArticleID(record types.ArticleRecord) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(record.Key())).String()
}

// NewItem converts a record for storage
func NewItem(traceID string, record types.ArticleRecord, now time.Time) Item {
	keywords := record.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	return Item{
		ArticleID:     ArticleID(record),
		Magazine:      record.Magazine,
		Title:         record.Title,
		Abstract:      record.Abstract,
		PublishedDate: record.PublishedDate.Format("2006-01-02"),
		Keywords:      keywords,
		Link:          record.Link,
		TraceID:       traceID,
		UpdatedAt:     now.UTC().Format(time.RFC3339),
	}
}

// UpsertStats contains statistics about the upsert operation
type UpsertStats struct {
	TotalItems     int `json:"total_items"`
	SuccessItems   int `json:"success_items"`
	FailedItems    int `json:"failed_items"`
	BatchCount     int `json:"batch_count"`
	SuccessBatches int `json:"success_batches"`
	FailedBatches  int `json:"failed_batches"`
}

// Writer handles DynamoDB write operations
type Writer struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
	logger    *logger.Logger
	now       func() time.Time
}

// NewWriter creates a new DynamoDB writer instance
func NewWriter(region, tableName string, log *logger.Logger) (*Writer, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewWriterWithClient(dynamodb.New(sess), tableName, log), nil
}

// NewWriterWithClient creates a new DynamoDB writer with custom client (for testing)
func NewWriterWithClient(client dynamodbiface.DynamoDBAPI, tableName string, log *logger.Logger) *Writer {
	if log == nil {
		log = logger.New("dynamodb-writer")
	}
	return &Writer{
		client:    client,
		tableName: tableName,
		logger:    log,
		now:       time.Now,
	}
}

// BatchUpsert stores records and fails on the first batch that cannot be written
func (w *Writer) BatchUpsert(ctx context.Context, traceID string, records []types.ArticleRecord) error {
	if len(records) == 0 {
		w.logger.Info("No records to upsert")
		return nil
	}

	w.logger.InfoWithCount("Starting batch upsert", len(records), map[string]interface{}{
		"table_name": w.tableName,
	})

	for i := 0; i < len(records); i += MaxBatchSize {
		end := min(i+MaxBatchSize, len(records))

		if err := w.processBatch(ctx, traceID, records[i:end]); err != nil {
			return logger.NewAppErrorWithMetadata(logger.ErrorTypeDynamoDB,
				fmt.Sprintf("failed to process batch %d-%d", i, end-1), err,
				map[string]interface{}{"table_name": w.tableName})
		}

		w.logger.Debug("Successfully processed batch", map[string]interface{}{
			"batch_start": i,
			"batch_end":   end - 1,
			"batch_size":  end - i,
		})
	}

	w.logger.InfoWithCount("Completed batch upsert", len(records))
	return nil
}

// BatchUpsertWithStats stores records batch by batch, continuing past failed
// batches, and reports how many items were written.
func (w *Writer) BatchUpsertWithStats(ctx context.Context, traceID string, records []types.ArticleRecord) (*UpsertStats, error) {
	stats := &UpsertStats{
		TotalItems: len(records),
		BatchCount: (len(records) + MaxBatchSize - 1) / MaxBatchSize,
	}

	if len(records) == 0 {
		return stats, nil
	}

	w.logger.InfoWithCount("Starting batch upsert with stats tracking", len(records), map[string]interface{}{
		"table_name": w.tableName,
	})

	for i := 0; i < len(records); i += MaxBatchSize {
		end := min(i+MaxBatchSize, len(records))
		batch := records[i:end]

		if err := w.processBatch(ctx, traceID, batch); err != nil {
			w.logger.Error("Batch failed", err, map[string]interface{}{
				"batch_number": i/MaxBatchSize + 1,
			})
			stats.FailedItems += len(batch)
			stats.FailedBatches++
			continue
		}
		stats.SuccessItems += len(batch)
		stats.SuccessBatches++
	}

	w.logger.Info("Batch upsert completed", map[string]interface{}{
		"success_items": stats.SuccessItems,
		"failed_items":  stats.FailedItems,
	})
	return stats, nil
}

// processBatch writes a single batch of at most MaxBatchSize records
func (w *Writer) processBatch(ctx context.Context, traceID string, records []types.ArticleRecord) error {
	if len(records) > MaxBatchSize {
		return fmt.Errorf("batch size %d exceeds maximum %d", len(records), MaxBatchSize)
	}

	now := w.now()
	seen := make(map[string]bool, len(records))
	writeRequests := make([]*dynamodb.WriteRequest, 0, len(records))

	for _, record := range records {
		item := NewItem(traceID, record, now)

		// BatchWriteItem rejects two requests for the same key
		if seen[item.ArticleID] {
			continue
		}
		seen[item.ArticleID] = true

		av, err := dynamodbattribute.MarshalMap(item)
		if err != nil {
			w.logger.Warn("Failed to marshal record", map[string]interface{}{
				"article_id": item.ArticleID,
				"error":      err.Error(),
			})
			continue
		}

		writeRequests = append(writeRequests, &dynamodb.WriteRequest{
			PutRequest: &dynamodb.PutRequest{Item: av},
		})
	}

	if len(writeRequests) == 0 {
		return fmt.Errorf("no valid write requests generated from batch")
	}

	return w.executeBatchWriteWithRetry(ctx, writeRequests)
}

// executeBatchWriteWithRetry resubmits unprocessed items up to maxAttempts times
func (w *Writer) executeBatchWriteWithRetry(ctx context.Context, writeRequests []*dynamodb.WriteRequest) error {
	currentRequests := writeRequests

	for attempt := 0; attempt < maxAttempts && len(currentRequests) > 0; attempt++ {
		if attempt > 0 {
			w.logger.Info("Retrying batch write", map[string]interface{}{
				"attempt":         attempt + 1,
				"max_attempts":    maxAttempts,
				"items_remaining": len(currentRequests),
			})
		}

		input := &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]*dynamodb.WriteRequest{
				w.tableName: currentRequests,
			},
		}

		result, err := w.client.BatchWriteItemWithContext(ctx, input)
		if err != nil {
			return fmt.Errorf("batch write failed on attempt %d: %w", attempt+1, err)
		}

		unprocessed := result.UnprocessedItems[w.tableName]
		if len(unprocessed) == 0 {
			return nil
		}

		currentRequests = unprocessed
		w.logger.Info("Batch write partially succeeded", map[string]interface{}{
			"unprocessed_items": len(unprocessed),
		})
	}

	return fmt.Errorf("failed to process %d items after %d attempts", len(currentRequests), maxAttempts)
}
