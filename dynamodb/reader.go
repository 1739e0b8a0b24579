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

	"survey-collector/logger"
	"survey-collector/types"
)

// maxPages bounds a single trace query
const maxPages = 100

// Reader reads stored articles back from the table
type Reader struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
	indexName string
	logger    *logger.Logger
}

// NewReader creates a reader querying indexName, a secondary index keyed on trace_id
func NewReader(region, tableName, indexName string, log *logger.Logger) (*Reader, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewReaderWithClient(dynamodb.New(sess), tableName, indexName, log), nil
}

// NewReaderWithClient creates a new reader with custom client (for testing)
func NewReaderWithClient(client dynamodbiface.DynamoDBAPI, tableName, indexName string, log *logger.Logger) *Reader {
	if log == nil {
		log = logger.New("dynamodb-reader")
	}
	return &Reader{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		logger:    log,
	}
}

// Record converts a stored item back into an article record
func (i Item) Record() (types.ArticleRecord, error) {
	published, err := time.Parse("2006-01-02", i.PublishedDate)
	if err != nil {
		return types.ArticleRecord{}, fmt.Errorf("item %s has invalid published_date %q: %w", i.ArticleID, i.PublishedDate, err)
	}
	return types.ArticleRecord{
		Magazine:      i.Magazine,
		Title:         i.Title,
		Abstract:      i.Abstract,
		PublishedDate: published,
		Keywords:      i.Keywords,
		Link:          i.Link,
	}, nil
}

// ArticlesByTraceID returns the articles last written by the run with traceID.
// Items that cannot be converted are logged and skipped.
func (r *Reader) ArticlesByTraceID(ctx context.Context, traceID string) ([]types.ArticleRecord, error) {
	if traceID == "" {
		return nil, logger.NewAppError(logger.ErrorTypeRequest, "trace id cannot be empty", nil)
	}

	log := r.logger.WithTraceID(traceID)
	startTime := time.Now()

	var (
		records          []types.ArticleRecord
		lastEvaluatedKey map[string]*dynamodb.AttributeValue
		pageCount        int
		hasMore          bool
	)

	for pageCount < maxPages {
		pageCount++

		input := &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			IndexName:              aws.String(r.indexName),
			KeyConditionExpression: aws.String("trace_id = :trace_id"),
			ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
				":trace_id": {S: aws.String(traceID)},
			},
		}
		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := r.client.QueryWithContext(ctx, input)
		if err != nil {
			return nil, logger.NewAppErrorWithMetadata(logger.ErrorTypeDynamoDB,
				fmt.Sprintf("failed to query articles on page %d", pageCount), err,
				map[string]interface{}{"table_name": r.tableName, "index_name": r.indexName})
		}

		var items []Item
		if err := dynamodbattribute.UnmarshalListOfMaps(result.Items, &items); err != nil {
			return nil, logger.NewAppError(logger.ErrorTypeDynamoDB,
				fmt.Sprintf("failed to unmarshal articles on page %d", pageCount), err)
		}

		for _, item := range items {
			record, err := item.Record()
			if err != nil {
				log.Warn("Invalid article item found", map[string]interface{}{
					"article_id": item.ArticleID,
					"error":      err.Error(),
				})
				continue
			}
			records = append(records, record)
		}

		hasMore = result.LastEvaluatedKey != nil
		if !hasMore {
			break
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}

	if hasMore {
		log.Warn("Hit maximum page limit during retrieval", map[string]interface{}{
			"max_pages":      maxPages,
			"articles_found": len(records),
		})
	}

	log.InfoWithDuration("Retrieved articles by trace id", time.Since(startTime), map[string]interface{}{
		"pages":    pageCount,
		"articles": len(records),
	})

	return records, nil
}
