package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"survey-collector/logger"
	"survey-collector/types"
)

// MockDynamoDBAPI is a mock implementation of DynamoDB API
type MockDynamoDBAPI struct {
	dynamodbiface.DynamoDBAPI
	mock.Mock
}

func (m *MockDynamoDBAPI) BatchWriteItemWithContext(ctx aws.Context, input *dynamodb.BatchWriteItemInput, opts ...request.Option) (*dynamodb.BatchWriteItemOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dynamodb.BatchWriteItemOutput), args.Error(1)
}

func emptyOutput() *dynamodb.BatchWriteItemOutput {
	return &dynamodb.BatchWriteItemOutput{
		UnprocessedItems: map[string][]*dynamodb.WriteRequest{},
	}
}

func batchOf(n int) interface{} {
	return mock.MatchedBy(func(input *dynamodb.BatchWriteItemInput) bool {
		return len(input.RequestItems["test-table"]) == n
	})
}

func TestWriter_BatchUpsert_Success(t *testing.T) {
	mockClient := &MockDynamoDBAPI{}
	writer := NewWriterWithClient(mockClient, "test-table", nil)

	records := []types.ArticleRecord{
		createTestRecord("Survey 1"),
		createTestRecord("Survey 2"),
	}

	mockClient.On("BatchWriteItemWithContext", mock.Anything, batchOf(2)).Return(emptyOutput(), nil)

	err := writer.BatchUpsert(context.Background(), "trace-1", records)

	assert.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestWriter_BatchUpsert_EmptyInput(t *testing.T) {
	mockClient := &MockDynamoDBAPI{}
	writer := NewWriterWithClient(mockClient, "test-table", nil)

	err := writer.BatchUpsert(context.Background(), "trace-1", []types.ArticleRecord{})

	assert.NoError(t, err)
	mockClient.AssertNotCalled(t, "BatchWriteItemWithContext")
}

func TestWriter_BatchUpsert_LargeBatch(t *testing.T) {
	mockClient := &MockDynamoDBAPI{}
	writer := NewWriterWithClient(mockClient, "test-table", nil)

	// 30 records are split into 25 + 5
	records := make([]types.ArticleRecord, 30)
	for i := range records {
		records[i] = createTestRecord(fmt.Sprintf("Survey %d", i+1))
	}

	mockClient.On("BatchWriteItemWithContext", mock.Anything, batchOf(25)).Return(emptyOutput(), nil).Once()
	mockClient.On("BatchWriteItemWithContext", mock.Anything, batchOf(5)).Return(emptyOutput(), nil).Once()

	err := writer.BatchUpsert(context.Background(), "trace-1", records)

	assert.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestWriter_BatchUpsert_WithUnprocessedItems(t *testing.T) {
	mockClient := &MockDynamoDBAPI{}
	writer := NewWriterWithClient(mockClient, "test-table", nil)

	records := []types.ArticleRecord{
		createTestRecord("Survey 1"),
		createTestRecord("Survey 2"),
	}

	firstOutput := &dynamodb.BatchWriteItemOutput{
		UnprocessedItems: map[string][]*dynamodb.WriteRequest{
			"test-table": {
				{
					PutRequest: &dynamodb.PutRequest{
						Item: map[string]*dynamodb.AttributeValue{
							"article_id": {S: aws.String(ArticleID(records[1]))},
						},
					},
				},
			},
		},
	}

	mockClient.On("BatchWriteItemWithContext", mock.Anything, batchOf(2)).Return(firstOutput, nil).Once()
	mockClient.On("BatchWriteItemWithContext", mock.Anything, batchOf(1)).Return(emptyOutput(), nil).Once()

	err := writer.BatchUpsert(context.Background(), "trace-1", records)

	assert.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestWriter_BatchUpsert_GivesUpAfterMaxAttempts(t *testing.T) {
	mockClient := &MockDynamoDBAPI{}
	writer := NewWriterWithClient(mockClient, "test-table", nil)

	stuck := &dynamodb.BatchWriteItemOutput{
		UnprocessedItems: map[string][]*dynamodb.WriteRequest{
			"test-table": {{PutRequest: &dynamodb.PutRequest{}}},
		},
	}
	mockClient.On("BatchWriteItemWithContext", mock.Anything, mock.Anything).Return(stuck, nil)

	err := writer.BatchUpsert(context.Background(), "trace-1", []types.ArticleRecord{createTestRecord("Survey 1")})

	require.Error(t, err)
	assert.True(t, logger.IsErrorType(err, logger.ErrorTypeDynamoDB))
	mockClient.AssertNumberOfCalls(t, "BatchWriteItemWithContext", maxAttempts)
}

func TestWriter_BatchUpsert_DuplicateKeysInBatch(t *testing.T) {
	mockClient := &MockDynamoDBAPI{}
	writer := NewWriterWithClient(mockClient, "test-table", nil)

	records := []types.ArticleRecord{
		createTestRecord("Survey 1"),
		createTestRecord("survey 1"),
	}

	mockClient.On("BatchWriteItemWithContext", mock.Anything, batchOf(1)).Return(emptyOutput(), nil).Once()

	require.NoError(t, writer.BatchUpsert(context.Background(), "trace-1", records))
	mockClient.AssertExpectations(t)
}

func TestWriter_BatchUpsertWithStats_Success(t *testing.T) {
	mockClient := &MockDynamoDBAPI{}
	writer := NewWriterWithClient(mockClient, "test-table", nil)

	records := []types.ArticleRecord{
		createTestRecord("Survey 1"),
		createTestRecord("Survey 2"),
		createTestRecord("Survey 3"),
	}

	mockClient.On("BatchWriteItemWithContext", mock.Anything, mock.Anything).Return(emptyOutput(), nil)

	stats, err := writer.BatchUpsertWithStats(context.Background(), "trace-1", records)

	assert.NoError(t, err)
	assert.Equal(t, &UpsertStats{
		TotalItems:     3,
		SuccessItems:   3,
		BatchCount:     1,
		SuccessBatches: 1,
	}, stats)
	mockClient.AssertExpectations(t)
}

func TestWriter_BatchUpsertWithStats_PartialFailure(t *testing.T) {
	mockClient := &MockDynamoDBAPI{}
	writer := NewWriterWithClient(mockClient, "test-table", nil)

	records := make([]types.ArticleRecord, 27)
	for i := range records {
		records[i] = createTestRecord(fmt.Sprintf("Survey %d", i+1))
	}

	mockClient.On("BatchWriteItemWithContext", mock.Anything, batchOf(25)).Return(nil, errors.New("throttled")).Once()
	mockClient.On("BatchWriteItemWithContext", mock.Anything, batchOf(2)).Return(emptyOutput(), nil).Once()

	stats, err := writer.BatchUpsertWithStats(context.Background(), "trace-1", records)

	require.NoError(t, err)
	assert.Equal(t, 2, stats.BatchCount)
	assert.Equal(t, 2, stats.SuccessItems)
	assert.Equal(t, 25, stats.FailedItems)
	assert.Equal(t, 1, stats.FailedBatches)
	assert.Equal(t, 1, stats.SuccessBatches)
}

func TestWriter_BatchUpsertWithStats_EmptyInput(t *testing.T) {
	mockClient := &MockDynamoDBAPI{}
	writer := NewWriterWithClient(mockClient, "test-table", nil)

	stats, err := writer.BatchUpsertWithStats(context.Background(), "trace-1", nil)

	assert.NoError(t, err)
	assert.Equal(t, &UpsertStats{}, stats)
	mockClient.AssertNotCalled(t, "BatchWriteItemWithContext")
}

func TestArticleIDIsDeterministic(t *testing.T) {
	a := createTestRecord("Survey 1")
	b := createTestRecord("  SURVEY   1 ")
	b.Link = "/document/other/"
	c := createTestRecord("Survey 2")

	assert.Equal(t, ArticleID(a), ArticleID(b))
	assert.NotEqual(t, ArticleID(a), ArticleID(c))
	assert.Len(t, ArticleID(a), 36)
}

func TestNewItem(t *testing.T) {
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	record := createTestRecord("Survey 1")
	record.Keywords = nil

	item := NewItem("trace-9", record, now)

	assert.Equal(t, ArticleID(record), item.ArticleID)
	assert.Equal(t, "2023-01-01", item.PublishedDate)
	assert.Equal(t, []string{}, item.Keywords)
	assert.Equal(t, "trace-9", item.TraceID)
	assert.Equal(t, "2024-02-03T04:05:06Z", item.UpdatedAt)

	av, err := dynamodbattribute.MarshalMap(item)
	require.NoError(t, err)
	assert.Equal(t, item.ArticleID, aws.StringValue(av["article_id"].S))
	assert.Equal(t, "Survey 1", aws.StringValue(av["title"].S))
}

func TestNewWriter(t *testing.T) {
	writer, err := NewWriter("us-east-1", "test-table", nil)
	require.NoError(t, err)
	assert.Equal(t, "test-table", writer.tableName)
	assert.NotNil(t, writer.client)
}

func TestNewWriterWithClient(t *testing.T) {
	mockClient := &MockDynamoDBAPI{}
	writer := NewWriterWithClient(mockClient, "test-table", nil)

	assert.Equal(t, "test-table", writer.tableName)
	assert.Equal(t, mockClient, writer.client)
}

func createTestRecord(title string) types.ArticleRecord {
	return types.ArticleRecord{
		Magazine:      "IEEE Communications Surveys & Tutorials",
		Title:         title,
		Abstract:      "Test abstract",
		PublishedDate: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Keywords:      []string{"test"},
		Link:          "/document/1/",
	}
}
