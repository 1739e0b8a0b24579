package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"survey-collector/logger"
	"survey-collector/types"
)

// Uploader archives extraction results to S3
type Uploader struct {
	s3Client s3iface.S3API
	bucket   string
	prefix   string
}

// NewUploader creates a new S3 uploader
func NewUploader(region, bucket, prefix string) (*Uploader, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewUploaderWithClient(s3.New(sess), bucket, prefix), nil
}

// NewUploaderWithClient creates an uploader over an existing S3 client
func NewUploaderWithClient(client s3iface.S3API, bucket, prefix string) *Uploader {
	return &Uploader{
		s3Client: client,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

// UploadResult represents the result of an S3 upload operation
type UploadResult struct {
	Bucket         string    `json:"bucket"`
	S3Key          string    `json:"s3_key"`
	CompressedSize int64     `json:"compressed_size"`
	OriginalSize   int64     `json:"original_size"`
	Timestamp      time.Time `json:"timestamp"`
}

// UploadCompressedData uploads the result as gzipped JSON under a timestamped key.
// An existing object under the same key is never overwritten.
func (u *Uploader) UploadCompressedData(ctx context.Context, result *types.ExtractionResult) (*UploadResult, error) {
	s3Key := u.generateS3Key(result.Magazine, result.Timestamp)

	exists, err := u.CheckS3KeyExists(ctx, s3Key)
	if err != nil {
		return nil, logger.NewAppError(logger.ErrorTypeS3, "failed to check archive key", err)
	}
	if exists {
		return nil, logger.NewAppErrorWithMetadata(logger.ErrorTypeS3, "archive key already exists", nil,
			map[string]interface{}{"bucket": u.bucket, "key": s3Key})
	}

	jsonData, err := json.Marshal(result)
	if err != nil {
		return nil, logger.NewAppError(logger.ErrorTypeS3, "failed to marshal extraction result", err)
	}

	compressedData, err := compressData(jsonData)
	if err != nil {
		return nil, logger.NewAppError(logger.ErrorTypeS3, "failed to compress data", err)
	}

	input := &s3.PutObjectInput{
		Bucket:          aws.String(u.bucket),
		Key:             aws.String(s3Key),
		Body:            bytes.NewReader(compressedData),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
		Metadata: map[string]*string{
			"trace-id":        aws.String(result.TraceID),
			"article-count":   aws.String(fmt.Sprintf("%d", result.Count)),
			"since":           aws.String(result.Request.Since.Format("2006-01-02")),
			"collection-time": aws.String(result.Timestamp.UTC().Format(time.RFC3339)),
		},
	}

	if _, err := u.s3Client.PutObjectWithContext(ctx, input); err != nil {
		return nil, logger.NewAppErrorWithMetadata(logger.ErrorTypeS3, "failed to upload to S3", err,
			map[string]interface{}{"bucket": u.bucket, "key": s3Key})
	}

	return &UploadResult{
		Bucket:         u.bucket,
		S3Key:          s3Key,
		CompressedSize: int64(len(compressedData)),
		OriginalSize:   int64(len(jsonData)),
		Timestamp:      time.Now(),
	}, nil
}

// generateS3Key generates a timestamp-based S3 key
func (u *Uploader) generateS3Key(magazine string, timestamp time.Time) string {
	// Format: prefix/YYYY-MM-DD/<magazine-slug>-articles-YYYYMMDD-HHMMSS.json.gz
	timestamp = timestamp.UTC()
	dateStr := timestamp.Format("2006-01-02")
	timestampStr := timestamp.Format("20060102-150405")

	name := fmt.Sprintf("%s/%s-articles-%s.json.gz", dateStr, slugify(magazine), timestampStr)
	if u.prefix == "" {
		return name
	}
	return u.prefix + "/" + name
}

// slugify lowercases s and replaces runs of other characters with a single dash
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "magazine"
	}
	return slug
}

// compressData compresses data using gzip
func compressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)

	if _, err := gzipWriter.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write to gzip writer: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}

	return buf.Bytes(), nil
}

// CheckS3KeyExists checks if an S3 key already exists
func (u *Uploader) CheckS3KeyExists(ctx context.Context, key string) (bool, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}

	_, err := u.s3Client.HeadObjectWithContext(ctx, input)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check S3 key existence: %w", err)
	}

	return true, nil
}

// isNotFound reports whether err is S3's missing object error.
// HeadObject has no body, so S3 answers with a bare NotFound code.
func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
