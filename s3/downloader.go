package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"survey-collector/logger"
	"survey-collector/types"
)

// Downloader handles S3 file downloads and decompression
type Downloader struct {
	s3Client s3iface.S3API
}

// NewDownloader creates a new S3 downloader instance
func NewDownloader(region string) (*Downloader, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewDownloaderWithClient(s3.New(sess)), nil
}

// NewDownloaderWithClient creates a downloader over an existing S3 client
func NewDownloaderWithClient(client s3iface.S3API) *Downloader {
	return &Downloader{s3Client: client}
}

// DownloadAndDecompress downloads a file from S3 and decompresses it if it's gzipped
func (d *Downloader) DownloadAndDecompress(ctx context.Context, bucket, key string) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}

	result, err := d.s3Client.GetObjectWithContext(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to download S3 object %s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	var reader io.Reader = result.Body

	// gzip is detected from the key extension or the stored content encoding
	if strings.HasSuffix(key, ".gz") || strings.HasSuffix(key, ".gzip") || aws.StringValue(result.ContentEncoding) == "gzip" {
		gzipReader, err := gzip.NewReader(result.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader for %s/%s: %w", bucket, key, err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read content from %s/%s: %w", bucket, key, err)
	}

	return data, nil
}

// LoadResult downloads an archived extraction result
func (d *Downloader) LoadResult(ctx context.Context, bucket, key string) (*types.ExtractionResult, error) {
	data, err := d.DownloadAndDecompress(ctx, bucket, key)
	if err != nil {
		return nil, logger.NewAppError(logger.ErrorTypeS3, "failed to download archive", err)
	}

	var result types.ExtractionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, logger.NewAppErrorWithMetadata(logger.ErrorTypeS3, "archive is not an extraction result", err,
			map[string]interface{}{"bucket": bucket, "key": key})
	}

	return &result, nil
}

// DecompressData decompresses gzip data
func DecompressData(compressedData []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return nil, fmt.Errorf("failed to read from gzip reader: %w", err)
	}

	return buf.Bytes(), nil
}
