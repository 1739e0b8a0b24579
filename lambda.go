package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"survey-collector/logger"
	"survey-collector/processor"
	"survey-collector/types"
)

// lambdaEvent is the Lambda payload. An S3 notification (Records set) loads the
// named archives into DynamoDB; anything else runs an extraction.
type lambdaEvent struct {
	Count       int    `json:"count"`
	Since       string `json:"since,omitempty"`
	Parallelism int    `json:"parallelism,omitempty"`
	Save        *bool  `json:"save,omitempty"`
	Upload      *bool  `json:"upload,omitempty"`
	Store       *bool  `json:"store,omitempty"`

	Records []events.S3EventRecord `json:"Records,omitempty"`
}

// lambdaResponse carries the report of whichever job the event selected
type lambdaResponse struct {
	Extraction *pipelineReport          `json:"extraction,omitempty"`
	Load       *processor.ProcessResult `json:"load,omitempty"`
}

func handleLambda(ctx context.Context, event lambdaEvent) (resp *lambdaResponse, err error) {
	defer errorHandler.HandleWithRecovery("lambda handler", &err)

	start := time.Now()
	contextLogger := appLogger.WithContext(ctx)
	contextLogger.Info("Survey collector lambda handler started", map[string]interface{}{
		"s3_records": len(event.Records),
		"count":      event.Count,
	})

	cfg, err := loadConfiguration(ctx, "")
	if err != nil {
		return nil, errorHandler.Handle(err, "load configuration")
	}

	if len(event.Records) > 0 {
		p, err := newArchiveProcessor(cfg, contextLogger)
		if err != nil {
			return nil, errorHandler.Handle(err, "archive load")
		}
		result, err := p.ProcessS3Event(ctx, events.S3Event{Records: event.Records})
		if err != nil {
			return nil, errorHandler.Handle(err, "archive load")
		}
		contextLogger.InfoWithDuration("Lambda handler completed", time.Since(start))
		if result.Status == processor.StatusFailed {
			return &lambdaResponse{Load: result}, errorHandler.Handle(errLoadFailed(result), "archive load")
		}
		return &lambdaResponse{Load: result}, nil
	}

	since, err := parseSince(event.Since)
	if err != nil {
		return nil, errorHandler.Handle(err, "parse event")
	}

	ov := overrides{
		Parallelism: event.Parallelism,
		Save:        event.Save,
		Upload:      event.Upload,
		Store:       event.Store,
	}
	if err := ov.apply(cfg); err != nil {
		return nil, errorHandler.Handle(err, "load configuration")
	}
	applyLogLevel(cfg, "")

	p, err := newPipeline(cfg, contextLogger)
	if err != nil {
		return nil, errorHandler.Handle(err, "extraction pipeline")
	}

	report, err := p.Run(ctx, types.ExtractionRequest{
		Count:       event.Count,
		Since:       since,
		Parallelism: event.Parallelism,
	})
	if err != nil {
		return nil, errorHandler.Handle(err, "extraction pipeline")
	}

	contextLogger.InfoWithDuration("Lambda handler completed", time.Since(start))
	contextLogger.InfoWithCount("Articles collected", report.Count)

	return &lambdaResponse{Extraction: report}, nil
}

// errLoadFailed reports a load that stored nothing. Nothing deduplicated means no
// archive could be read.
func errLoadFailed(result *processor.ProcessResult) error {
	errorType := logger.ErrorTypeDynamoDB
	if result.DeduplicationStats == nil {
		errorType = logger.ErrorTypeS3
	}
	return logger.NewAppErrorWithMetadata(errorType, "archive load failed", nil,
		map[string]interface{}{"trace_id": result.TraceID, "error_message": result.ErrorMessage})
}
