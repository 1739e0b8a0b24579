package logger

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

// Run-fatal source errors.
const (
	ErrorTypeUpstream         ErrorType = "UPSTREAM_UNAVAILABLE"
	ErrorTypeMalformedCatalog ErrorType = "MALFORMED_CATALOG"
	ErrorTypeIssueFetch       ErrorType = "ISSUE_FETCH_FAILED"
)

// Per-article errors. The article is skipped and the run continues.
const (
	ErrorTypeArticleFetch    ErrorType = "ARTICLE_FETCH_FAILED"
	ErrorTypeMetadataMissing ErrorType = "METADATA_BLOCK_NOT_FOUND"
	ErrorTypeMetadataParse   ErrorType = "METADATA_PARSE_ERROR"
	ErrorTypeMissingTitle    ErrorType = "MISSING_TITLE"
	ErrorTypeMissingKeywords ErrorType = "MISSING_KEYWORDS"
	ErrorTypeMissingAbstract ErrorType = "MISSING_ABSTRACT"
	ErrorTypeMissingDate     ErrorType = "MISSING_DATE"
	ErrorTypeInvalidDate     ErrorType = "INVALID_DATE"
)

const (
	ErrorTypeS3       ErrorType = "S3_ERROR"
	ErrorTypeDynamoDB ErrorType = "DYNAMODB_ERROR"
	ErrorTypeOutput   ErrorType = "OUTPUT_ERROR"
	ErrorTypeConfig   ErrorType = "CONFIG_ERROR"
	ErrorTypeRequest  ErrorType = "INVALID_REQUEST"
	ErrorTypeInternal ErrorType = "INTERNAL_ERROR"
)

// AppError represents an application-specific error with context
type AppError struct {
	Type     ErrorType
	Message  string
	Code     string
	Cause    error
	Metadata map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithCode creates a new application error with an error code
func NewAppErrorWithCode(errorType ErrorType, message, code string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Code:    code,
		Cause:   cause,
	}
}

// NewAppErrorWithMetadata creates a new application error with metadata
func NewAppErrorWithMetadata(errorType ErrorType, message string, cause error, metadata map[string]interface{}) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		Cause:    cause,
		Metadata: metadata,
	}
}

// ErrorHandler provides centralized error handling and logging
type ErrorHandler struct {
	logger *Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// Handle logs err against the failing stage and returns it as an *AppError.
func (eh *ErrorHandler) Handle(err error, stage string) error {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		eh.logger.Error(
			fmt.Sprintf("%s: %s", stage, appErr.Message),
			err,
			appErr.Metadata,
		)
		return err
	}

	eh.logger.Error(fmt.Sprintf("%s: unexpected error", stage), err)
	return NewAppError(ErrorTypeInternal, stage, err)
}

// HandleWithRecovery converts a panic into an *AppError stored in *errp.
// recover only works in the deferred call itself, so use it as
// `defer handler.HandleWithRecovery("stage", &err)`.
func (eh *ErrorHandler) HandleWithRecovery(stage string, errp *error) {
	r := recover()
	if r == nil {
		return
	}

	err := fmt.Errorf("panic recovered: %v", r)
	eh.logger.Error(fmt.Sprintf("%s: panic occurred", stage), err)
	if errp != nil {
		*errp = NewAppError(ErrorTypeInternal, "panic recovered", err)
	}
}

// WrapError wraps an existing error with additional context
func WrapError(err error, errorType ErrorType, message string) error {
	if err == nil {
		return nil
	}
	return NewAppError(errorType, message, err)
}

// AsAppError finds the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// TypeOf returns the kind of the first *AppError in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Type
	}
	return ""
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType ErrorType) bool {
	return err != nil && TypeOf(err) == errorType
}
