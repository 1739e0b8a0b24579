package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorDetails provides structured error information
type ErrorDetails struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Logger provides structured JSON logging on top of zap.
// Derived loggers (WithContext, WithTraceID) share the level of their parent.
type Logger struct {
	serviceName string
	requestID   string
	traceID     string

	base  *zap.Logger
	level zap.AtomicLevel
}

// New creates a new structured logger writing JSON lines to stdout.
// The initial level is taken from LOG_LEVEL and defaults to INFO.
func New(serviceName string) *Logger {
	level := zap.NewAtomicLevelAt(ParseLevel(os.Getenv("LOG_LEVEL")))

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     utcRFC3339,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.Lock(os.Stdout), level)

	return newLogger(serviceName, core, level)
}

// NewWithCore creates a logger over an arbitrary zap core (used by tests with zaptest/observer).
func NewWithCore(serviceName string, core zapcore.Core) *Logger {
	return newLogger(serviceName, core, zap.NewAtomicLevelAt(zapcore.DebugLevel))
}

func newLogger(serviceName string, core zapcore.Core, level zap.AtomicLevel) *Logger {
	return &Logger{
		serviceName: serviceName,
		base:        zap.New(core).With(zap.String("service", serviceName)),
		level:       level,
	}
}

// ParseLevel converts a level name to a zap level. Unknown names map to INFO.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLevel changes the minimum level for this logger and every logger derived from it.
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(ParseLevel(level))
}

// Level returns the current minimum level name.
func (l *Logger) Level() string {
	return l.level.Level().CapitalString()
}

// WithContext adds context information to the logger
func (l *Logger) WithContext(ctx context.Context) *Logger {
	newLogger := *l

	if requestID := getRequestIDFromContext(ctx); requestID != "" {
		newLogger.requestID = requestID
	}

	return &newLogger
}

// WithTraceID adds a trace ID to the logger
func (l *Logger) WithTraceID(traceID string) *Logger {
	newLogger := *l
	newLogger.traceID = traceID
	return &newLogger
}

// Info logs an informational message
func (l *Logger) Info(message string, metadata ...map[string]interface{}) {
	l.log(zapcore.InfoLevel, message, nil, nil, nil, metadata...)
}

// InfoWithCount logs an informational message with data count
func (l *Logger) InfoWithCount(message string, count int, metadata ...map[string]interface{}) {
	l.log(zapcore.InfoLevel, message, nil, &count, nil, metadata...)
}

// InfoWithDuration logs an informational message with duration
func (l *Logger) InfoWithDuration(message string, duration time.Duration, metadata ...map[string]interface{}) {
	durationMs := duration.Milliseconds()
	l.log(zapcore.InfoLevel, message, &durationMs, nil, nil, metadata...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, metadata ...map[string]interface{}) {
	l.log(zapcore.WarnLevel, message, nil, nil, nil, metadata...)
}

// Error logs an error message
func (l *Logger) Error(message string, err error, metadata ...map[string]interface{}) {
	l.log(zapcore.ErrorLevel, message, nil, nil, detailsOf(err), metadata...)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, metadata ...map[string]interface{}) {
	l.log(zapcore.DebugLevel, message, nil, nil, nil, metadata...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.base.Sync()
}

func (l *Logger) log(level zapcore.Level, message string, duration *int64, dataCount *int, errorDetails *ErrorDetails, metadata ...map[string]interface{}) {
	if !l.level.Enabled(level) {
		return
	}

	ce := l.base.Check(level, message)
	if ce == nil {
		return
	}

	fields := make([]zap.Field, 0, 6)
	if l.traceID != "" {
		fields = append(fields, zap.String("trace_id", l.traceID))
	}
	if l.requestID != "" {
		fields = append(fields, zap.String("request_id", l.requestID))
	}
	if duration != nil {
		fields = append(fields, zap.Int64("duration_ms", *duration))
	}
	if dataCount != nil {
		fields = append(fields, zap.Int("data_count", *dataCount))
	}
	if errorDetails != nil {
		fields = append(fields, zap.Any("error", errorDetails))
	}
	if len(metadata) > 0 && metadata[0] != nil {
		fields = append(fields, zap.Any("metadata", metadata[0]))
	}

	ce.Write(fields...)
}

// detailsOf describes err for the log entry. Application errors report their kind.
func detailsOf(err error) *ErrorDetails {
	if err == nil {
		return nil
	}

	if appErr, ok := AsAppError(err); ok {
		return &ErrorDetails{
			Type:    string(appErr.Type),
			Message: err.Error(),
			Code:    appErr.Code,
		}
	}

	return &ErrorDetails{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
}

func utcRFC3339(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

// getRequestIDFromContext extracts the AWS Lambda request ID from context
func getRequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return lc.AwsRequestID
	}

	return ""
}
