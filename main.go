package main

import (
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"survey-collector/logger"
)

var (
	appLogger    *logger.Logger
	errorHandler *logger.ErrorHandler
)

func init() {
	appLogger = logger.New("survey-collector")
	errorHandler = logger.NewErrorHandler(appLogger)
}

func main() {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(handleLambda)
		return
	}

	err := newRootCommand().Execute()
	_ = appLogger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
