package main

import (
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/app"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/config"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := logging.Must(cfg.LogLevel, cfg.RunLocal)
	defer func() { _ = logger.Sync() }()

	// the cache lives as long as the warm sandbox
	auth, err := app.NewAuthorizer(cfg, logger)
	if err != nil {
		logger.Fatal("failed to init authorizer", zap.Error(err))
	}
	lambda.Start(auth.HandleTokenEvent)
}
