package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.NewDeps(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init dependencies", zap.Error(err))
	}
	defer func() { _ = deps.Close() }()

	poller, err := deps.Poller(ctx)
	if err != nil {
		logger.Fatal("failed to init poller", zap.Error(err))
	}

	if cfg.WorkerMode == "poll" {
		if err := poller.Run(ctx); err != nil {
			logger.Error("poller exited", zap.Error(err))
		}
		return
	}

	// event source mapping delivers batches; failures are reported per item
	lambda.Start(poller.HandleSQSEvent)
}
