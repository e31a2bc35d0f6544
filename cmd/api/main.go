package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
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

	ctx := context.Background()
	deps, err := app.NewDeps(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init dependencies", zap.Error(err))
	}
	defer func() { _ = deps.Close() }()

	dispatcher, err := deps.Dispatcher(ctx, nil)
	if err != nil {
		logger.Fatal("failed to init dispatcher", zap.Error(err))
	}
	r, err := deps.Gateway(dispatcher)
	if err != nil {
		logger.Fatal("failed to init gateway", zap.Error(err))
	}

	// RUN_LOCAL serves plain HTTP for development.
	if cfg.RunLocal {
		logger.Info("running local server", zap.String("addr", cfg.ListenAddr), zap.String("backend", cfg.QueueBackend))
		if err := r.Run(cfg.ListenAddr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp, err := adapter.ProxyWithContext(ctx, req)
		// the sandbox freezes after return; finish routing outcomes first
		dispatcher.Wait()
		return resp, err
	})
}
