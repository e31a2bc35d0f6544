package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/app"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/config"
)

var localFlags struct {
	Addr   string
	APIKey string
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Run gateway, dispatcher and consumer in one process",
	Long: `local serves the route over plain HTTP and drains the success queue into
the store in the same process. Queues and the store default to memory; pass
--backend=redis to share queues with other processes.

A bearer token signed with the configured key is logged on startup.`,
	Args: cobra.NoArgs,
	RunE: runLocal,
}

func runLocal(cmd *cobra.Command, args []string) error {
	overrides := map[string]string{
		"API_KEYS": "local:" + localFlags.APIKey,
	}
	if global.Backend == "" {
		overrides["QUEUE_BACKEND"] = config.BackendMemory
	}
	cfg, err := loadConfig(overrides)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	deps, err := app.NewDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = deps.Close() }()

	dispatcher, err := deps.Dispatcher(ctx, nil)
	if err != nil {
		return err
	}
	router, err := deps.Gateway(dispatcher)
	if err != nil {
		return err
	}
	poller, err := deps.Poller(ctx)
	if err != nil {
		return err
	}

	if cfg.AuthMode == config.AuthModeJWT {
		tok, err := devToken(cfg)
		if err != nil {
			return err
		}
		logger.Info("local credentials",
			zap.String("api_key", localFlags.APIKey),
			zap.String("authorization", "Bearer "+tok),
		)
	}

	srv := &http.Server{Addr: localFlags.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return poller.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		dispatcher.Wait()
		return err
	})
	return g.Wait()
}

func devToken(cfg config.Config) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   "local",
		Issuer:    cfg.JWTIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(12 * time.Hour)),
	}
	if cfg.JWTAudience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.JWTAudience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSigningKey))
}

func init() {
	localCmd.Flags().StringVar(&localFlags.Addr, "addr", ":8080", "listen address")
	localCmd.Flags().StringVar(&localFlags.APIKey, "api-key", "local-key", "API key accepted by the gateway")
	rootCmd.AddCommand(localCmd)
}
