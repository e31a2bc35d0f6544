package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/authorizer"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

// RoutePath is the single business route.
const RoutePath = "/new/route/:date"

// Invoker runs the primary unit for one request.
type Invoker interface {
	Invoke(ctx context.Context, req pipeline.Request) (json.RawMessage, error)
}

// Authorizer decides on a raw Authorization header.
type Authorizer interface {
	Authorize(ctx context.Context, header string) (authorizer.Decision, error)
}

// KeyAdmitter charges a request to an API key.
type KeyAdmitter interface {
	Admit(key string) (string, error)
}

// HandlerConfig groups dependencies for the gateway.
type HandlerConfig struct {
	Invoker       Invoker
	Authorizer    Authorizer
	UsagePlans    KeyAdmitter
	InvokeTimeout time.Duration
	Logger        *zap.Logger
}

// NewRouter builds the gin engine with middleware, health and the route.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loggingMiddleware(cfg.Logger))
	r.Use(corsMiddleware())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterRouteHandlers(r, cfg)
	return r
}

// RegisterRouteHandlers registers GET for RoutePath. Preflight OPTIONS is
// answered by corsMiddleware. Admission runs API key first, then the token
// authorizer.
func RegisterRouteHandlers(r gin.IRouter, cfg HandlerConfig) {
	r.GET(RoutePath,
		requestIDMiddleware(cfg.Logger),
		apiKeyMiddleware(cfg.UsagePlans, cfg.Logger),
		authorizeMiddleware(cfg.Authorizer, cfg.Logger),
		invokeHandler(cfg),
	)
}

func invokeHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := pipeline.Request{
			RequestID:   c.GetString(ctxRequestID),
			Date:        c.Param("date"),
			PrincipalID: c.GetString(ctxPrincipal),
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.InvokeTimeout)
		defer cancel()

		payload, err := cfg.Invoker.Invoke(ctx, req)
		switch {
		case errors.Is(err, pipeline.ErrExecutionTimeout):
			c.JSON(http.StatusGatewayTimeout, gin.H{"message": "Endpoint request timed out"})
			return
		case err != nil:
			cfg.Logger.Info("execution error returned to client",
				zap.String("request_id", req.RequestID),
				zap.Error(err),
			)
			c.JSON(http.StatusBadGateway, gin.H{"message": "Internal server error"})
			return
		}

		if len(payload) == 0 {
			payload = json.RawMessage("null")
		}
		c.Data(http.StatusOK, "application/json", payload)
	}
}
