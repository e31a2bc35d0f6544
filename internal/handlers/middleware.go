package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/usageplan"
)

const (
	ctxRequestID = "request_id"
	ctxPrincipal = "principal_id"
	ctxKeyName   = "api_key_name"

	headerRequestID = "X-Request-Id"
	headerAPIKey    = "X-Api-Key"
)

// loggingMiddleware logs one line per request through zap.
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(ctxRequestID)),
		)
	}
}

// corsMiddleware allows any origin and answers preflight requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Api-Key, X-Amz-Date, X-Amz-Security-Token")
		c.Header("Access-Control-Max-Age", "300")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware assigns the id that follows the request through the
// pipeline, reusing the caller's X-Request-Id when present.
func requestIDMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		logger.Debug("received", zap.String("request_id", id), pipeline.StageReceived.Field())
		c.Next()
	}
}

// apiKeyMiddleware admits the request against its usage plan.
func apiKeyMiddleware(plans KeyAdmitter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(headerAPIKey)
		if key == "" {
			key = c.Query("api_key")
		}

		name, err := plans.Admit(key)
		if err != nil {
			status, msg := http.StatusForbidden, "Forbidden"
			switch {
			case errors.Is(err, usageplan.ErrMissingKey):
				status, msg = http.StatusUnauthorized, "Unauthorized"
			case errors.Is(err, pipeline.ErrQuotaExceeded):
				status, msg = http.StatusTooManyRequests, "Limit Exceeded"
			}
			logger.Info("rejected",
				zap.String("request_id", c.GetString(ctxRequestID)),
				pipeline.StageRejected.Field(),
				zap.String("api_key_name", name),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(status, gin.H{"message": msg})
			return
		}
		c.Set(ctxKeyName, name)
		c.Next()
	}
}

// authorizeMiddleware checks the Authorization header with the token
// authorizer. Backend faults fail closed.
func authorizeMiddleware(auth Authorizer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetString(ctxRequestID)
		header := c.GetHeader("Authorization")
		if header == "" {
			logger.Info("rejected", zap.String("request_id", requestID), pipeline.StageRejected.Field(), zap.String("reason", "missing token"))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}

		logger.Debug("authorizing", zap.String("request_id", requestID), pipeline.StageAuthorizing.Field())
		d, err := auth.Authorize(c.Request.Context(), header)
		if err != nil {
			logger.Error("authorizer fault",
				zap.String("request_id", requestID),
				zap.String("fault", "AUTH_BACKEND"),
				pipeline.StageRejected.Field(),
				zap.Error(err),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Forbidden"})
			return
		}
		if !d.Allowed {
			logger.Info("rejected", zap.String("request_id", requestID), pipeline.StageRejected.Field(), zap.String("reason", "denied"))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "User is not authorized to access this resource"})
			return
		}

		logger.Debug("authorized", zap.String("request_id", requestID), pipeline.StageAuthorized.Field())
		c.Set(ctxPrincipal, d.PrincipalID)
		c.Next()
	}
}
