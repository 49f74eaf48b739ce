package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/fmueller/voxscribe/internal/logging"
	"github.com/fmueller/voxscribe/internal/transcribe"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
)

// RequestID tags every request with an X-Request-Id and attaches a logger
// carrying it to the request context.
func RequestID(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)

		ctx := logging.WithLogger(c.Request.Context(), log.With(zap.String(requestIDKey, id)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic recovered",
					zap.String("error", fmt.Sprintf("%v", r)),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, transcribe.ErrorResult(fmt.Errorf("internal server error")))
			}
		}()
		c.Next()
	}
}

// RequestLogger logs method, path, status and latency. Health checks are
// skipped.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client", c.ClientIP()),
			zap.String(requestIDKey, c.GetString(requestIDKey)),
		}

		switch {
		case status >= 500:
			log.Error("Request completed", fields...)
		case status >= 400:
			log.Warn("Request completed", fields...)
		default:
			log.Debug("Request completed", fields...)
		}
	}
}

// BodySizeLimit caps request bodies at limit bytes; zero or less disables it.
func BodySizeLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
