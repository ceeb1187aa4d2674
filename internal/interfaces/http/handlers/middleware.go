package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/veridia/tokencore/pkg/constants"
	"github.com/veridia/tokencore/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID propagates or mints a request identifier and stores it in the
// request context for the logger.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// bufferedWriter captures the response body so a validator can be computed
// before anything reaches the wire.
type bufferedWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	return w.body.Write(p)
}

// ETag adds a strong validator to successful GET responses and answers
// If-None-Match revalidations with 304 Not Modified. The JWKS route uses it
// so verifiers polling for rotations only download the key set when it
// actually changed.
func ETag() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		bw := &bufferedWriter{ResponseWriter: c.Writer}
		c.Writer = bw
		c.Next()
		c.Writer = bw.ResponseWriter

		body := bw.body.Bytes()
		if bw.Status() != http.StatusOK || len(body) == 0 {
			if len(body) > 0 {
				_, _ = c.Writer.Write(body)
			}
			return
		}

		etag := fmt.Sprintf("\"%x\"", sha256.Sum256(body))
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			c.Writer.WriteHeaderNow()
			return
		}
		c.Header("ETag", etag)
		_, _ = c.Writer.Write(body)
	}
}

// AccessLog emits one structured entry per request. Token material never
// appears: only method, path, status, and timing.
func AccessLog(log logger.Logger) gin.HandlerFunc {
	accessLog := log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		accessLog.Info(c.Request.Context(), "request handled",
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
		)
	}
}
