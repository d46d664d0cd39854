package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"file-manager-server/internal/errors"
	"file-manager-server/internal/mcp"
	"file-manager-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter implements token bucket rate limiting per client IP.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a per-IP rate limiter.
func NewRateLimiter(perSecond, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// GetLimiter gets or creates a limiter for an IP address.
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[ip]; exists {
		return limiter
	}
	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[ip] = limiter
	return limiter
}

// HTTPHandler serves the JSON-RPC endpoint over HTTP.
type HTTPHandler struct {
	processor *mcp.Processor
	logger    *zap.Logger
	limiter   *RateLimiter
	server    *http.Server
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(processor *mcp.Processor, logger *zap.Logger, limiter *RateLimiter) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{processor: processor, logger: logger, limiter: limiter}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = xid.New().String()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func rateLimitMiddleware(limiter *RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			logger.Warn("rate limit exceeded", zap.String("ip", ip))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 1,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Engine builds the gin router with middleware and routes.
func (h *HTTPHandler) Engine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	if h.limiter != nil {
		engine.Use(rateLimitMiddleware(h.limiter, h.logger))
	}

	engine.GET("/health", h.handleHealth)
	engine.POST("/rpc", h.handleRPC)
	return engine
}

func (h *HTTPHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) handleRPC(c *gin.Context) {
	var jsonReq models.JSONRPCRequest
	if err := c.ShouldBindJSON(&jsonReq); err != nil {
		errDetail := errors.NewParseError(fmt.Sprintf("Invalid JSON received: %v", err))
		c.JSON(errors.MapErrorToHTTPStatus(errDetail.Code), models.JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      nil,
			Error:   errors.ToJSONRPCError(errDetail),
		})
		return
	}

	resp := models.JSONRPCResponse{JSONRPC: "2.0", ID: jsonReq.ID}

	if jsonReq.JSONRPC != "2.0" {
		errDetail := errors.NewInvalidRequestError("Invalid JSON-RPC version. Must be '2.0'.")
		resp.Error = errors.ToJSONRPCError(errDetail)
		c.JSON(errors.MapErrorToHTTPStatus(errDetail.Code), resp)
		return
	}

	result, rpcErr := h.processor.ProcessRequest(jsonReq)
	if rpcErr != nil {
		resp.Error = rpcErr
		h.logger.Warn("request failed",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", jsonReq.Method),
			zap.Int("code", rpcErr.Code))
		c.JSON(errors.MapErrorToHTTPStatus(rpcErr.Code), resp)
		return
	}
	resp.Result = result
	c.JSON(http.StatusOK, resp)
}

// Start runs the HTTP server. It blocks until the server stops and returns
// http.ErrServerClosed after a graceful shutdown.
func (h *HTTPHandler) Start(port, readTimeoutSec, writeTimeoutSec int) error {
	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      h.Engine(),
		ReadTimeout:  time.Duration(readTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(writeTimeoutSec) * time.Second,
	}
	h.logger.Info("http transport started", zap.Int("port", port))
	return h.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (h *HTTPHandler) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}
