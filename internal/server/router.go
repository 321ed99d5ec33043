package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pinpoint/internal/app/ws"
)

// SetupRouter configures and returns the Gin router with all middleware and routes
func SetupRouter(s *Server, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	dispatcher := ws.NewDispatcher(s.AccountService(), s.MarkerService(), logger)
	gateway := ws.NewGateway(dispatcher, logger)
	r.GET("/ws", gateway.HandleWebSocket)

	return r
}

// requestLogger logs completed HTTP requests with zap. WebSocket upgrades
// are logged once on completion, when the session ends.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
