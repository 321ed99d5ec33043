package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pinpoint/internal/app/observability/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, you should validate the origin
		return true
	},
}

// Gateway upgrades HTTP requests into marker sessions.
type Gateway struct {
	logger     *zap.Logger
	dispatcher *Dispatcher
}

func NewGateway(dispatcher *Dispatcher, logger *zap.Logger) *Gateway {
	return &Gateway{logger: logger, dispatcher: dispatcher}
}

// HandleWebSocket upgrades the connection and services it until it drops.
func (g *Gateway) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	ctx := c.Request.Context()
	session := newSession(conn, g.logger)

	metrics.Get().SessionsActive.Add(ctx, 1)
	defer metrics.Get().SessionsActive.Add(ctx, -1)

	g.logger.Info("WebSocket session established",
		zap.String("sessionID", session.ID()),
		zap.String("remoteAddr", c.Request.RemoteAddr))

	session.run(ctx, g.dispatcher.Dispatch)

	g.logger.Info("WebSocket session closed", zap.String("sessionID", session.ID()))
}
