// Package server exposes the relay hub over HTTP: the websocket endpoint and
// the health check.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/config"
	"github.com/jogusuryateja567-glitch/TunnelDrop/internal/relay"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Rooms     int    `json:"rooms"`
	Timestamp string `json:"timestamp"`
}

// NewRouter wires the gin engine for the signaling server.
func NewRouter(cfg *config.Server, hub *relay.Hub) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(CORS(cfg.CORSOrigin))

	r.GET("/health", healthHandler(hub))
	r.GET("/ws", ServeWs(hub, newUpgrader(cfg.CORSOrigin)))

	log.Info().Str("module", "server").Str("cors_origin", cfg.CORSOrigin).Msg("router setup")
	return r
}

func healthHandler(hub *relay.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := hub.Status()
		c.JSON(http.StatusOK, HealthResponse{
			Status:    "ok",
			Rooms:     st.Rooms,
			Timestamp: st.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
}

// CORS allows browser clients from origin to reach the server.
func CORS(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if origin != "*" {
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func newUpgrader(origin string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB

		// Native clients send no Origin header; browsers must match the configured origin.
		CheckOrigin: func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || origin == "*" || o == origin
		},
	}
}

// ServeWs upgrades the request and hands the connection to the hub.
func ServeWs(hub *relay.Hub, upgrader *websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("module", "server").Msg("failed to upgrade connection")
			return
		}

		client := relay.NewClient(hub, conn)

		select {
		case hub.Register <- client:
		case <-hub.Done():
			conn.Close()
			return
		}

		// These methods will handle the client's lifecycle
		go client.WritePump()
		go client.ReadPump()
	}
}
