package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Nexus/internal/adapters/signal"
	"github.com/dkeye/Nexus/internal/app"
	"github.com/dkeye/Nexus/internal/config"
	"github.com/dkeye/Nexus/internal/directory"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	dir *directory.Directory,
	orch *app.Orchestrator,
) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("NexusSessions", store))
	r.Use(ClientTokenMiddleware())

	// Read-only directory listing; households never change at runtime.
	api := r.Group("/api")
	api.GET("/households", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"households": dir.Snapshot()})
	})

	ctrl := signal.NewSignalWSController(orch, cfg)
	r.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").
			Str("token", c.GetString("client_token")).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusOK, "Nexus signaling server. Connect a WebSocket client to /ws.")
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
