package http

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/adapters/signal"
	"github.com/dkeye/Mesh/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable participant id cookie.
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

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
		"X-Artifact-Id",
		"X-Duration-Seconds",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"}
	config.ExposeHeaders = []string{"Set-Cookie", "X-Artifact-Id", "X-Duration-Seconds"}
	return config
}

func SetupRouter(ctx context.Context, cfg config.HubConfig, signals *signal.SignalWSController, sessionsCtl *SessionController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(cfg.AllowOrigins)))

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("MeshSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	api.GET("/ws/signal/:session", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("session", c.Param("session")).Str("ct", c.GetString("client_token")).Msg("ws signal endpoint hit")
		signals.HandleSignal(ctx, c)
	})

	api.POST("/communities/:community/sessions", sessionsCtl.StartSession)

	s := api.Group("/sessions/:session")
	s.GET("", sessionsCtl.GetSession)
	s.POST("/join", sessionsCtl.Join)
	s.POST("/leave", sessionsCtl.Leave)
	s.GET("/sole", sessionsCtl.Sole)
	s.POST("/complete", sessionsCtl.Complete)
	s.GET("/attendance", sessionsCtl.Attendance)
	s.PUT("/recordings/:participant", sessionsCtl.UploadRecording)
	s.GET("/recordings/:participant", sessionsCtl.DownloadRecording)
	s.POST("/reports", sessionsCtl.CreateReport)
	s.GET("/reports", sessionsCtl.ListReports)
	s.DELETE("/participants/:participant", sessionsCtl.Kick)

	log.Info().Str("module", "adapters.http").Strs("origins", cfg.AllowOrigins).Msg("router setup")
	return r
}
