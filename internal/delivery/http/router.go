package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"vnovel-server/internal/delivery/http/middleware"
)

// RouterConfig - настройки gin роутера.
type RouterConfig struct {
	Env            string
	AllowedOrigins []string
	JWTSecret      string
	// ImagesDir раздается по /images, пусто = не раздавать.
	ImagesDir string
	// Metrics включает /metrics и метрики запросов. Коллекторы регистрируются глобально,
	// поэтому в одном процессе включать его можно один раз.
	Metrics bool
}

// NewRouter собирает gin роутер со всеми middleware и маршрутами.
func NewRouter(cfg RouterConfig, h *Handler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Env == "development" {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(middleware.ZapLogger(logger.Named("HTTP")))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.UserHeader, middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader}
	corsConfig.AllowCredentials = !corsConfig.AllowAllOrigins
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// middleware метрик должен стоять до регистрации маршрутов
	if cfg.Metrics {
		p := ginprometheus.NewPrometheus("gin")
		p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
			if route := c.FullPath(); route != "" {
				return route
			}
			return "unknown"
		}
		p.Use(router)
	}

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	if cfg.ImagesDir != "" {
		router.Static("/images", cfg.ImagesDir)
	}

	h.RegisterRoutes(router,
		middleware.Auth(cfg.JWTSecret, logger),
		middleware.Auth(cfg.JWTSecret, logger, middleware.WithQueryToken()))

	return router
}
