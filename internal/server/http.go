package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pintrader/pintrader-backend/internal/auth/middleware"
	"github.com/pintrader/pintrader-backend/internal/conf"
	fileservice "github.com/pintrader/pintrader-backend/internal/file/service"
	"github.com/pintrader/pintrader-backend/internal/pkg/logger"
	userservice "github.com/pintrader/pintrader-backend/internal/user/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type HTTPServer struct {
	server *http.Server
	logger *zap.Logger
}

func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	userService *userservice.UserService,
	fileService *fileservice.FileService,
	redisClient *redis.Client,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLogger(log))
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api/v1")

	// Public routes
	userService.RegisterAuthRoutes(api, middleware.LoginRateLimiter(redisClient, log))

	// Authenticated routes
	authed := api.Group("")
	authed.Use(middleware.JWTAuth(config.Auth.JWTSecret, log))
	userService.RegisterRoutes(authed)
	fileService.RegisterRoutes(authed, middleware.UploadRateLimiter(redisClient, log))

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)

	return &HTTPServer{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: log.Logger,
	}
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
