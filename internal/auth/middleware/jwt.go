package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pintrader/pintrader-backend/internal/auth"
	"github.com/pintrader/pintrader-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// JWTAuth JWT 认证中间件
func JWTAuth(jwtSecret string, log *logger.Logger) gin.HandlerFunc {
	jwtManager := auth.NewJWTManager(jwtSecret)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			c.Abort()
			return
		}

		token, err := auth.ExtractTokenFromHeader(authHeader)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		// 验证 token
		claims, err := jwtManager.VerifyAccessToken(token)
		if err != nil {
			log.Warn("invalid access token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		// 将用户信息注入到上下文
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)

		c.Next()
	}
}

// GetUserID 从上下文获取用户 ID
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok
}

// GetUsername 从上下文获取用户名
func GetUsername(c *gin.Context) (string, bool) {
	username, exists := c.Get("username")
	if !exists {
		return "", false
	}
	name, ok := username.(string)
	return name, ok
}
