package service

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pintrader/pintrader-backend/internal/auth"
	"github.com/pintrader/pintrader-backend/internal/auth/middleware"
	"github.com/pintrader/pintrader-backend/internal/user/biz"
	"go.uber.org/zap"
)

type UserService struct {
	uc         *biz.UserUseCase
	jwtManager *auth.JWTManager
	logger     *zap.Logger
}

func NewUserService(uc *biz.UserUseCase, jwtManager *auth.JWTManager, logger *zap.Logger) *UserService {
	return &UserService{
		uc:         uc,
		jwtManager: jwtManager,
		logger:     logger,
	}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"created_at"`
}

func (s *UserService) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.uc.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, biz.ErrUsernameTaken), errors.Is(err, biz.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, biz.ErrUsernameRequired),
			errors.Is(err, biz.ErrEmailRequired),
			errors.Is(err, biz.ErrPasswordTooShort):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			s.logger.Error("failed to register user", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		}
		return
	}

	c.JSON(http.StatusCreated, s.toResponse(user, true))
}

func (s *UserService) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.uc.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, biz.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		s.logger.Error("failed to authenticate user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to authenticate"})
		return
	}

	token, err := s.jwtManager.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		s.logger.Error("failed to generate access token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"user":         s.toResponse(user, true),
	})
}

// GetProfile returns the authenticated user's own account.
func (s *UserService) GetProfile(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}

	user, err := s.uc.GetUser(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("failed to get user", zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, s.toResponse(user, true))
}

// SearchUsers 用户名模糊搜索
func (s *UserService) SearchUsers(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	users, err := s.uc.SearchUsers(c.Request.Context(), query, limit)
	if err != nil {
		s.logger.Error("failed to search users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search users"})
		return
	}

	responses := make([]*UserResponse, len(users))
	for i, user := range users {
		responses[i] = s.toResponse(user, false)
	}

	c.JSON(http.StatusOK, gin.H{"users": responses})
}

func (s *UserService) toResponse(user *biz.User, includeEmail bool) *UserResponse {
	resp := &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if includeEmail {
		resp.Email = user.Email
	}
	return resp
}

// RegisterAuthRoutes mounts the unauthenticated register/login endpoints.
func (s *UserService) RegisterAuthRoutes(r *gin.RouterGroup, loginLimiter gin.HandlerFunc) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", s.Register)
		if loginLimiter != nil {
			authGroup.POST("/login", loginLimiter, s.Login)
		} else {
			authGroup.POST("/login", s.Login)
		}
	}
}

// RegisterRoutes mounts the authenticated user endpoints.
func (s *UserService) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("/me", s.GetProfile)
		users.GET("", s.SearchUsers)
	}
}
