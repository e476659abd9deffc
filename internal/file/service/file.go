package service

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pintrader/pintrader-backend/internal/auth/middleware"
	"github.com/pintrader/pintrader-backend/internal/file/biz"
	userbiz "github.com/pintrader/pintrader-backend/internal/user/biz"
	"go.uber.org/zap"
)

// FileService exposes the ingestion gateway over HTTP: both registration
// paths, status queries, retry and the per-user listing.
type FileService struct {
	uc     *biz.FileUseCase
	users  *userbiz.UserUseCase
	logger *zap.Logger
}

func NewFileService(uc *biz.FileUseCase, users *userbiz.UserUseCase, logger *zap.Logger) *FileService {
	return &FileService{
		uc:     uc,
		users:  users,
		logger: logger,
	}
}

type RegisterFileRequest struct {
	Filename    string `json:"filename" binding:"required"`
	Multihash   string `json:"multihash" binding:"required"`
	SizeBytes   int64  `json:"size_bytes"`
	Description string `json:"description"`
}

type FileResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	Description  string `json:"description,omitempty"`
	Multihash    string `json:"multihash,omitempty"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	SizeBytes    int64  `json:"size_bytes"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// RegisterByHash handles the pre-hashed registration path: the client
// computed the identifier locally and no file bytes reach the server.
func (s *FileService) RegisterByHash(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}

	var req RegisterFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := s.uc.RegisterByHash(c.Request.Context(), userID, req.Filename, req.Multihash, req.SizeBytes, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, biz.ErrDuplicateHash):
			c.JSON(http.StatusConflict, gin.H{"error": "file with this multihash already registered"})
		case errors.Is(err, biz.ErrFilenameRequired),
			errors.Is(err, biz.ErrMultihashRequired),
			errors.Is(err, biz.ErrInvalidMultihash),
			errors.Is(err, biz.ErrInvalidFileSize):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			s.logger.Error("failed to register file", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register file"})
		}
		return
	}

	c.JSON(http.StatusCreated, s.toResponse(rec))
}

// Upload handles the raw upload path: bytes are staged and the record is
// returned immediately as pending; hashing and pinning happen in the
// background.
func (s *FileService) Upload(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		s.logger.Error("failed to open uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer f.Close()

	rec, err := s.uc.UploadRaw(c.Request.Context(), userID, fileHeader.Filename, f)
	if err != nil {
		switch {
		case errors.Is(err, biz.ErrFilenameRequired), errors.Is(err, biz.ErrEmptyUpload):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			s.logger.Error("failed to stage upload", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		}
		return
	}

	c.JSON(http.StatusCreated, s.toResponse(rec))
}

// GetFile returns a record, primarily for polling its status.
func (s *FileService) GetFile(c *gin.Context) {
	id := c.Param("id")

	rec, err := s.uc.GetFileStatus(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, biz.ErrFileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		s.logger.Error("failed to get file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get file"})
		return
	}

	c.JSON(http.StatusOK, s.toResponse(rec))
}

// ListFiles returns the authenticated user's own files.
func (s *FileService) ListFiles(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}

	recs, err := s.uc.ListFilesForUser(c.Request.Context(), userID)
	if err != nil {
		s.logger.Error("failed to list files", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": s.toResponses(recs)})
}

// ListUserFiles 按用户名列出文件（公开的用户资料视图）
func (s *FileService) ListUserFiles(c *gin.Context) {
	username := c.Param("username")

	user, err := s.users.GetByUsername(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, userbiz.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		s.logger.Error("failed to resolve user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}

	recs, err := s.uc.ListFilesForUser(c.Request.Context(), user.ID)
	if err != nil {
		s.logger.Error("failed to list files", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list files"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username": user.Username,
		"files":    s.toResponses(recs),
	})
}

// Retry re-enqueues a failed record for another pinning attempt.
func (s *FileService) Retry(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
		return
	}
	id := c.Param("id")

	rec, err := s.uc.Retry(c.Request.Context(), id, userID)
	if err != nil {
		switch {
		case errors.Is(err, biz.ErrFileNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		case errors.Is(err, biz.ErrNotOwner):
			c.JSON(http.StatusForbidden, gin.H{"error": "not the owner of this file"})
		case errors.Is(err, biz.ErrAlreadyCompleted):
			c.JSON(http.StatusConflict, gin.H{"error": "file already completed"})
		default:
			s.logger.Error("failed to retry file", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry file"})
		}
		return
	}

	c.JSON(http.StatusOK, s.toResponse(rec))
}

func (s *FileService) toResponse(rec *biz.FileRecord) *FileResponse {
	return &FileResponse{
		ID:           rec.ID,
		Filename:     rec.Filename,
		Description:  rec.Description,
		Multihash:    rec.Multihash,
		Status:       rec.Status.String(),
		ErrorMessage: rec.ErrorMessage,
		SizeBytes:    rec.SizeBytes,
		CreatedAt:    rec.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt:    rec.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

func (s *FileService) toResponses(recs []*biz.FileRecord) []*FileResponse {
	responses := make([]*FileResponse, len(recs))
	for i, rec := range recs {
		responses[i] = s.toResponse(rec)
	}
	return responses
}

// RegisterRoutes mounts the authenticated file endpoints.
func (s *FileService) RegisterRoutes(r *gin.RouterGroup, uploadLimiter gin.HandlerFunc) {
	files := r.Group("/files")
	{
		files.POST("", s.RegisterByHash)
		if uploadLimiter != nil {
			files.POST("/upload", uploadLimiter, s.Upload)
		} else {
			files.POST("/upload", s.Upload)
		}
		files.GET("", s.ListFiles)
		files.GET("/:id", s.GetFile)
		files.POST("/:id/retry", s.Retry)
	}

	r.GET("/users/:username/files", s.ListUserFiles)
}
