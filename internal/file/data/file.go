package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pintrader/pintrader-backend/internal/file/biz"
	"gorm.io/gorm"
)

// FilePO 文件记录数据库模型
type FilePO struct {
	ID           string    `gorm:"type:uuid;primarykey"`
	OwnerID      string    `gorm:"column:owner_id;type:uuid;not null;index:idx_files_owner"`
	Filename     string    `gorm:"column:filename;size:255;not null"`
	Description  string    `gorm:"column:description;type:text"`
	Multihash    *string   `gorm:"column:multihash;size:255;uniqueIndex:idx_files_multihash,where:multihash IS NOT NULL"`
	Status       string    `gorm:"column:status;size:50;not null;default:'pending';index:idx_files_status_created,priority:1"`
	ErrorMessage string    `gorm:"column:error_message;type:text"`
	SizeBytes    int64     `gorm:"column:size_bytes;not null"`
	StoragePath  string    `gorm:"column:storage_path;size:500"`
	CreatedAt    time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP;index:idx_files_status_created,priority:2"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

func (FilePO) TableName() string {
	return "files"
}

// FileRepo 文件仓储实现
type FileRepo struct {
	db *gorm.DB
}

// NewFileRepo 创建文件仓储
func NewFileRepo(db *gorm.DB) *FileRepo {
	return &FileRepo{db: db}
}

// Create 创建文件记录；multihash 冲突转换为 biz.ErrDuplicateHash
func (r *FileRepo) Create(ctx context.Context, rec *biz.FileRecord) error {
	po := toPO(rec)

	err := r.db.WithContext(ctx).Create(po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return biz.ErrDuplicateHash
		}
		return fmt.Errorf("failed to create file record: %w", err)
	}

	return nil
}

// GetByID 根据 ID 获取文件记录
func (r *FileRepo) GetByID(ctx context.Context, id string) (*biz.FileRecord, error) {
	var po FilePO
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file record: %w", err)
	}

	return toDomain(&po), nil
}

// ListByOwner 列出用户的全部文件，按创建时间倒序
func (r *FileRepo) ListByOwner(ctx context.Context, ownerID string) ([]*biz.FileRecord, error) {
	var pos []FilePO
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	recs := make([]*biz.FileRecord, len(pos))
	for i, po := range pos {
		recs[i] = toDomain(&po)
	}
	return recs, nil
}

// ListPending 按创建时间正序取出待处理记录（FIFO，避免积压时新文件插队）
func (r *FileRepo) ListPending(ctx context.Context, limit int) ([]*biz.FileRecord, error) {
	var pos []FilePO
	err := r.db.WithContext(ctx).
		Where("status = ?", string(biz.StatusPending)).
		Order("created_at ASC").
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending files: %w", err)
	}

	recs := make([]*biz.FileRecord, len(pos))
	for i, po := range pos {
		recs[i] = toDomain(&po)
	}
	return recs, nil
}

// UpdateStatus 条件状态转移：仅当当前状态匹配 from 时生效
func (r *FileRepo) UpdateStatus(ctx context.Context, id string, from, to biz.FileStatus, errMsg string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&FilePO{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(map[string]interface{}{
			"status":        string(to),
			"error_message": errMsg,
			"updated_at":    time.Now(),
		})

	if res.Error != nil {
		return false, fmt.Errorf("failed to update file status: %w", res.Error)
	}

	return res.RowsAffected > 0, nil
}

// SetCompleted 完成转移：processing -> completed，写入 multihash 并清空暂存路径
func (r *FileRepo) SetCompleted(ctx context.Context, id, multihash string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&FilePO{}).
		Where("id = ? AND status = ?", id, string(biz.StatusProcessing)).
		Updates(map[string]interface{}{
			"status":        string(biz.StatusCompleted),
			"multihash":     multihash,
			"error_message": "",
			"storage_path":  "",
			"updated_at":    time.Now(),
		})

	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, biz.ErrDuplicateHash
		}
		return false, fmt.Errorf("failed to complete file record: %w", res.Error)
	}

	return res.RowsAffected > 0, nil
}

// ReclaimStale 将卡在 processing 的陈旧记录回收为 pending
func (r *FileRepo) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&FilePO{}).
		Where("status = ? AND updated_at < ?", string(biz.StatusProcessing), olderThan).
		Updates(map[string]interface{}{
			"status":        string(biz.StatusPending),
			"error_message": "",
			"updated_at":    time.Now(),
		})

	if res.Error != nil {
		return 0, fmt.Errorf("failed to reclaim stale records: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&FilePO{})
}

func toPO(rec *biz.FileRecord) *FilePO {
	po := &FilePO{
		ID:           rec.ID,
		OwnerID:      rec.OwnerID,
		Filename:     rec.Filename,
		Description:  rec.Description,
		Status:       string(rec.Status),
		ErrorMessage: rec.ErrorMessage,
		SizeBytes:    rec.SizeBytes,
		StoragePath:  rec.StoragePath,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}

	// 空串表示未生成；NULL 才能配合部分唯一索引
	if rec.Multihash != "" {
		hash := rec.Multihash
		po.Multihash = &hash
	}

	return po
}

func toDomain(po *FilePO) *biz.FileRecord {
	rec := &biz.FileRecord{
		ID:           po.ID,
		OwnerID:      po.OwnerID,
		Filename:     po.Filename,
		Description:  po.Description,
		Status:       biz.FileStatus(po.Status),
		ErrorMessage: po.ErrorMessage,
		SizeBytes:    po.SizeBytes,
		StoragePath:  po.StoragePath,
		CreatedAt:    po.CreatedAt,
		UpdatedAt:    po.UpdatedAt,
	}

	if po.Multihash != nil {
		rec.Multihash = *po.Multihash
	}

	return rec
}
