package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pintrader/pintrader-backend/internal/user/biz"
	"gorm.io/gorm"
)

// UserPO represents the database model
type UserPO struct {
	ID           string    `gorm:"type:uuid;primarykey"`
	Username     string    `gorm:"size:50;not null;uniqueIndex:idx_users_username"`
	Email        string    `gorm:"size:255;not null;uniqueIndex:idx_users_email"`
	PasswordHash string    `gorm:"size:255;not null"`
	CreatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (UserPO) TableName() string {
	return "users"
}

// UserRepo implements biz.UserRepo interface
type UserRepo struct {
	db *gorm.DB
}

func NewUserRepo(db *gorm.DB) biz.UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, user *biz.User) error {
	po := toPO(user)

	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		// 用例层先查重，这里兜住并发窗口里的唯一索引冲突。
		// 翻译后的错误不带约束名，冲突在哪个字段由用例层回查判断
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return biz.ErrUserConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*biz.User, error) {
	var po UserPO
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return toUser(&po), nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*biz.User, error) {
	var po UserPO
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	return toUser(&po), nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*biz.User, error) {
	var po UserPO
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, biz.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return toUser(&po), nil
}

// likeEscaper 转义 LIKE/ILIKE 模式里的通配符，用户输入只做字面匹配
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchByUsername 用户名模糊搜索（ILIKE，不区分大小写）
func (r *UserRepo) SearchByUsername(ctx context.Context, query string, limit int) ([]*biz.User, error) {
	var pos []UserPO
	err := r.db.WithContext(ctx).
		Where("username ILIKE ?", "%"+likeEscaper.Replace(query)+"%").
		Order("username ASC").
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	users := make([]*biz.User, len(pos))
	for i, po := range pos {
		users[i] = toUser(&po)
	}

	return users, nil
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserPO{})
}

func toPO(user *biz.User) *UserPO {
	return &UserPO{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

func toUser(po *UserPO) *biz.User {
	return &biz.User{
		ID:           po.ID,
		Username:     po.Username,
		Email:        po.Email,
		PasswordHash: po.PasswordHash,
		CreatedAt:    po.CreatedAt,
		UpdatedAt:    po.UpdatedAt,
	}
}
