package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pintrader/pintrader-backend/internal/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameRequired   = errors.New("username is required")
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	// ErrUserConflict is returned by the repo when an insert hits a unique
	// index without saying which column collided.
	ErrUserConflict       = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
)

const minPasswordLength = 8

// User represents the domain model
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepo defines the interface for user data operations
type UserRepo interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	SearchByUsername(ctx context.Context, query string, limit int) ([]*User, error)
}

// UserUseCase contains business logic for user operations
type UserUseCase struct {
	repo   UserRepo
	logger *logger.Logger
}

func NewUserUseCase(repo UserRepo, log *logger.Logger) *UserUseCase {
	return &UserUseCase{repo: repo, logger: log}
}

// Register creates a new account. Username and email must both be unused;
// the password is stored only as a bcrypt hash.
func (uc *UserUseCase) Register(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))

	if username == "" {
		return nil, ErrUsernameRequired
	}
	if email == "" {
		return nil, ErrEmailRequired
	}
	if len(password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	if _, err := uc.repo.GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if _, err := uc.repo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := uc.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserConflict) {
			// A concurrent registration slipped in between the pre-checks
			// and the insert. Re-check which field collided so the caller
			// gets the same error either way.
			if _, lookupErr := uc.repo.GetByUsername(ctx, username); lookupErr == nil {
				return nil, ErrUsernameTaken
			}
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	uc.logger.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("username", username))

	return user, nil
}

// Authenticate verifies a username/password pair. Both an unknown username
// and a wrong password come back as ErrInvalidCredentials so the response
// does not leak which accounts exist.
func (uc *UserUseCase) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := uc.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		uc.logger.Warn("failed login attempt", zap.String("username", username))
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (uc *UserUseCase) GetUser(ctx context.Context, id string) (*User, error) {
	return uc.repo.GetByID(ctx, id)
}

func (uc *UserUseCase) GetByUsername(ctx context.Context, username string) (*User, error) {
	return uc.repo.GetByUsername(ctx, username)
}

// SearchUsers finds users whose username contains the query,
// case-insensitively.
func (uc *UserUseCase) SearchUsers(ctx context.Context, query string, limit int) ([]*User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return uc.repo.SearchByUsername(ctx, query, limit)
}
