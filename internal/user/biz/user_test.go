package biz

import (
	"context"
	"strings"
	"testing"

	"github.com/pintrader/pintrader-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memUserRepo struct {
	users map[string]*User
	// onCreate runs before the insert, standing in for work another
	// request does inside the pre-check/insert window.
	onCreate func()
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*User)}
}

func (r *memUserRepo) Create(ctx context.Context, user *User) error {
	if r.onCreate != nil {
		r.onCreate()
	}
	for _, existing := range r.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return ErrUserConflict
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	for _, user := range r.users {
		if user.Username == username {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	for _, user := range r.users {
		if user.Email == email {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memUserRepo) SearchByUsername(ctx context.Context, query string, limit int) ([]*User, error) {
	var out []*User
	for _, user := range r.users {
		if strings.Contains(strings.ToLower(user.Username), strings.ToLower(query)) {
			cp := *user
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func testUserUseCase(t *testing.T) (*UserUseCase, *memUserRepo) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "console"})
	require.NoError(t, err)
	repo := newMemUserRepo()
	return NewUserUseCase(repo, log), repo
}

func TestRegister(t *testing.T) {
	uc, _ := testUserUseCase(t)

	user, err := uc.Register(context.Background(), "alice", "Alice@Example.com", "correct horse")
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	// Email is normalized to lower case.
	assert.Equal(t, "alice@example.com", user.Email)

	// The password is never stored in the clear.
	assert.NotContains(t, user.PasswordHash, "correct horse")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("correct horse")))
}

func TestRegisterValidation(t *testing.T) {
	uc, _ := testUserUseCase(t)
	ctx := context.Background()

	_, err := uc.Register(ctx, "", "a@b.com", "long enough password")
	assert.ErrorIs(t, err, ErrUsernameRequired)

	_, err = uc.Register(ctx, "alice", "", "long enough password")
	assert.ErrorIs(t, err, ErrEmailRequired)

	_, err = uc.Register(ctx, "alice", "a@b.com", "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestRegisterDuplicates(t *testing.T) {
	uc, _ := testUserUseCase(t)
	ctx := context.Background()

	_, err := uc.Register(ctx, "alice", "alice@example.com", "long enough password")
	require.NoError(t, err)

	_, err = uc.Register(ctx, "alice", "other@example.com", "long enough password")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = uc.Register(ctx, "bob", "alice@example.com", "long enough password")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterConcurrentDuplicate(t *testing.T) {
	// A second registration that lands between the duplicate pre-checks
	// and the insert hits the unique index instead. The caller must still
	// be told which field collided.
	t.Run("username", func(t *testing.T) {
		uc, repo := testUserUseCase(t)
		ctx := context.Background()

		repo.onCreate = func() {
			repo.users["other"] = &User{ID: "other", Username: "alice", Email: "other@example.com"}
		}

		_, err := uc.Register(ctx, "alice", "alice@example.com", "long enough password")
		assert.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("email", func(t *testing.T) {
		uc, repo := testUserUseCase(t)
		ctx := context.Background()

		repo.onCreate = func() {
			repo.users["other"] = &User{ID: "other", Username: "someone-else", Email: "alice@example.com"}
		}

		_, err := uc.Register(ctx, "alice", "alice@example.com", "long enough password")
		assert.ErrorIs(t, err, ErrEmailTaken)
	})
}

func TestAuthenticate(t *testing.T) {
	uc, _ := testUserUseCase(t)
	ctx := context.Background()

	registered, err := uc.Register(ctx, "alice", "alice@example.com", "long enough password")
	require.NoError(t, err)

	user, err := uc.Authenticate(ctx, "alice", "long enough password")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	// Wrong password and unknown user yield the same error.
	_, err = uc.Authenticate(ctx, "alice", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = uc.Authenticate(ctx, "nobody", "long enough password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSearchUsers(t *testing.T) {
	uc, _ := testUserUseCase(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "alicia", "bob"} {
		_, err := uc.Register(ctx, name, name+"@example.com", "long enough password")
		require.NoError(t, err)
	}

	users, err := uc.SearchUsers(ctx, "ali", 20)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	// Blank query returns nothing rather than everything.
	users, err = uc.SearchUsers(ctx, "   ", 20)
	require.NoError(t, err)
	assert.Empty(t, users)
}
