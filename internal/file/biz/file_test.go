package biz

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pintrader/pintrader-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	recs map[string]*FileRecord
}

func newMemRepo() *memRepo {
	return &memRepo{recs: make(map[string]*FileRecord)}
}

func (r *memRepo) Create(ctx context.Context, rec *FileRecord) error {
	if rec.Multihash != "" {
		for _, other := range r.recs {
			if other.Multihash == rec.Multihash {
				return ErrDuplicateHash
			}
		}
	}
	cp := *rec
	r.recs[rec.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, id string) (*FileRecord, error) {
	rec, ok := r.recs[id]
	if !ok {
		return nil, ErrFileNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memRepo) ListByOwner(ctx context.Context, ownerID string) ([]*FileRecord, error) {
	var out []*FileRecord
	for _, rec := range r.recs {
		if rec.OwnerID == ownerID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) ListPending(ctx context.Context, limit int) ([]*FileRecord, error) {
	return nil, nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, id string, from, to FileStatus, errMsg string) (bool, error) {
	rec, ok := r.recs[id]
	if !ok || rec.Status != from {
		return false, nil
	}
	rec.Status = to
	rec.ErrorMessage = errMsg
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (r *memRepo) SetCompleted(ctx context.Context, id, multihash string) (bool, error) {
	rec, ok := r.recs[id]
	if !ok || rec.Status != StatusProcessing {
		return false, nil
	}
	rec.Status = StatusCompleted
	rec.Multihash = multihash
	rec.StoragePath = ""
	return true, nil
}

func (r *memRepo) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

type memStaging struct {
	files map[string][]byte
}

func newMemStaging() *memStaging {
	return &memStaging{files: make(map[string][]byte)}
}

func (s *memStaging) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	s.files[key] = data
	return int64(len(data)), nil
}

func (s *memStaging) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.files[key]
	if !ok {
		return nil, fmt.Errorf("staged file %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStaging) Remove(ctx context.Context, key string) error {
	delete(s.files, key)
	return nil
}

func testUseCase(t *testing.T, verify bool) (*FileUseCase, *memRepo, *memStaging) {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "console"})
	require.NoError(t, err)
	repo := newMemRepo()
	store := newMemStaging()
	return NewFileUseCase(repo, store, verify, log), repo, store
}

const validHash = "b015512206C76F7BD4B84EB68C26D2E8F48EA76F90B9BDF8836E27235A0CA4325F8FE4CE5"

func TestRegisterByHashValidation(t *testing.T) {
	uc, _, _ := testUseCase(t, false)
	ctx := context.Background()

	tests := []struct {
		name      string
		filename  string
		multihash string
		size      int64
		wantErr   error
	}{
		{"missing filename", "", validHash, 10, ErrFilenameRequired},
		{"missing multihash", "a.txt", "", 10, ErrMultihashRequired},
		{"negative size", "a.txt", validHash, -1, ErrInvalidFileSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.RegisterByHash(ctx, "user-1", tt.filename, tt.multihash, tt.size, "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegisterByHashVerifiesFormat(t *testing.T) {
	uc, _, _ := testUseCase(t, true)
	ctx := context.Background()

	_, err := uc.RegisterByHash(ctx, "user-1", "a.txt", "QmNotOurFormat", 10, "")
	assert.ErrorIs(t, err, ErrInvalidMultihash)

	rec, err := uc.RegisterByHash(ctx, "user-1", "a.txt", validHash, 10, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
}

func TestRegisterByHashCreatesCompletedRecord(t *testing.T) {
	uc, repo, _ := testUseCase(t, false)

	rec, err := uc.RegisterByHash(context.Background(), "user-1", "notes.txt", validHash, 17, "my notes")
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, validHash, rec.Multihash)
	assert.Equal(t, int64(17), rec.SizeBytes)
	assert.Equal(t, "my notes", rec.Description)
	assert.Empty(t, rec.StoragePath)
	assert.Len(t, repo.recs, 1)
}

func TestRegisterByHashRejectsDuplicate(t *testing.T) {
	uc, repo, _ := testUseCase(t, false)
	ctx := context.Background()

	_, err := uc.RegisterByHash(ctx, "user-1", "first.txt", validHash, 10, "")
	require.NoError(t, err)

	// Same hash from a different user, different filename: still a conflict.
	_, err = uc.RegisterByHash(ctx, "user-2", "second.txt", validHash, 10, "")
	assert.ErrorIs(t, err, ErrDuplicateHash)

	assert.Len(t, repo.recs, 1)
}

func TestUploadRawStagesAndDefersProcessing(t *testing.T) {
	uc, repo, store := testUseCase(t, false)

	rec, err := uc.UploadRaw(context.Background(), "user-1", "hello.txt", strings.NewReader("hello world"))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, rec.Status)
	assert.Empty(t, rec.Multihash)
	assert.Equal(t, int64(11), rec.SizeBytes)
	assert.NotEmpty(t, rec.StoragePath)

	// Bytes are durably staged under the record's storage path.
	assert.Equal(t, []byte("hello world"), store.files[rec.StoragePath])

	stored := repo.recs[rec.ID]
	require.NotNil(t, stored)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestUploadRawMeasuresSizeServerSide(t *testing.T) {
	uc, _, _ := testUseCase(t, false)

	content := strings.Repeat("x", 4096)
	rec, err := uc.UploadRaw(context.Background(), "user-1", "big.bin", strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, int64(4096), rec.SizeBytes)
}

func TestUploadRawRejectsEmptyStream(t *testing.T) {
	uc, repo, store := testUseCase(t, false)

	_, err := uc.UploadRaw(context.Background(), "user-1", "empty.txt", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyUpload)

	assert.Empty(t, repo.recs)
	assert.Empty(t, store.files)
}

func TestUploadRawRequiresFilename(t *testing.T) {
	uc, _, _ := testUseCase(t, false)

	_, err := uc.UploadRaw(context.Background(), "user-1", "", strings.NewReader("data"))
	assert.ErrorIs(t, err, ErrFilenameRequired)
}

func TestUploadRawSanitizesStorageKey(t *testing.T) {
	uc, _, store := testUseCase(t, false)

	rec, err := uc.UploadRaw(context.Background(), "user-1", "../../etc/passwd", strings.NewReader("data"))
	require.NoError(t, err)

	assert.NotContains(t, rec.StoragePath, "/")
	assert.NotContains(t, rec.StoragePath, "..")
	assert.True(t, strings.HasSuffix(rec.StoragePath, "_passwd"))

	// Display name keeps what the client sent.
	assert.Equal(t, "../../etc/passwd", rec.Filename)
	assert.Contains(t, store.files, rec.StoragePath)
}

func TestGetFileStatus(t *testing.T) {
	uc, _, _ := testUseCase(t, false)
	ctx := context.Background()

	rec, err := uc.UploadRaw(ctx, "user-1", "a.txt", strings.NewReader("data"))
	require.NoError(t, err)

	got, err := uc.GetFileStatus(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.Multihash)

	_, err = uc.GetFileStatus(ctx, "no-such-id")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestListFilesForUser(t *testing.T) {
	uc, _, _ := testUseCase(t, false)
	ctx := context.Background()

	_, err := uc.UploadRaw(ctx, "user-1", "a.txt", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = uc.UploadRaw(ctx, "user-1", "b.txt", strings.NewReader("b"))
	require.NoError(t, err)
	_, err = uc.UploadRaw(ctx, "user-2", "c.txt", strings.NewReader("c"))
	require.NoError(t, err)

	files, err := uc.ListFilesForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestRetrySemantics(t *testing.T) {
	uc, repo, _ := testUseCase(t, false)
	ctx := context.Background()

	rec, err := uc.UploadRaw(ctx, "user-1", "a.txt", strings.NewReader("data"))
	require.NoError(t, err)

	// Retry of a pending record is an idempotent no-op.
	got, err := uc.Retry(ctx, rec.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	// Failed records go back to pending.
	repo.recs[rec.ID].Status = StatusFailed
	repo.recs[rec.ID].ErrorMessage = "pin failed: boom"
	got, err = uc.Retry(ctx, rec.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, got.ErrorMessage)

	// Stuck processing records can be reclaimed by an explicit retry.
	repo.recs[rec.ID].Status = StatusProcessing
	got, err = uc.Retry(ctx, rec.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	// Completed records never regress.
	repo.recs[rec.ID].Status = StatusCompleted
	repo.recs[rec.ID].Multihash = validHash
	_, err = uc.Retry(ctx, rec.ID, "user-1")
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	// Only the owner may retry.
	_, err = uc.Retry(ctx, rec.ID, "user-2")
	assert.ErrorIs(t, err, ErrNotOwner)
}
