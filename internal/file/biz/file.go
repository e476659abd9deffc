package biz

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pintrader/pintrader-backend/internal/file/staging"
	"github.com/pintrader/pintrader-backend/internal/pkg/cid"
	"github.com/pintrader/pintrader-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// FileRecord is the central entity: one uploaded file owned by one user.
// Multihash stays empty until the record is completed; once set it is
// globally unique and never changes. StoragePath points at the staged bytes
// and is present only while the record awaits processing.
type FileRecord struct {
	ID           string
	OwnerID      string
	Filename     string
	Description  string
	Multihash    string
	Status       FileStatus
	ErrorMessage string
	SizeBytes    int64
	StoragePath  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FileRepo is the durable record store. Status transitions are conditional
// updates keyed on the current status so the gateway and processor (and
// multiple processor instances) can run concurrently without claiming a
// record twice.
type FileRepo interface {
	Create(ctx context.Context, rec *FileRecord) error
	GetByID(ctx context.Context, id string) (*FileRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*FileRecord, error)

	// ListPending returns up to limit pending records, oldest first.
	ListPending(ctx context.Context, limit int) ([]*FileRecord, error)

	// UpdateStatus transitions id from one status to another and records
	// errMsg. It reports false when the record was not in the expected
	// status, without error.
	UpdateStatus(ctx context.Context, id string, from, to FileStatus, errMsg string) (bool, error)

	// SetCompleted transitions id from processing to completed, assigns the
	// multihash and clears the staging path. Returns ErrDuplicateHash when
	// another record already owns the multihash.
	SetCompleted(ctx context.Context, id, multihash string) (bool, error)

	// ReclaimStale moves processing records older than the threshold back
	// to pending and reports how many were reclaimed.
	ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// StagingStore holds raw uploaded bytes between upload and pinning.
type StagingStore interface {
	// Save persists the stream under key and returns the measured size.
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// FileUseCase is the ingestion gateway: both registration paths, status
// queries and the explicit retry.
type FileUseCase struct {
	repo            FileRepo
	staging         StagingStore
	verifyMultihash bool
	logger          *logger.Logger
}

// NewFileUseCase creates the gateway. When verifyMultihash is set,
// client-supplied identifiers are rejected unless they are well-formed;
// the digest itself is still trusted (the client hashed the bytes).
func NewFileUseCase(repo FileRepo, store StagingStore, verifyMultihash bool, log *logger.Logger) *FileUseCase {
	return &FileUseCase{
		repo:            repo,
		staging:         store,
		verifyMultihash: verifyMultihash,
		logger:          log,
	}
}

// RegisterByHash records a file whose multihash was computed by the client.
// The record is born completed; no bytes pass through the server. Uniqueness
// is enforced by the store in the same atomic step as the insert.
func (uc *FileUseCase) RegisterByHash(ctx context.Context, ownerID, filename, multihash string, sizeBytes int64, description string) (*FileRecord, error) {
	if filename == "" {
		return nil, ErrFilenameRequired
	}
	if multihash == "" {
		return nil, ErrMultihashRequired
	}
	if sizeBytes < 0 {
		return nil, ErrInvalidFileSize
	}
	if uc.verifyMultihash && !cid.Valid(multihash) {
		return nil, ErrInvalidMultihash
	}

	now := time.Now()
	rec := &FileRecord{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Filename:    filename,
		Description: description,
		Multihash:   multihash,
		Status:      StatusCompleted,
		SizeBytes:   sizeBytes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	uc.logger.Info("file hash registered",
		zap.String("file_id", rec.ID),
		zap.String("owner_id", ownerID),
		zap.String("multihash", multihash))

	return rec, nil
}

// UploadRaw stages the byte stream and records it as pending. Hashing and
// pinning happen later in the background processor; the caller gets the
// record identity as soon as the bytes are durably staged.
func (uc *FileUseCase) UploadRaw(ctx context.Context, ownerID, filename string, r io.Reader) (*FileRecord, error) {
	if filename == "" {
		return nil, ErrFilenameRequired
	}

	key := fmt.Sprintf("%s_%s", uuid.New().String(), staging.SanitizeFilename(filename))

	size, err := uc.staging.Save(ctx, key, r)
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	if size == 0 {
		_ = uc.staging.Remove(ctx, key)
		return nil, ErrEmptyUpload
	}

	now := time.Now()
	rec := &FileRecord{
		ID:          uuid.New().String(),
		OwnerID:     ownerID,
		Filename:    filename,
		Status:      StatusPending,
		SizeBytes:   size,
		StoragePath: key,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, rec); err != nil {
		_ = uc.staging.Remove(ctx, key)
		return nil, fmt.Errorf("create file record: %w", err)
	}

	uc.logger.Info("file staged for pinning",
		zap.String("file_id", rec.ID),
		zap.String("owner_id", ownerID),
		zap.String("storage_path", key),
		zap.Int64("size_bytes", size))

	return rec, nil
}

// GetFileStatus returns the record, primarily for its status and multihash.
func (uc *FileUseCase) GetFileStatus(ctx context.Context, id string) (*FileRecord, error) {
	return uc.repo.GetByID(ctx, id)
}

// ListFilesForUser is the read-only projection used by profile views.
func (uc *FileUseCase) ListFilesForUser(ctx context.Context, ownerID string) ([]*FileRecord, error) {
	return uc.repo.ListByOwner(ctx, ownerID)
}

// Retry re-enqueues a failed record. It is idempotent: retrying a record
// that is already pending succeeds without effect. A record stuck in
// processing (crashed cycle) can also be reclaimed this way; completed
// records cannot be retried.
func (uc *FileUseCase) Retry(ctx context.Context, id, ownerID string) (*FileRecord, error) {
	rec, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrNotOwner
	}

	switch rec.Status {
	case StatusPending:
		return rec, nil
	case StatusCompleted:
		return nil, ErrAlreadyCompleted
	}

	ok, err := uc.repo.UpdateStatus(ctx, id, rec.Status, StatusPending, "")
	if err != nil {
		return nil, fmt.Errorf("re-enqueue file: %w", err)
	}
	if ok {
		uc.logger.Info("file re-enqueued",
			zap.String("file_id", id),
			zap.String("from_status", rec.Status.String()))
	}

	// A lost race means another actor already moved the record on; report
	// the current state instead of failing.
	return uc.repo.GetByID(ctx, id)
}
