package biz

import "errors"

// Validation errors: malformed or missing input, surfaced to the caller,
// never retried.
var (
	ErrFilenameRequired  = errors.New("filename is required")
	ErrMultihashRequired = errors.New("multihash is required")
	ErrInvalidMultihash  = errors.New("invalid multihash format")
	ErrInvalidFileSize   = errors.New("invalid file size")
	ErrEmptyUpload       = errors.New("no file content supplied")
)

// Conflict errors: the dedup constraint doing its job, a definitive
// rejection rather than a transient fault.
var (
	ErrDuplicateHash    = errors.New("file with this multihash already exists")
	ErrAlreadyCompleted = errors.New("file is already completed")
)

var (
	ErrFileNotFound = errors.New("file record not found")
	ErrNotOwner     = errors.New("file belongs to another user")
)
