package biz

// FileStatus is the processing state of an uploaded file. Transitions are
// one-directional: pending -> processing -> completed or failed. A failed
// (or stuck processing) record returns to pending only through an explicit
// retry.
type FileStatus string

const (
	// StatusPending awaits the background pinning processor.
	StatusPending FileStatus = "pending"
	// StatusProcessing is claimed by a processor cycle.
	StatusProcessing FileStatus = "processing"
	// StatusCompleted has a content identifier assigned.
	StatusCompleted FileStatus = "completed"
	// StatusFailed failed staging lookup or pin submission.
	StatusFailed FileStatus = "failed"
)

// Valid reports whether the status is one of the known states.
func (s FileStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s FileStatus) String() string {
	return string(s)
}
