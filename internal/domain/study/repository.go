package study

import "context"

// Repository defines the interface for study record persistence.
// Implementations must return shared.ErrStorage-wrapped errors on I/O failures.
type Repository interface {
	// GetOrCreate returns the record for userID, creating the zero record on first access.
	GetOrCreate(ctx context.Context, userID string) (*StudyRecord, error)

	// Save persists the whole record in a single write.
	Save(ctx context.Context, userID string, record *StudyRecord) error

	// ListAll returns a snapshot of every record, ordered by user id.
	ListAll(ctx context.Context) ([]*StudyRecord, error)
}

// Transactor is implemented by stores that can persist several records atomically.
type Transactor interface {
	// SaveAll persists every record in one transaction.
	SaveAll(ctx context.Context, records ...*StudyRecord) error
}
