// Package memory implements an in-process record store.
// It backs tests and the single-process dev mode; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
)

// RecordRepository stores deep copies of records in a map.
type RecordRepository struct {
	mu      sync.RWMutex
	records map[string]*study.StudyRecord

	// failWith, when set, is returned by every operation. Tests use it to
	// exercise storage failure paths.
	failWith error
}

// NewRecordRepository creates an empty store.
func NewRecordRepository() *RecordRepository {
	return &RecordRepository{records: make(map[string]*study.StudyRecord)}
}

var (
	_ study.Repository = (*RecordRepository)(nil)
	_ study.Transactor = (*RecordRepository)(nil)
)

// GetOrCreate returns a copy of the record, creating the zero record lazily.
func (r *RecordRepository) GetOrCreate(ctx context.Context, userID string) (*study.StudyRecord, error) {
	if userID == "" {
		return nil, shared.ErrEmptyUserID
	}
	if err := r.check(ctx, "GetOrCreate"); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[userID]
	if !ok {
		rec = study.NewStudyRecord(userID)
		r.records[userID] = rec
	}
	return rec.Clone(), nil
}

// Save replaces the stored record with a copy of record.
func (r *RecordRepository) Save(ctx context.Context, userID string, record *study.StudyRecord) error {
	if userID == "" {
		return shared.ErrEmptyUserID
	}
	if err := r.check(ctx, "Save"); err != nil {
		return err
	}

	clone := record.Clone()
	clone.UserID = userID

	r.mu.Lock()
	r.records[userID] = clone
	r.mu.Unlock()
	return nil
}

// SaveAll replaces several records under one lock.
func (r *RecordRepository) SaveAll(ctx context.Context, records ...*study.StudyRecord) error {
	if err := r.check(ctx, "SaveAll"); err != nil {
		return err
	}
	for _, rec := range records {
		if rec == nil || rec.UserID == "" {
			return shared.ErrEmptyUserID
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.records[rec.UserID] = rec.Clone()
	}
	return nil
}

// ListAll returns copies of every record ordered by user id.
func (r *RecordRepository) ListAll(ctx context.Context) ([]*study.StudyRecord, error) {
	if err := r.check(ctx, "ListAll"); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]*study.StudyRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Len returns the number of stored records.
func (r *RecordRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// FailWith makes every subsequent call fail with a storage error wrapping err.
// Pass nil to restore normal behaviour.
func (r *RecordRepository) FailWith(err error) {
	r.mu.Lock()
	r.failWith = err
	r.mu.Unlock()
}

func (r *RecordRepository) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return shared.StorageError(op, err)
	}
	r.mu.RLock()
	err := r.failWith
	r.mu.RUnlock()
	return shared.StorageError(op, err)
}
