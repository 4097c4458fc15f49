// Package importer moves data between the legacy single-file JSON database
// and a record store.
//
// The file has the shape {"users": {"<id>": {totalTime, dailyTime, ...}}}.
// History may be in the old numeric form; it is dated during import.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/studyhub/studyhub/internal/domain/shared"
	"github.com/studyhub/studyhub/internal/domain/study"
	"github.com/studyhub/studyhub/pkg/timeutil"
)

// Database is the legacy file layout.
type Database struct {
	Users map[string]study.Document `json:"users"`
}

// Result summarizes an import.
type Result struct {
	Users    int `json:"users"`
	Migrated int `json:"migrated"` // records whose history was in the numeric form
}

// Importer writes legacy records into a repository.
type Importer struct {
	repo   study.Repository
	cal    timeutil.Calendar
	clock  timeutil.Clock
	logger *slog.Logger
}

// New creates an Importer. A nil logger uses slog.Default().
func New(repo study.Repository, cal timeutil.Calendar, clock timeutil.Clock, logger *slog.Logger) *Importer {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{repo: repo, cal: cal, clock: clock, logger: logger.With(slog.String("component", "importer"))}
}

// Import reads a legacy database from r and saves every user.
// Existing records with the same id are overwritten. With a Transactor
// store the whole import is one transaction.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	var db Database
	if err := json.NewDecoder(r).Decode(&db); err != nil {
		return Result{}, shared.WrapError("importer", "Import", shared.ErrInvalidInput, "malformed database file", err)
	}

	ids := make([]string, 0, len(db.Users))
	for id := range db.Users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := im.clock.Now()
	var res Result
	records := make([]*study.StudyRecord, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		rec, migrated, err := study.FromDocument(id, db.Users[id], im.cal, now)
		if err != nil {
			return Result{}, shared.WrapError("importer", "Import", shared.ErrInvalidInput,
				fmt.Sprintf("user %s", id), err)
		}
		if migrated {
			res.Migrated++
		}
		records = append(records, rec)
	}

	if tx, ok := im.repo.(study.Transactor); ok {
		if err := tx.SaveAll(ctx, records...); err != nil {
			return Result{}, err
		}
	} else {
		for _, rec := range records {
			if err := im.repo.Save(ctx, rec.UserID, rec); err != nil {
				return Result{}, err
			}
		}
	}
	res.Users = len(records)

	im.logger.Info("legacy import finished",
		slog.Int("users", res.Users),
		slog.Int("migrated", res.Migrated),
	)
	return res, nil
}

// Export writes every record in the legacy layout with canonical history.
func (im *Importer) Export(ctx context.Context, w io.Writer) (int, error) {
	records, err := im.repo.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	db := Database{Users: make(map[string]study.Document, len(records))}
	for _, rec := range records {
		doc, err := study.ToDocument(rec)
		if err != nil {
			return 0, fmt.Errorf("export %s: %w", rec.UserID, err)
		}
		db.Users[rec.UserID] = doc
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(db); err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	return len(records), nil
}

