package store

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"

	"github.com/rcliao/casefile/internal/model"
)

// ExportAll returns every record in creation order.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]model.Record, error) {
	return s.List(ctx)
}

// Import stores records from an export, keeping their ids. Records whose id
// exists or was retired are skipped; records without an id get a new one.
func (s *SQLiteStore) Import(ctx context.Context, records []model.Record) (imported, skipped int, err error) {
	for _, r := range records {
		if r.ID == (ulid.ULID{}) {
			r.ID = ulid.Make()
		}
		err := s.Create(ctx, r)
		if errors.Is(err, ErrAlreadyExists) {
			skipped++
			continue
		}
		if err != nil {
			return imported, skipped, err
		}
		imported++
	}
	return imported, skipped, nil
}
