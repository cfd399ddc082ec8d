package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string `json:"db_path"`
	DBSizeBytes int64  `json:"db_size_bytes"`
	Total       int    `json:"total"`
	Resolved    int    `json:"resolved"`
	Unresolved  int    `json:"unresolved"`
	WithSuspect int    `json:"with_suspect"`
	Retired     int    `json:"retired_ids"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(resolved), 0),
		       COALESCE(SUM(CASE WHEN TRIM(suspect) != '' THEN 1 ELSE 0 END), 0)
		FROM records`).Scan(&st.Total, &st.Resolved, &st.WithSuspect)
	if err != nil {
		return nil, err
	}
	st.Unresolved = st.Total - st.Resolved

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM retired_ids`).Scan(&st.Retired); err != nil {
		return nil, err
	}

	return st, nil
}
