package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/casefile/internal/model"
)

// SearchParams holds parameters for searching records.
type SearchParams struct {
	Query    string
	Resolved *bool // nil matches both
	Limit    int
}

// Search finds records whose title or suspect contains the query, newest
// first.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.Record, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{`(title LIKE ? ESCAPE '\' OR suspect LIKE ? ESCAPE '\')`}
	pattern := likePattern(p.Query)
	args := []interface{}{pattern, pattern}

	if p.Resolved != nil {
		where = append(where, "resolved = ?")
		args = append(args, *p.Resolved)
	}

	query := fmt.Sprintf(`
		SELECT %s FROM records
		WHERE %s
		ORDER BY seq DESC
		LIMIT ?`, recordColumns, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	return results, rows.Err()
}
