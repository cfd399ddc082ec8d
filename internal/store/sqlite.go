package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/rcliao/casefile/internal/logging"
	"github.com/rcliao/casefile/internal/model"
	"github.com/rcliao/casefile/internal/store/migrations"
)

const recordColumns = `id, title, occurred_at, resolved, suspect`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	log    logging.Logger
	hub    *hub
	loadMu sync.Mutex
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithLogger sets the store logger.
func WithLogger(l logging.Logger) Option {
	return func(s *SQLiteStore) {
		if l != nil {
			s.log = l
		}
	}
}

// NewSQLiteStore opens or creates a SQLite database at the given path and
// brings its schema up to date.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:   db,
		path: dbPath,
		log:  logging.Nop(),
		hub:  newHub(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, migrations.FS)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		s.log.Debug(ctx, "migration applied", "version", r.Source.Version, "took", r.Duration)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Create(ctx context.Context, r model.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM records WHERE id = ?) + (SELECT COUNT(*) FROM retired_ids WHERE id = ?)`,
		r.ID.String(), r.ID.String()).Scan(&n)
	if err != nil {
		return fmt.Errorf("check id: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("create %s: %w", r.ID, ErrAlreadyExists)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?)`,
		r.ID.String(), r.Title, formatTime(r.Timestamp), r.Resolved, r.Suspect)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.changed(ctx, "create", r.ID)
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, r model.Record) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET title = ?, occurred_at = ?, resolved = ?, suspect = ? WHERE id = ?`,
		r.Title, formatTime(r.Timestamp), r.Resolved, r.Suspect, r.ID.String())
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update %s: %w", r.ID, ErrNotFound)
	}

	s.changed(ctx, "update", r.ID)
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id ulid.ULID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO retired_ids (id, retired_at) VALUES (?, ?)`,
		id.String(), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("retire id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.changed(ctx, "delete", id)
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id ulid.ULID) (model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, id.String())
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Record{}, err
	}
	return r, nil
}

// List returns every record in creation order.
func (s *SQLiteStore) List(ctx context.Context) (model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := model.Snapshot{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		snap = append(snap, r)
	}
	return snap, rows.Err()
}

func (s *SQLiteStore) Observe(ctx context.Context) (<-chan model.Snapshot, error) {
	sub, primed, ok := s.hub.subscribe()
	if !ok {
		return nil, ErrClosed
	}
	if !primed {
		if err := s.Refresh(ctx); err != nil {
			s.hub.unsubscribe(sub)
			return nil, err
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			s.hub.unsubscribe(sub)
		case <-sub.done:
		}
	}()

	return sub.ch, nil
}

// Refresh reloads the full snapshot and publishes it to observers. Loads are
// serialised so observers never see an older state after a newer one.
func (s *SQLiteStore) Refresh(ctx context.Context) error {
	return s.reload(ctx, false)
}

func (s *SQLiteStore) reload(ctx context.Context, onlyIfChanged bool) error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	snap, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if onlyIfChanged {
		s.hub.publishIfChanged(snap)
	} else {
		s.hub.publish(snap)
	}
	return nil
}

// changed republishes after a committed mutation. Without observers the cached
// snapshot is dropped instead; the next Observe reloads it.
func (s *SQLiteStore) changed(ctx context.Context, op string, id ulid.ULID) {
	s.log.Debug(ctx, "record changed", "op", op, "id", id.String())
	if s.hub.invalidateIfIdle() {
		return
	}
	if err := s.Refresh(context.WithoutCancel(ctx)); err != nil {
		s.log.Warn(ctx, "republish failed", "op", op, "err", err)
	}
}

func (s *SQLiteStore) Close() error {
	s.hub.close()
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (model.Record, error) {
	var r model.Record
	var id, occurredAt string

	if err := row.Scan(&id, &r.Title, &occurredAt, &r.Resolved, &r.Suspect); err != nil {
		return r, err
	}

	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return r, fmt.Errorf("bad id %q: %w", id, err)
	}
	r.ID = parsed

	t, err := time.Parse(time.RFC3339Nano, occurredAt)
	if err != nil {
		return r, fmt.Errorf("bad timestamp %q: %w", occurredAt, err)
	}
	r.Timestamp = t.In(time.Local)

	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// likePattern escapes s for a LIKE ... ESCAPE '\' clause.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
