package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"

	// database drivers
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// schema holds every collection in one table; records stay schemaless so
// collections evolve independently.
const schema = `
CREATE TABLE IF NOT EXISTS records (
    collection TEXT NOT NULL,
    record_key TEXT NOT NULL,
    data TEXT NOT NULL,
    due_at BIGINT,
    updated_at BIGINT NOT NULL,
    PRIMARY KEY (collection, record_key)
);
CREATE INDEX IF NOT EXISTS idx_records_due ON records (collection, due_at);
`

// SQLStore keeps records in a relational database through sqlx.
type SQLStore struct {
	db   *sqlx.DB
	keys keyLock
}

type recordRow struct {
	Key  string `db:"record_key"`
	Data string `db:"data"`
}

// OpenSQLite opens (creating if needed) a SQLite database at path.
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLStore, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)
	return newSQLStore(db)
}

// OpenPostgres connects to a PostgreSQL database.
func OpenPostgres(databaseURL string) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newSQLStore(db)
}

func newSQLStore(db *sqlx.DB) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Get(ctx context.Context, collection, key string) (mo.Option[Record], error) {
	if err := validateName(collection, key); err != nil {
		return mo.None[Record](), err
	}
	return s.get(ctx, s.db, collection, key)
}

func (s *SQLStore) Put(ctx context.Context, collection, key string, rec Record) error {
	if err := validateName(collection, key); err != nil {
		return err
	}
	unlock := s.keys.lock(collection, key)
	defer unlock()
	return s.upsert(ctx, s.db, collection, key, rec)
}

func (s *SQLStore) Increment(ctx context.Context, collection, key, field string, delta int64) (int64, error) {
	var value int64
	err := s.Update(ctx, collection, key, func(cur mo.Option[Record]) (Record, error) {
		rec, n, err := incrementRecord(cur, field, delta)
		value = n
		return rec, err
	})
	return value, err
}

func (s *SQLStore) Update(ctx context.Context, collection, key string, fn func(mo.Option[Record]) (Record, error)) error {
	if err := validateName(collection, key); err != nil {
		return err
	}
	unlock := s.keys.lock(collection, key)
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cur, err := s.get(ctx, tx, collection, key)
	if err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	if err := s.upsert(ctx, tx, collection, key, next); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, collection, key string) error {
	if err := validateName(collection, key); err != nil {
		return err
	}
	unlock := s.keys.lock(collection, key)
	defer unlock()

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM records WHERE collection = ? AND record_key = ?"), collection, key)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) QueryDue(ctx context.Context, collection string, before time.Time) ([]Entry, error) {
	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT record_key, data FROM records
		WHERE collection = ? AND due_at IS NOT NULL AND due_at <= ?
		ORDER BY due_at, record_key`), collection, before.UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query due records: %w", err)
	}
	return decodeRows(rows)
}

func (s *SQLStore) Scan(ctx context.Context, collection, prefix string) ([]Entry, error) {
	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT record_key, data FROM records
		WHERE collection = ? AND substr(record_key, 1, ?) = ?
		ORDER BY record_key`), collection, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	return decodeRows(rows)
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) get(ctx context.Context, q sqlx.QueryerContext, collection, key string) (mo.Option[Record], error) {
	var data string
	err := sqlx.GetContext(ctx, q, &data,
		s.db.Rebind("SELECT data FROM records WHERE collection = ? AND record_key = ?"), collection, key)
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[Record](), nil
	}
	if err != nil {
		return mo.None[Record](), fmt.Errorf("failed to get record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return mo.None[Record](), fmt.Errorf("failed to decode record %s/%s: %w", collection, key, err)
	}
	return mo.Some(rec), nil
}

func (s *SQLStore) upsert(ctx context.Context, ex sqlx.ExecerContext, collection, key string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	var due sql.NullInt64
	if at, ok := rec.DueAt(); ok {
		due = sql.NullInt64{Int64: at.UTC().UnixNano(), Valid: true}
	}
	_, err = ex.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO records (collection, record_key, data, due_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, record_key)
		DO UPDATE SET data = excluded.data, due_at = excluded.due_at, updated_at = excluded.updated_at`),
		collection, key, string(data), due, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

func decodeRows(rows []recordRow) ([]Entry, error) {
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		var rec Record
		if err := json.Unmarshal([]byte(r.Data), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", r.Key, err)
		}
		out = append(out, Entry{Key: r.Key, Record: rec})
	}
	return out, nil
}
