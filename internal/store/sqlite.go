package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // register the pure-Go SQLite driver

	"github.com/sells-group/utility-lookup/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and configures WAL mode so
// concurrent readers don't block the single writer the batch validator's
// checkpoint phase requires.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(10)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS result_cache (
	address_key TEXT PRIMARY KEY,
	payload     BLOB NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_result_cache_expires_at ON result_cache(expires_at);

CREATE TABLE IF NOT EXISTS batch_checkpoints (
	run_id     TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dead_letter_queue (
	id             TEXT PRIMARY KEY,
	address        TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL,
	failed_phase   TEXT,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_dlq_error_type ON dead_letter_queue(error_type);
`

// DB exposes the underlying handle so collaborators that need their own
// tables on the same embedded database (corrections, catalog overrides) can
// share one connection pool instead of opening a second file handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Get returns a cache hit only if the row hasn't expired. A row that
// exists but has expired is treated identically to a miss; ClearExpired
// reaps it later.
func (s *SQLiteStore) Get(ctx context.Context, addressKey string) ([]byte, bool, error) {
	var payload []byte
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM result_cache WHERE address_key = ?`, addressKey,
	).Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: get result cache")
	}
	if time.Now().After(expiresAt) {
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, addressKey string, payload []byte, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO result_cache (address_key, payload, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(address_key) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		addressKey, payload, time.Now().UTC(), expiresAt,
	)
	return eris.Wrap(err, "sqlite: put result cache")
}

func (s *SQLiteStore) Invalidate(ctx context.Context, addressKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM result_cache WHERE address_key = ?`, addressKey)
	return eris.Wrap(err, "sqlite: invalidate result cache")
}

func (s *SQLiteStore) ClearExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM result_cache WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear expired result cache")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// ClearAll removes every result cache row regardless of expiry, backing
// the `DELETE /cache` administrative endpoint.
func (s *SQLiteStore) ClearAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM result_cache`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear all result cache")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, runID string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_checkpoints (run_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		runID, data, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save checkpoint")
}

func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, runID string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM batch_checkpoints WHERE run_id = ?`, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: load checkpoint")
	}
	return data, true, nil
}

func (s *SQLiteStore) DeleteCheckpoint(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM batch_checkpoints WHERE run_id = ?`, runID)
	return eris.Wrap(err, "sqlite: delete checkpoint")
}

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry resilience.DLQEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue (id, address, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Address, entry.Error, entry.ErrorType, entry.FailedPhase,
		entry.RetryCount, entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	q := `SELECT id, address, error, error_type, failed_phase, retry_count, max_retries, next_retry_at, created_at, last_failed_at FROM dead_letter_queue`
	args := []any{}
	if filter.ErrorType != "" {
		q += ` WHERE error_type = ?`
		args = append(args, filter.ErrorType)
	}
	q += ` ORDER BY next_retry_at ASC`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue dlq")
	}
	defer rows.Close()

	var out []resilience.DLQEntry
	for rows.Next() {
		var e resilience.DLQEntry
		var failedPhase sql.NullString
		if err := rows.Scan(&e.ID, &e.Address, &e.Error, &e.ErrorType, &failedPhase,
			&e.RetryCount, &e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq row")
		}
		e.FailedPhase = failedPhase.String
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate dlq rows")
}

func (s *SQLiteStore) IncrementDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ? WHERE id = ?`,
		nextRetryAt, lastErr, time.Now().UTC(), id,
	)
	return eris.Wrap(err, "sqlite: increment dlq retry")
}

func (s *SQLiteStore) RemoveDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove dlq entry")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count dlq")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "sqlite: close")
}
