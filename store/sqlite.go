package store

import (
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS kv_log (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	k       TEXT NOT NULL,
	v       TEXT,
	removed INTEGER NOT NULL DEFAULT 0,
	origin  TEXT NOT NULL
);
`

// SQLite is a Watchable backed by a shared SQLite database. SQLite has no
// cross-connection notification primitive, so every mutation is also
// appended to a changelog table and each handle polls the log past its
// cursor, skipping rows tagged with its own origin id. That preserves the
// Watch contract: other handles' changes only.
type SQLite struct {
	db     *sql.DB
	origin string
	log    zerolog.Logger
	done   chan struct{}

	mu  sync.Mutex
	set *watcherSet

	lastSeq int64

	closeOnce sync.Once
}

var _ Watchable = (*SQLite)(nil)

// SQLiteOption configures an SQLite store handle.
type SQLiteOption func(*sqliteOptions)

type sqliteOptions struct {
	pollInterval time.Duration
}

// WithPollInterval sets the changelog poll cadence (default 250ms).
func WithPollInterval(d time.Duration) SQLiteOption {
	return func(o *sqliteOptions) {
		o.pollInterval = d
	}
}

// OpenSQLite opens (creating if needed) the shared database at path and
// begins polling its changelog.
func OpenSQLite(path string, log zerolog.Logger, options ...SQLiteOption) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("[store.OpenSQLite] path is required")
	}
	opts := sqliteOptions{pollInterval: 250 * time.Millisecond}
	for _, opt := range options {
		opt(&opts)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, "[store.OpenSQLite] opening database")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[store.OpenSQLite] creating schema")
	}

	s := &SQLite{
		db:     db,
		origin: uuid.NewString(),
		log:    log,
		done:   make(chan struct{}),
		set:    newWatcherSet(),
	}

	// Changes before this handle existed are history, not notifications.
	if err := db.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM kv_log`).Scan(&s.lastSeq); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[store.OpenSQLite] reading changelog cursor")
	}

	go s.pollLoop(opts.pollInterval)
	return s, nil
}

// Get implements Store.
func (s *SQLite) Get(key string) (string, bool) {
	var v string
	err := s.db.QueryRow(`SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn().Err(err).Str("key", key).Msg("sqlite store read")
		}
		return "", false
	}
	return v, true
}

// Set implements Store.
func (s *SQLite) Set(key, value string) {
	tx, err := s.db.Begin()
	if err != nil {
		s.log.Error().Err(err).Msg("sqlite store begin")
		return
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRow(`SELECT v FROM kv WHERE k = ?`, key).Scan(&current)
	if err == nil && current == value {
		return
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.log.Error().Err(err).Str("key", key).Msg("sqlite store read-before-write")
		return
	}

	if _, err := tx.Exec(`INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`, key, value); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("sqlite store upsert")
		return
	}
	if _, err := tx.Exec(`INSERT INTO kv_log (k, v, removed, origin) VALUES (?, ?, 0, ?)`, key, value, s.origin); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("sqlite store log")
		return
	}
	if err := tx.Commit(); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("sqlite store commit")
	}
}

// Remove implements Store.
func (s *SQLite) Remove(key string) {
	tx, err := s.db.Begin()
	if err != nil {
		s.log.Error().Err(err).Msg("sqlite store begin")
		return
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`DELETE FROM kv WHERE k = ?`, key)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("sqlite store delete")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return
	}
	if _, err := tx.Exec(`INSERT INTO kv_log (k, v, removed, origin) VALUES (?, NULL, 1, ?)`, key, s.origin); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("sqlite store log")
		return
	}
	if err := tx.Commit(); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("sqlite store commit")
	}
}

// Watch implements Watchable.
func (s *SQLite) Watch(fn func(Change)) (cancel func()) {
	s.mu.Lock()
	id := s.set.add(fn)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.set.remove(id)
			s.mu.Unlock()
		})
	}
}

// Close stops the changelog poller and closes the database.
func (s *SQLite) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.db.Close()
	})
	return err
}

func (s *SQLite) pollLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *SQLite) poll() {
	rows, err := s.db.Query(
		`SELECT seq, k, v, removed, origin FROM kv_log WHERE seq > ? ORDER BY seq`, s.lastSeq)
	if err != nil {
		s.log.Warn().Err(err).Msg("sqlite store poll")
		return
	}
	defer func() { _ = rows.Close() }()

	var changes []Change
	for rows.Next() {
		var (
			seq     int64
			key     string
			value   sql.NullString
			removed bool
			origin  string
		)
		if err := rows.Scan(&seq, &key, &value, &removed, &origin); err != nil {
			s.log.Warn().Err(err).Msg("sqlite store poll scan")
			return
		}
		s.lastSeq = seq
		if origin == s.origin {
			continue
		}
		changes = append(changes, Change{Key: key, Value: value.String, Removed: removed})
	}
	if err := rows.Err(); err != nil {
		s.log.Warn().Err(err).Msg("sqlite store poll rows")
	}

	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	watchers := s.set.snapshot()
	s.mu.Unlock()
	for _, change := range changes {
		dispatch(watchers, change)
	}
}
