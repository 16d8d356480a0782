package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hupe1980/agentchain/core"
	_ "modernc.org/sqlite" // SQLite driver
)

// Dialect selects the SQL flavour of a SQLStore.
type Dialect string

// Supported dialects. The values double as database/sql driver names.
const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// SQLStore persists sessions through database/sql. Sessions live in the
// sessions table (state as a JSON document); events are appended to
// session_events in emission order.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ core.SessionStore = (*SQLStore)(nil)

// OpenSQLStore opens dsn with the driver matching dialect and migrates the
// schema.
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sql dsn must not be empty")
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	switch dialect {
	case DialectSQLite:
		db.SetMaxOpenConns(1)
	case DialectMySQL:
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(10 * time.Minute)
	default:
		_ = db.Close()
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	store, err := NewSQLStore(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// NewSQLStore wraps an open database and migrates the schema.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	autoID, stateType, payloadType := "INTEGER PRIMARY KEY AUTOINCREMENT", "TEXT", "TEXT"
	if s.dialect == DialectMySQL {
		autoID, stateType, payloadType = "BIGINT AUTO_INCREMENT PRIMARY KEY", "LONGTEXT", "MEDIUMTEXT"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
        app_name VARCHAR(128) NOT NULL,
        user_id VARCHAR(128) NOT NULL,
        session_id VARCHAR(128) NOT NULL,
        state ` + stateType + ` NOT NULL,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        PRIMARY KEY (app_name, user_id, session_id)
)`,
		`CREATE TABLE IF NOT EXISTS session_events (
        id ` + autoID + `,
        app_name VARCHAR(128) NOT NULL,
        user_id VARCHAR(128) NOT NULL,
        session_id VARCHAR(128) NOT NULL,
        event_id VARCHAR(64) NOT NULL,
        payload ` + payloadType + ` NOT NULL,
        created_at BIGINT NOT NULL
)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init session schema: %w", err)
		}
	}

	return nil
}

// Create inserts a new session row.
func (s *SQLStore) Create(ctx context.Context, key core.SessionKey, initialState map[string]any) (*core.Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	sess := core.NewSession(key)
	sess.ApplyStateDelta(initialState)

	raw, err := json.Marshal(sess.State)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	const stmt = `INSERT INTO sessions (app_name, user_id, session_id, state, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		key.AppName, key.UserID, key.SessionID, string(raw),
		sess.Created.UnixNano(), sess.Updated.UnixNano(),
	)
	if err != nil {
		if isDuplicate(err) {
			return nil, exists(key)
		}

		return nil, fmt.Errorf("insert session: %w", err)
	}

	return sess, nil
}

// Get loads the session row and its events.
func (s *SQLStore) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	const stmt = `SELECT state, created_at, updated_at FROM sessions
        WHERE app_name = ? AND user_id = ? AND session_id = ?`

	var (
		raw              string
		created, updated int64
	)

	err := s.db.QueryRowContext(ctx, stmt, key.AppName, key.UserID, key.SessionID).Scan(&raw, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(key)
	}

	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	sess := core.NewSession(key)
	if err := json.Unmarshal([]byte(raw), &sess.State); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	if sess.State == nil {
		sess.State = map[string]any{}
	}

	sess.Created = time.Unix(0, created).UTC()
	sess.Updated = time.Unix(0, updated).UTC()

	events, err := s.loadEvents(ctx, key)
	if err != nil {
		return nil, err
	}

	sess.Events = events

	return sess, nil
}

func (s *SQLStore) loadEvents(ctx context.Context, key core.SessionKey) ([]core.Event, error) {
	const stmt = `SELECT payload FROM session_events
        WHERE app_name = ? AND user_id = ? AND session_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, stmt, key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	events := []core.Event{}

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		var ev core.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}

		events = append(events, ev)
	}

	return events, rows.Err()
}

// AppendEvent inserts an event row and bumps the session timestamp.
func (s *SQLStore) AppendEvent(ctx context.Context, key core.SessionKey, ev core.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().UnixNano()

		if err := touchSession(ctx, tx, key, now); err != nil {
			return err
		}

		const stmt = `INSERT INTO session_events (app_name, user_id, session_id, event_id, payload, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`

		if _, err := tx.ExecContext(ctx, stmt, key.AppName, key.UserID, key.SessionID, ev.ID, string(payload), now); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		return nil
	})
}

// ApplyDelta merges delta into the stored state document. The session row is
// locked for the read-modify-write on MySQL; SQLite serializes writers on its
// single connection.
func (s *SQLStore) ApplyDelta(ctx context.Context, key core.SessionKey, delta map[string]any) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string

		err := tx.QueryRowContext(ctx, s.lockStateQuery(), key.AppName, key.UserID, key.SessionID).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(key)
		}

		if err != nil {
			return fmt.Errorf("select state: %w", err)
		}

		state := map[string]any{}
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return fmt.Errorf("decode state: %w", err)
		}

		if state == nil {
			state = map[string]any{}
		}

		for k, v := range delta {
			state[k] = v
		}

		updated, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}

		const upd = `UPDATE sessions SET state = ?, updated_at = ?
        WHERE app_name = ? AND user_id = ? AND session_id = ?`

		if _, err := tx.ExecContext(ctx, upd, string(updated), time.Now().UTC().UnixNano(), key.AppName, key.UserID, key.SessionID); err != nil {
			return fmt.Errorf("update state: %w", err)
		}

		return nil
	})
}

func (s *SQLStore) lockStateQuery() string {
	const sel = `SELECT state FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`
	if s.dialect == DialectMySQL {
		return sel + " FOR UPDATE"
	}

	return sel
}

// Delete removes the session and its events.
func (s *SQLStore) Delete(ctx context.Context, key core.SessionKey) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
			key.AppName, key.UserID, key.SessionID)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}

		if n, _ := res.RowsAffected(); n == 0 {
			return notFound(key)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM session_events WHERE app_name = ? AND user_id = ? AND session_id = ?`,
			key.AppName, key.UserID, key.SessionID); err != nil {
			return fmt.Errorf("delete events: %w", err)
		}

		return nil
	})
}

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func touchSession(ctx context.Context, tx *sql.Tx, key core.SessionKey, now int64) error {
	var one int

	err := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(key)
	}

	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		now, key.AppName, key.UserID, key.SessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return nil
}

// isDuplicate reports a primary key violation for either dialect.
func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
