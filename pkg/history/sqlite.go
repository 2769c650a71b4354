package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

type sqliteSink struct {
	db   *sql.DB
	path string
}

func newSQLiteSink(path string) (*sqliteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "history: open sqlite database failed")
	}
	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := prepareSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteSink{db: db, path: path}, nil
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
		// concurrent CLI runs share the file; wait instead of failing with SQLITE_BUSY
		"PRAGMA busy_timeout=60000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return pkgerrors.Wrapf(err, "history: execute %s failed", pragma)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func prepareSchema(db *sql.DB) error {
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			session_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			service_name TEXT NOT NULL,
			pairing_endpoint TEXT,
			host_id TEXT,
			state TEXT NOT NULL,
			connect_endpoint TEXT,
			mdns_service_id TEXT,
			device_serial TEXT,
			device_name TEXT,
			error_kind TEXT,
			error_message TEXT,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			elapsed_ms INTEGER
		);`, quoteIdent(sessionTableName))
	if _, err := db.Exec(createTable); err != nil {
		return pkgerrors.Wrap(err, "history: init sqlite schema failed")
	}
	// columns added after the first release
	for _, col := range []struct {
		name string
		typ  string
	}{
		{"host_id", "TEXT"},
		{"device_name", "TEXT"},
	} {
		if err := ensureSQLiteColumn(db, sessionTableName, col.name, col.typ); err != nil {
			return err
		}
	}
	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_started ON %s(started_at DESC);`,
		sessionTableName, quoteIdent(sessionTableName))
	if _, err := db.Exec(index); err != nil {
		return pkgerrors.Wrap(err, "history: init sqlite indexes failed")
	}
	return nil
}

func ensureSQLiteColumn(db *sql.DB, table, column, columnType string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s);", quoteIdent(table)))
	if err != nil {
		return pkgerrors.Wrapf(err, "history: describe %s schema failed", table)
	}
	defer rows.Close()
	exists := false
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return pkgerrors.Wrap(err, "history: scan sqlite table info failed")
		}
		if strings.EqualFold(name, column) {
			exists = true
			break
		}
	}
	if err := rows.Err(); err != nil {
		return pkgerrors.Wrap(err, "history: iterate sqlite table info failed")
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", quoteIdent(table), column, columnType)
	if _, err := db.Exec(stmt); err != nil {
		return pkgerrors.Wrapf(err, "history: add column %s to %s failed", column, table)
	}
	return nil
}

func (s *sqliteSink) Started(ctx context.Context, e Entry) error {
	stmt := fmt.Sprintf(`INSERT INTO %s
		(session_id, kind, service_name, pairing_endpoint, host_id, state, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET state=excluded.state, started_at=excluded.started_at`,
		quoteIdent(sessionTableName))
	_, err := s.db.ExecContext(ctx, stmt,
		e.SessionID, e.Kind, e.ServiceName, e.PairingEndpoint, e.HostID, e.State, e.StartedAt.UnixMilli())
	if err != nil {
		return pkgerrors.Wrap(err, "history: sqlite insert failed")
	}
	return nil
}

func (s *sqliteSink) Finished(ctx context.Context, e Entry) error {
	stmt := fmt.Sprintf(`UPDATE %s SET state=?, connect_endpoint=?, mdns_service_id=?,
		device_serial=?, device_name=?, error_kind=?, error_message=?, ended_at=?, elapsed_ms=?
		WHERE session_id=?`, quoteIdent(sessionTableName))
	res, err := s.db.ExecContext(ctx, stmt,
		e.State, e.ConnectEndpoint, e.MdnsServiceID, e.DeviceSerial, e.DeviceName,
		e.ErrorKind, e.ErrorMessage, e.EndedAt.UnixMilli(), e.Elapsed.Milliseconds(), e.SessionID)
	if err != nil {
		return pkgerrors.Wrap(err, "history: sqlite update failed")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.Errorf("history: session %s was never started", e.SessionID)
	}
	return nil
}

func (s *sqliteSink) list(ctx context.Context, limit int) ([]Entry, error) {
	query := fmt.Sprintf(`SELECT session_id, kind, service_name, pairing_endpoint, host_id, state,
		connect_endpoint, mdns_service_id, device_serial, device_name, error_kind, error_message,
		started_at, ended_at, elapsed_ms
		FROM %s ORDER BY started_at DESC, rowid DESC`, quoteIdent(sessionTableName))
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "history: query sessions failed")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                                 Entry
			endpoint, hostID, connect, mdnsID sql.NullString
			serial, name, errKind, errMsg     sql.NullString
			startedAt                         int64
			endedAt, elapsedMs                sql.NullInt64
		)
		if err := rows.Scan(&e.SessionID, &e.Kind, &e.ServiceName, &endpoint, &hostID, &e.State,
			&connect, &mdnsID, &serial, &name, &errKind, &errMsg,
			&startedAt, &endedAt, &elapsedMs); err != nil {
			return nil, pkgerrors.Wrap(err, "history: scan session row failed")
		}
		e.PairingEndpoint = endpoint.String
		e.HostID = hostID.String
		e.ConnectEndpoint = connect.String
		e.MdnsServiceID = mdnsID.String
		e.DeviceSerial = serial.String
		e.DeviceName = name.String
		e.ErrorKind = errKind.String
		e.ErrorMessage = errMsg.String
		e.StartedAt = time.UnixMilli(startedAt)
		if endedAt.Valid {
			e.EndedAt = time.UnixMilli(endedAt.Int64)
		}
		if elapsedMs.Valid {
			e.Elapsed = time.Duration(elapsedMs.Int64) * time.Millisecond
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "history: iterate sessions failed")
	}
	return entries, nil
}

func (s *sqliteSink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteSink) Name() string {
	if s == nil || s.path == "" {
		return "sqlite"
	}
	return s.path
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
