package wal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteLog stores records in an append-only SQLite table. Useful when a
// single queryable file beats a JSONL log.
type SQLiteLog struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLiteLog opens (creating if needed) the record table at path.
func OpenSQLiteLog(path string, logger *zap.Logger) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite log: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS records (
		seq  INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		body TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &SQLiteLog{db: db, logger: logger}, nil
}

func (l *SQLiteLog) Append(_ context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if _, err := l.db.Exec(`INSERT INTO records (kind, body) VALUES (?, ?)`, rec.Kind, string(b)); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (l *SQLiteLog) Replay(_ context.Context, fn func(Record) error) error {
	rows, err := l.db.Query(`SELECT seq, body FROM records ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var body string
		if err := rows.Scan(&seq, &body); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			l.logger.Warn("skipping malformed record",
				zap.Int64("seq", seq),
				zap.Error(err))
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}
