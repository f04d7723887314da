package wal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
)

// PostgresLog stores records in an append-only Postgres table. Embedding
// artifacts additionally persist their vector in a pgvector column so they
// can be inspected with SQL; replay still reads vectors from the record body.
type PostgresLog struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// OpenPostgresLog connects to databaseURL and ensures the record table exists.
func OpenPostgresLog(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresLog, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create vector extension: %w", err)
	}
	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS records (
		seq       BIGSERIAL PRIMARY KEY,
		kind      TEXT NOT NULL,
		body      JSONB NOT NULL,
		embedding vector
	)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &PostgresLog{db: pool, logger: logger}, nil
}

func (l *PostgresLog) Append(ctx context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	var embedding *pgvector.Vector
	if rec.Artifact != nil && rec.Artifact.Kind == domain.KindEmbedding {
		if vec, ok := domain.EmbeddingFromPayload(rec.Artifact.Payload); ok {
			v := pgvector.NewVector(vec)
			embedding = &v
		}
	}

	_, err = l.db.Exec(ctx,
		`INSERT INTO records (kind, body, embedding) VALUES ($1, $2, $3)`,
		rec.Kind, b, embedding,
	)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

func (l *PostgresLog) Replay(ctx context.Context, fn func(Record) error) error {
	rows, err := l.db.Query(ctx, `SELECT seq, body FROM records ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var body []byte
		if err := rows.Scan(&seq, &body); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(body, &rec); err != nil {
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

func (l *PostgresLog) Close() error {
	l.db.Close()
	return nil
}
