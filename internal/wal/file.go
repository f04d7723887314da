package wal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// maxLineBytes bounds a single persisted record; embedding artifacts can
// carry large vectors.
const maxLineBytes = 4 << 20

// FileLog is the default durable log: one JSON record per line, appended
// synchronously.
type FileLog struct {
	path   string
	f      *os.File
	logger *zap.Logger
}

// OpenFileLog opens (creating if needed) a JSONL log at path.
func OpenFileLog(path string, logger *zap.Logger) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	return &FileLog{path: path, f: f, logger: logger}, nil
}

func (l *FileLog) Append(_ context.Context, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	b = append(b, '\n')
	if _, err := l.f.Write(b); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// Replay reads the log from the beginning. Lines that fail to parse are
// skipped and logged at Warn.
func (l *FileLog) Replay(_ context.Context, fn func(Record) error) error {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open log for replay: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), maxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			l.logger.Warn("skipping malformed record",
				zap.String("path", l.path),
				zap.Int("line", line),
				zap.Error(err))
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan log: %w", err)
	}
	return nil
}

func (l *FileLog) Close() error {
	return l.f.Close()
}
