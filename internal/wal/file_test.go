package wal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tessera-ai/blackboard/internal/domain"
)

func testEvent(id, text string) domain.MemoryEvent {
	return domain.MemoryEvent{
		EventID:   id,
		EventType: domain.EventNote,
		Provenance: domain.Provenance{
			AgentID:   "ag1",
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		Text: text,
	}
}

func TestFileLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.wal")
	ctx := context.Background()

	log, err := OpenFileLog(path, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, log.Append(ctx, EventRecord(testEvent("ev_1", "first"))))
	require.NoError(t, log.Append(ctx, ArtifactRecord(domain.Artifact{
		ArtifactID: "art_1",
		Kind:       "json",
		Payload:    map[string]any{"k": "v"},
	})))
	require.NoError(t, log.Close())

	replayLog, err := OpenFileLog(path, zap.NewNop())
	require.NoError(t, err)
	defer replayLog.Close()

	var records []Record
	require.NoError(t, replayLog.Replay(ctx, func(rec Record) error {
		records = append(records, rec)
		return nil
	}))

	require.Len(t, records, 2)
	assert.Equal(t, RecordEvent, records[0].Kind)
	assert.Equal(t, "ev_1", records[0].Event.EventID)
	assert.Equal(t, "first", records[0].Event.Text)
	assert.Equal(t, RecordArtifact, records[1].Kind)
	assert.Equal(t, "art_1", records[1].Artifact.ArtifactID)
	assert.Equal(t, "v", records[1].Artifact.Payload["k"])
}

func TestFileLogSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.wal")
	ctx := context.Background()

	log, err := OpenFileLog(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, log.Append(ctx, EventRecord(testEvent("ev_1", "good"))))
	require.NoError(t, log.Close())

	// corrupt the middle of the log, then append another good record
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	log2, err := OpenFileLog(path, zap.NewNop())
	require.NoError(t, err)
	defer log2.Close()
	require.NoError(t, log2.Append(ctx, EventRecord(testEvent("ev_2", "after corruption"))))

	var ids []string
	require.NoError(t, log2.Replay(ctx, func(rec Record) error {
		ids = append(ids, rec.Event.EventID)
		return nil
	}))
	assert.Equal(t, []string{"ev_1", "ev_2"}, ids)
}

func TestFileLogReplayMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.wal")
	log, err := OpenFileLog(path, zap.NewNop())
	require.NoError(t, err)
	defer log.Close()

	// remove the file out from under the log; replay of nothing is fine
	require.NoError(t, os.Remove(path))
	called := false
	require.NoError(t, log.Replay(context.Background(), func(Record) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}
