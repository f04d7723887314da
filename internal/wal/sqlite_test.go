package wal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSQLiteLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.db")
	ctx := context.Background()

	log, err := OpenSQLiteLog(path, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, log.Append(ctx, EventRecord(testEvent("ev_1", "first"))))
	require.NoError(t, log.Append(ctx, EventRecord(testEvent("ev_2", "second"))))
	require.NoError(t, log.Close())

	log2, err := OpenSQLiteLog(path, zap.NewNop())
	require.NoError(t, err)
	defer log2.Close()

	var ids []string
	require.NoError(t, log2.Replay(ctx, func(rec Record) error {
		ids = append(ids, rec.Event.EventID)
		return nil
	}))
	assert.Equal(t, []string{"ev_1", "ev_2"}, ids)
}
