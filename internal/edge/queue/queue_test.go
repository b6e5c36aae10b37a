package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/domain"
)

func openTestQueue(t *testing.T, capacity int64) (*Queue, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edge.db")
	q, err := Open(path, capacity, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q, path
}

func testEvent(tag string) domain.CanonicalEvent {
	return domain.CanonicalEvent{
		ReaderID:        "R1",
		Tag:             tag,
		DeviceTimestamp: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
	}
}

func TestQueue_AppendAssignsIncreasingIDs(t *testing.T) {
	q, _ := openTestQueue(t, 0)
	ctx := context.Background()

	var prev int64
	for i := 0; i < 5; i++ {
		id, err := q.Append(ctx, testEvent(fmt.Sprintf("AA%02d", i)))
		require.NoError(t, err)
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestQueue_NextBatchIsFIFOAndReadOnly(t *testing.T) {
	q, _ := openTestQueue(t, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := q.Append(ctx, testEvent(fmt.Sprintf("AA%02d", i)))
		require.NoError(t, err)
	}

	batch, err := q.NextBatch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, "AA00", batch[0].Tag)
	assert.Equal(t, "AA01", batch[1].Tag)
	assert.Equal(t, "AA02", batch[2].Tag)

	// Reading does not consume; the same records come back.
	again, err := q.NextBatch(ctx, 3)
	require.NoError(t, err)
	require.Len(t, again, 3)
	assert.Equal(t, batch[0].ID, again[0].ID)
}

func TestQueue_MarkSentAdvancesAndIsIdempotent(t *testing.T) {
	q, _ := openTestQueue(t, 0)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := q.Append(ctx, testEvent(fmt.Sprintf("AA%02d", i)))
		require.NoError(t, err)
	}

	batch, err := q.NextBatch(ctx, 2)
	require.NoError(t, err)
	ids := []int64{batch[0].ID, batch[1].ID}

	require.NoError(t, q.MarkSent(ctx, ids))

	unsent, err := q.UnsentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unsent)

	// Marking the same ids again is a no-op.
	require.NoError(t, q.MarkSent(ctx, ids))
	unsent, err = q.UnsentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unsent)

	next, err := q.NextBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, "AA02", next[0].Tag)
}

func TestQueue_BoundedCapacityEvictsOldestFirst(t *testing.T) {
	q, _ := openTestQueue(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := q.Append(ctx, testEvent(fmt.Sprintf("AA%02d", i)))
		require.NoError(t, err)
	}

	count, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	batch, err := q.NextBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	// The two oldest records are gone, even though they were unsent.
	assert.Equal(t, "AA02", batch[0].Tag)
	assert.Equal(t, "AA04", batch[2].Tag)
}

func TestQueue_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.db")
	ctx := context.Background()

	q, err := Open(path, 0, zap.NewNop())
	require.NoError(t, err)

	id, err := q.Append(ctx, testEvent("BEEF"))
	require.NoError(t, err)
	require.NoError(t, q.Close())

	// Simulated abrupt restart: a new process opens the same file and
	// finds the record unsent with its id and timestamp intact.
	q2, err := Open(path, 0, zap.NewNop())
	require.NoError(t, err)
	defer q2.Close()

	batch, err := q2.NextBatch(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, id, batch[0].ID)
	assert.Equal(t, "BEEF", batch[0].Tag)
	assert.Equal(t, testEvent("BEEF").DeviceTimestamp, batch[0].TS.UTC())
}

func TestQueue_MarkSentEmptyIsNoop(t *testing.T) {
	q, _ := openTestQueue(t, 0)
	assert.NoError(t, q.MarkSent(context.Background(), nil))
}
