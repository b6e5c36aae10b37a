package sqlite

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

func openTestRepo(t *testing.T, maxEvents int64) *Repository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.db")
	repo, err := Open(path, maxEvents, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, repo.InitSchema(context.Background()))
	t.Cleanup(func() { repo.Close() })
	return repo
}

func classified(tag string, receivedAt time.Time, reason domain.Reason) *domain.ClassifiedEvent {
	return &domain.ClassifiedEvent{
		ReaderID:        "R1",
		Tag:             tag,
		DeviceTimestamp: receivedAt.Add(-time.Second),
		ReceivedAt:      receivedAt,
		SourceIP:        "192.168.1.20",
		Fired:           reason == domain.ReasonOK,
		Reason:          reason,
		EdgeEventID:     42,
	}
}

func TestRepository_InsertAssignsServerID(t *testing.T) {
	repo := openTestRepo(t, 0)
	ctx := context.Background()
	now := time.Now().UTC()

	ev := classified("CAFE", now, domain.ReasonOK)
	require.NoError(t, repo.Insert(ctx, ev))
	assert.Greater(t, ev.ServerID, int64(0))

	ev2 := classified("BEEF", now, domain.ReasonUnknownTag)
	require.NoError(t, repo.Insert(ctx, ev2))
	assert.Greater(t, ev2.ServerID, ev.ServerID)
}

func TestRepository_ListRecentNewestFirst(t *testing.T) {
	repo := openTestRepo(t, 0)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, classified(fmt.Sprintf("AA%02d", i), now.Add(time.Duration(i)*time.Second), domain.ReasonOK)))
	}

	events, err := repo.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "AA04", events[0].Tag)
	assert.Equal(t, "AA03", events[1].Tag)
	assert.Equal(t, "AA02", events[2].Tag)

	// Round-trip preserves the audit fields.
	assert.Equal(t, "192.168.1.20", events[0].SourceIP)
	assert.Equal(t, int64(42), events[0].EdgeEventID)
	assert.True(t, events[0].Fired)
	assert.Equal(t, domain.ReasonOK, events[0].Reason)
}

func TestRepository_RetentionDeletesOldestFirst(t *testing.T) {
	repo := openTestRepo(t, 3)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Insert(ctx, classified(fmt.Sprintf("AA%02d", i), now, domain.ReasonOK)))
	}

	deleted, err := repo.EnforceRetention(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	events, err := repo.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "AA04", events[0].Tag)
	assert.Equal(t, "AA02", events[2].Tag)

	// Under the cap nothing more is deleted.
	deleted, err = repo.EnforceRetention(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestRepository_LastOKByKey(t *testing.T) {
	repo := openTestRepo(t, 0)
	ctx := context.Background()
	now := time.Now().UTC()

	// Two oks for the same key: only the latest counts. Non-ok rows and
	// old rows are ignored.
	require.NoError(t, repo.Insert(ctx, classified("CAFE", now.Add(-8*time.Second), domain.ReasonOK)))
	require.NoError(t, repo.Insert(ctx, classified("CAFE", now.Add(-3*time.Second), domain.ReasonOK)))
	require.NoError(t, repo.Insert(ctx, classified("BEEF", now.Add(-2*time.Second), domain.ReasonDuplicate)))
	require.NoError(t, repo.Insert(ctx, classified("F00D", now.Add(-2*time.Hour), domain.ReasonOK)))

	keys, err := repo.LastOKByKey(ctx, time.Minute)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "R1", keys[0].ReaderID)
	assert.Equal(t, "CAFE", keys[0].Tag)
	assert.WithinDuration(t, now.Add(-3*time.Second), keys[0].ReceivedAt, time.Millisecond)
}

func TestRepository_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	repo, err := Open(path, 0, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, repo.InitSchema(ctx))

	ev := classified("CAFE", time.Now().UTC(), domain.ReasonOK)
	require.NoError(t, repo.Insert(ctx, ev))
	require.NoError(t, repo.Close())

	repo2, err := Open(path, 0, zap.NewNop())
	require.NoError(t, err)
	defer repo2.Close()
	require.NoError(t, repo2.InitSchema(ctx))

	events, err := repo2.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ServerID, events[0].ServerID)
}
