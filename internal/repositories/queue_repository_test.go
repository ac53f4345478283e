package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/internal/testutil"
	"github.com/mroshb/campus_match/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRepository_UpsertKeepsPosition(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first, err := repo.Upsert(ctx, 1, models.CategoryMale, start, start.Add(-10*time.Minute))
	require.NoError(t, err)

	later := start.Add(time.Minute)
	again, err := repo.Upsert(ctx, 1, models.CategoryMale, later, later.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.EnqueuedAt.Equal(start))

	switched, err := repo.Upsert(ctx, 1, models.CategoryFemale, later, later.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, switched.ID)
	assert.Equal(t, models.CategoryFemale, switched.Category)

	stale := start.Add(time.Hour)
	refreshed, err := repo.Upsert(ctx, 1, models.CategoryFemale, stale, stale.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, switched.ID, refreshed.ID)
	assert.True(t, refreshed.EnqueuedAt.Equal(stale))

	counts, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.CategoryFemale])
	assert.Zero(t, counts[models.CategoryMale])
}

func TestQueueRepository_FindOldestEligible(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	staleBefore := start.Add(-time.Hour)

	_, err := repo.Upsert(ctx, 2, models.CategoryFemale, start.Add(time.Second), staleBefore)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, 3, models.CategoryFemale, start, staleBefore)
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, 4, models.CategoryMale, start, staleBefore)
	require.NoError(t, err)

	entry, err := repo.FindOldestEligible(ctx, models.CategoryFemale, 1, staleBefore)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, uint(3), entry.UserID)

	entry, err = repo.FindOldestEligible(ctx, models.CategoryMale, 4, staleBefore)
	require.NoError(t, err)
	assert.Nil(t, entry)

	// user 3 has waited too long and is skipped
	entry, err = repo.FindOldestEligible(ctx, models.CategoryFemale, 1, start.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, uint(2), entry.UserID)
}

func TestQueueRepository_RemovePairRequiresBoth(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.Upsert(ctx, 1, models.CategoryMale, now, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, 2, models.CategoryFemale, now, now.Add(-time.Hour))
	require.NoError(t, err)

	err = repo.RemovePair(ctx, 2, 3)
	assert.ErrorIs(t, err, errors.ErrConflict)

	// the failed call still removed user 2; a transaction would roll that back
	err = repo.RemovePair(ctx, 1, 2)
	assert.ErrorIs(t, err, errors.ErrConflict)
}

func TestQueueRepository_RemoveEntryIgnoresRefreshedRow(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	old, err := repo.Upsert(ctx, 1, models.CategoryMale, start, start.Add(-10*time.Minute))
	require.NoError(t, err)

	stale, err := repo.ListStale(ctx, start.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)

	later := start.Add(30 * time.Minute)
	_, err = repo.Upsert(ctx, 1, models.CategoryMale, later, later.Add(-10*time.Minute))
	require.NoError(t, err)

	removed, err := repo.RemoveEntry(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	entry, err := repo.GetEntry(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)

	removed, err = repo.RemoveFromQueue(ctx, 1)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.RemoveFromQueue(ctx, 1)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestQueueRepository_LockEntryAndListWaiting(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewQueueRepository(db)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry, err := repo.LockEntry(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, entry)

	_, err = repo.Upsert(ctx, 1, models.CategoryMale, start, start.Add(-10*time.Minute))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, 2, models.CategoryFemale, start.Add(time.Minute), start.Add(-10*time.Minute))
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, 3, models.CategoryFemale, start.Add(2*time.Minute), start.Add(-10*time.Minute))
	require.NoError(t, err)

	entry, err = repo.LockEntry(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, models.CategoryFemale, entry.Category)

	// entries older than the cutoff are left to the timeout sweep
	waiting, err := repo.ListWaiting(ctx, start.Add(30*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	assert.Equal(t, uint(2), waiting[0].UserID)
	assert.Equal(t, uint(3), waiting[1].UserID)

	waiting, err = repo.ListWaiting(ctx, start, 1)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, uint(1), waiting[0].UserID)
}
