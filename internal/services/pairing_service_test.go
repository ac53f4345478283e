package services

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/internal/repositories"
	"github.com/mroshb/campus_match/internal/services/mocks"
	"github.com/mroshb/campus_match/internal/testutil"
	"github.com/mroshb/campus_match/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestPairingService_ConcurrentRequestsPairOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, models.GenderMale)
	b := f.user(t, models.GenderFemale)
	c := f.user(t, models.GenderFemale)

	requests := map[uint]models.Category{
		a: models.CategoryMale,
		b: models.CategoryFemale,
		c: models.CategoryFemale,
	}

	var wg sync.WaitGroup
	for userID, category := range requests {
		wg.Add(1)
		go func(userID uint, category models.Category) {
			defer wg.Done()
			_, err := f.pairing.RequestPairing(ctx, userID, category)
			assert.NoError(t, err)
		}(userID, category)
	}
	wg.Wait()

	session, err := f.pairing.GetActiveBlindDateSession(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, session)

	partner := session.Other(a)
	require.Contains(t, []uint{b, c}, partner)
	loser := b
	if partner == b {
		loser = c
	}

	entry, err := f.store.Queue.GetEntry(ctx, loser)
	require.NoError(t, err)
	assert.NotNil(t, entry, "the unpaired user stays queued")

	var sessions int64
	require.NoError(t, f.db.Model(&models.Session{}).Count(&sessions).Error)
	assert.Equal(t, int64(1), sessions)
}

func TestPairingService_SameTickPairing(t *testing.T) {
	for _, third := range []string{models.GenderMale, models.GenderFemale} {
		t.Run("third is "+third, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			a := f.user(t, models.GenderMale)
			b := f.user(t, models.GenderFemale)
			c := f.user(t, third)

			first, err := f.pairing.RequestPairing(ctx, a, models.CategoryMale)
			require.NoError(t, err)
			assert.Equal(t, models.PairingWaiting, first.Status)

			second, err := f.pairing.RequestPairing(ctx, b, models.CategoryFemale)
			require.NoError(t, err)
			require.Equal(t, models.PairingPaired, second.Status)

			// the first requester learns the result by polling
			poll, err := f.pairing.RequestPairing(ctx, a, models.CategoryMale)
			require.NoError(t, err)
			require.Equal(t, models.PairingPaired, poll.Status)
			assert.Equal(t, second.Session.ID, poll.Session.ID)

			late, err := f.pairing.RequestPairing(ctx, c, models.Category(third))
			require.NoError(t, err)
			assert.Equal(t, models.PairingWaiting, late.Status)

			assert.Equal(t, 1, f.notifier.countFor(a, NotifyBlindDatePaired))
			assert.Equal(t, 1, f.notifier.countFor(b, NotifyBlindDatePaired))
		})
	}
}

func TestPairingService_SessionHasTTL(t *testing.T) {
	f := newFixture(t)
	session, _, _ := f.blindDate(t)

	require.NotNil(t, session.ExpiresAt)
	assert.True(t, session.ExpiresAt.Equal(testStart.Add(24*time.Hour)))
	assert.Equal(t, models.SessionKindBlindDate, session.Kind)
	assert.Equal(t, models.SessionStatusActive, session.Status)
}

func TestPairingService_RepollKeepsPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	early := f.user(t, models.GenderMale)
	late := f.user(t, models.GenderMale)
	female := f.user(t, models.GenderFemale)

	_, err := f.pairing.RequestPairing(ctx, early, models.CategoryMale)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.pairing.RequestPairing(ctx, late, models.CategoryMale)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.pairing.RequestPairing(ctx, early, models.CategoryMale)
	require.NoError(t, err)

	outcome, err := f.pairing.RequestPairing(ctx, female, models.CategoryFemale)
	require.NoError(t, err)
	require.Equal(t, models.PairingPaired, outcome.Status)
	assert.Equal(t, early, outcome.Session.Other(female))
}

func TestPairingService_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, models.GenderMale)
	b := f.user(t, models.GenderFemale)

	_, err := f.pairing.RequestPairing(ctx, a, models.CategoryMale)
	require.NoError(t, err)

	removed, err := f.pairing.CancelPairing(ctx, a)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.pairing.CancelPairing(ctx, a)
	require.NoError(t, err)
	assert.False(t, removed)

	outcome, err := f.pairing.RequestPairing(ctx, b, models.CategoryFemale)
	require.NoError(t, err)
	assert.Equal(t, models.PairingWaiting, outcome.Status)
}

func TestPairingService_TimeoutStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, models.GenderMale)
	b := f.user(t, models.GenderMale)

	_, err := f.pairing.RequestPairing(ctx, a, models.CategoryMale)
	require.NoError(t, err)
	_, err = f.pairing.RequestPairing(ctx, b, models.CategoryMale)
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)

	// b polls again and gets a fresh entry, so only a times out
	_, err = f.pairing.RequestPairing(ctx, b, models.CategoryMale)
	require.NoError(t, err)

	_, timedOut := f.sweeper.SweepOnce(ctx)
	assert.Equal(t, 1, timedOut)
	assert.Equal(t, 1, f.notifier.countFor(a, NotifyPairingTimeout))
	assert.Zero(t, f.notifier.countFor(b, NotifyPairingTimeout))

	entry, err := f.store.Queue.GetEntry(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = f.store.Queue.GetEntry(ctx, b)
	require.NoError(t, err)
	assert.NotNil(t, entry)

	// a second sweep has nothing left to do
	_, timedOut = f.sweeper.SweepOnce(ctx)
	assert.Zero(t, timedOut)
}

func TestPairingService_ExpiredSessionAllowsNewPairing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	session, a, _ := f.blindDate(t)

	f.clock.Advance(25 * time.Hour)

	active, err := f.pairing.GetActiveBlindDateSession(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, active)

	outcome, err := f.pairing.RequestPairing(ctx, a, models.CategoryMale)
	require.NoError(t, err)
	assert.Equal(t, models.PairingWaiting, outcome.Status)

	stored, err := f.store.Sessions.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusExpired, stored.Status)
}

func TestPairingService_Eligibility(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		verified bool
		declared models.Category
		request  models.Category
		wantCode string
	}{
		{
			name:     "Invalid category",
			verified: true,
			declared: models.CategoryMale,
			request:  "other",
			wantCode: errors.ErrCodeValidation,
		},
		{
			name:     "Unverified",
			verified: false,
			declared: models.CategoryMale,
			request:  models.CategoryMale,
			wantCode: errors.ErrCodeNotEligible,
		},
		{
			name:     "Category mismatch",
			verified: true,
			declared: models.CategoryMale,
			request:  models.CategoryFemale,
			wantCode: errors.ErrCodeNotEligible,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			identity := mocks.NewMockIdentity(ctrl)
			identity.EXPECT().IsVerified(gomock.Any(), uint(1)).Return(tt.verified, nil).AnyTimes()
			identity.EXPECT().Category(gomock.Any(), uint(1)).Return(tt.declared, nil).AnyTimes()

			store := repositories.NewStore(testutil.NewDB(t))
			svc := NewPairingService(store, identity, NewSessionService(store, nil, nil), nil, DefaultSettings(), nil)

			_, err := svc.RequestPairing(ctx, 1, tt.request)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))

			entry, err := store.Queue.GetEntry(ctx, 1)
			require.NoError(t, err)
			assert.Nil(t, entry)
		})
	}
}

// A poll that starts while another request is pairing the same user must
// return that pairing's session instead of queueing and pairing again.
func TestPairingService_RepollDuringPairingSeesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, models.GenderMale)
	b := f.user(t, models.GenderFemale)
	d := f.user(t, models.GenderFemale)

	first, err := f.pairing.RequestPairing(ctx, a, models.CategoryMale)
	require.NoError(t, err)
	require.Equal(t, models.PairingWaiting, first.Status)

	expires := testStart.Add(24 * time.Hour)
	concurrent := &models.Session{
		ID:           uuid.NewString(),
		Kind:         models.SessionKindBlindDate,
		ParticipantA: a,
		ParticipantB: b,
		Status:       models.SessionStatusActive,
		CreatedAt:    testStart,
		ExpiresAt:    &expires,
	}

	// The first queue read of the poll stands in for the moment the other
	// pairing commits: a leaves the queue, the session exists and another
	// female is waiting.
	fired := false
	err = f.db.Callback().Query().Before("gorm:query").Register("test:commit_other_pairing", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "blind_date_queue" {
			return
		}
		fired = true
		other := tx.Session(&gorm.Session{NewDB: true})
		require.NoError(t, other.Where("user_id = ?", a).Delete(&models.BlindDateQueueEntry{}).Error)
		require.NoError(t, other.Create(concurrent).Error)
		require.NoError(t, other.Create(&models.BlindDateQueueEntry{
			UserID:     d,
			Category:   models.CategoryFemale,
			EnqueuedAt: testStart,
		}).Error)
	})
	require.NoError(t, err)

	poll, err := f.pairing.RequestPairing(ctx, a, models.CategoryMale)
	require.NoError(t, err)
	require.True(t, fired)
	require.Equal(t, models.PairingPaired, poll.Status)
	assert.Equal(t, concurrent.ID, poll.Session.ID)

	entry, err := f.store.Queue.GetEntry(ctx, d)
	require.NoError(t, err)
	assert.NotNil(t, entry, "the other waiting user is untouched")

	entry, err = f.store.Queue.GetEntry(ctx, a)
	require.NoError(t, err)
	assert.Nil(t, entry)

	var sessions int64
	require.NoError(t, f.db.Model(&models.Session{}).Count(&sessions).Error)
	assert.Equal(t, int64(1), sessions)
	assert.Zero(t, f.notifier.countFor(d, NotifyBlindDatePaired))
}

func TestPairingService_SweepPairsWaitingEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, models.GenderMale)
	b := f.user(t, models.GenderFemale)
	c := f.user(t, models.GenderMale)

	// two requests that skipped each other's locked rows both stay queued
	entries := []models.BlindDateQueueEntry{
		{UserID: b, Category: models.CategoryFemale, EnqueuedAt: testStart},
		{UserID: a, Category: models.CategoryMale, EnqueuedAt: testStart.Add(time.Second)},
		{UserID: c, Category: models.CategoryMale, EnqueuedAt: testStart.Add(2 * time.Second)},
	}
	require.NoError(t, f.db.Create(&entries).Error)
	f.clock.Advance(5 * time.Second)

	expired, timedOut := f.sweeper.SweepOnce(ctx)
	assert.Zero(t, expired)
	assert.Zero(t, timedOut)

	session, err := f.pairing.GetActiveBlindDateSession(ctx, a)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, b, session.ParticipantA, "the longer waiter is participant A")
	assert.Equal(t, a, session.ParticipantB)
	require.NotNil(t, session.ExpiresAt)
	assert.True(t, session.ExpiresAt.Equal(f.clock.Now().Add(24*time.Hour)))

	assert.Equal(t, 1, f.notifier.countFor(a, NotifyBlindDatePaired))
	assert.Equal(t, 1, f.notifier.countFor(b, NotifyBlindDatePaired))

	entry, err := f.store.Queue.GetEntry(ctx, c)
	require.NoError(t, err)
	assert.NotNil(t, entry)

	paired, err := f.pairing.PairWaiting(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, paired)
}

func TestPairingService_PersistentConflictLeavesUserQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t, models.GenderMale)
	b := f.user(t, models.GenderFemale)

	_, err := f.pairing.RequestPairing(ctx, a, models.CategoryMale)
	require.NoError(t, err)

	attempts := 0
	locked := true
	err = f.db.Callback().Delete().Before("gorm:delete").Register("test:locked_queue", func(tx *gorm.DB) {
		if locked && tx.Statement.Table == "blind_date_queue" {
			attempts++
			tx.AddError(stderrors.New("database is locked"))
		}
	})
	require.NoError(t, err)

	outcome, err := f.pairing.RequestPairing(ctx, b, models.CategoryFemale)
	require.NoError(t, err)
	assert.Equal(t, models.PairingWaiting, outcome.Status)
	assert.Equal(t, 2, attempts, "the pairing transaction is retried once")

	for _, userID := range []uint{a, b} {
		entry, err := f.store.Queue.GetEntry(ctx, userID)
		require.NoError(t, err)
		assert.NotNil(t, entry)
	}
	var sessions int64
	require.NoError(t, f.db.Model(&models.Session{}).Count(&sessions).Error)
	assert.Zero(t, sessions)

	// once the lock clears the sweep pairs them
	locked = false
	paired, err := f.pairing.PairWaiting(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, paired)

	session, err := f.pairing.GetActiveBlindDateSession(ctx, b)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, a, session.ParticipantA)
}
