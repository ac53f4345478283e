package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mroshb/campus_match/internal/models"
	"github.com/mroshb/campus_match/internal/realtime"
	"github.com/mroshb/campus_match/internal/repositories"
	"github.com/mroshb/campus_match/internal/testutil"
	"github.com/mroshb/campus_match/pkg/logger"
	"gorm.io/gorm"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type notification struct {
	userID  uint
	kind    string
	payload map[string]interface{}
}

// recordingNotifier keeps every notification for assertions.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(ctx context.Context, userID uint, kind string, payload map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{userID: userID, kind: kind, payload: payload})
	return nil
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, s := range n.sent {
		if s.kind == kind {
			total++
		}
	}
	return total
}

func (n *recordingNotifier) countFor(userID uint, kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, s := range n.sent {
		if s.kind == kind && s.userID == userID {
			total++
		}
	}
	return total
}

type fixture struct {
	db       *gorm.DB
	store    *repositories.Store
	clock    *testutil.Clock
	broker   *realtime.MemoryBroker
	notifier *recordingNotifier
	settings Settings

	sessions *SessionService
	matches  *MatchService
	pairing  *PairingService
	messages *MessageService
	sweeper  *Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger.InitNop()

	db := testutil.NewDB(t)
	store := repositories.NewStore(db)
	clock := testutil.NewClock(testStart)
	broker := realtime.NewMemoryBroker()
	notifier := &recordingNotifier{}
	emitter := NewEmitter(broker, notifier)
	settings := DefaultSettings()

	sessions := NewSessionService(store, emitter, clock.Now)
	pairing := NewPairingService(store, store.Users, sessions, emitter, settings, clock.Now)

	return &fixture{
		db:       db,
		store:    store,
		clock:    clock,
		broker:   broker,
		notifier: notifier,
		settings: settings,
		sessions: sessions,
		matches:  NewMatchService(store, store.Users, emitter, clock.Now),
		pairing:  pairing,
		messages: NewMessageService(store, sessions, broker, emitter, settings, clock.Now),
		sweeper:  NewSweeper(sessions, pairing, time.Minute, 0),
	}
}

func (f *fixture) user(t *testing.T, gender string) uint {
	t.Helper()
	return testutil.CreateUser(t, f.db, gender, true).ID
}

// blindDate pairs a fresh male and female user and returns the session.
func (f *fixture) blindDate(t *testing.T) (*models.Session, uint, uint) {
	t.Helper()
	ctx := context.Background()
	a := f.user(t, models.GenderMale)
	b := f.user(t, models.GenderFemale)

	if _, err := f.pairing.RequestPairing(ctx, a, models.CategoryMale); err != nil {
		t.Fatalf("RequestPairing() error = %v", err)
	}
	outcome, err := f.pairing.RequestPairing(ctx, b, models.CategoryFemale)
	if err != nil {
		t.Fatalf("RequestPairing() error = %v", err)
	}
	if outcome.Status != models.PairingPaired {
		t.Fatalf("RequestPairing() status = %s, want paired", outcome.Status)
	}
	return outcome.Session, a, b
}
