package services

import (
	"context"
	"time"

	"github.com/mroshb/campus_match/internal/config"
	"github.com/mroshb/campus_match/internal/models"
)

//go:generate mockgen -destination=mocks/mock_collaborators.go -package=mocks github.com/mroshb/campus_match/internal/services Identity,Notifier

// Identity answers eligibility questions owned by the verification service.
type Identity interface {
	IsVerified(ctx context.Context, userID uint) (bool, error)
	Category(ctx context.Context, userID uint) (models.Category, error)
}

// Notifier delivers out-of-band notifications. Calls are best-effort.
type Notifier interface {
	Notify(ctx context.Context, userID uint, kind string, payload map[string]interface{}) error
}

// Notification kinds
const (
	NotifyMatchCreated    = "match_created"
	NotifyBlindDatePaired = "blind_date_paired"
	NotifyPairingTimeout  = "pairing_timeout"
	NotifySessionEnded    = "session_ended"
	NotifySessionExpired  = "session_expired"
)

// Clock returns the current time.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// Settings holds the tunables shared by the services.
type Settings struct {
	BlindDateTTL     time.Duration
	PairingWait      time.Duration
	MessageMaxLength int
	SweepBatchSize   int
}

func DefaultSettings() Settings {
	return Settings{
		BlindDateTTL:     24 * time.Hour,
		PairingWait:      10 * time.Minute,
		MessageMaxLength: 1000,
		SweepBatchSize:   100,
	}
}

// SettingsFromConfig reads the service tunables from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	s.BlindDateTTL = cfg.GetBlindDateTTL()
	s.PairingWait = cfg.GetPairingWait()
	if cfg.MessageMaxLength > 0 {
		s.MessageMaxLength = cfg.MessageMaxLength
	}
	return s
}
