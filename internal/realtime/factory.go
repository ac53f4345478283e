package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/mroshb/campus_match/internal/config"
	"github.com/mroshb/campus_match/pkg/logger"
	"github.com/nats-io/nats.go"
)

// FromConfig opens the broker selected by REALTIME_BACKEND.
func FromConfig(ctx context.Context, cfg *config.Config) (Broker, error) {
	switch cfg.RealtimeBackend {
	case config.RealtimeRedis:
		b, err := NewRedisBroker(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis broker: %w", err)
		}
		logger.Info("Realtime broker connected", "backend", "redis", "addr", cfg.RedisAddr)
		return b, nil
	case config.RealtimeNATS:
		b, err := NewNATSBroker(cfg.NATSURL,
			nats.Name("campus_match"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to open nats broker: %w", err)
		}
		logger.Info("Realtime broker connected", "backend", "nats", "url", cfg.NATSURL)
		return b, nil
	default:
		logger.Info("Realtime broker ready", "backend", "memory")
		return NewMemoryBroker(), nil
	}
}
