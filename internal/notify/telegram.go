package notify

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mroshb/campus_match/internal/config"
	"github.com/mroshb/campus_match/pkg/logger"
)

const (
	telegramWorkers     = 4
	telegramQueueLength = 100
)

// ChatResolver maps a user to the Telegram chat that receives their
// notifications.
type ChatResolver interface {
	TelegramID(ctx context.Context, userID uint) (int64, error)
}

// sender is the part of *tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type job struct {
	userID  uint
	kind    string
	payload map[string]interface{}
}

// TelegramNotifier sends notifications through a Telegram bot. Jobs are
// hashed by user onto a fixed set of workers so each user's notifications
// keep their order. A full worker queue drops the notification.
type TelegramNotifier struct {
	api      sender
	resolver ChatResolver

	workerChans []chan job
	wg          sync.WaitGroup
	stopOnce    sync.Once

	// mu guards stopped; Notify never sends on a closed queue.
	mu      sync.RWMutex
	stopped bool
}

// NewTelegramNotifier authorizes the bot and starts the workers.
func NewTelegramNotifier(cfg *config.Config, resolver ChatResolver) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	if cfg.AppEnv == "development" {
		api.Debug = true
	}

	logger.Info("Authorized on account", "username", api.Self.UserName)
	return newTelegramNotifier(api, resolver, telegramWorkers), nil
}

func newTelegramNotifier(api sender, resolver ChatResolver, workers int) *TelegramNotifier {
	n := &TelegramNotifier{
		api:         api,
		resolver:    resolver,
		workerChans: make([]chan job, workers),
	}

	for i := range n.workerChans {
		n.workerChans[i] = make(chan job, telegramQueueLength)
		n.wg.Add(1)
		go n.startWorker(n.workerChans[i])
	}

	return n
}

// Notify queues a notification for delivery.
func (n *TelegramNotifier) Notify(ctx context.Context, userID uint, kind string, payload map[string]interface{}) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.stopped {
		return fmt.Errorf("notifier stopped, dropping %s for user %d", kind, userID)
	}

	workerIdx := int(userID % uint(len(n.workerChans)))

	select {
	case n.workerChans[workerIdx] <- job{userID: userID, kind: kind, payload: payload}:
		return nil
	default:
		return fmt.Errorf("notification queue full, dropping %s for user %d", kind, userID)
	}
}

// Stop drains the queues and waits for the workers to finish.
func (n *TelegramNotifier) Stop() {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.stopped = true
		for _, ch := range n.workerChans {
			close(ch)
		}
		n.mu.Unlock()

		n.wg.Wait()
		logger.Info("Telegram notifier stopped")
	})
}

func (n *TelegramNotifier) startWorker(jobs <-chan job) {
	defer n.wg.Done()

	for j := range jobs {
		n.deliver(j)
	}
}

func (n *TelegramNotifier) deliver(j job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in notification worker", "error", r)
		}
	}()

	ctx := context.Background()
	chatID, err := n.resolver.TelegramID(ctx, j.userID)
	if err != nil {
		logger.Warn("Failed to resolve chat", "user_id", j.userID, "error", err)
		return
	}
	if chatID == 0 {
		return
	}

	msg := tgbotapi.NewMessage(chatID, Render(j.kind, j.payload))
	if _, err := n.api.Send(msg); err != nil {
		logger.Error("Failed to send notification", "user_id", j.userID, "kind", j.kind, "error", err)
	}
}
