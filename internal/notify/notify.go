// Package notify delivers activation events to downstream channels. Delivery
// is best effort: a failed notification never rolls back the activation that
// produced it, and retries reuse the same dedup key so downstream consumers
// can drop duplicates.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/j-hartley/dealz/internal/idempotency"
)

// Event describes a deal activation worth telling someone about.
type Event struct {
	DealID        string    `json:"dealId"`
	GameID        string    `json:"gameId"`
	ActivationKey string    `json:"activationKey"`
	TriggeredAt   time.Time `json:"triggeredAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// DedupKey derives the idempotency key downstream consumers use to drop
// duplicate deliveries for the same recipient and channel.
func (e Event) DedupKey(recipient, channel string) string {
	return idempotency.NotificationKey(e.DealID, e.GameID, recipient, channel)
}

// Notifier publishes activation events. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// LogNotifier writes events to the structured log. It is the default sink
// when no real channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger falls back to
// slog.Default.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Publish logs the event and always succeeds.
func (n *LogNotifier) Publish(ctx context.Context, event Event) error {
	n.logger.InfoContext(ctx, "deal activated",
		slog.String("deal_id", event.DealID),
		slog.String("game_id", event.GameID),
		slog.String("activation_key", event.ActivationKey),
		slog.Time("expires_at", event.ExpiresAt),
	)
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
