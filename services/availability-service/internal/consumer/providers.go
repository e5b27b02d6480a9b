package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/availability-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const TopicProviderRegistered = "identity.provider.registered.v1"

type providerRegistered struct {
	ProviderID string    `json:"provider_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ProviderRegistered adds providers announced by the identity service to the local registry.
func ProviderRegistered(logger *slog.Logger) Handler {
	return func(ctx context.Context, tx storage.Tx, msg kafka.Message) error {
		var evt providerRegistered
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return fmt.Errorf("decode provider event: %w", err)
		}
		if evt.ProviderID == "" {
			return errors.New("provider event without provider_id")
		}
		at := evt.OccurredAt
		if at.IsZero() {
			at = msg.Time
		}
		if at.IsZero() {
			at = time.Now()
		}

		created, err := tx.RegisterProvider(ctx, evt.ProviderID, at.UTC())
		if err != nil {
			return fmt.Errorf("register provider: %w", err)
		}
		if created {
			logger.Info("provider registered from event", "provider_id", evt.ProviderID)
		}
		return nil
	}
}
