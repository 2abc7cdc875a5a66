package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/appbelezeiro/belezeiro-sub003/libs/httpx"
	"github.com/segmentio/kafka-go"
)

const TopicProviderDeleted = "account.provider.deleted.v1"

type Purger interface {
	PurgeProvider(ctx context.Context, providerID string) (int64, error)
}

// ProviderDeleted drops the schedule of a provider whose account was removed.
// Malformed payloads are logged and skipped so they do not block the partition.
func ProviderDeleted(logger *slog.Logger, purger Purger) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			ProviderID string `json:"provider_id"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
			return nil
		}
		if payload.ProviderID == "" {
			logger.Error("missing required event fields", "topic", msg.Topic)
			return nil
		}
		n, err := purger.PurgeProvider(ctx, payload.ProviderID)
		if err != nil {
			return err
		}
		logger.Info("provider schedule purged", "provider_id", payload.ProviderID, "removed", n, "request_id", httpx.RequestIDFromContext(ctx))
		return nil
	}
}
