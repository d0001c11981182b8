package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-florist-service/internal/tenant"
	"github.com/tinywideclouds/go-florist-service/pkg/dispatch"
	"github.com/tinywideclouds/go-florist-service/pkg/florist"
	"github.com/tinywideclouds/go-florist-service/pkg/storage"
)

// Broadcaster is the part of the notification helper the processor needs.
type Broadcaster interface {
	Permission() dispatch.Permission
	BroadcastPromotion(ctx context.Context, p florist.Promotion, subscribers []florist.Subscriber) (bool, error)
}

// NewProcessor creates the stage that loads the florist named by a request
// and announces the promotion. Returning an error Nacks the message for a
// retry, so only transient failures do so; requests that can never succeed
// are acknowledged and dropped.
func NewProcessor(
	gw storage.Gateway,
	broadcaster Broadcaster,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[BroadcastRequest] {

	return func(ctx context.Context, original messagepipeline.Message, request *BroadcastRequest) error {
		procLogger := logger.With(
			"florist_id", request.FloristID,
			"promotion_id", request.PromotionID,
			"pubsub_msg_id", original.ID,
		)

		// A worker must never sit on a permission prompt.
		if broadcaster.Permission() != dispatch.PermissionGranted {
			procLogger.Warn("Notifications not granted; dropping broadcast request.")
			return nil
		}

		store := tenant.New(gw, procLogger)
		defer store.Close()

		store.SetFlorist(ctx, request.FloristID)
		if err := store.Err(); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				procLogger.Info("Florist not found; dropping broadcast request.")
				return nil
			}
			procLogger.Error("Failed to load florist", "err", err)
			return err // Retryable
		}

		promotion, ok := store.FindPromotion(request.PromotionID)
		if !ok {
			procLogger.Info("Promotion not found; dropping broadcast request.")
			return nil
		}
		if !promotion.IsCurrentlyActive(time.Now()) {
			procLogger.Info("Promotion is not active; dropping broadcast request.")
			return nil
		}

		subscribers := store.Subscribers()
		if len(subscribers) == 0 {
			procLogger.Info("Florist has no subscribers; dropping broadcast request.")
			return nil
		}

		sent, err := broadcaster.BroadcastPromotion(ctx, promotion, subscribers)
		if err != nil {
			procLogger.Error("Broadcast failed", "err", err)
			return err // Retryable
		}
		if !sent {
			procLogger.Warn("Broadcast not shown: permission withdrawn.")
			return nil
		}

		procLogger.Info("Broadcast dispatched", "subscribers", len(subscribers))
		return nil
	}
}
