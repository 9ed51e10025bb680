// Package processors applies order events consumed by the worker.
package processors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"codform/internal/events"
	"codform/internal/logger"
	"codform/internal/models"
	"codform/internal/services/fraud"
	"codform/internal/services/orders"
)

// OrderSyncer mirrors a captured order to the platform.
type OrderSyncer interface {
	Sync(ctx context.Context, orderID string) (*models.Order, error)
}

// HitRecorder counts block list matches.
type HitRecorder interface {
	RecordHit(ctx context.Context, shop string, kind models.BlockKind, value string) error
}

type EventProcessor struct {
	syncer OrderSyncer
	hits   HitRecorder
	logger *logger.Logger
}

func NewEventProcessor(syncer OrderSyncer, hits HitRecorder, logger *logger.Logger) *EventProcessor {
	return &EventProcessor{
		syncer: syncer,
		hits:   hits,
		logger: logger,
	}
}

// Process handles one event. Unknown types are skipped. Shops without admin
// access keep their orders local and are not an error.
func (ep *EventProcessor) Process(ctx context.Context, ev events.Event) error {
	ep.logger.Debug("Processing %s for %s", ev.Type, ev.Shop)

	switch ev.Type {
	case events.TypeOrderCreated:
		if ev.OrderID == "" {
			return fmt.Errorf("%s without order id", ev.Type)
		}
		order, err := ep.syncer.Sync(ctx, ev.OrderID)
		if errors.Is(err, orders.ErrNoAdminAccess) {
			ep.logger.Info("Order %s of %s kept local: %v", ev.OrderID, ev.Shop, err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("sync order %s: %w", ev.OrderID, err)
		}
		ep.logger.Info("Order %s of %s is %s", order.ID, ev.Shop, order.Status)
		return nil

	case events.TypeOrderBlocked:
		var data events.BlockedData
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return fmt.Errorf("decode %s data: %w", ev.Type, err)
		}
		// Daily limit blocks have no block list entry to count.
		if data.Reason != fraud.ReasonBlockList {
			return nil
		}
		return ep.hits.RecordHit(ctx, ev.Shop, models.BlockKind(data.Kind), data.Value)

	default:
		ep.logger.Debug("Skipping event type %s", ev.Type)
		return nil
	}
}
