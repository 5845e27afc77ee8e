package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/mmeshcher/bol-fulfillment/internal/model"
	"github.com/mmeshcher/bol-fulfillment/internal/picking"
)

// ShipOrder регистрирует отправку ещё не отправленных позиций заказа с их
// трек-номерами и возвращает список различных трек-номеров. Позиции, которые
// маркетплейс успел зарегистрировать, отмечаются отправленными даже при ошибке,
// поэтому повторный вызов отправляет только оставшиеся.
func (s *Service) ShipOrder(ctx context.Context, orderID string) ([]string, error) {
	if err := configurationError("marketplace", s.market.Missing()); err != nil {
		return nil, err
	}

	order, ok := picking.OrderByID(s.snapshot(), orderID)
	if !ok {
		return nil, &model.NotFoundError{Kind: "order", ID: orderID}
	}

	if unpicked := len(order.Items) - order.PickedCount; unpicked > 0 {
		return nil, &model.PreconditionError{Reason: "order has unpicked items", Count: unpicked}
	}
	if missing := lo.CountBy(order.Items, func(it model.PickingItem) bool { return it.TrackingNumber == "" }); missing > 0 {
		return nil, &model.PreconditionError{Reason: "order has items without tracking number", Count: missing}
	}
	if order.AllShipped() {
		return nil, &model.PreconditionError{Reason: "order already shipped"}
	}

	pending := lo.Filter(order.Items, func(it model.PickingItem, _ int) bool { return !it.Shipped })
	shipment := lo.Map(pending, func(it model.PickingItem, _ int) model.ShipmentItem {
		return model.ShipmentItem{
			OrderItemID:  it.ItemID,
			Quantity:     it.Quantity,
			TrackingCode: it.TrackingNumber,
		}
	})

	registered, err := s.market.RegisterShipment(ctx, orderID, shipment)
	s.markShipped(ctx, orderID, registered)

	if err != nil {
		s.logger.Warn("shipment registration failed",
			zap.String("order", orderID),
			zap.Int("registered", len(registered)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("ship order %s: %w", orderID, err)
	}

	tracking := lo.Uniq(lo.Map(order.Items, func(it model.PickingItem, _ int) string { return it.TrackingNumber }))

	s.logger.Info("order shipped",
		zap.String("order", orderID),
		zap.Int("items", len(registered)),
		zap.Strings("tracking", tracking),
	)

	return tracking, nil
}

// markShipped отмечает отправленными позиции заказа с указанными номерами и сохраняет лист.
func (s *Service) markShipped(ctx context.Context, orderID string, itemIDs []string) {
	if len(itemIDs) == 0 {
		return
	}

	now := s.now()
	shipped := lo.SliceToMap(itemIDs, func(id string) (model.ItemKey, bool) {
		return model.ItemKey{OrderID: orderID, ItemID: id}, true
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if shipped[s.items[i].Key()] && !s.items[i].Shipped {
			s.items[i].Shipped = true
			s.items[i].ShippedAt = lo.ToPtr(now)
		}
	}
	s.commitLocked(ctx)
}
